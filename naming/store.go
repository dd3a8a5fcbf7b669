/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package naming

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/utils/log"
)

// Store persists the alias mapping. Write merges m into the stored mapping
// and never drops unrelated keys.
type Store interface {
	Read() (Mapping, error)
	Write(m Mapping) error
}

// MemoryStore keeps the mapping in process memory.
type MemoryStore struct {
	mu sync.RWMutex
	m  Mapping
}

// NewMemoryStore returns a store seeded with a copy of initial.
func NewMemoryStore(initial Mapping) *MemoryStore {
	s := &MemoryStore{m: Mapping{}}
	if initial != nil {
		s.m = deepcopy.Copy(initial).(Mapping)
	}
	return s
}

// Read returns a snapshot of the mapping.
func (s *MemoryStore) Read() (Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepcopy.Copy(s.m).(Mapping), nil
}

// Write merges m into the mapping.
func (s *MemoryStore) Write(m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range m {
		s.m[k] = v
	}
	return nil
}

// FileStore keeps the mapping as a JSON object in a file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path, which need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Read loads the mapping, an absent file reads as empty.
func (s *FileStore) Read() (Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() (m Mapping, err error) {
	m = Mapping{}
	data, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return m, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "read alias file %s", s.path)
	}
	if len(data) == 0 {
		return
	}
	if err = json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "decode alias file %s", s.path)
	}
	return
}

// Write merges m into the file, replacing it atomically.
func (s *FileStore) Write(m Mapping) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return
	}
	for k, v := range m {
		current[k] = v
	}
	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode alias mapping")
	}

	tmp, err := ioutil.TempFile(filepath.Dir(s.path), ".aliases-")
	if err != nil {
		return errors.Wrap(err, "create temp alias file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp alias file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp alias file")
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "replace alias file %s", s.path)
	}

	log.WithFields(log.Fields{
		"path":    s.path,
		"written": len(m),
		"total":   len(current),
	}).Debug("alias file updated")
	return
}
