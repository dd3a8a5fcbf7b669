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
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var aliasKeyPrefix = []byte("alias:")

// LevelDBStore keeps the mapping in a leveldb database, one key per alias.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens or creates the database at path.
func OpenLevelDBStore(path string) (s *LevelDBStore, err error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open alias database %s", path)
	}
	return &LevelDBStore{db: db}, nil
}

// Read returns every stored alias.
func (s *LevelDBStore) Read() (m Mapping, err error) {
	m = Mapping{}
	iter := s.db.NewIterator(util.BytesPrefix(aliasKeyPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		m[string(iter.Key()[len(aliasKeyPrefix):])] = string(iter.Value())
	}
	if err = iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate alias database")
	}
	return
}

// Write stores m in one batch.
func (s *LevelDBStore) Write(m Mapping) error {
	batch := new(leveldb.Batch)
	for k, v := range m {
		batch.Put(append(append([]byte(nil), aliasKeyPrefix...), k...), []byte(v))
	}
	return errors.Wrap(s.db.Write(batch, nil), "write alias database")
}

// Close closes the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
