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

// Package naming implements universal table names and alias resolution.
package naming

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/types"
)

// Mapping maps an alias (a caller-chosen prefix) to a universal table name.
type Mapping map[string]string

// Parts is a parsed universal table name.
type Parts struct {
	Prefix  string
	ChainID int64
	TableID string
}

// Name returns the universal name of p.
func (p Parts) Name() string {
	return UniversalName(p.Prefix, p.ChainID, p.TableID)
}

// Identifier returns the table handle of p.
func (p Parts) Identifier() types.TableIdentifier {
	return types.TableIdentifier{ChainID: p.ChainID, TableID: p.TableID}
}

var (
	// ErrInvalidName is returned for names not of the form prefix_chainId_tableId.
	ErrInvalidName = errors.New("invalid universal table name")

	nameRegex = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)?_([0-9]+)_([0-9]+)$`)
)

// UniversalName returns {prefix}_{chainId}_{tableId} with a lower-cased prefix.
func UniversalName(prefix string, chainID int64, tableID string) string {
	return strings.ToLower(prefix) + "_" + strconv.FormatInt(chainID, 10) + "_" + tableID
}

// ParseName splits a universal table name into its parts.
func ParseName(name string) (p Parts, err error) {
	m := nameRegex.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		err = errors.Wrapf(ErrInvalidName, "parse %q", name)
		return
	}
	if !canonicalInt(m[2]) || !canonicalInt(m[3]) {
		err = errors.Wrapf(ErrInvalidName, "leading zeros in %q", name)
		return
	}
	if p.ChainID, err = strconv.ParseInt(m[2], 10, 64); err != nil {
		err = errors.Wrapf(ErrInvalidName, "chain id of %q", name)
		return
	}
	p.Prefix = strings.ToLower(m[1])
	p.TableID = m[3]
	return
}

func canonicalInt(s string) bool {
	return s == "0" || (len(s) > 0 && s[0] != '0')
}

// StripSuffix recovers the prefix of a name known to end in _chainId_tableId.
func StripSuffix(name string, chainID int64, tableID string) string {
	suffix := "_" + strconv.FormatInt(chainID, 10) + "_" + tableID
	if strings.HasSuffix(name, suffix) {
		return strings.ToLower(strings.TrimSuffix(name, suffix))
	}
	if p, err := ParseName(name); err == nil {
		return p.Prefix
	}
	return strings.ToLower(name)
}

// Resolve returns the mapped universal name of nameOrAlias, or nameOrAlias
// unchanged when it is not an alias.
func Resolve(nameOrAlias string, m Mapping) string {
	if name, ok := m[nameOrAlias]; ok {
		return name
	}
	return nameOrAlias
}

// CheckCollision rejects prefixes which are already alias keys of m.
func CheckCollision(prefixes []string, m Mapping) error {
	for _, prefix := range prefixes {
		if name, ok := m[prefix]; ok {
			return types.NewError(types.KindAliasCollision,
				"table name %q is already mapped to %q", prefix, name)
		}
	}
	return nil
}
