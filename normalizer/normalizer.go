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

// Package normalizer classifies literal SQL into read, write, create and
// acl statements and resolves table aliases.
package normalizer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/CovenantSQL/sqlparser"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/utils/log"
)

var (
	errNonFinite = errors.New("non-finite float")

	aclRegex      = regexp.MustCompile(`(?is)^(grant|revoke)\s+.+?\s+on\s+("[^"]+"|` + "`[^`]+`" + `|\[[^\]]+\]|[^\s;]+)\s+(to|from)\s+.+$`)
	createRegex   = regexp.MustCompile(`(?is)^create\s+table\s+(?:if\s+not\s+exists\s+)?("[^"]+"|` + "`[^`]+`" + `|\[[^\]]+\]|[A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	positionRegex = regexp.MustCompile(`at position (\d+)`)
	prefixRegex   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Normalizer classifies literal sql.
type Normalizer interface {
	// Normalize classifies sql. When aliases is non-nil, referenced alias
	// names are replaced by their universal names.
	Normalize(sql string, aliases naming.Mapping) (*types.NormalizedStatement, error)
	// ValidateTableName parses a universal table name.
	ValidateTableName(name string) (naming.Parts, error)
}

type parsed struct {
	typ    types.StatementType
	tables []string
}

type sqlNormalizer struct{}

// New returns the default Normalizer backed by the CovenantSQL sql parser.
func New() Normalizer {
	return sqlNormalizer{}
}

func (sqlNormalizer) ValidateTableName(name string) (naming.Parts, error) {
	return naming.ParseName(name)
}

func (sqlNormalizer) Normalize(sql string, aliases naming.Mapping) (ns *types.NormalizedStatement, err error) {
	segs := splitSegments(sql)
	if len(segs) == 0 {
		return nil, types.NewError(types.KindParse, "empty statement")
	}

	ns = &types.NormalizedStatement{}
	seen := map[string]bool{}
	for i, seg := range segs {
		var p *parsed
		if p, err = classify(seg.text); err != nil {
			if e, ok := types.AsError(err); ok && e.Hint == "" {
				if pos := errorPosition(err); pos >= 0 {
					e.WithHint(sql, seg.offset+pos)
				}
			}
			return nil, err
		}
		if i == 0 {
			ns.Type = p.typ
		} else if p.typ != ns.Type {
			return nil, types.NewError(types.KindParse,
				"mixed statement types in one query: %s and %s", ns.Type, p.typ).
				WithHint(sql, seg.offset)
		} else if p.typ == types.ReadStatement {
			return nil, types.NewError(types.KindParse,
				"only one read statement is allowed per query").WithHint(sql, seg.offset)
		}

		stmt := seg.text
		if p.typ == types.CreateStatement {
			// only referenced tables resolve, the target stays a literal prefix
			stmt = renameReferences(stmt, aliases)
		} else {
			resolved := map[string]string{}
			for j, t := range p.tables {
				if name, ok := aliases[t]; ok {
					resolved[t] = name
					p.tables[j] = name
				}
			}
			stmt = renameTables(stmt, resolved)
		}
		for _, t := range p.tables {
			if !seen[t] {
				seen[t] = true
				ns.Tables = append(ns.Tables, t)
			}
		}
		ns.Statements = append(ns.Statements, stmt)
	}

	log.WithFields(log.Fields{
		"type":   ns.Type,
		"tables": ns.Tables,
		"count":  len(ns.Statements),
	}).Debug("statement normalized")
	return
}

func classify(stmt string) (p *parsed, err error) {
	if m := aclRegex.FindStringSubmatch(stmt); m != nil {
		return &parsed{typ: types.ACLStatement, tables: []string{unquoteIdent(m[2])}}, nil
	}

	tree, err := sqlparser.Parse(stmt)
	if err != nil {
		// table specs outside the parser dialect are still recognised by shape
		if m := createRegex.FindStringSubmatch(stmt); m != nil {
			return createStatement(unquoteIdent(m[1]))
		}
		return nil, types.NewError(types.KindParse, "%s", err.Error()).WithCause(err)
	}

	p = &parsed{}
	switch s := tree.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
		p.typ = types.ReadStatement
	case *sqlparser.Insert, *sqlparser.Update, *sqlparser.Delete:
		p.typ = types.WriteStatement
	case *sqlparser.DDL:
		switch s.Action {
		case sqlparser.CreateStr:
			target := s.NewName
			if target.Name.IsEmpty() {
				target = s.Table
			}
			return createStatement(target.Name.String())
		case sqlparser.AlterStr:
			p.typ = types.WriteStatement
			p.tables = []string{s.Table.Name.String()}
			return
		default:
			return nil, types.NewError(types.KindUnsupportedStatement, "%s statements are not supported", s.Action)
		}
	default:
		return nil, types.NewError(types.KindUnsupportedStatement, "unsupported statement %T", tree)
	}

	p.tables, err = referencedTables(tree)
	return
}

func createStatement(prefix string) (*parsed, error) {
	if !prefixRegex.MatchString(prefix) {
		return nil, types.NewError(types.KindParse, "invalid table prefix %q", prefix)
	}
	return &parsed{typ: types.CreateStatement, tables: []string{strings.ToLower(prefix)}}, nil
}

func referencedTables(tree sqlparser.SQLNode) (tables []string, err error) {
	seen := map[string]bool{}
	err = sqlparser.Walk(func(node sqlparser.SQLNode) (kontinue bool, err error) {
		switch n := node.(type) {
		case *sqlparser.ColName:
			// column qualifiers may be table aliases
			return false, nil
		case sqlparser.TableName:
			if name := n.Name.String(); name != "" && !seen[name] {
				seen[name] = true
				tables = append(tables, name)
			}
		}
		return true, nil
	}, tree)
	if err != nil {
		err = errors.Wrap(err, "walk statement tables")
	}
	return
}

// errorPosition extracts the zero based offset of a parser error.
func errorPosition(err error) int {
	m := positionRegex.FindStringSubmatch(err.Error())
	if m == nil {
		return -1
	}
	pos, _ := strconv.Atoi(m[1])
	if pos > 0 {
		pos--
	}
	return pos
}
