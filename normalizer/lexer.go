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

package normalizer

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokOther tokenKind = iota
	tokSpace
	tokIdent
	tokQuotedIdent
	tokString
	tokComment
	tokSemicolon
	tokPlaceholder
)

type token struct {
	kind       tokenKind
	start, end int
}

func (t token) text(sql string) string {
	return sql[t.start:t.end]
}

// ident returns the identifier value with surrounding quotes removed.
func (t token) ident(sql string) string {
	if t.kind == tokQuotedIdent {
		return unquoteIdent(t.text(sql))
	}
	return t.text(sql)
}

func unquoteIdent(s string) string {
	if len(s) < 2 {
		return s
	}
	switch s[0] {
	case '"', '`':
		q := s[:1]
		return strings.Replace(s[1:len(s)-1], q+q, q, -1)
	case '[':
		return s[1 : len(s)-1]
	}
	return s
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// scan walks sql token by token. Unterminated quotes and comments run to
// the end of input.
func scan(sql string, fn func(token)) {
	for i := 0; i < len(sql); {
		start := i
		c := sql[i]
		kind := tokOther
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			for i < len(sql) && strings.IndexByte(" \t\n\r", sql[i]) >= 0 {
				i++
			}
			kind = tokSpace
		case c == '\'':
			i = skipQuoted(sql, i, '\'')
			kind = tokString
		case c == '"' || c == '`':
			i = skipQuoted(sql, i, c)
			kind = tokQuotedIdent
		case c == '[':
			if end := strings.IndexByte(sql[i:], ']'); end >= 0 {
				i += end + 1
			} else {
				i = len(sql)
			}
			kind = tokQuotedIdent
		case c == '-' && strings.HasPrefix(sql[i:], "--"):
			if end := strings.IndexByte(sql[i:], '\n'); end >= 0 {
				i += end
			} else {
				i = len(sql)
			}
			kind = tokComment
		case c == '/' && strings.HasPrefix(sql[i:], "/*"):
			if end := strings.Index(sql[i+2:], "*/"); end >= 0 {
				i += end + 4
			} else {
				i = len(sql)
			}
			kind = tokComment
		case c == ';':
			i++
			kind = tokSemicolon
		case c == '?':
			i++
			for i < len(sql) && isDigit(sql[i]) {
				i++
			}
			kind = tokPlaceholder
		case (c == '@' || c == ':' || c == '$') && i+1 < len(sql) && isIdentStart(sql[i+1]):
			i += 2
			for i < len(sql) && isIdentChar(sql[i]) {
				i++
			}
			kind = tokPlaceholder
		case isIdentStart(c):
			for i < len(sql) && isIdentChar(sql[i]) {
				i++
			}
			kind = tokIdent
		case isDigit(c):
			// numbers swallow trailing identifier chars so 1e5 and 0x1f stay whole
			for i < len(sql) && (isIdentChar(sql[i]) || sql[i] == '.') {
				i++
			}
		default:
			i++
		}
		fn(token{kind: kind, start: start, end: i})
	}
}

func skipQuoted(sql string, i int, quote byte) int {
	for i++; i < len(sql); i++ {
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(sql)
}

type segment struct {
	text   string
	offset int
}

func splitSegments(sql string) (segs []segment) {
	var (
		start   int
		nonTriv bool
	)
	flush := func(end int) {
		if nonTriv {
			text := sql[start:end]
			trimmed := strings.TrimLeft(text, " \t\r\n")
			segs = append(segs, segment{
				text:   strings.TrimRight(trimmed, " \t\r\n"),
				offset: start + len(text) - len(trimmed),
			})
		}
		nonTriv = false
	}
	scan(sql, func(t token) {
		switch t.kind {
		case tokSemicolon:
			flush(t.start)
			start = t.end
		case tokSpace, tokComment:
		default:
			nonTriv = true
		}
	})
	flush(len(sql))
	return
}

// Split splits sql into its statements on top level semicolons, ignoring
// semicolons inside quotes and comments. Empty statements are dropped.
func Split(sql string) []string {
	segs := splitSegments(sql)
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, s.text)
	}
	return out
}

// RenameTable rewrites every identifier token of sql equal to from into to.
func RenameTable(sql string, from, to string) string {
	return renameTables(sql, map[string]string{from: to})
}

func renameTables(sql string, names map[string]string) string {
	if len(names) == 0 {
		return sql
	}
	var (
		b    strings.Builder
		last int
	)
	scan(sql, func(t token) {
		if t.kind != tokIdent && t.kind != tokQuotedIdent {
			return
		}
		to, ok := names[t.ident(sql)]
		if !ok {
			return
		}
		b.WriteString(sql[last:t.start])
		b.WriteString(to)
		last = t.end
	})
	if last == 0 {
		return sql
	}
	b.WriteString(sql[last:])
	return b.String()
}

// renameReferences rewrites the table named right after each REFERENCES
// keyword. The target of a create statement is left as written.
func renameReferences(sql string, names map[string]string) string {
	if len(names) == 0 {
		return sql
	}
	var (
		b        strings.Builder
		last     int
		afterRef bool
	)
	scan(sql, func(t token) {
		switch t.kind {
		case tokSpace, tokComment:
			return
		case tokIdent, tokQuotedIdent:
		default:
			afterRef = false
			return
		}
		if !afterRef {
			afterRef = t.kind == tokIdent && strings.EqualFold(t.text(sql), "references")
			return
		}
		afterRef = false
		if to, ok := names[t.ident(sql)]; ok {
			b.WriteString(sql[last:t.start])
			b.WriteString(to)
			last = t.end
		}
	})
	if last == 0 {
		return sql
	}
	b.WriteString(sql[last:])
	return b.String()
}

// QualifyCreate appends _chainID to the target table of a CREATE TABLE
// statement, the form the registry contract expects.
func QualifyCreate(stmt string, chainID int64) string {
	var (
		state  int
		target *token
	)
	scan(stmt, func(t token) {
		if target != nil || (t.kind != tokIdent && t.kind != tokQuotedIdent) {
			return
		}
		word := strings.ToLower(t.text(stmt))
		switch {
		case state == 0 && word == "table":
			state = 1
		case state == 1 && t.kind == tokIdent && (word == "if" || word == "not" || word == "exists"):
		case state == 1:
			tt := t
			target = &tt
		}
	})
	if target == nil {
		return stmt
	}
	name := strings.ToLower(target.ident(stmt)) + "_" + strconv.FormatInt(chainID, 10)
	return stmt[:target.start] + name + stmt[target.end:]
}
