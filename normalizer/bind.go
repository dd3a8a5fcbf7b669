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
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/CovenantSQL/tablebridge/types"
)

// Bind renders args into the placeholders of query and returns literal sql.
//
// Positional placeholders are ? and ?NNN (1-based), named placeholders are
// @name, :name and $name. Arguments of type sql.NamedArg, and the entries of
// any map[string]interface{} argument, bind named placeholders; every other
// argument is positional. All positional arguments must be consumed.
func Bind(query string, args ...interface{}) (string, error) {
	var (
		positional []interface{}
		named      = map[string]interface{}{}
	)
	for _, arg := range args {
		switch a := arg.(type) {
		case sql.NamedArg:
			named[a.Name] = a.Value
		case map[string]interface{}:
			for k, v := range a {
				named[k] = v
			}
		default:
			positional = append(positional, arg)
		}
	}

	var (
		b    strings.Builder
		last int
		next int
		used = make([]bool, len(positional))
		err  *types.Error
	)
	scan(query, func(t token) {
		if err != nil || t.kind != tokPlaceholder {
			return
		}
		text := t.text(query)
		var value interface{}
		switch text[0] {
		case '?':
			idx := next
			if len(text) > 1 {
				n, convErr := strconv.Atoi(text[1:])
				if convErr != nil || n < 1 {
					err = bindError(query, t.start, "invalid parameter index %s", text)
					return
				}
				idx = n - 1
			}
			next = idx + 1
			if idx >= len(positional) {
				err = bindError(query, t.start, "missing value for parameter %s (%d given)", text, len(positional))
				return
			}
			used[idx] = true
			value = positional[idx]
		default:
			v, ok := named[text[1:]]
			if !ok {
				err = bindError(query, t.start, "missing value for named parameter %s", text)
				return
			}
			value = v
		}
		lit, renderErr := Literal(value)
		if renderErr != nil {
			err = bindError(query, t.start, "cannot bind %s: %v", text, renderErr)
			return
		}
		b.WriteString(query[last:t.start])
		b.WriteString(lit)
		last = t.end
	})
	if err != nil {
		return "", err
	}
	for i, u := range used {
		if !u {
			return "", bindError(query, len(query),
				"parameter count mismatch: %d values given, value %d is unused", len(positional), i+1)
		}
	}
	b.WriteString(query[last:])
	return b.String(), nil
}

// CountPlaceholders returns the number of ? placeholders in query, or -1 when
// query uses numbered or named placeholders.
func CountPlaceholders(query string) (n int) {
	scan(query, func(t token) {
		if n < 0 || t.kind != tokPlaceholder {
			return
		}
		if t.end-t.start != 1 {
			n = -1
			return
		}
		n++
	})
	return
}

func bindError(query string, pos int, format string, args ...interface{}) *types.Error {
	return types.NewError(types.KindBind, format, args...).WithHint(query, pos)
}

// Literal renders v as a SQL literal.
func Literal(v interface{}) (string, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return "NULL", nil
		}
		inner, err := valuer.Value()
		if err != nil {
			return "", err
		}
		v = inner
	}

	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case string:
		return quote(x), nil
	case []byte:
		if x == nil {
			return "NULL", nil
		}
		return "X'" + strings.ToUpper(hex.EncodeToString(x)) + "'", nil
	case time.Time:
		return quote(x.Format(time.RFC3339Nano)), nil
	case *big.Int:
		if x == nil {
			return "NULL", nil
		}
		return x.String(), nil
	case json.RawMessage:
		return quote(string(x)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", errNonFinite
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case reflect.String:
		return quote(rv.String()), nil
	case reflect.Bool:
		return Literal(rv.Bool())
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "NULL", nil
		}
		return Literal(rv.Elem().Interface())
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return quote(string(data)), nil
}

func quote(s string) string {
	return "'" + strings.Replace(s, "'", "''", -1) + "'"
}
