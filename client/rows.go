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

package client

import (
	"database/sql/driver"
	"encoding/json"
	"io"

	"github.com/CovenantSQL/tablebridge/validator"
)

type rows struct {
	columns []string
	data    [][]interface{}
}

func newRows(t *validator.TableResult) *rows {
	r := &rows{data: t.Rows}
	for _, c := range t.Columns {
		r.columns = append(r.columns, c.Name)
	}
	return r
}

// Columns implements driver.Rows.Columns method.
func (r *rows) Columns() []string {
	return r.columns[:]
}

// Close implements driver.Rows.Close method.
func (r *rows) Close() error {
	r.data = nil
	return nil
}

// Next implements driver.Rows.Next method.
func (r *rows) Next(dest []driver.Value) error {
	if len(r.data) == 0 {
		return io.EOF
	}

	for i, d := range r.data[0] {
		if i < len(dest) {
			dest[i] = toDriverValue(d)
		}
	}

	// unshift data
	r.data = r.data[1:]

	return nil
}

// toDriverValue maps decoded json values to driver values.
func toDriverValue(v interface{}) driver.Value {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return b
	default:
		return v
	}
}
