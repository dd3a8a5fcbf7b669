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
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/tablebridge/types"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestBind(t *testing.T) {
	Convey("positional placeholders", t, func() {
		out, err := Bind("insert into t values (?, ?, ?)", 1, "it's", nil)
		So(err, ShouldBeNil)
		So(out, ShouldEqual, "insert into t values (1, 'it''s', NULL)")

		out, err = Bind("select * from t where a = ?2 and b = ?1 and c = ?", "x", "y")
		So(err, ShouldBeNil)
		So(out, ShouldEqual, "select * from t where a = 'y' and b = 'x' and c = 'y'")
	})

	Convey("named placeholders", t, func() {
		out, err := Bind("update t set a = @a, b = :b, c = $c where id = ?",
			map[string]interface{}{"a": true, "b": 1.5}, sql.Named("c", []byte{0xca, 0xfe}), 7)
		So(err, ShouldBeNil)
		So(out, ShouldEqual, "update t set a = 1, b = 1.5, c = X'CAFE' where id = 7")
	})

	Convey("placeholders in quotes are left alone", t, func() {
		out, err := Bind("select '?', \"@a\" from t where id = ?", 1)
		So(err, ShouldBeNil)
		So(out, ShouldEqual, "select '?', \"@a\" from t where id = 1")
	})

	Convey("count plain placeholders", t, func() {
		So(CountPlaceholders("insert into t values (?, ?, '?')"), ShouldEqual, 2)
		So(CountPlaceholders("select 1"), ShouldEqual, 0)
		So(CountPlaceholders("insert into t values (?1, ?)"), ShouldEqual, -1)
		So(CountPlaceholders("select * from t where a = @a"), ShouldEqual, -1)
	})

	Convey("count mismatch is a bind error", t, func() {
		_, err := Bind("select * from t where a = ? and b = ?", 1)
		So(types.KindOf(err), ShouldEqual, types.KindBind)
		e, _ := types.AsError(err)
		So(e.Hint, ShouldEqual, "select * from t where a = ? and b = ?\n"+strings.Repeat(" ", 36)+"^")

		_, err = Bind("select * from t", 1)
		So(types.KindOf(err), ShouldEqual, types.KindBind)

		_, err = Bind("select * from t where a = @missing")
		So(types.KindOf(err), ShouldEqual, types.KindBind)

		_, err = Bind("select * from t where a = ?0", 1)
		So(types.KindOf(err), ShouldEqual, types.KindBind)
	})

	Convey("unbindable values are bind errors", t, func() {
		_, err := Bind("select ?", math.Inf(1))
		So(types.KindOf(err), ShouldEqual, types.KindBind)
		_, err = Bind("select ?", make(chan int))
		So(types.KindOf(err), ShouldEqual, types.KindBind)
	})
}

func TestLiteral(t *testing.T) {
	Convey("render literals", t, func() {
		var nilPtr *int
		three := 3
		ts := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)

		cases := []struct {
			in  interface{}
			out string
		}{
			{nil, "NULL"},
			{false, "0"},
			{int8(-3), "-3"},
			{uint64(18446744073709551615), "18446744073709551615"},
			{float32(0.5), "0.5"},
			{"o'clock", "'o''clock'"},
			{ts, "'2019-06-01T12:00:00Z'"},
			{big.NewInt(1 << 40), "1099511627776"},
			{nilPtr, "NULL"},
			{&three, "3"},
			{sql.NullString{}, "NULL"},
			{sql.NullInt64{Int64: 9, Valid: true}, "9"},
			{point{1, 2}, `'{"x":1,"y":2}'`},
			{[]int{1, 2}, "'[1,2]'"},
		}
		for _, c := range cases {
			out, err := Literal(c.in)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, c.out)
		}
	})
}
