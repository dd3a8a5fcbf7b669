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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSplit(t *testing.T) {
	Convey("split on top level semicolons", t, func() {
		So(Split("select 1; select 2;"), ShouldResemble, []string{"select 1", "select 2"})
		So(Split("  ;; \n"), ShouldBeEmpty)
		So(Split(`insert into t values ('a;b', "c;d"); -- trailing; comment`),
			ShouldResemble, []string{`insert into t values ('a;b', "c;d")`})
		So(Split("insert into t values ('it''s;'); /* x; */ update t set a = 1"),
			ShouldResemble, []string{"insert into t values ('it''s;')", "/* x; */ update t set a = 1"})
		So(Split("select [a;b] from t"), ShouldResemble, []string{"select [a;b] from t"})
	})

	Convey("segments keep their offsets", t, func() {
		sql := "select 1;\n  select 2"
		segs := splitSegments(sql)
		So(segs, ShouldHaveLength, 2)
		So(sql[segs[1].offset:], ShouldStartWith, "select 2")
	})
}

func TestRenameTable(t *testing.T) {
	Convey("rename identifier tokens only", t, func() {
		So(RenameTable("select people.id from people where name = 'people'", "people", "people_1_2"),
			ShouldEqual, "select people_1_2.id from people_1_2 where name = 'people'")
		So(RenameTable(`select * from "people"`, "people", "people_1_2"),
			ShouldEqual, "select * from people_1_2")
		So(RenameTable("select * from peoples", "people", "x"), ShouldEqual, "select * from peoples")
		So(renameTables("select 1", nil), ShouldEqual, "select 1")
	})
}

func TestQualifyCreate(t *testing.T) {
	Convey("append the chain id to the created table", t, func() {
		So(QualifyCreate("CREATE TABLE Healthbot (counter int)", 31337),
			ShouldEqual, "CREATE TABLE healthbot_31337 (counter int)")
		So(QualifyCreate("create table if not exists pets(id int)", 5),
			ShouldEqual, "create table if not exists pets_5(id int)")
		So(QualifyCreate(`create table "Pets" (id int)`, 5),
			ShouldEqual, "create table pets_5 (id int)")
		So(QualifyCreate("select 1", 5), ShouldEqual, "select 1")
	})
}

func TestScanPlaceholders(t *testing.T) {
	Convey("placeholders are recognised outside quotes", t, func() {
		sql := "select ?, ?12, @a, :b, $c, '?', \"@x\" -- ?\n"
		var found []string
		scan(sql, func(tk token) {
			if tk.kind == tokPlaceholder {
				found = append(found, tk.text(sql))
			}
		})
		So(found, ShouldResemble, []string{"?", "?12", "@a", ":b", "$c"})
	})
}
