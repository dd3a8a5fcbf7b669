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

	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/types"
)

func TestNormalize(t *testing.T) {
	n := New()

	Convey("classify reads", t, func() {
		ns, err := n.Normalize("SELECT p.id FROM people_1_1 p JOIN pets_1_2 ON p.id = pets_1_2.owner", nil)
		So(err, ShouldBeNil)
		So(ns.Type, ShouldEqual, types.ReadStatement)
		So(ns.Tables, ShouldResemble, []string{"people_1_1", "pets_1_2"})
		So(ns.Statements, ShouldHaveLength, 1)

		_, err = n.Normalize("select * from a_1_1; select * from b_1_2", nil)
		So(types.KindOf(err), ShouldEqual, types.KindParse)
	})

	Convey("classify writes", t, func() {
		ns, err := n.Normalize("INSERT INTO a_1_1 (x) VALUES (1); UPDATE b_1_2 SET x = 2; DELETE FROM a_1_1 WHERE x = 1", nil)
		So(err, ShouldBeNil)
		So(ns.Type, ShouldEqual, types.WriteStatement)
		So(ns.Tables, ShouldResemble, []string{"a_1_1", "b_1_2"})
		So(ns.Statements, ShouldResemble, []string{
			"INSERT INTO a_1_1 (x) VALUES (1)",
			"UPDATE b_1_2 SET x = 2",
			"DELETE FROM a_1_1 WHERE x = 1",
		})

		ns, err = n.Normalize("insert into a_1_1 (x) select x from b_1_2", nil)
		So(err, ShouldBeNil)
		So(ns.Tables, ShouldResemble, []string{"a_1_1", "b_1_2"})
	})

	Convey("classify creates by their target only", t, func() {
		ns, err := n.Normalize("CREATE TABLE Healthbot (counter int)", nil)
		So(err, ShouldBeNil)
		So(ns.Type, ShouldEqual, types.CreateStatement)
		So(ns.Tables, ShouldResemble, []string{"healthbot"})

		ns, err = n.Normalize("create table pets (id int, owner int references people(id))", nil)
		So(err, ShouldBeNil)
		So(ns.Type, ShouldEqual, types.CreateStatement)
		So(ns.Tables, ShouldResemble, []string{"pets"})
	})

	Convey("classify acl", t, func() {
		ns, err := n.Normalize("GRANT INSERT, UPDATE ON people_1_1 TO '0xabc'", nil)
		So(err, ShouldBeNil)
		So(ns.Type, ShouldEqual, types.ACLStatement)
		So(ns.Tables, ShouldResemble, []string{"people_1_1"})

		ns, err = n.Normalize(`revoke insert on "people_1_1" from '0xabc'`, nil)
		So(err, ShouldBeNil)
		So(ns.Tables, ShouldResemble, []string{"people_1_1"})
	})

	Convey("aliases are resolved in text and tables", t, func() {
		m := naming.Mapping{"people": "people_31337_2"}
		ns, err := n.Normalize("select people.nick from people where nick = 'people'", m)
		So(err, ShouldBeNil)
		So(ns.Tables, ShouldResemble, []string{"people_31337_2"})
		So(ns.Statements[0], ShouldEqual, "select people_31337_2.nick from people_31337_2 where nick = 'people'")

		ns, err = n.Normalize("grant insert on people to '0xabc'", m)
		So(err, ShouldBeNil)
		So(ns.Statements[0], ShouldEqual, "grant insert on people_31337_2 to '0xabc'")

		// created prefixes are reported literally
		ns, err = n.Normalize("create table people (id int)", m)
		So(err, ShouldBeNil)
		So(ns.Tables, ShouldResemble, []string{"people"})
		So(ns.Statements[0], ShouldEqual, "create table people (id int)")

		// referenced tables resolve, columns sharing the alias do not
		ns, err = n.Normalize(`create table pets (people int references "people" (id))`, m)
		So(err, ShouldBeNil)
		So(ns.Tables, ShouldResemble, []string{"pets"})
		So(ns.Statements[0], ShouldEqual, "create table pets (people int references people_31337_2 (id))")
	})

	Convey("reject bad input", t, func() {
		_, err := n.Normalize("  ;  ", nil)
		So(types.KindOf(err), ShouldEqual, types.KindParse)

		_, err = n.Normalize("insert into a_1_1 (x) values (1); select * from a_1_1", nil)
		So(types.KindOf(err), ShouldEqual, types.KindParse)

		_, err = n.Normalize("drop table a_1_1", nil)
		So(types.KindOf(err), ShouldEqual, types.KindUnsupportedStatement)

		_, err = n.Normalize("select * fromm a_1_1", nil)
		So(types.KindOf(err), ShouldEqual, types.KindParse)
		e, _ := types.AsError(err)
		So(e.Hint, ShouldContainSubstring, "^")
	})

	Convey("validate table names", t, func() {
		p, err := n.ValidateTableName("healthbot_31337_1")
		So(err, ShouldBeNil)
		So(p.ChainID, ShouldEqual, 31337)
		_, err = n.ValidateTableName("healthbot")
		So(err, ShouldNotBeNil)
	})
}
