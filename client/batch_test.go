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
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/tablebridge/chains"
	"github.com/CovenantSQL/tablebridge/naming"
	"github.com/CovenantSQL/tablebridge/registry"
	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/validator"
)

func TestBatch(t *testing.T) {
	Convey("batch coordination", t, func() {
		env := newTestEnv(true)
		defer env.Close()
		ctx := context.Background()
		db := env.db

		Convey("statement types must match", func() {
			_, err := db.Batch(ctx, []*Statement{
				db.Prepare("select * from a_31337_1"),
				db.Prepare("insert into a_31337_1 (x) values (1)"),
			})
			So(types.KindOf(err), ShouldEqual, types.KindBatch)
			So(types.HasKind(err, types.KindBatchTypeMismatch), ShouldBeTrue)
			So(env.sub.mutated(), ShouldBeEmpty)
		})

		Convey("batched writes reference one table each", func() {
			_, err := db.Batch(ctx, []*Statement{
				db.Prepare("insert into a_31337_1 (x) select x from b_31337_2"),
				db.Prepare("insert into a_31337_1 (x) values (1)"),
			})
			So(types.HasKind(err, types.KindBatchMultiTable), ShouldBeTrue)

			// unless the statement is alone
			_, err = db.Batch(ctx, []*Statement{
				db.Prepare("insert into a_31337_1 (x) select x from b_31337_2"),
			})
			So(err, ShouldBeNil)
			So(env.sub.mutated()[0][0].TableID, ShouldResemble, big.NewInt(1))
		})

		Convey("writes are grouped by table in order", func() {
			results, err := db.Batch(ctx, []*Statement{
				db.Prepare("insert into a_31337_1 (x) values (?)").Bind(1),
				db.Prepare("insert into b_31337_2 (x) values (1)"),
				db.Prepare("insert into a_31337_1 (x) values (?)").Bind(2),
			})
			So(err, ShouldBeNil)
			So(env.sub.mutated(), ShouldResemble, [][]registry.Runnable{{
				{TableID: big.NewInt(1), Statement: "insert into a_31337_1 (x) values (1);insert into a_31337_1 (x) values (2)"},
				{TableID: big.NewInt(2), Statement: "insert into b_31337_2 (x) values (1)"},
			}})
			So(results, ShouldHaveLength, 3)
			So(results[0].Meta.Txn, ShouldEqual, results[2].Meta.Txn)
			So(results[0].Meta.Txn.Names, ShouldResemble, []string{"a_31337_1", "b_31337_2"})
			So(env.srv.Requests("receipt"), ShouldEqual, 1)
		})

		Convey("statements on one table id share a runnable", func() {
			_, err := db.Batch(ctx, []*Statement{
				db.Prepare("insert into a_31337_1 (x) values (1)"),
				db.Prepare("insert into A_31337_1 (x) values (2)"),
			})
			So(err, ShouldBeNil)
			mutated := env.sub.mutated()
			So(mutated, ShouldHaveLength, 1)
			So(mutated[0], ShouldHaveLength, 1)
			So(mutated[0][0].TableID, ShouldResemble, big.NewInt(1))
			So(mutated[0][0].Statement, ShouldEqual,
				"insert into a_31337_1 (x) values (1);insert into A_31337_1 (x) values (2)")
		})

		Convey("creates are submitted verbatim", func() {
			results, err := db.Batch(ctx, []*Statement{
				db.Prepare("create table people (id int)"),
				db.Prepare("create table pets (id int, owner int)"),
			})
			So(err, ShouldBeNil)
			So(env.sub.created(), ShouldResemble, [][]string{{
				"create table people_31337 (id int)",
				"create table pets_31337 (id int, owner int)",
			}})
			So(results[1].Meta.Txn.Names, ShouldResemble, []string{"people_31337_1", "pets_31337_2"})

			m, err := env.aliases.Read()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, naming.Mapping{"people": "people_31337_1", "pets": "pets_31337_2"})
		})

		Convey("reads run in parallel with ordered results", func() {
			env.srv.SetQuery(func(statement string, format validator.Format) (int, interface{}) {
				if strings.Contains(statement, "bad") {
					return 500, map[string]string{"message": "boom"}
				}
				return 200, []map[string]interface{}{{"q": statement}}
			})

			results, err := db.Batch(ctx, []*Statement{
				db.Prepare("select * from a_31337_1"),
				db.Prepare("select * from b_31337_2"),
				db.Prepare("select * from c_31337_3"),
			})
			So(err, ShouldBeNil)
			So(results, ShouldHaveLength, 3)
			for i, name := range []string{"a_31337_1", "b_31337_2", "c_31337_3"} {
				So(results[i].Results[0]["q"], ShouldEqual, "select * from "+name)
			}

			_, err = db.Batch(ctx, []*Statement{
				db.Prepare("select * from a_31337_1"),
				db.Prepare("select bad from b_31337_2"),
			})
			So(types.KindOf(err), ShouldEqual, types.KindBatch)
			_, ok := errors.Cause(err).(*validator.APIError)
			So(ok, ShouldBeTrue)
		})

		Convey("reads across networks fail before any request", func() {
			So(env.cfg.Chains.Override(chains.Chain{ID: 1, Class: chains.Mainnet, BaseURL: env.srv.BaseURL()}), ShouldBeNil)
			So(env.cfg.Chains.Override(chains.Chain{ID: 11155111, Class: chains.Testnet, BaseURL: env.srv.BaseURL()}), ShouldBeNil)

			_, err := db.Batch(ctx, []*Statement{
				db.Prepare("select * from a_1_1"),
				db.Prepare("select * from b_11155111_2"),
			})
			So(types.KindOf(err), ShouldEqual, types.KindBatch)
			So(types.HasKind(err, types.KindNetworkMismatch), ShouldBeTrue)
			So(env.srv.Requests("query"), ShouldEqual, 0)
		})

		Convey("an empty batch is an error", func() {
			_, err := db.Batch(ctx, nil)
			So(errors.Cause(err), ShouldEqual, ErrEmptyBatch)
		})
	})
}
