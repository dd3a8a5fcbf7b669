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

package validator_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/tablebridge/types"
	"github.com/CovenantSQL/tablebridge/validator"
	"github.com/CovenantSQL/tablebridge/validator/validatortest"
)

func TestClient(t *testing.T) {
	Convey("validator client", t, func() {
		srv := validatortest.NewServer()
		defer srv.Close()
		c := validator.NewClient(srv.BaseURL()+"/", nil)
		So(c.BaseURL(), ShouldEqual, srv.BaseURL())
		ctx := context.Background()

		Convey("health and version", func() {
			ok, err := c.Health(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			v, err := c.Version(ctx)
			So(err, ShouldBeNil)
			So(v.GitCommit, ShouldEqual, "test")
		})

		Convey("receipts", func() {
			_, found, err := c.ReceiptByTransactionHash(ctx, 31337, "0xabc")
			So(err, ShouldBeNil)
			So(found, ShouldBeFalse)

			srv.SetReceipt(&types.TransactionReceipt{
				TransactionHash: "0xabc",
				ChainID:         31337,
				TableIDs:        []string{"2"},
				BlockNumber:     10,
			}, 0)
			r, found, err := c.ReceiptByTransactionHash(ctx, 31337, "0xabc")
			So(err, ShouldBeNil)
			So(found, ShouldBeTrue)
			So(r.TableIDs, ShouldResemble, []string{"2"})
			So(r.BlockNumber, ShouldEqual, 10)
			So(srv.Requests("receipt"), ShouldEqual, 2)
		})

		Convey("queries", func() {
			rows, err := c.QueryObjects(ctx, "select * from a_31337_1")
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)

			srv.SetQuery(func(statement string, format validator.Format) (int, interface{}) {
				if format == validator.Table {
					return http.StatusOK, map[string]interface{}{
						"columns": []map[string]string{{"name": "id"}},
						"rows":    [][]interface{}{{1}, {2}},
					}
				}
				return http.StatusOK, []map[string]interface{}{{"id": 1}, {"id": 2}}
			})
			out, err := c.Query(ctx, "select id from a_31337_1", validator.Objects)
			So(err, ShouldBeNil)
			rows = out.([]map[string]interface{})
			So(rows, ShouldHaveLength, 2)
			So(rows[1]["id"], ShouldEqual, 2)

			out, err = c.Query(ctx, "select id from a_31337_1", validator.Table)
			So(err, ShouldBeNil)
			tbl := out.(*validator.TableResult)
			So(tbl.Columns, ShouldResemble, []validator.Column{{Name: "id"}})
			So(tbl.Rows, ShouldHaveLength, 2)

			So(srv.Statements(), ShouldContain, "select id from a_31337_1")
		})

		Convey("query errors carry the api message", func() {
			srv.SetQuery(func(string, validator.Format) (int, interface{}) {
				return http.StatusBadRequest, map[string]string{"message": "no such table: x"}
			})
			_, err := c.QueryObjects(ctx, "select * from x")
			So(err, ShouldNotBeNil)
			apiErr, ok := errors.Cause(err).(*validator.APIError)
			So(ok, ShouldBeTrue)
			So(apiErr.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(apiErr.Message, ShouldEqual, "no such table: x")
		})

		Convey("tables", func() {
			_, err := c.GetTableByID(ctx, 31337, "1")
			So(errors.Cause(err), ShouldEqual, validator.ErrNotFound)

			srv.SetTable(31337, "1", &validator.TableMeta{Name: "a_31337_1"})
			meta, err := c.GetTableByID(ctx, 31337, "1")
			So(err, ShouldBeNil)
			So(meta.Name, ShouldEqual, "a_31337_1")
		})

		Convey("with base url", func() {
			So(c.WithBaseURL(srv.BaseURL()), ShouldEqual, c)
			other := c.WithBaseURL("http://127.0.0.1:1/api/v1")
			So(other.BaseURL(), ShouldEqual, "http://127.0.0.1:1/api/v1")
			ctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			_, err := other.Health(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}
