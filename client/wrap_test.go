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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/tablebridge/registry"
	"github.com/CovenantSQL/tablebridge/types"
)

func TestWrapTransaction(t *testing.T) {
	tx := func(chainID int64, logs ...*ethtypes.Log) *registry.Transaction {
		return &registry.Transaction{
			Hash:        common.HexToHash("0xabcd"),
			ChainID:     chainID,
			BlockNumber: 7,
			Logs:        logs,
		}
	}

	Convey("single prefix names every table", t, func() {
		r, err := WrapTransaction(tx(31337,
			tableLog(registry.CreateTable, big.NewInt(2)),
			tableLog(registry.SetController, big.NewInt(9)),
		), 1, SinglePrefix("healthbot"))
		So(err, ShouldBeNil)
		So(r.ChainID, ShouldEqual, 31337)
		So(r.TableIDs, ShouldResemble, []string{"2"})
		So(r.Names, ShouldResemble, []string{"healthbot_31337_2"})
		So(r.Prefixes, ShouldResemble, []string{"healthbot"})
		So(r.Name(), ShouldEqual, "healthbot_31337_2")
		So(r.TransactionHash, ShouldEqual, common.HexToHash("0xabcd").Hex())
		So(r.BlockNumber, ShouldEqual, 7)
	})

	Convey("chain id falls back when the transaction has none", t, func() {
		r, err := WrapTransaction(tx(0, tableLog(registry.TransferTable, big.NewInt(4))), 80002, SinglePrefix("pets"))
		So(err, ShouldBeNil)
		So(r.ChainID, ShouldEqual, 80002)
		So(r.Names, ShouldResemble, []string{"pets_80002_4"})
	})

	Convey("statements name tables in log order", t, func() {
		r, err := WrapTransaction(tx(31337,
			tableLog(registry.CreateTable, big.NewInt(5)),
			tableLog(registry.CreateTable, big.NewInt(6)),
		), 31337, FromStatements(
			&types.NormalizedStatement{Type: types.CreateStatement, Tables: []string{"people"}},
			&types.NormalizedStatement{Type: types.CreateStatement, Tables: []string{"pets"}},
		))
		So(err, ShouldBeNil)
		So(r.Names, ShouldResemble, []string{"people_31337_5", "pets_31337_6"})
		So(r.Prefixes, ShouldResemble, []string{"people", "pets"})

		r, err = WrapTransaction(tx(31337,
			tableLog(registry.RunSQL, big.NewInt(5)),
		), 31337, FromStatements(
			&types.NormalizedStatement{Type: types.WriteStatement, Tables: []string{"people_31337_5"}},
		))
		So(err, ShouldBeNil)
		So(r.Names, ShouldResemble, []string{"people_31337_5"})
		So(r.Prefixes, ShouldResemble, []string{"people"})
	})

	Convey("no table events is an error", t, func() {
		_, err := WrapTransaction(tx(31337, tableLog(registry.SetController, big.NewInt(1))), 31337, SinglePrefix("x"))
		So(types.KindOf(err), ShouldEqual, types.KindNoEvents)

		_, err = WrapTransaction(tx(31337), 31337, SinglePrefix("x"))
		So(types.KindOf(err), ShouldEqual, types.KindNoEvents)
	})
}
