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


package main

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"

	"github.com/CovenantSQL/tablebridge/events"
	"github.com/CovenantSQL/tablebridge/registry"
)

func transferLog(tableID int64, tx string) ethtypes.Log {
	l := ethtypes.Log{
		Topics:      []common.Hash{registry.TransferTable.Topic()},
		TxHash:      common.HexToHash(tx),
		BlockNumber: 7,
	}
	for i := 0; i < registry.TransferTable.TableIDPosition(); i++ {
		l.Data = append(l.Data, common.LeftPadBytes(nil, 32)...)
	}
	l.Data = append(l.Data, common.LeftPadBytes(big.NewInt(tableID).Bytes(), 32)...)
	return l
}

type notifications chan *eventNotification

func (n notifications) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
	interface{}, error) {
	if req.Method == notifyEvent && req.Params != nil {
		var e eventNotification
		if err := json.Unmarshal(*req.Params, &e); err == nil {
			n <- &e
		}
	}
	return nil, nil
}

func dialStream(url string, n notifications) (*jsonrpc2.Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return jsonrpc2.NewConn(context.Background(), wsstream.NewObjectStream(ws), jsonrpc2.HandlerWithError(n.handle)), nil
}

func TestStream(t *testing.T) {
	Convey("json-rpc event stream", t, func() {
		w, filterer, err := newTestWatcher()
		So(err, ShouldBeNil)
		defer w.close()

		router, err := newRouter(w)
		So(err, ShouldBeNil)
		server := httptest.NewServer(router)
		defer server.Close()

		n := make(notifications, 4)
		client, err := dialStream("ws"+strings.TrimPrefix(server.URL, "http")+"/v1/stream", n)
		So(err, ShouldBeNil)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var res tableParams
		err = client.Call(ctx, methodSubscribe, tableParams{Table: "healthbot_31337_1"}, &res)
		So(err, ShouldBeNil)
		So(res.Table, ShouldEqual, "healthbot_31337_1")
		So(w.bus.Tables(), ShouldResemble, []string{"healthbot_31337_1"})

		Convey("events are notified", func() {
			filterer.send(transferLog(1, "0x01"))
			select {
			case e := <-n:
				So(e.Event, ShouldEqual, events.Transfer)
				So(e.Table, ShouldEqual, "healthbot_31337_1")
				So(e.BlockNumber, ShouldEqual, 7)
			case <-time.After(3 * time.Second):
				So("no notification", ShouldBeEmpty)
			}
		})

		Convey("unsubscribing stops notifications", func() {
			err = client.Call(ctx, methodUnsubscribe, tableParams{Table: "healthbot_31337_1"}, &res)
			So(err, ShouldBeNil)

			err = client.Call(ctx, methodUnsubscribe, tableParams{Table: "healthbot_31337_1"}, &res)
			So(err, ShouldNotBeNil)

			filterer.send(transferLog(1, "0x02"))
			select {
			case <-n:
				So("unexpected notification", ShouldBeEmpty)
			case <-time.After(200 * time.Millisecond):
			}
		})

		Convey("bad requests", func() {
			err = client.Call(ctx, methodSubscribe, tableParams{}, &res)
			So(err, ShouldNotBeNil)
			rpcErr, ok := err.(*jsonrpc2.Error)
			So(ok, ShouldBeTrue)
			So(rpcErr.Code, ShouldEqual, jsonrpc2.CodeInvalidParams)

			err = client.Call(ctx, "drop", tableParams{Table: "healthbot_31337_1"}, &res)
			So(err, ShouldNotBeNil)

			err = client.Call(ctx, methodSubscribe, tableParams{Table: "healthbot"}, &res)
			So(err, ShouldNotBeNil)
		})
	})
}
