// Package ws implements the WebSocket transport for eth_subscribe /
// eth_unsubscribe (spec §6): one read loop per connection serves requests,
// and one goroutine per subscription pushes `{subscription, result}` frames
// under the eth_subscribe method name, the canonical Ethereum wire format.
//
// Built on gorilla/websocket, present in the teacher's go.mod.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/consensus-shipyard/fendermint-sub000/ethrpc"
	"github.com/consensus-shipyard/fendermint-sub000/ethrpc/filters"
	"github.com/consensus-shipyard/fendermint-sub000/internal/ethapi"
	"github.com/consensus-shipyard/fendermint-sub000/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeParams is eth_subscribe's parameter shape: ["newHeads"] or
// ["logs", {criteria}] or ["newPendingTransactions"].
type subscribeParams struct {
	kind     string
	criteria ethapi.FilterCriteria
}

func (p *subscribeParams) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return errBadParams
	}
	if err := json.Unmarshal(raw[0], &p.kind); err != nil {
		return err
	}
	if p.kind == "logs" && len(raw) > 1 {
		return json.Unmarshal(raw[1], &p.criteria)
	}
	return nil
}

var errBadParams = jsonError("ws: eth_subscribe requires at least a subscription kind")

type jsonError string

func (e jsonError) Error() string { return string(e) }

// Handler upgrades an HTTP connection to a WebSocket and serves both
// plain request/response JSON-RPC calls and eth_subscribe/eth_unsubscribe
// over it, for as long as the connection stays open.
func Handler(server *ethrpc.Server, filterSystem *filters.FilterSystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := newConnection(conn, server, filterSystem)
		c.serve(r.Context())
	}
}

type connection struct {
	ws     *websocket.Conn
	server *ethrpc.Server
	fs     *filters.FilterSystem
	log    log.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*filters.PushSubscription
}

func newConnection(ws *websocket.Conn, server *ethrpc.Server, fs *filters.FilterSystem) *connection {
	return &connection{
		ws:     ws,
		server: server,
		fs:     fs,
		log:    log.New("component", "ws"),
		subs:   make(map[string]*filters.PushSubscription),
	}
}

func (c *connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.closeAll()
	defer c.ws.Close()

	for {
		var req ethrpc.Request
		if err := c.ws.ReadJSON(&req); err != nil {
			return
		}

		switch req.Method {
		case "eth_subscribe":
			c.handleSubscribe(ctx, req)
		case "eth_unsubscribe":
			c.handleUnsubscribe(req)
		default:
			resp := c.server.Call(ctx, req)
			c.writeJSON(resp)
		}
	}
}

func (c *connection) handleSubscribe(ctx context.Context, req ethrpc.Request) {
	var params subscribeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.writeJSON(ethrpc.Response{Version: "2.0", ID: req.ID, Error: &ethrpc.ResponseError{
			Code: ethrpc.CodeInvalidParams, Message: err.Error(),
		}})
		return
	}

	var sub *filters.PushSubscription
	var err error
	switch params.kind {
	case "newHeads":
		sub, err = c.fs.SubscribeNewHeads(ctx)
	case "logs":
		sub, err = c.fs.SubscribeLogs(ctx, params.criteria)
	case "newPendingTransactions":
		sub, err = c.fs.SubscribePendingTransactions(ctx)
	default:
		err = jsonError("ws: unknown subscription kind " + params.kind)
	}
	if err != nil {
		c.writeJSON(ethrpc.Response{Version: "2.0", ID: req.ID, Error: &ethrpc.ResponseError{
			Code: ethrpc.CodeServerError, Message: err.Error(),
		}})
		return
	}

	c.mu.Lock()
	c.subs[sub.ID] = sub
	c.mu.Unlock()

	idJSON, _ := json.Marshal(sub.ID)
	c.writeJSON(ethrpc.Response{Version: "2.0", ID: req.ID, Result: idJSON})

	go c.pump(sub)
}

func (c *connection) pump(sub *filters.PushSubscription) {
	for result := range sub.C {
		resultJSON, err := json.Marshal(result)
		if err != nil {
			continue
		}
		var n ethrpc.Notification
		n.Version = "2.0"
		n.Method = "eth_subscribe"
		n.Params.Subscription = sub.ID
		n.Params.Result = resultJSON
		c.writeJSON(n)
	}
}

func (c *connection) handleUnsubscribe(req ethrpc.Request) {
	var ids []string
	if err := json.Unmarshal(req.Params, &ids); err != nil || len(ids) != 1 {
		c.writeJSON(ethrpc.Response{Version: "2.0", ID: req.ID, Error: &ethrpc.ResponseError{
			Code: ethrpc.CodeInvalidParams, Message: "eth_unsubscribe takes exactly one subscription id",
		}})
		return
	}

	c.mu.Lock()
	sub, ok := c.subs[ids[0]]
	if ok {
		delete(c.subs, ids[0])
	}
	c.mu.Unlock()

	if ok {
		sub.Unsubscribe()
	}

	resultJSON, _ := json.Marshal(ok)
	c.writeJSON(ethrpc.Response{Version: "2.0", ID: req.ID, Result: resultJSON})
}

func (c *connection) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sub := range c.subs {
		sub.Unsubscribe()
		delete(c.subs, id)
	}
}

func (c *connection) writeJSON(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteJSON(v)
}
