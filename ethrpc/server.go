package ethrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/consensus-shipyard/fendermint-sub000/log"
)

// Error codes per the JSON-RPC 2.0 spec, plus the Ethereum convention of
// -32000 for a generic server-side execution error.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Request is one JSON-RPC 2.0 request object.
type Request struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one JSON-RPC 2.0 response object — exactly one of Result or
// Error is set.
type Response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string { return e.Message }

// Notification is the `{subscription, result}` push frame spec §6
// requires for eth_subscribe's wire format.
type Notification struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// callback is a single registered method: a bound Go method value plus
// its reflected argument/return shape, resolved once at RegisterName time
// so Call need not re-reflect on every request.
type callback struct {
	fn          reflect.Value
	argTypes    []reflect.Type
	hasCtx      bool
	hasError    bool
	errorIsLast bool
	numOut      int
}

// Server is a reflection-based JSON-RPC 2.0 dispatcher (spec §4.J): each
// registered service's exported methods become "namespace_methodName" RPC
// methods, the same convention go-ethereum's rpc.Server uses, so that a
// service struct like internal/ethapi's API can be registered directly
// without per-method boilerplate.
type Server struct {
	mu      sync.RWMutex
	methods map[string]callback
	log     log.Logger
}

func NewServer() *Server {
	return &Server{methods: make(map[string]callback), log: log.New("component", "ethrpc")}
}

// RegisterName exposes every exported method of service under
// "<namespace>_<methodName>" (first letter of methodName lower-cased, the
// same convention Ethereum's canonical JSON-RPC method names use).
func (s *Server) RegisterName(namespace string, service any) error {
	v := reflect.ValueOf(service)
	t := v.Type()

	s.mu.Lock()
	defer s.mu.Unlock()

	registered := 0
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		cb, err := buildCallback(v.Method(i))
		if err != nil {
			return fmt.Errorf("ethrpc: register %s.%s: %w", namespace, m.Name, err)
		}
		name := namespace + "_" + lowerFirst(m.Name)
		s.methods[name] = cb
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("ethrpc: %s exposes no exported methods", namespace)
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

func buildCallback(method reflect.Value) (callback, error) {
	t := method.Type()
	cb := callback{fn: method}

	start := 0
	if t.NumIn() > 0 && t.In(0).Implements(ctxType) {
		cb.hasCtx = true
		start = 1
	}
	for i := start; i < t.NumIn(); i++ {
		cb.argTypes = append(cb.argTypes, t.In(i))
	}

	cb.numOut = t.NumOut()
	if cb.numOut > 0 && t.Out(cb.numOut-1) == errType {
		cb.hasError = true
		cb.errorIsLast = true
	}
	if cb.numOut > 2 || (cb.numOut == 2 && !cb.hasError) {
		return callback{}, fmt.Errorf("unsupported return shape %s", t)
	}
	return cb, nil
}

// Call dispatches one decoded Request and returns its Response. It never
// returns an error itself — failures are carried in Response.Error, per
// JSON-RPC 2.0 semantics.
func (s *Server) Call(ctx context.Context, req Request) Response {
	resp := Response{Version: "2.0", ID: req.ID}

	s.mu.RLock()
	cb, ok := s.methods[req.Method]
	s.mu.RUnlock()
	if !ok {
		resp.Error = &ResponseError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	var rawParams []json.RawMessage
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &rawParams); err != nil {
			resp.Error = &ResponseError{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
			return resp
		}
	}
	if len(rawParams) > len(cb.argTypes) {
		resp.Error = &ResponseError{Code: CodeInvalidParams, Message: fmt.Sprintf("too many params: have %d want at most %d", len(rawParams), len(cb.argTypes))}
		return resp
	}

	args := make([]reflect.Value, 0, len(cb.argTypes)+1)
	if cb.hasCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	for i, argType := range cb.argTypes {
		arg := reflect.New(argType)
		if i < len(rawParams) {
			if err := json.Unmarshal(rawParams[i], arg.Interface()); err != nil {
				resp.Error = &ResponseError{Code: CodeInvalidParams, Message: fmt.Sprintf("param %d: %v", i, err)}
				return resp
			}
		}
		args = append(args, arg.Elem())
	}

	out := cb.fn.Call(args)
	if cb.hasError {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			resp.Error = &ResponseError{Code: CodeServerError, Message: errVal.Interface().(error).Error()}
			return resp
		}
		out = out[:len(out)-1]
	}
	if len(out) == 1 {
		result, err := json.Marshal(out[0].Interface())
		if err != nil {
			resp.Error = &ResponseError{Code: CodeInternalError, Message: err.Error()}
			return resp
		}
		resp.Result = result
	} else {
		resp.Result = json.RawMessage("null")
	}
	return resp
}

// HasMethod reports whether name is registered, used by the WebSocket
// transport to recognize eth_subscribe/eth_unsubscribe without routing
// them through the plain request/response Call path.
func (s *Server) HasMethod(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.methods[name]
	return ok
}
