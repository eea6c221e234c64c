// Package admtest provides test doubles for applications built on adm: a
// scripted Gateway and an HTTP fake of the data layer.
package admtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AshkanYarmoradi/go-adm"
)

// Call is one request received by a GatewayMock.
type Call struct {
	Method  string
	Path    string
	Options adm.RequestOptions
}

type scripted struct {
	body []byte
	err  error
}

// GatewayMock is an adm.Gateway answering from scripted responses keyed by
// method and path. Unscripted requests fail with a not-found error.
//
// Cache and response adaptors passed with a request are honoured the same
// way adm.DataGateway honours them, so a cached request is only counted
// once.
type GatewayMock struct {
	mu        sync.Mutex
	responses map[string]scripted
	calls     []Call
}

// Ensure interface compliance at compile time
var _ adm.Gateway = (*GatewayMock)(nil)

// NewGatewayMock creates an empty mock.
func NewGatewayMock() *GatewayMock {
	return &GatewayMock{responses: make(map[string]scripted)}
}

func requestKey(method, path string) string {
	return method + " " + path
}

// On scripts the response to method and path. data is anything encoding/json
// can marshal, including *adm.Object; every call receives a fresh decoded
// copy.
func (m *GatewayMock) On(method, path string, data any) *GatewayMock {
	body, err := json.Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("admtest: cannot script %s %s: %v", method, path, err))
	}
	return m.set(method, path, scripted{body: body})
}

// OnJSON scripts a raw JSON response.
func (m *GatewayMock) OnJSON(method, path, body string) *GatewayMock {
	if !json.Valid([]byte(body)) {
		panic(fmt.Sprintf("admtest: invalid JSON scripted for %s %s", method, path))
	}
	return m.set(method, path, scripted{body: []byte(body)})
}

// OnError scripts a failure.
func (m *GatewayMock) OnError(method, path string, err error) *GatewayMock {
	return m.set(method, path, scripted{err: err})
}

// OnNotFound scripts a not-found failure.
func (m *GatewayMock) OnNotFound(method, path string) *GatewayMock {
	return m.OnError(method, path, adm.NewNotFoundError(method, path))
}

func (m *GatewayMock) set(method, path string, s scripted) *GatewayMock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[requestKey(method, path)] = s
	return m
}

// Perform implements adm.Gateway.
func (m *GatewayMock) Perform(ctx context.Context, method, path string, opts ...adm.RequestOption) (any, error) {
	o := adm.NewRequestOptions(opts...)
	return adm.PerformWith(ctx, o, func(ctx context.Context) (any, error) {
		m.mu.Lock()
		m.calls = append(m.calls, Call{Method: method, Path: path, Options: o})
		s, ok := m.responses[requestKey(method, path)]
		m.mu.Unlock()

		switch {
		case !ok:
			return nil, adm.NewNotFoundError(method, path)
		case s.err != nil:
			return nil, s.err
		default:
			return adm.DecodeJSON(s.body)
		}
	})
}

// Calls returns the requests that reached the mock.
func (m *GatewayMock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times method and path were requested.
func (m *GatewayMock) CallCount(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls. Scripted responses are kept.
func (m *GatewayMock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
