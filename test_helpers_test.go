package adm

// Shared test doubles for adm package tests.

import (
	"context"
	"sync"
	"testing"
)

// =============================================================================
// Article model
// =============================================================================

var articleSchema = Schema{
	DAOName:    "article",
	PrimaryKey: "id",
	Attributes: []string{"id", "title", "category", "body", "author"},
}

type article struct {
	BaseModel
}

func newArticle(data *Object) Model {
	a := &article{}
	a.Init(a, articleSchema, data)
	return a
}

// =============================================================================
// Stub Gateway
// =============================================================================

// stubGateway answers "METHOD path" routes with decoded JSON and records
// each call that reached the data layer.
type stubGateway struct {
	t *testing.T

	mu     sync.Mutex
	routes map[string]string
	calls  []string
	bodies []any
}

func newStubGateway(t *testing.T) *stubGateway {
	return &stubGateway{t: t, routes: make(map[string]string)}
}

func (g *stubGateway) on(method, path, body string) *stubGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes[method+" "+path] = body
	return g
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *stubGateway) Perform(ctx context.Context, method, path string, opts ...RequestOption) (any, error) {
	o := NewRequestOptions(opts...)
	return PerformWith(ctx, o, func(context.Context) (any, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.calls = append(g.calls, method+" "+path)
		g.bodies = append(g.bodies, o.Body)

		body, ok := g.routes[method+" "+path]
		if !ok {
			return nil, NewNotFoundError(method, path)
		}
		return mustDecode(g.t, body), nil
	})
}

// fixedFieldsDAO is a ModelDAO with a fixed partial field list that counts reloads.
type fixedFieldsDAO struct {
	fields    []string
	full      *Object
	reloadErr error
	reloads   int
}

func (d *fixedFieldsDAO) Name() string { return "article" }

func (d *fixedFieldsDAO) PartialModeFields(context.Context) ([]string, error) {
	return d.fields, nil
}

func (d *fixedFieldsDAO) Reload(_ context.Context, m Model) error {
	d.reloads++
	if d.reloadErr != nil {
		return d.reloadErr
	}
	m.ReloadWith(d.full)
	m.MarkFullMode()
	return nil
}
