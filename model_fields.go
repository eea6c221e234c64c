package adm

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ModelFieldsDAO fetches the partial mode field list of each DAO from the
// data layer and memoizes it per DAO name.
type ModelFieldsDAO struct {
	gateway Gateway

	mu     sync.RWMutex
	fields map[string][]string
	group  singleflight.Group
}

// NewModelFieldsDAO creates a ModelFieldsDAO backed by gateway.
func NewModelFieldsDAO(gateway Gateway) *ModelFieldsDAO {
	return &ModelFieldsDAO{
		gateway: gateway,
		fields:  make(map[string][]string),
	}
}

// PartialFieldsPath returns the data layer path listing the partial fields of daoName.
func PartialFieldsPath(daoName string) string {
	return "/partial_fields/" + daoName
}

// PartialFields returns the fields present on models of daoName loaded in
// partial mode. A missing list is an empty list.
func (d *ModelFieldsDAO) PartialFields(ctx context.Context, daoName string) ([]string, error) {
	d.mu.RLock()
	fields, ok := d.fields[daoName]
	d.mu.RUnlock()
	if ok {
		return fields, nil
	}

	v, err, _ := d.group.Do(daoName, func() (any, error) {
		raw, err := d.gateway.Perform(ctx, http.MethodGet, PartialFieldsPath(daoName))
		if err != nil && !IsNotFound(err) {
			return nil, err
		}
		fields, err := stringList(raw)
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		d.fields[daoName] = fields
		d.mu.Unlock()
		return fields, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Forget drops the memoized list of daoName.
func (d *ModelFieldsDAO) Forget(daoName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fields, daoName)
}

func stringList(raw any) ([]string, error) {
	switch t := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, toString(e))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected a field list, got %T", ErrParse, raw)
	}
}
