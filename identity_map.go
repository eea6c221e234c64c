package adm

import (
	"github.com/google/uuid"
)

// IdentityMap overlays a Registry with a table of live models keyed by
// (dao name, primary key). It is meant for one unit of work, such as one
// inbound request, and is not safe for concurrent use.
//
// Services resolved through an IdentityMap that implement RegistryBindable
// are bound to it, so the models they load are registered here.
type IdentityMap struct {
	registry *Registry
	id       string
	models   map[string]map[string]Model
	logger   Logger
}

// NewIdentityMap creates an identity map on top of r.
func NewIdentityMap(r *Registry) *IdentityMap {
	return &IdentityMap{
		registry: r,
		id:       uuid.NewString(),
		models:   make(map[string]map[string]Model),
		logger:   r.logger,
	}
}

// ID identifies this unit of work in logs.
func (m *IdentityMap) ID() string {
	return m.id
}

// Registry returns the wrapped registry.
func (m *IdentityMap) Registry() *Registry {
	return m.registry
}

// Get resolves key through the registry and binds the result to this map.
func (m *IdentityMap) Get(key string) (any, error) {
	v, err := m.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if b, ok := v.(RegistryBindable); ok {
		return b.WithRegistry(m), nil
	}
	return v, nil
}

// Has reports whether the registry can resolve key.
func (m *IdentityMap) Has(key string) bool {
	return m.registry.Has(key)
}

// RegisterModel stores model, replacing any model with the same keys.
// Models without a dao name or primary key are logged and ignored.
func (m *IdentityMap) RegisterModel(model Model) {
	daoName, pk, ok := m.keysFrom(model, "register")
	if !ok {
		return
	}
	m.logger.Debug("Register model", "identity_map", m.id, "dao", daoName, "pk", pk)

	byPK, ok := m.models[daoName]
	if !ok {
		byPK = make(map[string]Model)
		m.models[daoName] = byPK
	}
	byPK[pk] = model
}

// UnloadModel removes model if present.
func (m *IdentityMap) UnloadModel(model Model) {
	daoName, pk, ok := m.keysFrom(model, "unload")
	if !ok {
		return
	}
	m.logger.Debug("Unload model", "identity_map", m.id, "dao", daoName, "pk", pk)
	delete(m.models[daoName], pk)
}

// GetModel returns the registered model or nil.
func (m *IdentityMap) GetModel(daoName, pk string) Model {
	return m.models[daoName][pk]
}

// Len returns the number of registered models.
func (m *IdentityMap) Len() int {
	n := 0
	for _, byPK := range m.models {
		n += len(byPK)
	}
	return n
}

func (m *IdentityMap) keysFrom(model Model, action string) (string, string, bool) {
	if model == nil || model.IsNil() {
		m.logger.Error("Cannot "+action+" nil model", "identity_map", m.id)
		return "", "", false
	}
	daoName, pk := model.DAOName(), model.PrimaryKey()
	if daoName == "" || pk == "" {
		m.logger.Error("Cannot "+action+" model without dao name or primary key",
			"identity_map", m.id, "dao", daoName, "pk", pk)
		return "", "", false
	}
	return daoName, pk, true
}
