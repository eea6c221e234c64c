package adm

import "context"

// NullModel stands in for a missing model. Every attribute is nil and
// IsNil reports true.
type NullModel struct {
	daoName string
}

// Ensure interface compliance at compile time
var _ Model = (*NullModel)(nil)

// NewNullModel creates the null variant of models owned by daoName.
func NewNullModel(daoName string) *NullModel {
	return &NullModel{daoName: daoName}
}

func (n *NullModel) DAOName() string                          { return n.daoName }
func (n *NullModel) PrimaryKey() string                       { return "" }
func (n *NullModel) Timestamp() any                           { return nil }
func (n *NullModel) CacheKey() string                         { return n.daoName + "/null" }
func (n *NullModel) Get(context.Context, string) (any, error) { return nil, nil }
func (n *NullModel) ReloadWith(*Object) Model                 { return n }
func (n *NullModel) IsFullMode() bool                         { return true }
func (n *NullModel) MarkFullMode()                            {}
func (n *NullModel) MarkPartialMode()                         {}
func (n *NullModel) BindDAO(ModelDAO)                         {}
func (n *NullModel) DataHash() map[string]any                 { return map[string]any{} }
func (n *NullModel) IsNil() bool                              { return true }
func (n *NullModel) String() string                           { return "#<Null " + n.daoName + ">" }
