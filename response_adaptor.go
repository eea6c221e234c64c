package adm

import "fmt"

// ResponseAdaptor turns a parsed gateway response into a result.
type ResponseAdaptor interface {
	Adapt(data any) (any, error)
}

// FuncAdaptor adapts a response with a function.
type FuncAdaptor func(data any) (any, error)

// Adapt calls f.
func (f FuncAdaptor) Adapt(data any) (any, error) {
	return f(data)
}

// SingleAdaptor builds one model from an object response.
func SingleAdaptor(factory ModelFactory) ResponseAdaptor {
	return FuncAdaptor(func(data any) (any, error) {
		obj, err := asObject(data)
		if err != nil {
			return nil, err
		}
		return factory(obj), nil
	})
}

// SomeAdaptor builds a model for each element of a list response.
// A nil response yields an empty list.
func SomeAdaptor(factory ModelFactory) ResponseAdaptor {
	return FuncAdaptor(func(data any) (any, error) {
		var list []any
		switch t := data.(type) {
		case nil:
		case []any:
			list = t
		case *Object:
			list = []any{t}
		default:
			return nil, fmt.Errorf("%w: expected a list, got %T", ErrParse, data)
		}

		models := make([]Model, 0, len(list))
		for _, e := range list {
			obj, err := asObject(e)
			if err != nil {
				return nil, err
			}
			models = append(models, factory(obj))
		}
		return models, nil
	})
}

// CollectionAdaptor builds an EsCollection from a search response.
func CollectionAdaptor(factory ModelFactory, opts ...EsCollectionOption) ResponseAdaptor {
	return FuncAdaptor(func(data any) (any, error) {
		obj, err := asObject(data)
		if err != nil {
			return nil, err
		}
		return NewEsCollection(factory, obj, opts...), nil
	})
}

// ReloadAdaptor merges the response into m.
func ReloadAdaptor(m Model) ResponseAdaptor {
	return FuncAdaptor(func(data any) (any, error) {
		obj, err := asObject(data)
		if err != nil {
			return nil, err
		}
		return m.ReloadWith(obj), nil
	})
}

// IdentityAdaptor returns the response unchanged.
func IdentityAdaptor() ResponseAdaptor {
	return FuncAdaptor(func(data any) (any, error) { return data, nil })
}

func asObject(data any) (*Object, error) {
	switch t := data.(type) {
	case *Object:
		return t, nil
	case nil:
		return NewObject(), nil
	case map[string]any:
		return FromValue(t).(*Object), nil
	default:
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrParse, data)
	}
}
