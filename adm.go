// Package adm provides typed, cacheable data models on top of a remote
// HTTP/JSON search-and-document backend.
//
// go-adm fronts an Elasticsearch-like data layer with a small set of
// collaborating pieces: a registry-based service locator with a per-request
// identity map, a gateway with a typed error taxonomy, a cache decorator for
// read operations, models that load lazily from partial to full mode, and an
// aggregation normaliser that turns arbitrarily nested bucket/metric JSON
// into a uniform tree.
//
// # Quick Start
//
// Wire the services into a registry at the composition root:
//
//	import (
//	    "github.com/AshkanYarmoradi/go-adm"
//	    "github.com/AshkanYarmoradi/go-adm/adapters/memory"
//	)
//
//	gateway := adm.NewDataGateway("http://data-layer.local")
//	cache := adm.NewCacheService(memory.NewCache(), adm.WithCachePrefix("app"))
//
//	registry := adm.NewRegistry()
//	adm.RegisterDefaults(registry, gateway, cache)
//
// # Models
//
// Models embed BaseModel and declare a Schema:
//
//	var articleSchema = adm.Schema{
//	    DAOName:    "article",
//	    PrimaryKey: "id",
//	    Attributes: []string{"id", "title", "body"},
//	}
//
//	type Article struct{ adm.BaseModel }
//
//	func NewArticle(data *adm.Object) adm.Model {
//	    a := &Article{}
//	    a.Init(a, articleSchema, data)
//	    return a
//	}
//
// Reading an attribute that is not loaded triggers a full reload through the
// DAO unless the attribute is declared as partial:
//
//	title, err := article.Get(ctx, "title")
//
// # Aggregations
//
// Raw aggregation payloads from the search backend are normalised and built
// into typed trees:
//
//	factory := adm.NewAggregationsFactory()
//	aggs := factory.BuildAllFromRawData(raw, "")
//	for _, b := range aggs[0].(*adm.Aggregation).NonEmptyBuckets() {
//	    fmt.Println(b.Name, b.Count)
//	}
//
// # Caching
//
// Read operations are wrapped in a CachedActionAdaptor, which stores both
// successful results and not-found outcomes so that either can be replayed
// without calling the backend again.
package adm
