package admtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/AshkanYarmoradi/go-adm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// FakeDataLayer is an in-process HTTP data layer serving the default
// adm.RESTPaths routes:
//
//	GET  /<dao>/<pk>            partial document
//	GET  /<dao>/<pk>/full       full document
//	GET  /<dao>?ids=<pk>,<pk>   partial documents
//	POST /<dao>/search          search response with hits and aggregations
//	GET  /partial_fields/<dao>  partial field names
//
// Documents are keyed by the attribute given to AddDocuments. A DAO without
// partial fields serves full documents on every route.
type FakeDataLayer struct {
	*httptest.Server

	mu       sync.RWMutex
	datasets map[string]*dataset
	requests map[string]int
}

type dataset struct {
	order         []string
	docs          map[string]*adm.Object
	partialFields []string
	aggregations  *adm.Object
}

// NewFakeDataLayer starts a fake data layer. Close it when done.
func NewFakeDataLayer() *FakeDataLayer {
	f := &FakeDataLayer{
		datasets: make(map[string]*dataset),
		requests: make(map[string]int),
	}
	f.Server = httptest.NewServer(f.router())
	return f
}

func (f *FakeDataLayer) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), f.countRequests)

	r.GET("/partial_fields/:dao", f.partialFields)
	r.GET("/:dao", f.getSome)
	r.GET("/:dao/:pk", f.get)
	r.GET("/:dao/:pk/full", f.getFull)
	r.POST("/:dao/search", f.search)

	return r
}

func (f *FakeDataLayer) countRequests(c *gin.Context) {
	f.mu.Lock()
	f.requests[c.Request.Method+" "+c.Request.URL.RequestURI()]++
	f.mu.Unlock()
	c.Next()
}

func (f *FakeDataLayer) dataset(dao string) *dataset {
	ds, ok := f.datasets[dao]
	if !ok {
		ds = &dataset{docs: make(map[string]*adm.Object)}
		f.datasets[dao] = ds
	}
	return ds
}

// AddDocuments stores documents under dao, keyed by their pkAttr value.
// A document with an existing key replaces it.
func (f *FakeDataLayer) AddDocuments(dao, pkAttr string, docs ...*adm.Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds := f.dataset(dao)
	for _, doc := range docs {
		pk := pkString(doc.Value(pkAttr))
		if _, exists := ds.docs[pk]; !exists {
			ds.order = append(ds.order, pk)
		}
		ds.docs[pk] = doc.Clone()
	}
}

// SetPartialFields sets the fields served in partial mode for dao.
func (f *FakeDataLayer) SetPartialFields(dao string, fields ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataset(dao).partialFields = fields
}

// SetAggregations sets the aggregations returned by dao searches.
func (f *FakeDataLayer) SetAggregations(dao string, aggs *adm.Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataset(dao).aggregations = aggs
}

// Requests returns how many times method and uri (path plus query) were
// requested.
func (f *FakeDataLayer) Requests(method, uri string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.requests[method+" "+uri]
}

func pkString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (f *FakeDataLayer) lookup(dao, pk string) (*adm.Object, *dataset) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ds, ok := f.datasets[dao]
	if !ok {
		return nil, nil
	}
	return ds.docs[pk], ds
}

func (ds *dataset) partial(doc *adm.Object) *adm.Object {
	if len(ds.partialFields) == 0 {
		return doc
	}
	out := adm.NewObject()
	doc.Range(func(key string, value any) bool {
		for _, f := range ds.partialFields {
			if f == key {
				out.Set(key, value)
				break
			}
		}
		return true
	})
	return out
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func (f *FakeDataLayer) get(c *gin.Context) {
	doc, ds := f.lookup(c.Param("dao"), c.Param("pk"))
	if doc == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, ds.partial(doc))
}

func (f *FakeDataLayer) getFull(c *gin.Context) {
	doc, _ := f.lookup(c.Param("dao"), c.Param("pk"))
	if doc == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (f *FakeDataLayer) getSome(c *gin.Context) {
	ids := c.Query("ids")
	if ids == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	docs := make([]any, 0)
	for _, pk := range strings.Split(ids, ",") {
		if doc, ds := f.lookup(c.Param("dao"), pk); doc != nil {
			docs = append(docs, ds.partial(doc))
		}
	}
	c.JSON(http.StatusOK, docs)
}

func (f *FakeDataLayer) partialFields(c *gin.Context) {
	f.mu.RLock()
	ds, ok := f.datasets[c.Param("dao")]
	var fields []string
	if ok {
		fields = ds.partialFields
	}
	f.mu.RUnlock()

	if len(fields) == 0 {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, fields)
}

// search pages through the documents in insertion order. The query itself
// is ignored; from and size are honoured.
func (f *FakeDataLayer) search(c *gin.Context) {
	from, size := int64(0), int64(adm.DefaultPageSize)
	if data, err := c.GetRawData(); err == nil && len(data) > 0 {
		body, err := adm.DecodeJSON(data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if o, ok := body.(*adm.Object); ok {
			if v, ok := o.Value("from").(int64); ok {
				from = v
			}
			if v, ok := o.Value("size").(int64); ok {
				size = v
			}
		}
	}

	dao := c.Param("dao")
	f.mu.RLock()
	ds := f.datasets[dao]
	hits := make([]any, 0)
	total := 0
	var aggs *adm.Object
	if ds != nil {
		total = len(ds.order)
		aggs = ds.aggregations
		for i := from; i < from+size && i < int64(total); i++ {
			pk := ds.order[i]
			hits = append(hits, adm.ObjectOf(
				"_index", dao,
				"_type", "_doc",
				"_id", pk,
				"_score", 1.0,
				"_source", ds.partial(ds.docs[pk]),
			))
		}
	}
	f.mu.RUnlock()

	response := adm.ObjectOf("hits", adm.ObjectOf(
		"total", adm.ObjectOf("value", total, "relation", "eq"),
		"max_score", 1.0,
		"hits", hits,
	))
	if aggs != nil {
		response.Set("aggregations", aggs)
	}
	c.JSON(http.StatusOK, response)
}
