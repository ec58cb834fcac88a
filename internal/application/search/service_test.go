package search

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/infrastructure/database/redis"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	infraSearch "github.com/spanmark/spanmark/internal/infrastructure/search"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/internal/testutil"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

// mapCache is an in-memory redis.Cache with hit/miss counters.
type mapCache struct {
	mu     sync.Mutex
	store  map[string][]byte
	hits   int
	misses int
}

func newMapCache() *mapCache {
	return &mapCache{store: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.store[key]
	if !ok {
		c.misses++
		return redis.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(data, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = data
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.store, k)
	}
	return nil
}

func (c *mapCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok, nil
}

func (c *mapCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	}
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	if v == nil {
		return redis.ErrCacheMiss
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return err
	}
	data, _ := json.Marshal(v)
	return json.Unmarshal(data, dest)
}

func (c *mapCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for k := range c.store {
		if strings.HasPrefix(k, prefix) {
			delete(c.store, k)
			n++
		}
	}
	return n, nil
}

func (c *mapCache) counts() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// countingIndex counts Search calls on its way to the real memory index.
type countingIndex struct {
	infraSearch.EntityIndex
	mu       sync.Mutex
	searches int
}

func (i *countingIndex) Search(ctx context.Context, q infraSearch.Query) (*infraSearch.Result, error) {
	i.mu.Lock()
	i.searches++
	i.mu.Unlock()
	return i.EntityIndex.Search(ctx, q)
}

func (i *countingIndex) searchCalls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.searches
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	svc   Service
	docs  *testutil.MemoryDocumentRepo
	anns  *testutil.MemoryAnnotationRepo
	index *countingIndex
	cache *mapCache
}

func newFixture(t *testing.T, opts ...func(*Dependencies)) *fixture {
	t.Helper()
	f := &fixture{
		docs:  testutil.NewMemoryDocumentRepo(),
		anns:  testutil.NewMemoryAnnotationRepo(),
		index: &countingIndex{EntityIndex: infraSearch.NewMemoryIndex()},
		cache: newMapCache(),
	}
	deps := Dependencies{
		Documents:   f.docs,
		Annotations: f.anns,
		Index:       f.index,
		Cache:       f.cache,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = NewService(deps, logging.NewNopLogger())
	return f
}

// seedDoc persists one annotated document and returns it. Entities: Person
// "John" [0,1), Organization "Google" [3,4), related by works_for.
func (f *fixture) seedDoc(t *testing.T, name string) *document.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := tokenize.NewTokenizer().Tokenize(name, "John works for Google in California")
	require.NoError(t, err)
	require.NoError(t, f.docs.Create(ctx, doc))

	headID := common.ID("e1-" + name)
	tailID := common.ID("e2-" + name)
	set := annotation.AnnotationSet{
		Entities: []annotation.Entity{
			{ID: headID, DocumentID: doc.ID, Type: "Person", Start: 0, End: 1, Provenance: annotation.ProvenanceManual},
			{ID: tailID, DocumentID: doc.ID, Type: "Organization", Start: 3, End: 4, Provenance: annotation.ProvenanceManual},
		},
		Relations: []annotation.Relation{
			{ID: common.ID("r1-" + name), DocumentID: doc.ID, Type: "works_for", HeadID: headID, TailID: tailID},
		},
	}
	require.NoError(t, f.anns.SaveSet(ctx, doc.ID, set))
	return doc
}

// ─────────────────────────────────────────────────────────────────────────────
// Search
// ─────────────────────────────────────────────────────────────────────────────

func TestSearch_FiltersBySurfaceAndType(t *testing.T) {
	f := newFixture(t)
	f.seedDoc(t, "a.txt")
	_, err := f.svc.ReindexAll(context.Background())
	require.NoError(t, err)

	bySurface, err := f.svc.Search(context.Background(), &SearchInput{Surface: "goog"})
	require.NoError(t, err)
	require.Len(t, bySurface.Mentions, 1)
	m := bySurface.Mentions[0]
	assert.Equal(t, "Google", m.Surface)
	assert.Equal(t, "Organization", m.Type)
	require.Len(t, m.Partners, 1)
	assert.Equal(t, "John", m.Partners[0].Surface)
	assert.Equal(t, "in", m.Partners[0].Direction)

	byType, err := f.svc.Search(context.Background(), &SearchInput{Type: "Person"})
	require.NoError(t, err)
	require.Len(t, byType.Mentions, 1)
	assert.Equal(t, "John", byType.Mentions[0].Surface)

	none, err := f.svc.Search(context.Background(), &SearchInput{Surface: "acme"})
	require.NoError(t, err)
	assert.Empty(t, none.Mentions)
	assert.Zero(t, none.Total)
}

func TestSearch_Paginates(t *testing.T) {
	f := newFixture(t)
	f.seedDoc(t, "a.txt")
	f.seedDoc(t, "b.txt")
	f.seedDoc(t, "c.txt")
	_, err := f.svc.ReindexAll(context.Background())
	require.NoError(t, err)

	first, err := f.svc.Search(context.Background(), &SearchInput{Type: "Person", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, first.Mentions, 2)
	assert.Equal(t, int64(3), first.Total)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 2, first.PageSize)

	second, err := f.svc.Search(context.Background(), &SearchInput{Type: "Person", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, second.Mentions, 1)
	assert.Equal(t, int64(3), second.Total)
}

func TestSearch_CachesRepeatQueries(t *testing.T) {
	f := newFixture(t)
	f.seedDoc(t, "a.txt")
	_, err := f.svc.ReindexAll(context.Background())
	require.NoError(t, err)

	query := &SearchInput{Surface: "john"}
	first, err := f.svc.Search(context.Background(), query)
	require.NoError(t, err)
	second, err := f.svc.Search(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, 1, f.index.searchCalls(), "second query must come from the cache")
	hits, misses := f.cache.counts()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestSearch_RequiresIndex(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Index = nil })
	_, err := f.svc.Search(context.Background(), &SearchInput{Surface: "x"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

// ─────────────────────────────────────────────────────────────────────────────
// Reindex
// ─────────────────────────────────────────────────────────────────────────────

func TestReindex_SingleDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDoc(t, "a.txt")

	dto, err := f.svc.Reindex(context.Background(), string(doc.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, dto.Documents)
	assert.Equal(t, 2, dto.Mentions)

	found, err := f.svc.Search(context.Background(), &SearchInput{DocumentID: string(doc.ID)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), found.Total)
}

func TestReindex_DropsCachedPages(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDoc(t, "a.txt")
	_, err := f.svc.Reindex(context.Background(), string(doc.ID))
	require.NoError(t, err)

	// Prime the cache, then reindex and watch the next query miss.
	_, err = f.svc.Search(context.Background(), &SearchInput{Surface: "john"})
	require.NoError(t, err)
	_, err = f.svc.Reindex(context.Background(), string(doc.ID))
	require.NoError(t, err)
	_, err = f.svc.Search(context.Background(), &SearchInput{Surface: "john"})
	require.NoError(t, err)

	hits, misses := f.cache.counts()
	assert.Zero(t, hits)
	assert.Equal(t, 2, misses)
}

func TestReindex_UnknownDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reindex(context.Background(), "missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDocumentNotFound))
}

func TestReindexAll_CoversTheCorpus(t *testing.T) {
	f := newFixture(t)
	f.seedDoc(t, "a.txt")
	f.seedDoc(t, "b.txt")

	dto, err := f.svc.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dto.Documents)
	assert.Equal(t, 4, dto.Mentions)

	all, err := f.svc.Search(context.Background(), &SearchInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
}

func TestReindexAll_ClearsRemovedAnnotations(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDoc(t, "a.txt")
	_, err := f.svc.ReindexAll(context.Background())
	require.NoError(t, err)

	// Annotations removed from the store must disappear on the next rebuild.
	require.NoError(t, f.anns.DeleteByDocument(context.Background(), doc.ID))
	dto, err := f.svc.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dto.Documents)
	assert.Zero(t, dto.Mentions)

	all, err := f.svc.Search(context.Background(), &SearchInput{})
	require.NoError(t, err)
	assert.Zero(t, all.Total)
}
