package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/domain/training"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Document repository fake
// ─────────────────────────────────────────────────────────────────────────────

// MemoryDocumentRepo is an in-memory document.Repository with the same error
// semantics as the Postgres implementation.
type MemoryDocumentRepo struct {
	mu    sync.Mutex
	docs  map[common.ID]*document.Document
	order []common.ID

	// FailWith makes every call return the given error when set.
	FailWith error
}

// NewMemoryDocumentRepo creates an empty repository.
func NewMemoryDocumentRepo() *MemoryDocumentRepo {
	return &MemoryDocumentRepo{docs: make(map[common.ID]*document.Document)}
}

func (r *MemoryDocumentRepo) Create(ctx context.Context, d *document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	if _, ok := r.docs[d.ID]; ok {
		return errors.Newf(errors.ErrCodeDocumentAlreadyExists, "document %s already exists", d.ID)
	}
	r.docs[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

func (r *MemoryDocumentRepo) GetByID(ctx context.Context, id common.ID) (*document.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	d, ok := r.docs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeDocumentNotFound, "document not found")
	}
	return d, nil
}

func (r *MemoryDocumentRepo) GetByName(ctx context.Context, name string) (*document.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	for _, d := range r.docs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, errors.New(errors.ErrCodeDocumentNotFound, "document not found")
}

// List returns documents newest first (reverse insertion order).
func (r *MemoryDocumentRepo) List(ctx context.Context, p common.Pagination) ([]*document.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, 0, r.FailWith
	}
	all := make([]*document.Document, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		all = append(all, r.docs[r.order[i]])
	}
	total := int64(len(all))
	lo := (p.Page - 1) * p.PageSize
	if lo >= len(all) {
		return nil, total, nil
	}
	hi := lo + p.PageSize
	if hi > len(all) {
		hi = len(all)
	}
	return all[lo:hi], total, nil
}

func (r *MemoryDocumentRepo) ListChunks(ctx context.Context, sourceID common.ID) ([]*document.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	var chunks []*document.Document
	for _, id := range r.order {
		if d := r.docs[id]; d.SourceID == sourceID {
			chunks = append(chunks, d)
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].SourceTokenOffset < chunks[j].SourceTokenOffset
	})
	return chunks, nil
}

func (r *MemoryDocumentRepo) Delete(ctx context.Context, id common.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	if _, ok := r.docs[id]; !ok {
		return errors.New(errors.ErrCodeDocumentNotFound, "document not found")
	}
	delete(r.docs, id)
	for i, did := range r.order {
		if did == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryDocumentRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return 0, r.FailWith
	}
	return int64(len(r.docs)), nil
}

// All returns every stored document in insertion order.
func (r *MemoryDocumentRepo) All() []*document.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*document.Document, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.docs[id])
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Annotation repository fake
// ─────────────────────────────────────────────────────────────────────────────

// MemoryAnnotationRepo is an in-memory annotation.Repository. A document with
// no saved set loads as empty, matching the Postgres implementation.
type MemoryAnnotationRepo struct {
	mu   sync.Mutex
	sets map[common.ID]annotation.AnnotationSet

	// SaveErr makes SaveSet fail when set.
	SaveErr error
	// Saves counts successful SaveSet calls.
	Saves int
}

// NewMemoryAnnotationRepo creates an empty repository.
func NewMemoryAnnotationRepo() *MemoryAnnotationRepo {
	return &MemoryAnnotationRepo{sets: make(map[common.ID]annotation.AnnotationSet)}
}

func (r *MemoryAnnotationRepo) SaveSet(ctx context.Context, docID common.ID, set annotation.AnnotationSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.sets[docID] = set.Clone()
	r.Saves++
	return nil
}

func (r *MemoryAnnotationRepo) LoadSet(ctx context.Context, docID common.ID) (annotation.AnnotationSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets[docID].Clone(), nil
}

func (r *MemoryAnnotationRepo) DeleteByDocument(ctx context.Context, docID common.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, docID)
	return nil
}

func (r *MemoryAnnotationRepo) EntityTypeDistribution(ctx context.Context, docID common.ID) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dist := make(map[string]int64)
	for id, set := range r.sets {
		if docID != "" && id != docID {
			continue
		}
		for _, e := range set.Entities {
			dist[e.Type]++
		}
	}
	return dist, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Training job repository fake
// ─────────────────────────────────────────────────────────────────────────────

// MemoryJobRepo is an in-memory training.Repository with the Postgres
// implementation's optimistic locking semantics.
type MemoryJobRepo struct {
	mu    sync.Mutex
	jobs  map[common.ID]*training.Job
	order []common.ID
}

// NewMemoryJobRepo creates an empty repository.
func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{jobs: make(map[common.ID]*training.Job)}
}

func (r *MemoryJobRepo) Create(ctx context.Context, j *training.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return errors.New(errors.ErrCodeConflict, "job already exists")
	}
	clone := *j
	r.jobs[j.ID] = &clone
	r.order = append(r.order, j.ID)
	return nil
}

func (r *MemoryJobRepo) GetByID(ctx context.Context, id common.ID) (*training.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeJobNotFound, "job not found")
	}
	clone := *j
	return &clone, nil
}

func (r *MemoryJobRepo) Update(ctx context.Context, j *training.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[j.ID]
	if !ok {
		return errors.New(errors.ErrCodeJobNotFound, "job not found")
	}
	if stored.Version != j.Version {
		return errors.New(errors.ErrCodeConflict, "optimistic lock conflict: job version mismatch")
	}
	j.Version++
	j.UpdatedAt = time.Now().UTC()
	clone := *j
	r.jobs[j.ID] = &clone
	return nil
}

// List returns jobs newest first, optionally filtered by state.
func (r *MemoryJobRepo) List(ctx context.Context, states []training.JobState, p common.Pagination) ([]*training.Job, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	match := func(j *training.Job) bool {
		if len(states) == 0 {
			return true
		}
		for _, s := range states {
			if j.State == s {
				return true
			}
		}
		return false
	}
	var all []*training.Job
	for i := len(r.order) - 1; i >= 0; i-- {
		if j := r.jobs[r.order[i]]; match(j) {
			clone := *j
			all = append(all, &clone)
		}
	}
	total := int64(len(all))
	lo := (p.Page - 1) * p.PageSize
	if lo >= len(all) {
		return nil, total, nil
	}
	hi := lo + p.PageSize
	if hi > len(all) {
		hi = len(all)
	}
	return all[lo:hi], total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Event publisher fake
// ─────────────────────────────────────────────────────────────────────────────

// PublishedEvent is one event captured by RecordingPublisher.
type PublishedEvent struct {
	Type    string
	Key     string
	Payload any
}

// RecordingPublisher captures published events for assertions.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent

	// FailWith makes PublishEvent fail when set.
	FailWith error
}

// NewRecordingPublisher creates an empty recorder.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishEvent(ctx context.Context, eventType, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailWith != nil {
		return p.FailWith
	}
	p.events = append(p.events, PublishedEvent{Type: eventType, Key: key, Payload: payload})
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventsOfType returns published events matching the given type.
func (p *RecordingPublisher) EventsOfType(eventType string) []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PublishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
