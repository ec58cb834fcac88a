package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/nlp/gazetteer"
	"github.com/spanmark/spanmark/pkg/errors"
)

// termBatchSize bounds pipeline and MGET sizes during import and load.
const termBatchSize = 512

// TermStore keeps the shared gazetteer lexicon in Redis so that every worker
// builds its matching trie from the same dictionary.
//
// Each term lives under <prefix>lexicon:term:<seq> as a JSON entry, where
// <seq> is a zero-padded slot taken from the <prefix>lexicon:seq counter.
// Padding makes the lexicographic key order equal the insertion order, which
// Load relies on: gazetteer tie-breaking gives the first-registered type
// priority, so the dictionary must come back in the order it was imported.
type TermStore struct {
	client *Client
	logger logging.Logger
}

func NewTermStore(client *Client, log logging.Logger) *TermStore {
	return &TermStore{
		client: client,
		logger: log,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Import
// ─────────────────────────────────────────────────────────────────────────────

// Import appends entries to the lexicon, preserving their order.  The slots
// are reserved with one INCRBY and the entries written with pipelined SETs.
// Nothing is written when any entry is invalid.
func (s *TermStore) Import(ctx context.Context, entries []gazetteer.Entry) (int, error) {
	s.logger.Debug("TermStore.Import", logging.Int("entries", len(entries)))

	if len(entries) == 0 {
		return 0, nil
	}
	for i, e := range entries {
		if e.Term == "" {
			return 0, errors.Newf(errors.CodeInvalidParam, "lexicon entry at index %d has an empty term", i)
		}
		if e.Type == "" {
			return 0, errors.Newf(errors.CodeInvalidParam, "lexicon entry at index %d has an empty type", i)
		}
	}

	end, err := s.client.IncrBy(ctx, s.seqKey(), int64(len(entries))).Result()
	if err != nil {
		s.logger.Error("Failed to reserve lexicon slots", logging.Err(err))
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to reserve lexicon slots")
	}
	start := end - int64(len(entries)) + 1

	for lo := 0; lo < len(entries); lo += termBatchSize {
		hi := lo + termBatchSize
		if hi > len(entries) {
			hi = len(entries)
		}
		pipe := s.client.Pipeline()
		for i, e := range entries[lo:hi] {
			data, err := json.Marshal(e)
			if err != nil {
				return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal lexicon entry")
			}
			pipe.Set(ctx, s.termKey(start+int64(lo+i)), data, 0)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Error("Failed to write lexicon batch", logging.Err(err))
			return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to write lexicon entries")
		}
	}

	s.logger.Info("Imported lexicon terms", logging.Int("count", len(entries)))
	return len(entries), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load returns the full lexicon in insertion order.
func (s *TermStore) Load(ctx context.Context) ([]gazetteer.Entry, error) {
	s.logger.Debug("TermStore.Load")

	keys, err := s.scanKeys(ctx, s.termPattern())
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	entries := make([]gazetteer.Entry, 0, len(keys))
	for lo := 0; lo < len(keys); lo += termBatchSize {
		hi := lo + termBatchSize
		if hi > len(keys) {
			hi = len(keys)
		}
		vals, err := s.client.MGet(ctx, keys[lo:hi]...).Result()
		if err != nil {
			s.logger.Error("Failed to load lexicon batch", logging.Err(err))
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to load lexicon entries")
		}
		for _, val := range vals {
			raw, ok := val.(string)
			if !ok {
				// Deleted between SCAN and MGET.
				continue
			}
			var e gazetteer.Entry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal lexicon entry")
			}
			entries = append(entries, e)
		}
	}

	s.logger.Debug("Loaded lexicon terms", logging.Int("count", len(entries)))
	return entries, nil
}

// Count returns the number of terms currently stored.
func (s *TermStore) Count(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx, s.termPattern())
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Clear removes the whole lexicon, counter included, and returns the number
// of keys removed.
func (s *TermStore) Clear(ctx context.Context) (int64, error) {
	s.logger.Debug("TermStore.Clear")

	keys, err := s.scanKeys(ctx, s.client.KeyPrefix()+"lexicon:*")
	if err != nil {
		return 0, err
	}
	var removed int64
	for lo := 0; lo < len(keys); lo += termBatchSize {
		hi := lo + termBatchSize
		if hi > len(keys) {
			hi = len(keys)
		}
		n, err := s.client.Del(ctx, keys[lo:hi]...).Result()
		if err != nil {
			s.logger.Error("Failed to clear lexicon batch", logging.Err(err))
			return removed, errors.Wrap(err, errors.ErrCodeCacheError, "failed to clear lexicon")
		}
		removed += n
	}

	s.logger.Info("Cleared lexicon", logging.Int64("keys", removed))
	return removed, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *TermStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, termBatchSize).Result()
		if err != nil {
			s.logger.Error("Failed to scan lexicon keys", logging.Err(err))
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan lexicon keys")
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *TermStore) seqKey() string {
	return s.client.KeyPrefix() + "lexicon:seq"
}

func (s *TermStore) termKey(seq int64) string {
	return fmt.Sprintf("%slexicon:term:%012d", s.client.KeyPrefix(), seq)
}

func (s *TermStore) termPattern() string {
	return s.client.KeyPrefix() + "lexicon:term:*"
}
