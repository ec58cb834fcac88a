package gazetteer

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spanmark/spanmark/pkg/errors"
)

// Entry is one lexicon record: a surface form and the entity type it names.
type Entry struct {
	Term string `json:"term"`
	Type string `json:"type"`
}

// Reader streams lexicon entries out of a source. Implementations close both
// channels when the stream ends; after an error is sent no further entries
// follow.
type Reader interface {
	Read(r io.Reader) (chan Entry, chan error)
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONL
// ─────────────────────────────────────────────────────────────────────────────

// JSONLReader reads one JSON object per line: {"term": "...", "type": "..."}.
// Blank lines and #-comments are skipped.
type JSONLReader struct{}

func (JSONLReader) Read(r io.Reader) (chan Entry, chan error) {
	entries := make(chan Entry)
	errs := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errs)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			var e Entry
			if err := json.Unmarshal([]byte(text), &e); err != nil {
				errs <- errors.Wrap(err, errors.ErrCodeLexiconReadFailed,
					fmt.Sprintf("lexicon line %d", line))
				return
			}
			entries <- e
		}
		if err := scanner.Err(); err != nil {
			errs <- errors.Wrap(err, errors.ErrCodeLexiconReadFailed, "scan lexicon")
		}
	}()

	return entries, errs
}

// ─────────────────────────────────────────────────────────────────────────────
// CSV / TSV
// ─────────────────────────────────────────────────────────────────────────────

// CSVReader reads two-column term,type rows. A leading "term,type" header is
// skipped; extra columns are ignored.
type CSVReader struct {
	Comma rune
}

func (c CSVReader) Read(r io.Reader) (chan Entry, chan error) {
	entries := make(chan Entry)
	errs := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errs)

		cr := csv.NewReader(r)
		if c.Comma != 0 {
			cr.Comma = c.Comma
		}
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true

		row := 0
		for {
			fields, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- errors.Wrap(err, errors.ErrCodeLexiconReadFailed,
					fmt.Sprintf("lexicon row %d", row+1))
				return
			}
			row++
			if len(fields) < 2 {
				errs <- errors.Newf(errors.ErrCodeLexiconReadFailed,
					"lexicon row %d has %d columns, want term and type", row, len(fields))
				return
			}
			if row == 1 && strings.EqualFold(fields[0], "term") && strings.EqualFold(fields[1], "type") {
				continue
			}
			entries <- Entry{Term: fields[0], Type: fields[1]}
		}
	}()

	return entries, errs
}

// ─────────────────────────────────────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────────────────────────────────────

// ReaderForPath selects a Reader from the file extension.
func ReaderForPath(path string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return JSONLReader{}, nil
	case ".csv":
		return CSVReader{Comma: ','}, nil
	case ".tsv":
		return CSVReader{Comma: '\t'}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownLexiconFormat,
			"unsupported lexicon format %q", filepath.Ext(path))
	}
}

// Load streams the lexicon file at path into the gazetteer and returns the
// number of newly registered entries.
func Load(g *Gazetteer, path string) (int, error) {
	reader, err := ReaderForPath(path)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeLexiconReadFailed,
			fmt.Sprintf("open lexicon %s", path))
	}
	defer f.Close()

	entries, errs := reader.Read(f)
	added := 0
	for e := range entries {
		before := g.TermCount()
		if err := g.Add(e.Term, e.Type); err != nil {
			// Unblock the producer goroutine before returning.
			go func() {
				for range entries {
				}
			}()
			return added, err
		}
		if g.TermCount() > before {
			added++
		}
	}
	if err := <-errs; err != nil {
		return added, err
	}
	return added, nil
}
