package spert

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spanmark/spanmark/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Reading
// ─────────────────────────────────────────────────────────────────────────────

// ReadDataset parses a dataset from r. The canonical layout is a single JSON
// array of records; one-record-per-line files are accepted too.
func ReadDataset(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSchemaMalformed, "dataset is empty")
	}

	if first == '[' {
		var records []Record
		if err := json.NewDecoder(br).Decode(&records); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSchemaMalformed,
				"dataset is not a JSON record array")
		}
		return records, nil
	}

	var records []Record
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSchemaMalformed,
				fmt.Sprintf("dataset line %d", line))
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSchemaMalformed, "scan dataset")
	}
	return records, nil
}

// ReadDatasetFile reads a dataset file from disk.
func ReadDatasetFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSchemaMalformed,
			fmt.Sprintf("open dataset %s", path))
	}
	defer f.Close()
	return ReadDataset(f)
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			if err := br.UnreadByte(); err != nil {
				return 0, err
			}
			return b, nil
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Writing
// ─────────────────────────────────────────────────────────────────────────────

// WriteDataset writes records as one JSON array. Records are normalized so
// empty entity and relation lists marshal as [], which the external
// framework requires.
func WriteDataset(w io.Writer, records []Record) error {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = rec.normalized()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode dataset")
	}
	return nil
}

// WriteDatasetFile writes records to path atomically: the JSON is staged in
// a temp file in the target directory and renamed into place, so the external
// process can never observe a half-written dataset.
func WriteDatasetFile(path string, records []Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dataset-*.json")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "stage dataset file")
	}
	defer os.Remove(tmp.Name())

	if err := WriteDataset(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "close staged dataset file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "move dataset file into place")
	}
	return nil
}
