package records

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineBytes = 1 << 20

// Index is an immutable in-memory Store keyed on one field of each record.
type Index struct {
	keyField string
	order    []string
	byKey    map[string]json.RawMessage
}

func newIndex(keyField string) *Index {
	return &Index{keyField: keyField, byKey: make(map[string]json.RawMessage)}
}

func (ix *Index) add(key string, rec json.RawMessage) {
	if _, dup := ix.byKey[key]; dup {
		// first occurrence wins
		return
	}
	ix.order = append(ix.order, key)
	ix.byKey[key] = rec
}

func (ix *Index) Find(_ context.Context, key string) (json.RawMessage, error) {
	rec, ok := ix.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (ix *Index) Len() int {
	return len(ix.order)
}

// ReadLines returns every non-blank line of r as a raw JSON record, validating each one.
func ReadLines(r io.Reader) ([]json.RawMessage, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var out []json.RawMessage
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		if !json.Valid(b) {
			return nil, fmt.Errorf("line %d: invalid json", line)
		}
		out = append(out, append(json.RawMessage(nil), b...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return out, nil
}

// LoadJSONLines indexes line-delimited JSON objects on keyField. String and numeric keys are
// both accepted; records missing the field are skipped.
func LoadJSONLines(r io.Reader, keyField string) (*Index, error) {
	lines, err := ReadLines(r)
	if err != nil {
		return nil, err
	}
	ix := newIndex(keyField)
	for i, rec := range lines {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rec, &fields); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		raw, ok := fields[keyField]
		if !ok {
			continue
		}
		key, err := keyString(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: field %s: %w", i+1, keyField, err)
		}
		ix.add(key, rec)
	}
	return ix, nil
}

func keyString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", errors.New("key must be a string or a number")
}

// LoadCSV indexes a CSV file with a header row on keyColumn. Each row is served as a JSON object
// keyed by the header names.
func LoadCSV(r io.Reader, keyColumn string) (*Index, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	keyAt := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == keyColumn {
			keyAt = i
		}
	}
	if keyAt < 0 {
		return nil, fmt.Errorf("csv header has no %q column", keyColumn)
	}

	ix := newIndex(keyColumn)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		obj := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				obj[h] = row[i]
			}
		}
		rec, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		ix.add(row[keyAt], rec)
	}
	return ix, nil
}

// Load indexes r on keyField. Content whose first non-blank byte is '{' is read as JSON lines,
// anything else as CSV with a header row. The file name is ignored; supplier data ships as JSON
// lines named suppliers.csv.
func Load(r io.Reader, keyField string) (*Index, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if errors.Is(err, io.EOF) {
			return newIndex(keyField), nil
		}
		if err != nil {
			return nil, fmt.Errorf("sniff format: %w", err)
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
			continue
		case '{':
			return LoadJSONLines(br, keyField)
		}
		return LoadCSV(br, keyField)
	}
}

// LoadFile opens path and indexes it with Load.
func LoadFile(path, keyField string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ix, err := Load(f, keyField)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ix, nil
}
