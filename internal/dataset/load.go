package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
)

// naMarkers are the cell spellings read as null.
var naMarkers = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"-NaN": true,
	"NULL": true,
	"null": true,
	"None": true,
	"#N/A": true,
	"<NA>": true,
}

// boolLiterals are the spellings a CSV boolean column may use.
var boolLiterals = map[string]bool{
	"true": true, "True": true, "TRUE": true,
	"false": false, "False": false, "FALSE": false,
}

// LoadOptions tunes how files are read.
type LoadOptions struct {
	// Name overrides the dataset name. Defaults to the file base name without extension.
	Name string

	// TimeColumns lists CSV columns to parse as timestamps. Other columns
	// holding dates stay text.
	TimeColumns []string

	// Comma is the CSV field delimiter. Defaults to ','.
	Comma rune
}

// Supported reports whether LoadFile can read path, judging by its extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".json", ".jsonl", ".ndjson":
		return true
	default:
		return false
	}
}

// LoadFile reads a .csv, .tsv, .json or .jsonl file.
func LoadFile(path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path) //nolint:gosec // dataset path comes from the user
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	if opts.Name == "" {
		base := filepath.Base(path)
		opts.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		if strings.EqualFold(filepath.Ext(path), ".tsv") && opts.Comma == 0 {
			opts.Comma = '\t'
		}
		return ReadCSV(f, opts)
	case ".json":
		return ReadJSON(f, opts)
	case ".jsonl", ".ndjson":
		return ReadJSONLines(f, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadCSV reads a CSV stream whose first record is the header.
func ReadCSV(r io.Reader, opts LoadOptions) (*Dataset, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return New(opts.Name)
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cells := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		for j := range header {
			if j < len(rec) {
				cells[j] = append(cells[j], rec[j])
			} else {
				cells[j] = append(cells[j], "")
			}
		}
	}

	timeCols := make(map[string]bool, len(opts.TimeColumns))
	for _, c := range opts.TimeColumns {
		timeCols[c] = true
	}

	cols := make([]*Column, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		values, err := parseCSVColumn(cells[j], timeCols[name])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		cols[j] = &Column{name: name, typ: InferType(values), values: values}
	}

	return New(opts.Name, cols...)
}

// parseCSVColumn types a whole column at once: numeric when every non-null
// cell is a number, bool when every non-null cell is a boolean literal,
// otherwise raw text.
func parseCSVColumn(raw []string, asTime bool) ([]Value, error) {
	values := make([]Value, len(raw))

	if asTime {
		for i, s := range raw {
			if naMarkers[strings.TrimSpace(s)] {
				continue
			}
			t, err := cast.ToTimeE(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("parse time %q: %w", s, err)
			}
			values[i] = Time(t)
		}
		return values, nil
	}

	numeric, boolean := true, true
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if naMarkers[s] {
			continue
		}
		if numeric {
			if _, err := cast.ToFloat64E(s); err != nil {
				numeric = false
			}
		}
		if boolean {
			if _, ok := boolLiterals[s]; !ok {
				boolean = false
			}
		}
		if !numeric && !boolean {
			break
		}
	}

	for i, s := range raw {
		trimmed := strings.TrimSpace(s)
		switch {
		case naMarkers[trimmed]:
			// null
		case numeric:
			f, _ := cast.ToFloat64E(trimmed)
			values[i] = Number(f)
		case boolean:
			values[i] = Bool(boolLiterals[trimmed])
		default:
			values[i] = Text(s)
		}
	}
	return values, nil
}

// ReadJSON reads a JSON array of objects. Column order follows first appearance.
func ReadJSON(r io.Reader, opts LoadOptions) (*Dataset, error) {
	var raw []json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode json records: %w", err)
	}
	return fromRawRecords(raw, opts)
}

// ReadJSONLines reads one JSON object per line.
func ReadJSONLines(r io.Reader, opts LoadOptions) (*Dataset, error) {
	var raw []json.RawMessage
	dec := json.NewDecoder(r)
	for {
		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode json line %d: %w", len(raw)+1, err)
		}
		raw = append(raw, msg)
	}
	return fromRawRecords(raw, opts)
}

func fromRawRecords(raw []json.RawMessage, opts LoadOptions) (*Dataset, error) {
	var columns []string
	known := make(map[string]bool)
	records := make([]map[string]Value, 0, len(raw))

	timeCols := make(map[string]bool, len(opts.TimeColumns))
	for _, c := range opts.TimeColumns {
		timeCols[c] = true
	}

	for i, msg := range raw {
		keys, rec, err := decodeObject(msg)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, k := range keys {
			if !known[k] {
				known[k] = true
				columns = append(columns, k)
			}
			if timeCols[k] && !rec[k].IsNull() {
				t, err := cast.ToTimeE(rec[k].Interface())
				if err != nil {
					return nil, fmt.Errorf("record %d column %s: %w", i, k, err)
				}
				rec[k] = Time(t)
			}
		}
		records = append(records, rec)
	}

	return FromRecords(opts.Name, columns, records)
}

// decodeObject walks one JSON object keeping key order.
func decodeObject(msg json.RawMessage) ([]string, map[string]Value, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("expected a json object")
	}

	var keys []string
	rec := make(map[string]Value)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		rec[key] = fromJSON(v)
	}
	return keys, rec, nil
}

func fromJSON(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case json.Number:
		f, err := cast.ToFloat64E(x.String())
		if err != nil {
			return Text(x.String())
		}
		return Number(f)
	case string:
		return Text(x)
	case bool:
		return Bool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Text(cast.ToString(x))
		}
		return Text(string(b))
	}
}
