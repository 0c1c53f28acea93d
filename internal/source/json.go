package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/advaith-rb/acm-data-takehome/internal/config"
)

// arrayJoinSep flattens string arrays (tags) into one scalar value.
const arrayJoinSep = ","

// ReadJSON streams the JSON source declared by spec. The root must be an
// array; each object element becomes one record projected onto
// spec.Columns. Sub-objects are flattened one level with an underscore
// (engagement.likes -> engagement_likes) and string arrays are joined with
// a comma.
//
// Array elements that are not objects are reported via onIssue and
// skipped. Scalars keep their JSON types: string, json.Number, bool or
// nil (decoding uses UseNumber, so numbers never lose precision here).
//
// Errors: open failures and a malformed root, as *UnreadableError.
func ReadJSON(ctx context.Context, spec config.SourceSpec, onIssue func(elem int, err error)) ([]Record, error) {
	f, err := os.Open(spec.Path)
	if err != nil {
		return nil, &UnreadableError{Source: spec.Name, Path: spec.Path, Err: err}
	}
	defer f.Close()

	return readJSONFrom(ctx, f, spec, onIssue)
}

func readJSONFrom(ctx context.Context, r io.Reader, spec config.SourceSpec, onIssue func(elem int, err error)) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, &UnreadableError{Source: spec.Name, Path: spec.Path, Err: fmt.Errorf("read first token: %w", err)}
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, &UnreadableError{Source: spec.Name, Path: spec.Path, Err: fmt.Errorf("root is %v, want array", tok)}
	}

	var (
		columns = spec.Columns()
		records []Record
		rowID   int64
		elem    int
	)
	for dec.More() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		elem++
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, &UnreadableError{Source: spec.Name, Path: spec.Path, Err: fmt.Errorf("decode element %d: %w", elem, err)}
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			if onIssue != nil {
				onIssue(elem, fmt.Errorf("element is %T, want object", raw))
			}
			continue
		}

		flat := flattenObject(obj)
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = scalarize(flat[col])
		}
		records = append(records, Record{Source: spec.Name, RowID: rowID, Values: values})
		rowID++
	}
	if end, err := dec.Token(); err != nil {
		return nil, &UnreadableError{Source: spec.Name, Path: spec.Path, Err: fmt.Errorf("read array end: %w", err)}
	} else if end != json.Delim(']') {
		return nil, &UnreadableError{Source: spec.Name, Path: spec.Path, Err: fmt.Errorf("expected array end, got %v", end)}
	}
	return records, nil
}

// flattenObject lifts one level of sub-objects into prefixed keys. Deeper
// nesting stays unflattened and is dropped by column projection.
func flattenObject(obj map[string]any) map[string]any {
	flat := make(map[string]any, len(obj))
	for k, v := range obj {
		sub, ok := v.(map[string]any)
		if !ok {
			flat[k] = v
			continue
		}
		for sk, sv := range sub {
			flat[k+"_"+sk] = sv
		}
	}
	return flat
}

// scalarize joins string arrays into one value and passes everything else
// through. Mixed-type arrays are kept as-is so the profiler can flag them.
func scalarize(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	if len(arr) == 0 {
		return ""
	}
	ss := make([]string, 0, len(arr))
	for _, it := range arr {
		if it == nil {
			continue
		}
		s, ok := it.(string)
		if !ok {
			return v
		}
		ss = append(ss, s)
	}
	if len(ss) == 0 {
		return ""
	}
	return strings.Join(ss, arrayJoinSep)
}
