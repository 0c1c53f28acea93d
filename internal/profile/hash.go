package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldSep keeps adjacent values from colliding ("ab"+"c" vs "a"+"bc").
const fieldSep = "\x1f"

// RowHash derives a stable content hash for one row: sha256 over
// name=value pairs in column order, joined with an unprintable separator.
// Columns named in exclude do not contribute, so rows differing only in
// an excluded column (a record timestamp) hash identically.
//
// The serialization is canonical: nil is "null", strings are trimmed,
// numbers keep their shortest form. Identical content therefore hashes
// identically regardless of incidental whitespace.
func RowHash(columns []string, values []any, exclude string) string {
	var b strings.Builder
	first := true
	for i, col := range columns {
		if col == exclude {
			continue
		}
		if !first {
			b.WriteString(fieldSep)
		}
		first = false
		b.WriteString(col)
		b.WriteByte('=')
		appendCanonical(&b, values[i])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func appendCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strings.TrimSpace(t))
	case json.Number:
		b.WriteString(t.String())
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))
	default:
		b.WriteString(fmt.Sprintf("%v", t))
	}
}
