package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// NewID generates a document id (UUIDv7, time-ordered).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Encode serializes a document for storage.
func Encode(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode parses a stored document.
func Decode(data []byte) (Document, error) {
	doc := Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Normalize returns a deep copy of doc with driver-independent value types.
func Normalize(doc Document) (Document, error) {
	data, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// MergeEncoded merges the top-level keys of partial into the encoded document
// and returns the re-encoded result.
func MergeEncoded(existing []byte, partial Document) ([]byte, error) {
	doc, err := Decode(existing)
	if err != nil {
		return nil, err
	}
	for k, v := range partial {
		doc[k] = v
	}
	return Encode(doc)
}

// DecodeInto copies doc into out, a pointer to a struct with mapstructure tags.
// Absent keys leave the zero value.
func DecodeInto(doc Document, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(doc)); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Timestamp converts t to the persisted {seconds, nanoseconds} shape.
func Timestamp(t time.Time) map[string]any {
	return map[string]any{
		"seconds":     t.Unix(),
		"nanoseconds": int64(t.Nanosecond()),
	}
}

// TimeFrom reads a persisted timestamp. ok is false unless v carries a
// numeric "seconds" field.
func TimeFrom(v any) (t time.Time, ok bool) {
	m, isMap := v.(map[string]any)
	if !isMap {
		if d, isDoc := v.(Document); isDoc {
			m = d
		} else {
			return time.Time{}, false
		}
	}
	secs, ok := toInt64(m["seconds"])
	if !ok {
		return time.Time{}, false
	}
	nanos, _ := toInt64(m["nanoseconds"])
	return time.Unix(secs, nanos).UTC(), true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
