package roster

import (
	"bytes"
	"encoding/json"
	"errors"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/nakiaasuryanto/bday-bot/internal/engine"
)

var errNotObject = errors.New("roster record must be a JSON object")

// Record is one raw roster element. Objects keep their original key order
// and any fields the bot does not know about; anything else is kept as the
// raw value it was read as. Saving never rewrites what an operator put in
// the file.
type Record struct {
	fields *orderedmap.OrderedMap[string, json.RawMessage]
	opaque json.RawMessage
}

// NewRecord builds a record holding the fields of e in declaration order.
func NewRecord(e engine.Entry) Record {
	b, err := json.Marshal(e)
	if err != nil {
		// Entry only holds strings.
		panic(err)
	}
	var r Record
	if err := r.UnmarshalJSON(b); err != nil {
		panic(err)
	}
	return r
}

// decodeRecord reads one element of the roster array. Elements that are not
// objects are kept verbatim and fail validation later.
func decodeRecord(raw json.RawMessage) (Record, error) {
	var r Record
	err := r.UnmarshalJSON(raw)
	if errors.Is(err, errNotObject) {
		return Record{opaque: append(json.RawMessage(nil), bytes.TrimSpace(raw)...)}, nil
	}
	return r, err
}

// IsObject reports whether the record was read from a JSON object.
func (r Record) IsObject() bool {
	return r.opaque == nil
}

// Keys returns the field names in file order.
func (r Record) Keys() []string {
	if r.fields == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Raw returns the undecoded value of key.
func (r Record) Raw(key string) (json.RawMessage, bool) {
	if r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// String returns key as a string, or "" when it is absent or not a string.
func (r Record) String(key string) string {
	var s string
	if v, ok := r.Raw(key); ok {
		_ = json.Unmarshal(v, &s)
	}
	return s
}

// Entry decodes the fields the bot uses. It does not validate them.
func (r Record) Entry() (engine.Entry, error) {
	var e engine.Entry
	b, err := r.MarshalJSON()
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(b, &e)
	return e, err
}

// UnmarshalJSON decodes an object while remembering its key order. A key
// repeated in the object keeps its first position and its last value.
func (r *Record) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errNotObject
	}
	fields := orderedmap.New[string, json.RawMessage]()
	if err := fields.UnmarshalJSON(trimmed); err != nil {
		return err
	}
	r.fields = fields
	r.opaque = nil
	return nil
}

// MarshalJSON writes the fields back in their original order. Values are
// written as read, without HTML escaping.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.opaque != nil {
		return r.opaque, nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r.fields != nil {
		for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
			if buf.Len() > 1 {
				buf.WriteByte(',')
			}
			key, err := encode(pair.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(pair.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encode marshals v without HTML escaping and without a trailing newline.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
