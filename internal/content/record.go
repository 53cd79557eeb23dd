package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/folio/internal/richtext"
)

// ErrMalformed is wrapped by every error caused by a response that cannot be
// read as content-service data.
var ErrMalformed = errors.New("malformed content response")

// record is a content-service entry with legacy "attributes" nesting
// flattened away.
type record map[string]json.RawMessage

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

// unwrapData returns the "data" member of a response envelope, or the
// response itself when there is no envelope.
func unwrapData(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	if raw[0] != '{' {
		if raw[0] == '[' {
			return raw, nil
		}
		return nil, fmt.Errorf("%w: unexpected JSON value", ErrMalformed)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if data, ok := env["data"]; ok {
		return data, nil
	}
	return raw, nil
}

// toRecord decodes one entry, merging an "attributes" object into the top
// level.
func toRecord(raw json.RawMessage) (record, bool) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil || r == nil {
		return nil, false
	}
	if attrs, ok := r["attributes"]; ok && !isNull(attrs) {
		var inner record
		if err := json.Unmarshal(attrs, &inner); err == nil {
			delete(r, "attributes")
			for k, v := range inner {
				r[k] = v
			}
		}
	}
	return r, true
}

// singleRecord decodes a singleton response. ok is false when data is null.
func singleRecord(body json.RawMessage) (record, bool, error) {
	data, err := unwrapData(body)
	if err != nil {
		return nil, false, err
	}
	if isNull(data) {
		return nil, false, nil
	}
	if bytes.TrimSpace(data)[0] != '{' {
		return nil, false, fmt.Errorf("%w: expected an object", ErrMalformed)
	}
	r, ok := toRecord(data)
	if !ok {
		return nil, false, fmt.Errorf("%w: undecodable object", ErrMalformed)
	}
	return r, true, nil
}

// listRecords decodes a collection response. Entries that are not objects
// are skipped.
func listRecords(body json.RawMessage) ([]record, error) {
	data, err := unwrapData(body)
	if err != nil {
		return nil, err
	}
	if isNull(data) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: expected a list: %v", ErrMalformed, err)
	}
	out := make([]record, 0, len(items))
	for _, it := range items {
		if r, ok := toRecord(it); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// str returns the first non-empty scalar among keys, trimmed.
func (r record) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := r[k]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func (r record) text(keys ...string) string {
	for _, k := range keys {
		if raw, ok := r[k]; ok {
			if s := richtext.Normalize(raw); s != "" {
				return s
			}
		}
	}
	return ""
}

func (r record) integer(key string) int {
	raw, ok := r[key]
	if !ok || isNull(raw) {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	}
	if i, err := strconv.Atoi(r.str(key)); err == nil {
		return i
	}
	return 0
}

// boolean reports a JSON bool or a "true"/"false" string. present is false
// when the key is absent or unparsable.
func (r record) boolean(key string) (val, present bool) {
	raw, ok := r[key]
	if !ok || isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	if b, err := strconv.ParseBool(r.str(key)); err == nil {
		return b, true
	}
	return false, false
}

// list reads an ordered list of strings. Accepted shapes: an array of
// strings, an array of objects with a name-like field, a JSON-encoded array
// inside a string, or a comma or newline separated string. Never nil.
func (r record) list(key string) []string {
	out := []string{}
	raw, ok := r[key]
	if !ok || isNull(raw) {
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		for _, it := range items {
			var s string
			if json.Unmarshal(it, &s) == nil {
				out = appendItem(out, s)
				continue
			}
			if rec, ok := toRecord(it); ok {
				out = appendItem(out, rec.str("name", "title", "label", "text", "value"))
			}
		}
		return out
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return out
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var arr []string
		if json.Unmarshal([]byte(s), &arr) == nil {
			for _, it := range arr {
				out = appendItem(out, it)
			}
			return out
		}
	}
	sep := ","
	if strings.Contains(s, "\n") {
		sep = "\n"
	}
	for _, it := range strings.Split(s, sep) {
		out = appendItem(out, it)
	}
	return out
}

func appendItem(out []string, s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-•* ")
	if s == "" {
		return out
	}
	return append(out, s)
}

// media is an uploaded file reference.
type media struct {
	URL string
	Alt string
}

// mediaList reads a media field in any of the shapes the service emits: a
// single object, an array, or either wrapped in {"data": ...}.
func (r record) mediaList(key string) []media {
	raw, ok := r[key]
	if !ok || isNull(raw) {
		return nil
	}
	return decodeMedia(raw)
}

func decodeMedia(raw json.RawMessage) []media {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return nil
		}
		var out []media
		for _, it := range items {
			out = append(out, decodeMedia(it)...)
		}
		return out
	case '{':
		rec, ok := toRecord(raw)
		if !ok {
			return nil
		}
		if data, ok := rec["data"]; ok {
			if _, hasURL := rec["url"]; !hasURL {
				return decodeMedia(data)
			}
		}
		u := rec.str("url")
		if u == "" {
			return nil
		}
		return []media{{URL: u, Alt: rec.str("alternativeText", "caption", "alt")}}
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return []media{{URL: strings.TrimSpace(s)}}
		}
	}
	return nil
}
