// Package query converts raw request parameters into the typed queries the
// backend consumes.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/ademuri/scrobble-server/internal/apperr"
)

// Param is one submitted key/value pair.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered multi-map of request parameters. Key order and value
// order are both preserved as submitted.
type Params []Param

// Get returns the first value for key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// All returns every value for key in submission order.
func (p Params) All(key string) []string {
	var out []string
	for _, kv := range p {
		if kv.Key == key {
			out = append(out, kv.Value)
		}
	}
	return out
}

// Has reports whether key was submitted at all, even with an empty value.
func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Keys returns the distinct keys in first-seen order.
func (p Params) Keys() []string {
	seen := make(map[string]bool, len(p))
	var keys []string
	for _, kv := range p {
		if !seen[kv.Key] {
			seen[kv.Key] = true
			keys = append(keys, kv.Key)
		}
	}
	return keys
}

// Add appends a value.
func (p *Params) Add(key, value string) {
	*p = append(*p, Param{Key: key, Value: value})
}

// Without returns a copy of p with every value of the given keys removed.
func (p Params) Without(keys ...string) Params {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := make(Params, 0, len(p))
	for _, kv := range p {
		if !drop[kv.Key] {
			out = append(out, kv)
		}
	}
	return out
}

// Map flattens p to the first value per key.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, kv := range p {
		if _, ok := m[kv.Key]; !ok {
			m[kv.Key] = kv.Value
		}
	}
	return m
}

// ParseQueryString parses a raw URL query (or form body) keeping key order.
func ParseQueryString(raw string) (Params, error) {
	var p Params
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, apperr.Malformed(k, v, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, apperr.Malformed(key, v, err)
		}
		p.Add(key, value)
	}
	return p, nil
}

// ParseJSON reads a flat JSON object. Arrays become repeated keys, numbers
// keep their literal form and nulls are skipped.
func ParseJSON(r io.Reader) (Params, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Malformed("body", "", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, apperr.Malformedf("body", fmt.Sprint(tok), "expected a JSON object")
	}

	var p Params
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, apperr.Malformed("body", "", err)
		}
		key := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return nil, apperr.Malformed(key, "", err)
		}
		if d, ok := tok.(json.Delim); ok {
			if d != '[' {
				return nil, apperr.Malformedf(key, "", "nested objects are not supported")
			}
			for dec.More() {
				elem, err := dec.Token()
				if err != nil {
					return nil, apperr.Malformed(key, "", err)
				}
				s, ok, err := scalar(elem)
				if err != nil {
					return nil, apperr.Malformed(key, "", err)
				}
				if ok {
					p.Add(key, s)
				}
			}
			if _, err := dec.Token(); err != nil {
				return nil, apperr.Malformed(key, "", err)
			}
			continue
		}
		s, ok, err := scalar(tok)
		if err != nil {
			return nil, apperr.Malformed(key, "", err)
		}
		if ok {
			p.Add(key, s)
		}
	}
	return p, nil
}

func scalar(tok json.Token) (string, bool, error) {
	switch v := tok.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case json.Number:
		return v.String(), true, nil
	case bool:
		if v {
			return "true", true, nil
		}
		return "false", true, nil
	default:
		return "", false, fmt.Errorf("unsupported value %v", v)
	}
}
