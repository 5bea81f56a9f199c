package extsync

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

var (
	// ErrParse is returned when a source payload cannot be read.
	ErrParse = errors.New("parse failed")
	// ErrHTTPStatus is returned when a source responds with a non-200 status.
	ErrHTTPStatus = errors.New("unexpected http status")
)

// Format names a source payload layout.
type Format string

const (
	// FormatPHPArray is a PHP file returning or assigning an array literal,
	// as published by Crawler-Detect.
	FormatPHPArray Format = "php_array"
	// FormatJSONMap is a JSON object of name to pattern.
	FormatJSONMap Format = "json_map"
	// FormatJSONList is a JSON array of objects with a "pattern" field, as
	// published by crawler-user-agents.
	FormatJSONList Format = "json_list"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	switch f {
	case FormatPHPArray, FormatJSONMap, FormatJSONList:
		return true
	}
	return false
}

// Pair is one name/pattern entry read from a source.
type Pair struct {
	Name    string
	Pattern string
}

// Parse decodes a payload. An empty result is an error.
func Parse(format Format, body []byte) ([]Pair, error) {
	var (
		pairs []Pair
		err   error
	)
	switch format {
	case FormatPHPArray:
		pairs, err = ParsePHPArray(string(body))
	case FormatJSONMap:
		if err = validateFeed(format, body); err == nil {
			pairs, err = parseJSONMap(body)
		}
	case FormatJSONList:
		if err = validateFeed(format, body); err == nil {
			pairs, err = parseJSONList(body)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrParse, format)
	}
	if err != nil {
		return nil, err
	}

	out := pairs[:0]
	for _, p := range pairs {
		// Leading spaces are significant in some feeds (" YLT").
		if strings.TrimSpace(p.Pattern) == "" {
			continue
		}
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			p.Name = strings.TrimSpace(p.Pattern)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no patterns in payload", ErrParse)
	}
	return out, nil
}

func parseJSONMap(body []byte) ([]Pair, error) {
	var m map[string]string
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]Pair, 0, len(m))
	for _, name := range names {
		pairs = append(pairs, Pair{Name: name, Pattern: m[name]})
	}
	return pairs, nil
}

type listEntry struct {
	Pattern string `json:"pattern"`
	Name    string `json:"name"`
}

func parseJSONList(body []byte) ([]Pair, error) {
	var entries []listEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	pairs := make([]Pair, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, Pair{Name: e.Name, Pattern: e.Pattern})
	}
	return pairs, nil
}
