package helpers

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
)

var (
	// ErrNoJSONObject is returned when the text contains no '{' at all.
	ErrNoJSONObject = errors.New("no JSON object found")
	// ErrUnbalancedJSON is returned when an opening brace is never closed.
	ErrUnbalancedJSON = errors.New("unbalanced JSON object")
)

// ExtractJSONObject returns the first balanced top-level {...} block in s.
// Braces inside JSON string literals are ignored, so LLM prose or markdown
// fences around the object do not matter. Truncated input fails closed with
// ErrUnbalancedJSON.
func ExtractJSONObject(s string) (string, error) {
	s = trimBOM(s)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}
	end, err := balancedEnd(s, start)
	if err != nil {
		return "", err
	}
	return s[start : end+1], nil
}

// DecodeJSONObject unmarshals the first balanced object of s that decodes
// cleanly into out's type. Blocks that are not valid JSON (e.g. "{note}" in
// prose) or that do not fit the type are skipped without touching out;
// scanning resumes after the skipped block.
func DecodeJSONObject(s string, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &json.InvalidUnmarshalError{Type: reflect.TypeOf(out)}
	}
	elem := rv.Type().Elem()
	s = trimBOM(s)
	offset := 0
	var lastErr error = ErrNoJSONObject
	for offset < len(s) {
		rel := strings.IndexByte(s[offset:], '{')
		if rel < 0 {
			return lastErr
		}
		start := offset + rel
		end, err := balancedEnd(s, start)
		if err != nil {
			return err
		}
		block := []byte(s[start : end+1])
		if !json.Valid(block) {
			lastErr = errors.New("invalid JSON object")
			offset = end + 1
			continue
		}
		if err := json.Unmarshal(block, reflect.New(elem).Interface()); err != nil {
			lastErr = err
			offset = end + 1
			continue
		}
		return json.Unmarshal(block, out)
	}
	return lastErr
}

// balancedEnd returns the index of the brace closing the one at start.
func balancedEnd(s string, start int) (int, error) {
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, ErrUnbalancedJSON
}

// trimBOM removes an optional UTF-8 BOM.
func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
