package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Tags is the canonical tag representation: an ordered sequence of trimmed,
// non-empty strings with exact duplicates removed (first occurrence wins).
//
// TWO INPUT SHAPES:
// Older rows and some clients send tags as one comma-joined string
// ("Brunch, American"); newer ones send a JSON array. Both are accepted
// everywhere a Tags value enters the system (JSON body, DB column) and are
// normalised immediately, so the rest of the code only ever sees the
// canonical form.
type Tags []string

// NormalizeTags converts a comma-separated string, a []string, or a Tags
// value into canonical Tags. Unknown input types yield an empty set.
//
// Normalising an already-normalised value returns an equal value.
func NormalizeTags(raw any) Tags {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case Tags:
		parts = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	}

	out := make(Tags, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Contains reports whether tag is an exact member of the set.
func (t Tags) Contains(tag string) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// MarshalJSON always emits an array, never null.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON accepts either "a, b" or ["a", "b"].
func (t *Tags) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	switch raw.(type) {
	case nil, string, []any:
		*t = NormalizeTags(raw)
		return nil
	default:
		return fmt.Errorf("tags: expected a string or an array of strings")
	}
}

// Value stores tags as a JSON array in a TEXT column.
func (t Tags) Value() (driver.Value, error) {
	b, err := json.Marshal([]string(NormalizeTags(t)))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON array, or legacy comma-joined text, and normalises it.
func (t *Tags) Scan(src any) error {
	var text string
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("tags: cannot scan %T", src)
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[") {
		var arr []string
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return fmt.Errorf("tags: decoding column: %w", err)
		}
		*t = NormalizeTags(arr)
		return nil
	}
	*t = NormalizeTags(text)
	return nil
}
