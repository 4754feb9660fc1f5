// Package filter narrows and orders restaurants for display.
//
// Apply is pure: it never modifies the slice it is given, and the same input
// always yields the same output.
package filter

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/model"
)

// Sort keys.
const (
	SortRating = "rating"
	SortName   = "name"
	SortNewest = "newest"
)

// Options configures Apply. The zero value keeps everything in input order.
type Options struct {
	Tag        string   // exact match against the normalized tag set
	SearchTerm string   // case-insensitive substring of name, description or any tag
	MinRating  *float64 // inclusive; nil means any rating
	SortBy     string   // SortRating, SortName, SortNewest; anything else keeps input order
}

// Apply returns the restaurants matching opts in the requested order.
func Apply(restaurants []model.Restaurant, opts Options) []model.Restaurant {
	term := strings.ToLower(strings.TrimSpace(opts.SearchTerm))
	tag := strings.TrimSpace(opts.Tag)

	out := make([]model.Restaurant, 0, len(restaurants))
	for _, r := range restaurants {
		// Tags may come from anywhere; normalize before matching.
		tags := model.NormalizeTags(r.Tags)
		if tag != "" && !tags.Contains(tag) {
			continue
		}
		if term != "" && !matchesTerm(r, tags, term) {
			continue
		}
		if opts.MinRating != nil && r.RatingOrZero() < *opts.MinRating {
			continue
		}
		r.Tags = tags
		out = append(out, r)
	}

	switch opts.SortBy {
	case SortRating:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].RatingOrZero() > out[j].RatingOrZero()
		})
	case SortName:
		sort.SliceStable(out, func(i, j int) bool {
			a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
			if a != b {
				return a < b
			}
			return out[i].Name < out[j].Name
		})
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

func matchesTerm(r model.Restaurant, tags model.Tags, term string) bool {
	if strings.Contains(strings.ToLower(r.Name), term) ||
		strings.Contains(strings.ToLower(r.Description), term) {
		return true
	}
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}

// ParseOptions reads tag, q, minRating and sort from a query string.
// minRating "any" or empty means no bound.
func ParseOptions(q url.Values) (Options, error) {
	opts := Options{
		Tag:        strings.TrimSpace(q.Get("tag")),
		SearchTerm: strings.TrimSpace(q.Get("q")),
		SortBy:     strings.ToLower(strings.TrimSpace(q.Get("sort"))),
	}

	if raw := strings.TrimSpace(q.Get("minRating")); raw != "" && !strings.EqualFold(raw, "any") {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 5 {
			return Options{}, apperror.ValidationFailed("minRating", "minRating must be a number between 0 and 5, or \"any\"")
		}
		opts.MinRating = &v
	}

	switch opts.SortBy {
	case "", SortRating, SortName, SortNewest:
	default:
		return Options{}, apperror.ValidationFailed("sort", "sort must be one of rating, name, newest")
	}
	return opts, nil
}
