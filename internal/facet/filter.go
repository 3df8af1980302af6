package facet

import (
	"slices"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/catalog"
)

// Counts holds, per dimension, how many filtered entries carry each tag.
type Counts [catalog.NumDimensions]map[string]int

// Count returns the count of tag in dim, 0 when absent.
func (c Counts) Count(dim catalog.Dimension, tag string) int {
	if !dim.Valid() || c[dim] == nil {
		return 0
	}
	return c[dim][tag]
}

// Result is the outcome of one Filter call.
type Result struct {
	Entries []catalog.Entry
	Counts  Counts
	Total   int
}

// Filter returns the entries matching s, in catalog order, and the tag
// counts over those entries.
//
// An entry matches when it carries every selected tag of every dimension,
// belongs to the selected company (exact comparison) and, for a non-empty
// query, contains the query case-insensitively in its guest or summary.
func Filter(entries []catalog.Entry, s State) Result {
	q := strings.ToLower(s.query)
	res := Result{Entries: []catalog.Entry{}}
	for _, d := range catalog.Dimensions {
		res.Counts[d] = make(map[string]int)
	}
	for _, e := range entries {
		if !matches(e, s, q) {
			continue
		}
		res.Entries = append(res.Entries, e)
		for _, d := range catalog.Dimensions {
			for _, t := range e.Tags[d] {
				res.Counts[d][t]++
			}
		}
	}
	res.Total = len(res.Entries)
	return res
}

func matches(e catalog.Entry, s State, lowerQuery string) bool {
	for _, d := range catalog.Dimensions {
		for _, t := range s.tags[d] {
			if !slices.Contains(e.Tags[d], t) {
				return false
			}
		}
	}
	if s.company != "" && e.Company != s.company {
		return false
	}
	if lowerQuery == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Guest), lowerQuery) ||
		strings.Contains(strings.ToLower(e.Summary), lowerQuery)
}

// TagControl is one selectable tag with its count under the current filter.
type TagControl struct {
	Tag      string `json:"tag"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
	// Dimmed marks tags that no filtered entry carries.
	Dimmed bool `json:"dimmed"`
}

// Controls lays out every vocabulary tag with its count and selection flags.
// Selected tags missing from vocab are appended so they can always be
// deselected.
func Controls(vocab [catalog.NumDimensions][]string, s State, res Result) [catalog.NumDimensions][]TagControl {
	var out [catalog.NumDimensions][]TagControl
	for _, d := range catalog.Dimensions {
		tags := slices.Clone(vocab[d])
		var extra []string
		for _, t := range s.tags[d] {
			if !slices.Contains(tags, t) {
				extra = append(extra, t)
			}
		}
		sort.Strings(extra)
		tags = append(tags, extra...)

		controls := make([]TagControl, 0, len(tags))
		for _, t := range tags {
			n := res.Counts.Count(d, t)
			controls = append(controls, TagControl{
				Tag:      t,
				Count:    n,
				Selected: s.IsSelected(d, t),
				Dimmed:   n == 0,
			})
		}
		out[d] = controls
	}
	return out
}
