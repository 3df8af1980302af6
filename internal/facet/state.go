// Package facet narrows a catalog by tag selections, an exact company and a
// free-text query, and counts the tags that remain. Everything here is a
// pure function of its inputs and safe for concurrent use.
package facet

import (
	"net/url"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/catalog"
)

// State is the filter selection. It is an immutable value: every method that
// changes it returns a new State and leaves the receiver untouched. The zero
// value selects everything.
type State struct {
	tags    [catalog.NumDimensions][]string
	company string
	query   string
}

// NewState builds a State from explicit selections. Repeated tags collapse to
// one; dimensions beyond the fourth are ignored.
func NewState(tags [catalog.NumDimensions][]string, company, query string) State {
	var s State
	for _, d := range catalog.Dimensions {
		for _, t := range tags[d] {
			if t != "" && !slices.Contains(s.tags[d], t) {
				s.tags[d] = append(s.tags[d], t)
			}
		}
	}
	s.company = company
	s.query = query
	return s
}

// Toggle selects tag in dim, or deselects it if already selected.
func (s State) Toggle(dim catalog.Dimension, tag string) State {
	if !dim.Valid() || tag == "" {
		return s
	}
	next := s.clone()
	if i := slices.Index(next.tags[dim], tag); i >= 0 {
		next.tags[dim] = slices.Delete(next.tags[dim], i, i+1)
	} else {
		next.tags[dim] = append(next.tags[dim], tag)
	}
	return next
}

// SetCompany restricts results to one company; "" removes the restriction.
func (s State) SetCompany(company string) State {
	next := s.clone()
	next.company = company
	return next
}

// SetQuery sets the free-text query; "" removes it.
func (s State) SetQuery(query string) State {
	next := s.clone()
	next.query = query
	return next
}

// Clear drops every selection, the company and the query.
func (s State) Clear() State {
	return State{}
}

// Selected returns the tags selected in dim, in selection order.
func (s State) Selected(dim catalog.Dimension) []string {
	if !dim.Valid() {
		return nil
	}
	return slices.Clone(s.tags[dim])
}

func (s State) IsSelected(dim catalog.Dimension, tag string) bool {
	return dim.Valid() && slices.Contains(s.tags[dim], tag)
}

func (s State) Company() string { return s.company }

func (s State) Query() string { return s.query }

// IsZero reports whether the state filters nothing out.
func (s State) IsZero() bool {
	for _, d := range catalog.Dimensions {
		if len(s.tags[d]) > 0 {
			return false
		}
	}
	return s.company == "" && s.query == ""
}

// Values encodes the state as query parameters (l1..l4, company, q).
func (s State) Values() url.Values {
	v := url.Values{}
	for _, d := range catalog.Dimensions {
		for _, t := range s.tags[d] {
			v.Add(d.Key(), t)
		}
	}
	if s.company != "" {
		v.Set("company", s.company)
	}
	if s.query != "" {
		v.Set("q", s.query)
	}
	return v
}

// Key is a canonical encoding of the state: two states selecting the same
// tags in a different order share a key.
func (s State) Key() string {
	v := s.Values()
	for k := range v {
		slices.Sort(v[k])
	}
	return v.Encode()
}

func (s State) clone() State {
	next := s
	for _, d := range catalog.Dimensions {
		next.tags[d] = slices.Clone(s.tags[d])
	}
	return next
}
