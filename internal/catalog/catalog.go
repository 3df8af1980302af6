// Package catalog parses the episode table and exposes the loaded entries,
// their tag vocabulary and company list. Columns are resolved by header
// name, so their order in the source does not matter.
package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/textnorm"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/errors"
)

// Header names of the catalog table.
const (
	ColumnSrNo               = "Sr No"
	ColumnGuest              = "Podcast Guest"
	ColumnCompany            = "Company Name"
	ColumnCompanyDescription = "Company Description"
	ColumnFrameworks         = "Frameworks"
	ColumnSummary            = "CEO Summary"
	ColumnLevel1             = "Level 1 Tags"
	ColumnLevel2             = "Level 2 Tags"
	ColumnLevel3             = "Level 3 Tags"
	ColumnLevel4             = "Level 4 Tags"
)

// NumDimensions is the number of independent tag dimensions.
const NumDimensions = 4

// Dimension identifies one of the four tag taxonomy levels.
type Dimension int

const (
	Level1 Dimension = iota
	Level2
	Level3
	Level4
)

// Dimensions lists every dimension in display order.
var Dimensions = [NumDimensions]Dimension{Level1, Level2, Level3, Level4}

var dimensionColumns = [NumDimensions]string{ColumnLevel1, ColumnLevel2, ColumnLevel3, ColumnLevel4}

var dimensionTitles = [NumDimensions]string{"Core", "Topics", "Role", "Strategy"}

// Key is the short query-string name of the dimension ("l1".."l4").
func (d Dimension) Key() string {
	return "l" + strconv.Itoa(int(d)+1)
}

// Title is the label shown above the dimension's filter controls.
func (d Dimension) Title() string {
	if !d.Valid() {
		return ""
	}
	return dimensionTitles[d]
}

func (d Dimension) Valid() bool {
	return d >= Level1 && d <= Level4
}

// ParseDimension maps "l1".."l4" back to a Dimension.
func ParseDimension(key string) (Dimension, bool) {
	for _, d := range Dimensions {
		if d.Key() == key {
			return d, true
		}
	}
	return 0, false
}

// Entry is one episode of the catalog.
type Entry struct {
	ID                 string                  `json:"id"`
	SrNo               string                  `json:"sr_no,omitempty"`
	Guest              string                  `json:"guest"`
	Company            string                  `json:"company"`
	CompanyDescription string                  `json:"company_description,omitempty"`
	Frameworks         string                  `json:"frameworks,omitempty"`
	Summary            string                  `json:"summary"`
	Tags               [NumDimensions][]string `json:"tags"`
	TranscriptFile     string                  `json:"transcript_file,omitempty"`
}

// Key is the normalized guest name used to look up the entry's transcript.
func (e Entry) Key() string {
	return textnorm.Normalize(e.Guest)
}

func (e Entry) HasTranscript() bool {
	return e.TranscriptFile != ""
}

// MissingColumnError reports required headers absent from the table.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: %s", apperrors.ErrMissingColumn, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnError) Unwrap() error {
	return apperrors.ErrMissingColumn
}

var requiredColumns = []string{
	ColumnSrNo,
	ColumnGuest,
	ColumnCompany,
	ColumnSummary,
	ColumnLevel1,
	ColumnLevel2,
	ColumnLevel3,
	ColumnLevel4,
}

// Catalog is an ordered, read-only set of entries.
type Catalog struct {
	Entries []Entry
}

// Load parses text with parse and maps every data row to an Entry.
func Load(text string, parse TableParser) (*Catalog, error) {
	if parse == nil {
		parse, _ = ParserFor("lenient")
	}
	rows, err := parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog table: %w", err)
	}
	if len(rows) == 0 {
		return nil, &MissingColumnError{Columns: requiredColumns}
	}
	cols := indexHeader(rows[0])
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Columns: missing}
	}

	entries := make([]Entry, 0, len(rows)-1)
	for i, r := range rows[1:] {
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(r) {
				return ""
			}
			return strings.TrimSpace(r[idx])
		}
		e := Entry{
			SrNo:               cell(ColumnSrNo),
			Guest:              cell(ColumnGuest),
			Company:            cell(ColumnCompany),
			CompanyDescription: cell(ColumnCompanyDescription),
			Frameworks:         cell(ColumnFrameworks),
			Summary:            cell(ColumnSummary),
		}
		for _, d := range Dimensions {
			e.Tags[d] = SplitTags(cell(dimensionColumns[d]))
		}
		e.ID = e.SrNo
		if e.ID == "" {
			e.ID = strconv.Itoa(i + 1)
		}
		entries = append(entries, e)
	}
	return &Catalog{Entries: entries}, nil
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}

// SplitTags splits a comma-separated label list, trimming labels and dropping
// empty and repeated ones while keeping first-seen order.
func SplitTags(v string) []string {
	if v == "" {
		return []string{}
	}
	parts := strings.Split(v, ",")
	tags := make([]string, 0, len(parts))
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
		tags = append(tags, p)
	}
	return tags
}

// WithTranscripts returns a copy of the catalog whose entries carry the
// transcript file bound to their normalized guest key, if any.
func (c *Catalog) WithTranscripts(index map[string]string) *Catalog {
	entries := make([]Entry, len(c.Entries))
	copy(entries, c.Entries)
	for i := range entries {
		entries[i].TranscriptFile = index[entries[i].Key()]
	}
	return &Catalog{Entries: entries}
}

// Find returns the entry with the given ID.
func (c *Catalog) Find(id string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Vocabulary returns the sorted distinct tags of every dimension.
func (c *Catalog) Vocabulary() [NumDimensions][]string {
	var vocab [NumDimensions][]string
	for _, d := range Dimensions {
		seen := make(map[string]struct{})
		for _, e := range c.Entries {
			for _, t := range e.Tags[d] {
				seen[t] = struct{}{}
			}
		}
		vocab[d] = sortedKeys(seen)
	}
	return vocab
}

// Companies returns the sorted distinct non-empty company names.
func (c *Catalog) Companies() []string {
	seen := make(map[string]struct{})
	for _, e := range c.Entries {
		if e.Company != "" {
			seen[e.Company] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
