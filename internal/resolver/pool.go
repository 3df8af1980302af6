package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Candidate is one transcript file that catalog entries may be bound to.
type Candidate struct {
	File string
	Base string
}

// Pool is the read-only, file-name-ordered set of candidates. Ordering by
// file name makes tie-breaks reproducible regardless of how the files were
// listed.
type Pool struct {
	candidates []Candidate
}

// NewPool builds a pool from file names, keeping those whose extension
// matches ext case-insensitively.
func NewPool(files []string, ext string) *Pool {
	candidates := make([]Candidate, 0, len(files))
	for _, f := range files {
		base, ok := trimExt(f, ext)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{File: f, Base: base})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].File < candidates[j].File
	})
	return &Pool{candidates: candidates}
}

// PoolFromDir lists dir and builds a pool from its regular files ending in
// ext.
func PoolFromDir(dir, ext string) (*Pool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts in %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}
	return NewPool(files, ext), nil
}

func (p *Pool) Len() int {
	return len(p.candidates)
}

// Candidates returns the pool in scan order.
func (p *Pool) Candidates() []Candidate {
	out := make([]Candidate, len(p.candidates))
	copy(out, p.candidates)
	return out
}

func trimExt(name, ext string) (string, bool) {
	if len(name) <= len(ext) || !strings.EqualFold(filepath.Ext(name), ext) {
		return "", false
	}
	return name[:len(name)-len(ext)], true
}
