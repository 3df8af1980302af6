// Package resolver binds catalog guests to transcript files. Each guest is
// matched exactly on its normalized key first and, failing that, to the
// most similar candidate above a threshold. The outcome is a flat
// key→file index plus the diagnostics a human needs to fix the data.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/textnorm"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/errors"
)

// DefaultThreshold is the minimum similarity for a fuzzy binding.
const DefaultThreshold = 0.8

// Options tunes a Build run.
type Options struct {
	// Threshold is the minimum similarity accepted by the approximate pass.
	Threshold float64
	// Workers bounds how many entries are matched concurrently. Output does
	// not depend on it.
	Workers int
	// FoldSeparators treats '-' and '_' as spaces when comparing names.
	FoldSeparators bool
}

// DefaultOptions returns the options used by the indexer command.
func DefaultOptions() Options {
	return Options{
		Threshold:      DefaultThreshold,
		Workers:        1,
		FoldSeparators: true,
	}
}

// MatchKind tells how an entry was bound.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
	MatchNone  MatchKind = "unmatched"
)

// Match is one guest bound to a transcript file.
type Match struct {
	Guest string    `json:"guest"`
	Key   string    `json:"key"`
	File  string    `json:"file"`
	Score float64   `json:"score"`
	Kind  MatchKind `json:"kind"`
}

// Collision records two differently written guests sharing a normalized
// key. The later binding overwrites the earlier one in the index.
type Collision struct {
	Key           string `json:"key"`
	PreviousGuest string `json:"previous_guest"`
	PreviousFile  string `json:"previous_file"`
	Guest         string `json:"guest"`
	File          string `json:"file"`
}

// Result is the outcome of a Build run.
type Result struct {
	Index      map[string]string `json:"index"`
	Exact      []Match           `json:"exact"`
	Fuzzy      []Match           `json:"fuzzy"`
	Unmatched  []string          `json:"unmatched"`
	Collisions []Collision       `json:"collisions"`
	Skipped    int               `json:"skipped"`
}

// OK reports whether every guest was bound.
func (r *Result) OK() bool {
	return len(r.Unmatched) == 0
}

// Err returns an ErrUnresolvedEntity error when any guest is unmatched.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%d guest(s) without transcript: %w", len(r.Unmatched), apperrors.ErrUnresolvedEntity)
}

// Files returns the distinct transcript files referenced by the index,
// sorted by name.
func (r *Result) Files() []string {
	seen := make(map[string]struct{}, len(r.Index))
	files := make([]string, 0, len(r.Index))
	for _, f := range r.Index {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

type preparedCandidate struct {
	Candidate
	key    string
	tokens map[string]struct{}
}

// Resolver matches guests against a fixed candidate pool.
type Resolver struct {
	opts       Options
	candidates []preparedCandidate
	byKey      map[string]int
	logger     *slog.Logger
}

// New prepares pool for matching.
func New(pool *Pool, opts Options) *Resolver {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	r := &Resolver{
		opts:   opts,
		byKey:  make(map[string]int, pool.Len()),
		logger: slog.Default().With("component", "resolver"),
	}
	for i, c := range pool.candidates {
		pc := preparedCandidate{
			Candidate: c,
			key:       r.compareKey(c.Base),
			tokens:    tokenSet(r.compareTokens(c.Base)),
		}
		r.candidates = append(r.candidates, pc)
		if _, taken := r.byKey[pc.key]; !taken {
			r.byKey[pc.key] = i
		}
	}
	return r
}

func (r *Resolver) compareKey(name string) string {
	if r.opts.FoldSeparators {
		name = foldSeparators(name)
	}
	return textnorm.Normalize(name)
}

func (r *Resolver) compareTokens(name string) []string {
	if r.opts.FoldSeparators {
		name = foldSeparators(name)
	}
	return textnorm.Tokens(name)
}

// Resolve finds the transcript for a single guest.
func (r *Resolver) Resolve(guest string) Match {
	m := Match{Guest: guest, Key: textnorm.Normalize(guest), Kind: MatchNone}
	if idx, ok := r.byKey[r.compareKey(guest)]; ok {
		m.File = r.candidates[idx].File
		m.Score = 1
		m.Kind = MatchExact
		return m
	}

	guestTokens := tokenSet(r.compareTokens(guest))
	best := -1
	bestScore := 0.0
	for i, c := range r.candidates {
		if s := tokenSimilarity(guestTokens, c.tokens); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best >= 0 && bestScore >= r.opts.Threshold {
		m.File = r.candidates[best].File
		m.Score = bestScore
		m.Kind = MatchFuzzy
		return m
	}
	m.Score = bestScore
	return m
}

// Similarity scores guest against a transcript base name the way Resolve
// does, folding file-name separators when the resolver is configured to.
func (r *Resolver) Similarity(guest, base string) float64 {
	return tokenSimilarity(tokenSet(r.compareTokens(guest)), tokenSet(r.compareTokens(base)))
}

// Build resolves every entry with a non-empty guest, in catalog order.
// Matching may run on several workers but the result is merged in entry
// order, so later entries win key collisions exactly as they would in a
// sequential run. Build fails only when ctx is cancelled.
func Build(ctx context.Context, entries []catalog.Entry, pool *Pool, opts Options) (*Result, error) {
	return New(pool, opts).Build(ctx, entries)
}

func (r *Resolver) Build(ctx context.Context, entries []catalog.Entry) (*Result, error) {
	matches := make([]*Match, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := range entries {
		if entries[i].Guest == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := r.Resolve(entries[i].Guest)
			matches[i] = &m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving catalog: %w", err)
	}

	res := &Result{
		Index:      make(map[string]string, len(entries)),
		Exact:      []Match{},
		Fuzzy:      []Match{},
		Unmatched:  []string{},
		Collisions: []Collision{},
	}
	boundBy := make(map[string]string, len(entries))
	for _, m := range matches {
		if m == nil {
			res.Skipped++
			continue
		}
		switch m.Kind {
		case MatchExact:
			res.Exact = append(res.Exact, *m)
		case MatchFuzzy:
			res.Fuzzy = append(res.Fuzzy, *m)
			r.logger.Debug("fuzzy match", "guest", m.Guest, "file", m.File, "score", m.Score)
		default:
			res.Unmatched = append(res.Unmatched, m.Guest)
			r.logger.Debug("unmatched guest", "guest", m.Guest, "best_score", m.Score)
			continue
		}
		if prevFile, taken := res.Index[m.Key]; taken {
			prevGuest := boundBy[m.Key]
			if prevGuest != m.Guest || prevFile != m.File {
				res.Collisions = append(res.Collisions, Collision{
					Key:           m.Key,
					PreviousGuest: prevGuest,
					PreviousFile:  prevFile,
					Guest:         m.Guest,
					File:          m.File,
				})
			}
		}
		res.Index[m.Key] = m.File
		boundBy[m.Key] = m.Guest
	}

	r.logger.Info("resolution complete",
		"entries", len(entries),
		"candidates", len(r.candidates),
		"exact", len(res.Exact),
		"fuzzy", len(res.Fuzzy),
		"unmatched", len(res.Unmatched),
		"collisions", len(res.Collisions),
		"skipped", res.Skipped,
	)
	return res, nil
}
