package analytics

import "time"

type EventType string

const (
	EventFilter     EventType = "filter"
	EventIndexBuilt EventType = "index_built"
)

// FilterEvent describes one evaluated filter request.
type FilterEvent struct {
	Type      EventType           `json:"type"`
	Query     string              `json:"query,omitempty"`
	Company   string              `json:"company,omitempty"`
	Tags      map[string][]string `json:"tags,omitempty"`
	StateKey  string              `json:"state_key"`
	Total     int                 `json:"total"`
	LatencyMs int64               `json:"latency_ms"`
	CacheHit  bool                `json:"cache_hit"`
	Version   string              `json:"version"`
	Timestamp time.Time           `json:"timestamp"`
	RequestID string              `json:"request_id,omitempty"`
}

// IndexBuiltEvent is published by the indexer after it has written a new
// index. Searchers reload their catalog when they receive it.
type IndexBuiltEvent struct {
	Type       EventType `json:"type"`
	BuildID    string    `json:"build_id"`
	Entries    int       `json:"entries"`
	Exact      int       `json:"exact"`
	Fuzzy      int       `json:"fuzzy"`
	Unmatched  int       `json:"unmatched"`
	Collisions int       `json:"collisions"`
	IndexPath  string    `json:"index_path"`
	Timestamp  time.Time `json:"timestamp"`
}

// envelope peeks at the type field before full decoding.
type envelope struct {
	Type EventType `json:"type"`
}
