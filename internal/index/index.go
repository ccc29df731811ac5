package index

import (
	"errors"
	"sort"
	"sync"
	"time"

	"newsmarket/internal/fingerprint"
)

var ErrDuplicateMarket = errors.New("market already indexed")

// Entry is one searchable market in the index.
type Entry struct {
	MarketID  string
	Vector    []float32
	Keywords  []string
	CreatedAt time.Time
}

// Match is an index hit with its vector similarity to the query.
type Match struct {
	Entry
	Similarity float64
}

// Index answers nearest-market queries over the open market set. Durable
// state lives in the repository; the index is rebuilt from it at startup.
type Index interface {
	Add(e Entry) error
	Query(vector []float32, topK int) []Match
	Remove(marketID string)
	Len() int
}

// Memory is an in-process cosine-similarity index guarded by a RWMutex.
// The open market set is small enough that a linear scan per query is fine.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Add(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.MarketID]; ok {
		return ErrDuplicateMarket
	}
	m.entries[e.MarketID] = e
	return nil
}

// Query returns up to topK entries ordered by similarity descending.
// Ties break toward the newer market. An empty index or nil vector
// returns an empty slice.
func (m *Memory) Query(vector []float32, topK int) []Match {
	if len(vector) == 0 || topK <= 0 {
		return nil
	}
	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		matches = append(matches, Match{
			Entry:      e,
			Similarity: fingerprint.Cosine(vector, e.Vector),
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].MarketID < matches[j].MarketID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func (m *Memory) Remove(marketID string) {
	m.mu.Lock()
	delete(m.entries, marketID)
	m.mu.Unlock()
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
