package llm

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// EmbedCache memoizes embedding vectors keyed by md5(model:text).
type EmbedCache struct {
	c *gocache.Cache
}

// NewEmbedCache creates a cache with the given TTL (default 1h).
func NewEmbedCache(ttl time.Duration) *EmbedCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbedCache{c: gocache.New(ttl, 10*time.Minute)}
}

func embedKey(model, text string) string {
	sum := md5.Sum([]byte(model + ":" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for (model, text).
func (e *EmbedCache) Get(model, text string) ([]float32, bool) {
	v, ok := e.c.Get(embedKey(model, text))
	if !ok {
		return nil, false
	}
	return v.([]float32), true
}

// Set stores a vector for (model, text).
func (e *EmbedCache) Set(model, text string, vec []float32) {
	e.c.Set(embedKey(model, text), vec, gocache.DefaultExpiration)
}

// SummaryCache memoizes generated summaries keyed by record id plus a hash
// of the summarized content, so edits to a ticket invalidate its entry.
type SummaryCache struct {
	c *gocache.Cache
}

// NewSummaryCache creates a cache with the given TTL (default 6h).
func NewSummaryCache(ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &SummaryCache{c: gocache.New(ttl, 30*time.Minute)}
}

func summaryKey(recordID, content string) string {
	sum := md5.Sum([]byte(content))
	return recordID + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached summary for the record and content.
func (s *SummaryCache) Get(recordID, content string) (string, bool) {
	v, ok := s.c.Get(summaryKey(recordID, content))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Set stores a summary.
func (s *SummaryCache) Set(recordID, content, summary string) {
	s.c.Set(summaryKey(recordID, content), summary, gocache.DefaultExpiration)
}
