package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CompletedRange records one finished (or partially finished) window.
type CompletedRange struct {
	RangeID     string `json:"range_id"`
	TicketCount int    `json:"ticket_count"`
	Partial     bool   `json:"partial"`
}

// Progress is the resumable state of one tenant's ingestion, persisted as
// progress.json under the tenant's raw-data directory after every mutation.
type Progress struct {
	TenantID        string           `json:"tenant_id"`
	Platform        string           `json:"platform"`
	CompletedRanges []CompletedRange `json:"completed_ranges"`

	// RawPasses marks per-type raw collection passes already finished
	// ("details", "conversations", "attachments", "kb").
	RawPasses map[string]bool `json:"raw_passes,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`

	path string
}

// LoadProgress reads the tenant's progress file, returning a fresh Progress
// when none exists yet.
func LoadProgress(rawDir, tenantID, platform string) (*Progress, error) {
	path := filepath.Join(rawDir, tenantID, "progress.json")
	p := &Progress{
		TenantID:  tenantID,
		Platform:  platform,
		RawPasses: make(map[string]bool),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse progress: %w", err)
	}
	if p.RawPasses == nil {
		p.RawPasses = make(map[string]bool)
	}
	p.path = path
	return p, nil
}

// IsComplete reports whether a window finished in a previous run. Partial
// windows are re-run.
func (p *Progress) IsComplete(rangeID string) bool {
	for _, r := range p.CompletedRanges {
		if r.RangeID == rangeID && !r.Partial {
			return true
		}
	}
	return false
}

// MarkRange records a window's outcome, replacing any earlier partial entry,
// and persists.
func (p *Progress) MarkRange(rangeID string, ticketCount int, partial bool) error {
	for i, r := range p.CompletedRanges {
		if r.RangeID == rangeID {
			p.CompletedRanges[i] = CompletedRange{RangeID: rangeID, TicketCount: ticketCount, Partial: partial}
			return p.Save()
		}
	}
	p.CompletedRanges = append(p.CompletedRanges, CompletedRange{
		RangeID: rangeID, TicketCount: ticketCount, Partial: partial,
	})
	return p.Save()
}

// MarkRawPass records a finished per-type raw collection pass and persists.
func (p *Progress) MarkRawPass(pass string) error {
	p.RawPasses[pass] = true
	return p.Save()
}

// Save writes the progress file atomically (temp file + rename).
func (p *Progress) Save() error {
	p.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	return nil
}
