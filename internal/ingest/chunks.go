package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const (
	// DefaultChunkSize is how many items one raw chunk file holds.
	DefaultChunkSize = 1000

	// chunkWarnBytes triggers a size warning on a written chunk file.
	chunkWarnBytes = 50 * 1024 * 1024
)

// chunkWriter accumulates raw items and writes them to numbered JSON files
// (<prefix>_chunk_0001.json) whenever the chunk fills.
type chunkWriter struct {
	dir       string
	prefix    string
	chunkSize int
	items     []json.RawMessage
	index     int
	log       zerolog.Logger
}

func newChunkWriter(dir, prefix string, chunkSize int, log zerolog.Logger) *chunkWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &chunkWriter{dir: dir, prefix: prefix, chunkSize: chunkSize, log: log}
}

// Append adds one item, flushing when the chunk is full.
func (w *chunkWriter) Append(item any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", w.prefix, err)
	}
	w.items = append(w.items, data)
	if len(w.items) >= w.chunkSize {
		return w.Flush()
	}
	return nil
}

// Flush writes buffered items to the next chunk file and clears the buffer.
func (w *chunkWriter) Flush() error {
	if len(w.items) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}

	w.index++
	path := filepath.Join(w.dir, fmt.Sprintf("%s_chunk_%04d.json", w.prefix, w.index))
	data, err := json.Marshal(w.items)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}

	if len(data) > chunkWarnBytes {
		w.log.Warn().
			Str("path", path).
			Int("bytes", len(data)).
			Msg("chunk file exceeds 50MB, consider lowering chunk size")
	}
	w.log.Debug().Str("path", path).Int("items", len(w.items)).Msg("wrote chunk")
	w.items = w.items[:0]
	return nil
}
