package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// HistoryEntry is one recorded message, inbound or outbound.
type HistoryEntry struct {
	ChatID    string    `json:"chatId"`
	Direction string    `json:"direction"` // "in" | "out"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is an in-memory per-chat message cache backed by a JSON
// snapshot file. The snapshot is advisory: a missing or corrupt file at
// startup means an empty history, never a startup failure.
type History struct {
	mu      sync.Mutex
	path    string
	limit   int
	entries map[string][]HistoryEntry
	seq     uint64 // bumped on Record
	flushed uint64 // seq covered by the last successful flush
	logger  *slog.Logger
}

func NewHistory(path string, limit int, logger *slog.Logger) *History {
	if limit <= 0 {
		limit = 200
	}
	return &History{
		path:    path,
		limit:   limit,
		entries: make(map[string][]HistoryEntry),
		logger:  logger,
	}
}

// Load reads the snapshot file. Failure leaves the history empty.
func (h *History) Load() {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.Warn("cannot read history snapshot, starting empty", "path", h.path, "error", err)
		}
		return
	}

	var entries map[string][]HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		h.logger.Warn("corrupt history snapshot, starting empty", "path", h.path, "error", err)
		return
	}

	h.mu.Lock()
	h.entries = entries
	h.mu.Unlock()
}

// Record appends an entry to the chat's history, trimming to the limit.
func (h *History) Record(entry HistoryEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[entry.ChatID], entry)
	if len(list) > h.limit {
		list = list[len(list)-h.limit:]
	}
	h.entries[entry.ChatID] = list
	h.seq++
}

// Entries returns a copy of the chat's history.
func (h *History) Entries(chatID string) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryEntry(nil), h.entries[chatID]...)
}

// Flush writes the snapshot atomically. No-op when nothing changed since
// the last successful flush; a failed flush leaves the entries pending so
// the next tick retries them.
func (h *History) Flush() error {
	h.mu.Lock()
	if h.seq == h.flushed {
		h.mu.Unlock()
		return nil
	}
	seq := h.seq
	data, err := json.MarshalIndent(h.entries, "", "  ")
	h.mu.Unlock()

	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history snapshot: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		return fmt.Errorf("replace history snapshot: %w", err)
	}

	h.mu.Lock()
	h.flushed = seq
	h.mu.Unlock()
	return nil
}

// Run flushes on the given interval until the context ends, then flushes
// one last time.
func (h *History) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := h.Flush(); err != nil {
				h.logger.Error("final history flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := h.Flush(); err != nil {
				h.logger.Error("history flush failed", "error", err)
			}
		}
	}
}
