// Package usage accumulates per-session token usage from assistant entries.
// Streamed API responses are written to the transcript repeatedly as they
// grow; the deduplicator collapses them so each API request is counted once,
// at its final size.
package usage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tailview/backend/internal/pricing"
	"github.com/tailview/backend/internal/tailer"
)

// TokenUsage mirrors the usage object on a Claude Code assistant message.
type TokenUsage struct {
	InputTokens              int            `json:"input_tokens"`
	OutputTokens             int            `json:"output_tokens"`
	CacheCreationInputTokens int            `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int            `json:"cache_read_input_tokens"`
	CacheCreation            *CacheCreation `json:"cache_creation,omitempty"`
}

// CacheCreation is the per-TTL breakdown of cache write tokens. Not all
// transcript versions include it; when absent, all creation tokens are
// attributed to the 5-minute bucket.
type CacheCreation struct {
	Ephemeral5m int `json:"ephemeral_5m_input_tokens"`
	Ephemeral1h int `json:"ephemeral_1h_input_tokens"`
}

// CacheWriteSplit returns (5m, 1h) cache write tokens, preferring the
// structured breakdown over the flat total.
func (u TokenUsage) CacheWriteSplit() (int, int) {
	if u.CacheCreation != nil {
		cc := u.CacheCreation
		if cc.Ephemeral5m > 0 || cc.Ephemeral1h > 0 {
			return cc.Ephemeral5m, cc.Ephemeral1h
		}
	}
	return u.CacheCreationInputTokens, 0
}

type record struct {
	usage TokenUsage
	model string
}

// Deduplicator retains one usage record per (message_id, request_id) key,
// keeping the variant with the most output tokens — the final version of a
// streamed response. Entries missing either ID get a synthetic key and are
// counted independently. Safe for concurrent use: the monitor adds while
// API handlers total.
type Deduplicator struct {
	mu        sync.Mutex
	records   map[string]record
	synthetic int
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{records: make(map[string]record)}
}

// Add consumes one assistant entry. Non-assistant entries and entries
// without usage data are ignored.
func (d *Deduplicator) Add(e tailer.Entry) {
	if e.Kind != tailer.KindAssistant || e.Message == nil {
		return
	}

	var msg struct {
		ID    string     `json:"id"`
		Model string     `json:"model"`
		Usage *TokenUsage `json:"usage"`
	}
	if err := json.Unmarshal(e.Message, &msg); err != nil || msg.Usage == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var key string
	if msg.ID != "" && e.RequestID != "" {
		key = msg.ID + ":" + e.RequestID
	} else {
		key = fmt.Sprintf("no-dedup-%d", d.synthetic)
		d.synthetic++
	}

	// Strictly greater replaces; ties keep the earlier record.
	if existing, ok := d.records[key]; ok && msg.Usage.OutputTokens <= existing.usage.OutputTokens {
		return
	}
	d.records[key] = record{usage: *msg.Usage, model: msg.Model}
}

// Totals holds summed, deduplicated usage for a session.
type Totals struct {
	InputTokens         int      `json:"input_tokens"`
	OutputTokens        int      `json:"output_tokens"`
	CacheCreationTokens int      `json:"cache_creation_tokens"`
	CacheReadTokens     int      `json:"cache_read_tokens"`
	MessageCount        int      `json:"message_count"`
	CostUSD             float64  `json:"cost_usd"`
	Models              []string `json:"models,omitempty"`
}

// Totals sums the retained records and prices them with the given table.
func (d *Deduplicator) Totals(table *pricing.Table) Totals {
	d.mu.Lock()
	defer d.mu.Unlock()

	var t Totals
	seen := make(map[string]bool)

	for _, r := range d.records {
		write5m, write1h := r.usage.CacheWriteSplit()
		t.InputTokens += r.usage.InputTokens
		t.OutputTokens += r.usage.OutputTokens
		t.CacheCreationTokens += write5m + write1h
		t.CacheReadTokens += r.usage.CacheReadInputTokens
		t.MessageCount++
		t.CostUSD += Cost(r.usage, table.Lookup(r.model))

		if r.model != "" && !seen[r.model] {
			seen[r.model] = true
			t.Models = append(t.Models, r.model)
		}
	}
	return t
}

// Cost prices one usage record. Rates are USD per million tokens.
func Cost(u TokenUsage, p pricing.ModelPrice) float64 {
	write5m, write1h := u.CacheWriteSplit()

	const m = 1_000_000
	cost := float64(u.InputTokens) / m * p.Input
	cost += float64(u.OutputTokens) / m * p.Output
	cost += float64(write5m) / m * p.CacheWrite5m
	cost += float64(write1h) / m * p.CacheWrite1h
	cost += float64(u.CacheReadInputTokens) / m * p.CacheRead
	return cost
}
