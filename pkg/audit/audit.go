// Package audit records every governance decision to an append-only JSONL
// log with a rebuildable lookup index.
//
// Events are redacted before they are written: summaries are capped and
// scrubbed of secret-shaped substrings, metadata is walked recursively. The
// index maps proposal IDs and token digests to event IDs and is rewritten
// atomically on every append, so a crash leaves at worst a stale index that
// the next append repairs.
package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/warden/pkg/store"
)

// Well-known event types.
const (
	EventProposalCreated = "proposal_created"
	EventTokenIssued     = "token_issued"
	EventTokenRevoked    = "token_revoked"
	EventPolicyDenied    = "policy_denied"
	EventExecStarted     = "execution_started"
	EventExecFinished    = "execution_finished"
	EventQueueRecovered  = "queue_recovered"
	EventToolInstalled   = "tool_installed"
)

const maxSummaryLen = 240

// truncate caps s at max bytes, backing up so a multi-byte rune is never
// split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Event is one persisted audit record.
type Event struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	Timestamp   time.Time      `json:"timestamp"`
	ProposalID  string         `json:"proposal_id,omitempty"`
	Capability  string         `json:"capability,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	TokenDigest string         `json:"token_digest,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// indexDoc is the on-disk lookup index shape.
type indexDoc struct {
	ByProposal map[string][]string `json:"by_proposal"`
	ByToken    map[string][]string `json:"by_token_digest"`
}

// Log is the audit sink. Appends go to events.jsonl; the lookup index lives
// beside it as index.json.
type Log struct {
	mu        sync.Mutex
	events    *store.LineLog
	indexPath string
	clock     func() time.Time
	sinks     []Sink
}

// Sink receives a copy of every event after redaction. Sink errors do not
// fail the append; the JSONL log is the source of truth.
type Sink interface {
	Record(e Event) error
}

// NewLog creates an audit log rooted at dir.
func NewLog(dir string) *Log {
	return &Log{
		events:    store.NewLineLog(filepath.Join(dir, "events.jsonl")),
		indexPath: filepath.Join(dir, "index.json"),
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// WithSink registers an additional event sink.
func (l *Log) WithSink(s Sink) *Log {
	l.sinks = append(l.sinks, s)
	return l
}

// Entry is the caller-facing input to Append.
type Entry struct {
	EventType   string
	ProposalID  string
	Capability  string
	Summary     string
	TokenDigest string
	Metadata    map[string]any
}

// Append redacts and persists the entry, updates the index atomically, and
// returns the assigned event ID.
func (l *Log) Append(in Entry) (string, error) {
	if in.EventType == "" {
		return "", fmt.Errorf("audit: event type required")
	}

	summary := RedactString(truncate(in.Summary, maxSummaryLen))

	var metadata map[string]any
	if in.Metadata != nil {
		metadata = RedactValue(roundTrip(in.Metadata)).(map[string]any)
	}

	id := uuid.New()
	e := Event{
		EventID:     "evt_" + hex.EncodeToString(id[:])[:12],
		EventType:   in.EventType,
		Timestamp:   l.clock(),
		ProposalID:  in.ProposalID,
		Capability:  in.Capability,
		Summary:     summary,
		TokenDigest: in.TokenDigest,
		Metadata:    metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.events.Append(e); err != nil {
		return "", err
	}
	if err := l.updateIndex(e); err != nil {
		return "", err
	}
	for _, s := range l.sinks {
		_ = s.Record(e)
	}
	return e.EventID, nil
}

// updateIndex folds the event into the lookup index and rewrites it
// atomically. A corrupt index is quarantined and rebuilt empty.
func (l *Log) updateIndex(e Event) error {
	idx, err := l.readIndex()
	if err != nil {
		if _, qerr := store.QuarantineCorrupt(l.indexPath); qerr != nil {
			return qerr
		}
		idx = indexDoc{}
	}
	if idx.ByProposal == nil {
		idx.ByProposal = map[string][]string{}
	}
	if idx.ByToken == nil {
		idx.ByToken = map[string][]string{}
	}
	if e.ProposalID != "" {
		idx.ByProposal[e.ProposalID] = append(idx.ByProposal[e.ProposalID], e.EventID)
	}
	if e.TokenDigest != "" {
		idx.ByToken[e.TokenDigest] = append(idx.ByToken[e.TokenDigest], e.EventID)
	}
	return store.AtomicWriteJSON(l.indexPath, idx)
}

func (l *Log) readIndex() (indexDoc, error) {
	var idx indexDoc
	data, err := os.ReadFile(l.indexPath)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return idx, fmt.Errorf("audit: corrupt index: %w", err)
	}
	return idx, nil
}

// Events returns every persisted event in append order.
func (l *Log) Events() ([]Event, error) {
	raw, err := l.events.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raw))
	for _, line := range raw {
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("audit: decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ByProposal returns the event IDs recorded for a proposal.
func (l *Log) ByProposal(proposalID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := l.readIndex()
	if err != nil {
		return nil, err
	}
	return idx.ByProposal[proposalID], nil
}

// ByTokenDigest returns the event IDs recorded for a token digest.
func (l *Log) ByTokenDigest(digest string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := l.readIndex()
	if err != nil {
		return nil, err
	}
	return idx.ByToken[digest], nil
}

// roundTrip forces metadata through JSON so redaction sees plain maps,
// slices, and strings regardless of the caller's concrete types.
func roundTrip(m map[string]any) map[string]any {
	data, err := json.Marshal(m)
	if err != nil {
		return map[string]any{"marshal_error": err.Error()}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"unmarshal_error": err.Error()}
	}
	return out
}
