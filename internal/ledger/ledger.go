// Package ledger implements the WORM (write-once-read-many) hash-chained
// event log used as the audit substrate by every other core component.
//
// Semantics follow §4.A and §6 exactly: one JSON object per line, hash =
// SHA-256 of the canonical encoding of the event minus its own hash field,
// chained via prev_hash, genesis sentinel "genesis". Grounded on the
// teacher's security.AuditLogger / security.MemoryAuditStore shape
// (mutex-guarded append, pluggable store) but specialized to this exact
// hash-chain contract instead of a generic audit filter store.
package ledger

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/peninaocubo/core/internal/observability"
)

// Genesis is the literal prev_hash of the first event in any ledger.
const Genesis = "genesis"

// Event is one immutable, hash-chained ledger entry. Field order is fixed
// and is exactly the order hashed, matching §6's "H(type || data ||
// timestamp || prev_hash)".
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// unhashed is the subset of Event whose canonical encoding is hashed.
type unhashed struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	PrevHash  string         `json:"prev_hash"`
}

func computeHash(typ string, data map[string]any, timestamp, prevHash string) (string, error) {
	canonical, err := json.Marshal(unhashed{Type: typ, Data: data, Timestamp: timestamp, PrevHash: prevHash})
	if err != nil {
		return "", fmt.Errorf("canonicalize event: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Ledger is a single-writer, file-backed hash chain. At most one writer
// holds the internal mutex at a time; unbounded concurrent readers may call
// VerifyChain, which always recomputes hashes from the file, never from an
// in-memory cache.
type Ledger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	tail     string
	log      *observability.Logger
	metrics  *observability.Metrics
}

// Open opens (creating if absent) a ledger file for appending. If the file
// is non-empty, the last parseable line becomes the in-memory tail hash; a
// malformed trailing line is logged once and ignored per §4.A Failure
// semantics ("recovery is to treat the last parseable hash as head").
func Open(path string, log *observability.Logger, metrics *observability.Metrics) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %q: %w", path, err)
	}

	tail := Genesis
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var lastGood string
	var sawMalformed bool
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			sawMalformed = true
			continue
		}
		lastGood = ev.Hash
		sawMalformed = false
	}
	if lastGood != "" {
		tail = lastGood
	}
	if sawMalformed && log != nil {
		log.Warn("ledger recovery: trailing malformed line ignored", "path", path)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek ledger %q: %w", path, err)
	}

	return &Ledger{path: path, file: f, tail: tail, log: log, metrics: metrics}, nil
}

// Record appends an event and returns its hash. One writer at a time; the
// write is a single line append followed by Sync, so a crash mid-write
// leaves at most one malformed trailing line, recoverable by Open.
func (l *Ledger) Record(eventType string, data map[string]any) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	hash, err := computeHash(eventType, data, ts, l.tail)
	if err != nil {
		return "", err
	}

	ev := Event{Type: eventType, Data: data, Timestamp: ts, PrevHash: l.tail, Hash: hash}
	line, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return "", fmt.Errorf("append ledger %q: %w", l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return "", fmt.Errorf("sync ledger %q: %w", l.path, err)
	}

	l.tail = hash
	if l.metrics != nil {
		l.metrics.LedgerAppends.WithLabelValues(eventType).Inc()
	}
	if l.log != nil {
		l.log.Debug("ledger append", "type", eventType, "hash", hash)
	}
	return hash, nil
}

// TailHash returns the current head of the chain.
func (l *Ledger) TailHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tail
}

// VerifyChain walks the ledger from genesis, recomputing every hash
// independently of any cached value, and checks prev_hash linkage.
func (l *Ledger) VerifyChain() (bool, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return false, fmt.Errorf("open ledger %q for verify: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	prev := Genesis
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return false, fmt.Errorf("line %d: malformed event: %w", lineNo, err)
		}
		if ev.PrevHash != prev {
			return false, fmt.Errorf("line %d: prev_hash mismatch: want %q got %q", lineNo, prev, ev.PrevHash)
		}
		recomputed, err := computeHash(ev.Type, ev.Data, ev.Timestamp, ev.PrevHash)
		if err != nil {
			return false, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if recomputed != ev.Hash {
			return false, fmt.Errorf("line %d: hash mismatch: recomputed %q stored %q", lineNo, recomputed, ev.Hash)
		}
		prev = ev.Hash
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("scan ledger %q: %w", l.path, err)
	}
	return true, nil
}

// Close releases the underlying file handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
