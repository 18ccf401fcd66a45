package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

var genesisHash = strings.Repeat("0", 64)

// Event is one auditable outcome, such as a committed or rejected transfer.
type Event struct {
	Kind          string            `json:"kind"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogEntry represents a single audit log entry
type LogEntry struct {
	Sequence     uint64 `json:"sequence"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Event        Event  `json:"event"`
	Hash         string `json:"hash"`
}

// checkpoint is the persisted head of the chain.
type checkpoint struct {
	Sequence uint64 `json:"sequence"`
	Hash     string `json:"hash"`
}

// ChainLogger provides a tamper-evident log using hash chaining. Entries can
// be streamed to a JSON-lines sink, and the chain head can be checkpointed so
// a restarted process continues the same chain.
type ChainLogger struct {
	mu             sync.Mutex
	previousHash   string
	sequence       uint64
	sink           io.Writer
	checkpointPath string
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a ChainLogger.
type Option func(*ChainLogger)

// WithSink writes every entry as one JSON line to w.
func WithSink(w io.Writer) Option {
	return func(c *ChainLogger) { c.sink = w }
}

// WithCheckpoint resumes from and persists the chain head at path.
func WithCheckpoint(path string) Option {
	return func(c *ChainLogger) { c.checkpointPath = path }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *ChainLogger) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChainLogger creates a ChainLogger starting at the zero hash, or at the
// checkpointed head when WithCheckpoint names an existing file.
func NewChainLogger(opts ...Option) (*ChainLogger, error) {
	c := &ChainLogger{
		previousHash: genesisHash,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.checkpointPath != "" {
		if err := c.resume(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *ChainLogger) resume() error {
	data, err := os.ReadFile(c.checkpointPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read audit checkpoint: %w", err)
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode audit checkpoint: %w", err)
	}
	if len(cp.Hash) != 64 {
		return fmt.Errorf("audit checkpoint has malformed hash %q", cp.Hash)
	}
	c.previousHash = cp.Hash
	c.sequence = cp.Sequence
	return nil
}

// Record appends ev to the chain. Sink and checkpoint failures are logged and
// do not break the chain held in memory.
func (c *ChainLogger) Record(ev Event) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sequence++
	entry := &LogEntry{
		Sequence:     c.sequence,
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.previousHash,
		Event:        ev,
	}
	entry.Hash = computeHash(entry)
	c.previousHash = entry.Hash

	if c.sink != nil {
		line, err := json.Marshal(entry)
		if err == nil {
			_, err = c.sink.Write(append(line, '\n'))
		}
		if err != nil {
			c.logger.Error("audit sink write failed", "sequence", entry.Sequence, "error", err)
		}
	}
	if c.checkpointPath != "" {
		if err := c.saveCheckpoint(); err != nil {
			c.logger.Error("audit checkpoint failed", "sequence", entry.Sequence, "error", err)
		}
	}
	return entry
}

// Head returns the sequence and hash of the last recorded entry.
func (c *ChainLogger) Head() (uint64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence, c.previousHash
}

func (c *ChainLogger) saveCheckpoint() error {
	data, err := json.Marshal(checkpoint{Sequence: c.sequence, Hash: c.previousHash})
	if err != nil {
		return err
	}
	return atomic.WriteFile(c.checkpointPath, bytes.NewReader(data))
}

func computeHash(entry *LogEntry) string {
	payload, _ := json.Marshal(entry.Event)
	hashInput := fmt.Sprintf("%s|%d|%s|%s", entry.PreviousHash, entry.Sequence, entry.Timestamp, payload)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// VerifyChain checks if a slice of entries forms a valid hash chain.
func VerifyChain(entries []*LogEntry) bool {
	for i, entry := range entries {
		if i > 0 {
			prev := entries[i-1]
			if entry.PreviousHash != prev.Hash || entry.Sequence != prev.Sequence+1 {
				return false
			}
		}
		if computeHash(entry) != entry.Hash {
			return false
		}
	}
	return true
}

// ReadEntries decodes a JSON-lines audit log.
func ReadEntries(r io.Reader) ([]*LogEntry, error) {
	var entries []*LogEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}
