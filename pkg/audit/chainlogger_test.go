package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainLogger(t *testing.T) {
	logger, err := NewChainLogger()
	require.NoError(t, err)

	e1 := logger.Record(Event{Kind: "transfer.committed", CorrelationID: "c1", Fields: map[string]string{"amount": "200.00"}})
	e2 := logger.Record(Event{Kind: "transfer.rejected", Fields: map[string]string{"error": "insufficient_funds"}})
	e3 := logger.Record(Event{Kind: "account.deleted", Fields: map[string]string{"account_id": "3"}})

	chain := []*LogEntry{e1, e2, e3}
	assert.True(t, VerifyChain(chain), "valid chain")
	assert.Equal(t, genesisHash, e1.PreviousHash)
	assert.Equal(t, uint64(3), e3.Sequence)

	// Tamper with e2 payload
	original := e2.Event.Fields["error"]
	e2.Event.Fields["error"] = "none"
	assert.False(t, VerifyChain(chain), "tampered payload")
	e2.Event.Fields["error"] = original

	// Tamper with hash
	originalHash := e2.Hash
	e2.Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assert.False(t, VerifyChain(chain), "tampered hash")
	e2.Hash = originalHash

	// Drop an entry
	assert.False(t, VerifyChain([]*LogEntry{e1, e3}), "missing link")
	assert.True(t, VerifyChain(nil))
}

func TestChainLogger_SinkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewChainLogger(WithSink(&buf))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		logger.Record(Event{Kind: "account.created"})
	}

	entries, err := ReadEntries(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.True(t, VerifyChain(entries))
}

func TestChainLogger_ResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cp := filepath.Join(dir, "audit.head")
	var buf bytes.Buffer

	first, err := NewChainLogger(WithSink(&buf), WithCheckpoint(cp))
	require.NoError(t, err)
	first.Record(Event{Kind: "transfer.committed"})
	last := first.Record(Event{Kind: "transfer.committed"})

	_, err = os.Stat(cp)
	require.NoError(t, err)

	second, err := NewChainLogger(WithSink(&buf), WithCheckpoint(cp))
	require.NoError(t, err)
	seq, head := second.Head()
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, last.Hash, head)

	next := second.Record(Event{Kind: "transfer.rejected"})
	assert.Equal(t, last.Hash, next.PreviousHash)

	entries, err := ReadEntries(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, VerifyChain(entries), "chain continues across restarts")
}

func TestChainLogger_RejectsCorruptCheckpoint(t *testing.T) {
	cp := filepath.Join(t.TempDir(), "audit.head")
	require.NoError(t, os.WriteFile(cp, []byte(`{"sequence":1,"hash":"short"}`), 0o600))

	_, err := NewChainLogger(WithCheckpoint(cp))
	assert.Error(t, err)
}
