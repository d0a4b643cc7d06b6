package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"swapScope/internal/model"
)

type memorySink struct {
	records  []model.SwapRecord
	writeErr error
	closeErr error
	closed   bool
}

func (m *memorySink) WriteSwaps(_ context.Context, records []model.SwapRecord) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return m.closeErr
}

func TestMultiSink(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{}
	multi := NewMultiSink(first, second)

	require.NoError(t, multi.WriteSwaps(context.Background(), []model.SwapRecord{testRecord("0xa", 1)}))
	require.Len(t, first.records, 1)
	require.Len(t, second.records, 1)

	boom := errors.New("boom")
	first.writeErr = boom
	require.ErrorIs(t, multi.WriteSwaps(context.Background(), []model.SwapRecord{testRecord("0xb", 2)}), boom)
	require.Len(t, second.records, 1)

	second.closeErr = boom
	require.ErrorIs(t, multi.Close(), boom)
	require.True(t, first.closed)
	require.True(t, second.closed)
}

func TestSkipLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skipped.jsonl")
	skipLog := NewSkipLog(path)

	require.NoError(t, skipLog.Append([]model.SkipRecord{{Kind: model.SkipKindRange, WindowID: 3, From: 100, To: 200, Reason: "timeout"}}))
	require.NoError(t, skipLog.Append([]model.SkipRecord{{Kind: model.SkipKindTx, WindowID: 4, TxHash: "0xabc", Reason: "receipt"}}))
	require.NoError(t, skipLog.Append(nil))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []model.SkipRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.SkipRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		got = append(got, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	require.Equal(t, uint64(200), got[0].To)
	require.Equal(t, "0xabc", got[1].TxHash)
}
