package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSV_AppendsWithSingleHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dp := filepath.Join(dir, "decisions.csv")
	fp := filepath.Join(dir, "fills.csv")

	j, err := NewCSV(dp, fp)
	require.NoError(t, err)
	require.NoError(t, j.RecordDecision(decision("D1", bar0, "NO_SIGNAL")))
	require.NoError(t, j.RecordFill(FillRecord{OrderID: "O1", Time: bar0, Side: "buy", Volume: 1, Price: 1.1}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{}))
	require.NoError(t, j.Close())

	// reopen and append
	j, err = NewCSV(dp, fp)
	require.NoError(t, err)
	require.NoError(t, j.RecordDecision(decision("D2", bar0, "SAME_BAR")))
	require.NoError(t, j.Close())

	rows := readCSV(t, dp)
	require.Len(t, rows, 3)
	assert.Equal(t, decisionHeader, rows[0])
	assert.Equal(t, "D1", rows[1][0])
	assert.Equal(t, "2024-03-04T08:00:00.000000000Z", rows[1][2])
	assert.Equal(t, "NO_SIGNAL", rows[1][6])
	assert.Equal(t, "SAME_BAR", rows[2][6])

	rows = readCSV(t, fp)
	require.Len(t, rows, 2)
	assert.Equal(t, "1.100000", rows[1][8])
	assert.Equal(t, "false", rows[1][11])
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Discard.RecordDecision(DecisionRecord{}))
	assert.NoError(t, Discard.RecordFill(FillRecord{}))
	assert.NoError(t, Discard.RecordEquity(EquitySnapshot{}))
	assert.NoError(t, Discard.Close())
}
