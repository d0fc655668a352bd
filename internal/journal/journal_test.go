package journal

import (
	"bufio"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTempJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir(), time.Date(2026, 8, 2, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestOpenWritesHeaderAndTimestampedFilename(t *testing.T) {
	j := openTempJournal(t)
	require.Contains(t, j.Path(), "dbr_multithread_result_20260802_103000.log")

	require.NoError(t, j.Flush())
	lines := readLines(t, j.Path())
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "#"))
}

func TestAppendAllocatesMonotonicGlobalSeq(t *testing.T) {
	j := openTempJournal(t)

	require.NoError(t, j.Append(
		Record{RecvSeq: 1, WorkerID: 0, SlotIndex: 0, Format: "QR", Text: "a"},
		Record{RecvSeq: 1, WorkerID: 0, SlotIndex: 0, Format: "QR", Text: "b"},
	))
	require.NoError(t, j.Append(
		Record{RecvSeq: 2, WorkerID: 3, SlotIndex: -1, Format: "Code128", Text: "c"},
	))
	require.NoError(t, j.Flush())
	require.EqualValues(t, 3, j.GlobalSeq())

	lines := readLines(t, j.Path())
	require.Len(t, lines, 4) // header + 3 rows

	var prev uint64
	for _, line := range lines[1:] {
		rec, err := ParseLine(line)
		require.NoError(t, err)
		require.Equal(t, prev+1, rec.GlobalSeq, "global_seq must increase by exactly 1 in file order")
		prev = rec.GlobalSeq
	}
}

func TestRowFormatting(t *testing.T) {
	j := openTempJournal(t)

	require.NoError(t, j.Append(Record{
		RecvSeq:     7,
		WorkerID:    2,
		SlotIndex:   35,
		Position:    [3]float64{1.5, -2, 3.25},
		HasPosition: true,
		Format:      "QR",
		Text:        "hello",
	}))
	require.NoError(t, j.Append(Record{RecvSeq: 8, WorkerID: 1, SlotIndex: -1, Format: "EAN13", Text: "123"}))
	require.NoError(t, j.Flush())

	lines := readLines(t, j.Path())
	require.Equal(t, "1,7,2,35,(1.50,-2.00,3.25),QR,hello", lines[1])
	require.Equal(t, "2,8,1,N/A,NA,EAN13,123", lines[2])
}

func TestParseLineWithCommasInText(t *testing.T) {
	rec, err := ParseLine("9,7,2,35,(1.00,2.00,3.00),QR,hello, world, again")
	require.NoError(t, err)
	require.EqualValues(t, 9, rec.GlobalSeq)
	require.EqualValues(t, 7, rec.RecvSeq)
	require.Equal(t, 2, rec.WorkerID)
	require.Equal(t, "35", rec.SlotStatus)
	require.Equal(t, "(1.00,2.00,3.00)", rec.Position)
	require.Equal(t, "QR", rec.Format)
	require.Equal(t, "hello, world, again", rec.Text)
}

func TestParseLineNoPosition(t *testing.T) {
	rec, err := ParseLine("2,8,1,N/A,NA,EAN13,123")
	require.NoError(t, err)
	require.Equal(t, "NA", rec.Position)
	require.Equal(t, "EAN13", rec.Format)
	require.Equal(t, "123", rec.Text)
}

func TestParseLineRejectsComment(t *testing.T) {
	_, err := ParseLine("# header")
	require.Error(t, err)
}

func TestAppendRoundTrip(t *testing.T) {
	j := openTempJournal(t)
	require.NoError(t, j.Append(Record{
		RecvSeq:     42,
		WorkerID:    5,
		SlotIndex:   17,
		Position:    [3]float64{0, 0, 0},
		HasPosition: true,
		Format:      "Codabar",
		Text:        "A,B,C",
	}))
	require.NoError(t, j.Flush())

	lines := readLines(t, j.Path())
	rec, err := ParseLine(lines[1])
	require.NoError(t, err)
	require.EqualValues(t, 42, rec.RecvSeq)
	require.Equal(t, "A,B,C", rec.Text)
}
