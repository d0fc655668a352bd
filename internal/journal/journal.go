// Package journal implements the append-only CSV result log. One
// mutex owns both the file handle and the global_seq counter, so
// sequence allocation order and line order in the file always agree.
// The journal never rotates during a run.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Record is one journaled decoded item. The written row is
// global_seq, recv_seq, worker_id, slot_status, position, format, text
type Record struct {
	RecvSeq     uint64
	WorkerID    int
	SlotIndex   int // -1 means "N/A"
	Position    [3]float64
	HasPosition bool
	Format      string
	Text        string
}

// Journal owns the append-only file and the global_seq counter.
type Journal struct {
	mu        sync.Mutex
	file      *os.File
	globalSeq uint64
	path      string
}

// Open creates (or appends to, if re-run against an existing path) the
// journal file at dir/dbr_multithread_result_<YYYYMMDD_HHMMSS>.log,
// writing one leading "#" header comment line.
func Open(dir string, now time.Time) (*Journal, error) {
	if dir == "" {
		dir = "test_results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir %s: %w", dir, err)
	}

	filename := fmt.Sprintf("dbr_multithread_result_%s.log", now.Format("20060102_150405"))
	path := filepath.Join(dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	j := &Journal{file: f, path: path}
	header := fmt.Sprintf("# global_seq,recv_seq,worker_id,slot_status,position,format,text (opened %s)\n",
		now.Format(time.RFC3339))
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: write header: %w", err)
	}

	return j, nil
}

// Path returns the journal's file path.
func (j *Journal) Path() string { return j.path }

// Append writes one CSV row per record, allocating global_seq under
// the same lock that performs the write so allocation order and write
// order agree. A write error is returned rather than logged here, so
// the caller decides how to report it without this package depending
// on a particular logger.
func (j *Journal) Append(records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var b strings.Builder
	for _, r := range records {
		j.globalSeq++
		writeRow(&b, j.globalSeq, r)
	}

	_, err := j.file.WriteString(b.String())
	return err
}

func writeRow(b *strings.Builder, globalSeq uint64, r Record) {
	slotStatus := "N/A"
	if r.SlotIndex >= 0 {
		slotStatus = strconv.Itoa(r.SlotIndex)
	}

	position := "NA"
	if r.HasPosition {
		position = fmt.Sprintf("(%.2f,%.2f,%.2f)", r.Position[0], r.Position[1], r.Position[2])
	}

	fmt.Fprintf(b, "%d,%d,%d,%s,%s,%s,%s\n",
		globalSeq, r.RecvSeq, r.WorkerID, slotStatus, position, r.Format, r.Text)
}

// ParsedRecord is one journal line parsed back into fields.
type ParsedRecord struct {
	GlobalSeq  uint64
	RecvSeq    uint64
	WorkerID   int
	SlotStatus string
	Position   string
	Format     string
	Text       string
}

// ParseLine parses one journal row. Two fields can legally contain
// commas: position ("(x,y,z)") and text (written verbatim, last
// field, unquoted). The four leading numeric/status fields are
// comma-free, position is either "NA" or parenthesis-delimited, and
// format is comma-free, so the parse is: four left splits, a
// structural position field, one more split for format, and
// everything remaining is the text.
func ParseLine(line string) (ParsedRecord, error) {
	if strings.HasPrefix(line, "#") {
		return ParsedRecord{}, fmt.Errorf("journal: comment line, not a record")
	}

	fields := strings.SplitN(line, ",", 5)
	if len(fields) != 5 {
		return ParsedRecord{}, fmt.Errorf("journal: expected at least 5 fields, got %d", len(fields))
	}

	rest := fields[4] // position,format,text
	var position string
	if strings.HasPrefix(rest, "(") {
		end := strings.Index(rest, ")")
		if end < 0 || end+1 >= len(rest) || rest[end+1] != ',' {
			return ParsedRecord{}, fmt.Errorf("journal: malformed position field")
		}
		position = rest[:end+1]
		rest = rest[end+2:]
	} else {
		idx := strings.Index(rest, ",")
		if idx < 0 {
			return ParsedRecord{}, fmt.Errorf("journal: missing position separator")
		}
		position = rest[:idx]
		rest = rest[idx+1:]
	}

	idx := strings.Index(rest, ",")
	if idx < 0 {
		return ParsedRecord{}, fmt.Errorf("journal: missing format/text separator")
	}
	format := rest[:idx]
	text := rest[idx+1:]

	globalSeq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return ParsedRecord{}, fmt.Errorf("journal: parse global_seq: %w", err)
	}
	recvSeq, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return ParsedRecord{}, fmt.Errorf("journal: parse recv_seq: %w", err)
	}
	workerID, err := strconv.Atoi(fields[2])
	if err != nil {
		return ParsedRecord{}, fmt.Errorf("journal: parse worker_id: %w", err)
	}

	return ParsedRecord{
		GlobalSeq:  globalSeq,
		RecvSeq:    recvSeq,
		WorkerID:   workerID,
		SlotStatus: fields[3],
		Position:   position,
		Format:     format,
		Text:       text,
	}, nil
}

// Flush syncs the underlying file to disk.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Sync()
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// GlobalSeq returns the current allocated global_seq value (for tests).
func (j *Journal) GlobalSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.globalSeq
}
