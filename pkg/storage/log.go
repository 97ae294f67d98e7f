package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
)

// Log is the durable append-only record file for one collection
// (<collection>/data.log). Writers append through Log; the live
// document image it implies is reconstructed once at Open via Recover
// and owned by the caller from then on (the log is never re-read on the
// hot path, per spec.md §4.1's read path).
type Log struct {
	path string
	file *os.File
	lock fileLock
}

// OpenLog opens (creating if necessary) the log file at dir/data.log and
// returns it along with the recovered live documents, in on-disk order.
func OpenLog(dir string) (*Log, []RecordPayload, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, oxierr.Wrap(oxierr.IOError, err, "create collection dir")
	}
	path := filepath.Join(dir, "data.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, oxierr.Wrap(oxierr.IOError, err, "open data.log")
	}

	l := &Log{path: path, file: f}
	l.lock.setFile(f)
	if err := l.lock.Lock(LockExclusive); err != nil {
		f.Close()
		return nil, nil, oxierr.Wrap(oxierr.IOError, err, "lock data.log")
	}

	entries, err := l.recover()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, nil, oxierr.Wrap(oxierr.IOError, err, "seek data.log")
	}
	return l, entries, nil
}

// recover scans the log sequentially, applying Put/Delete in order (last
// entry mentioning an _id wins, per spec.md §3 "Record entry"). A record
// that fails CRC or JSON validation terminates the scan and the file is
// truncated to the last known-good boundary, so a crash mid-write never
// resurrects a partial document (spec.md §4.1 "Recovery").
func (l *Log) recover() ([]RecordPayload, error) {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "seek data.log")
	}
	r := bufio.NewReader(l.file)

	live := make(map[string]RecordPayload)
	order := make([]string, 0)
	listed := make(map[string]bool)
	var offset int64

	for {
		rec, n, err := readRecord(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			// Truncate to the last good boundary; this is not a fatal
			// error for Open, it is the expected crash-recovery path.
			if truncErr := l.file.Truncate(offset); truncErr != nil {
				return nil, oxierr.Wrap(oxierr.IOError, truncErr, "truncate corrupt tail")
			}
			break
		}
		offset += int64(n)
		if !listed[rec.ID] {
			listed[rec.ID] = true
			order = append(order, rec.ID)
		}
		if rec.Op == OpDelete {
			delete(live, rec.ID)
		} else {
			live[rec.ID] = rec
		}
	}

	out := make([]RecordPayload, 0, len(live))
	for _, id := range order {
		if rp, ok := live[id]; ok {
			out = append(out, rp)
		}
	}
	return out, nil
}

// AppendPut durably appends a Put record: write, fsync, matching spec.md
// §4.1's write path ("append to log -> fsync -> update in-memory ...").
func (l *Log) AppendPut(id string, doc document.Value) error {
	if err := writeRecord(l.file, OpPut, id, doc); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "append put record")
	}
	return l.sync()
}

// AppendDelete durably appends a tombstone for id.
func (l *Log) AppendDelete(id string) error {
	if err := writeRecord(l.file, OpDelete, id, document.Value{}); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "append delete record")
	}
	return l.sync()
}

func (l *Log) sync() error {
	if err := l.file.Sync(); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "fsync data.log")
	}
	return nil
}

// Close releases the OS lock and closes the file handle.
func (l *Log) Close() error {
	l.lock.setFile(nil)
	return l.file.Close()
}

// Rewrite atomically replaces the log with one Put record per live
// document, no deletes (spec.md §4.1 "Compaction"): write to data.log.new,
// fsync, rename over data.log.
func (l *Log) Rewrite(live []RecordPayload) error {
	tmpPath := l.path + ".new"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "create data.log.new")
	}
	for _, rp := range live {
		payload, err := marshalPayload(rp)
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := tmp.Write(encodeRecord(payload)); err != nil {
			tmp.Close()
			return oxierr.Wrap(oxierr.IOError, err, "write data.log.new")
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return oxierr.Wrap(oxierr.IOError, err, "fsync data.log.new")
	}

	// Swap handles: release the lock on the old file, close it, rename,
	// reopen and relock so `l` keeps pointing at a live, locked fd.
	l.lock.setFile(nil)
	if err := l.file.Close(); err != nil {
		tmp.Close()
		return oxierr.Wrap(oxierr.IOError, err, "close old data.log")
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "rename data.log.new")
	}
	tmp.Close()

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "reopen data.log")
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return oxierr.Wrap(oxierr.IOError, err, "seek data.log")
	}
	l.file = f
	l.lock.setFile(f)
	return l.lock.Lock(LockExclusive)
}

func marshalPayload(rp RecordPayload) ([]byte, error) {
	data, err := json.Marshal(rp)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.Internal, err, "marshal record during compaction")
	}
	return data, nil
}
