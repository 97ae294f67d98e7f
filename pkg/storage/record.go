// Package storage implements OxiDB's durable, append-oriented collection
// store: a crash-safe record log with per-record CRC framing, in-memory
// recovery by sequential replay, and compaction that rewrites the log to
// hold only live documents (spec.md §4.1).
//
// The on-disk record format is exactly as spec.md §6 defines it:
// [u32 LE length][u32 LE CRC32][payload JSON], where payload is
// {"op":"put"|"del", "_id":..., and for put the full document}. This
// mirrors the append/scan/compact structure of a hash-log document store
// (grounded on jpl-au-folio's Entry/scan/repair split) and starts each
// record with the same u32 LE length prefix pkg/transport uses for wire
// frames, followed by a CRC32 word that wire frames do not carry.
package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	json "github.com/goccy/go-json"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
)

// Op identifies a record entry's variant.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "del"
)

// RecordPayload is the JSON body of one log entry.
type RecordPayload struct {
	Op       Op              `json:"op"`
	ID       string          `json:"_id"`
	Document json.RawMessage `json:"document,omitempty"`
}

// encodeRecord frames a payload as [u32 LE length][u32 LE CRC32][payload].
func encodeRecord(payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[4:8], crc32.ChecksumIEEE(payload))
	copy(buf[8:], payload)
	return buf
}

// writeRecord appends one framed record to w.
func writeRecord(w io.Writer, op Op, id string, doc document.Value) error {
	rp := RecordPayload{Op: op, ID: id}
	if op == OpPut {
		data, err := document.Marshal(doc)
		if err != nil {
			return oxierr.Wrap(oxierr.Internal, err, "marshal document")
		}
		rp.Document = data
	}
	payload, err := json.Marshal(rp)
	if err != nil {
		return oxierr.Wrap(oxierr.Internal, err, "marshal record")
	}
	_, err = w.Write(encodeRecord(payload))
	return err
}

// readRecord reads one framed record from r. io.EOF signals a clean end of
// file at a record boundary; any other error (including a length that runs
// past EOF) signals a truncated/corrupt tail, which recovery truncates.
func readRecord(r *bufio.Reader) (RecordPayload, int, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return RecordPayload{}, 0, err
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return RecordPayload{}, 0, io.ErrUnexpectedEOF
	}
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return RecordPayload{}, 0, fmt.Errorf("%w: record CRC mismatch", ErrCorrupt)
	}

	var rp RecordPayload
	if err := json.Unmarshal(payload, &rp); err != nil {
		return RecordPayload{}, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rp, 8 + int(length), nil
}

// ErrCorrupt marks a record that failed CRC or JSON validation; recovery
// treats it as the crash boundary and truncates the file there.
var ErrCorrupt = fmt.Errorf("corrupt record")
