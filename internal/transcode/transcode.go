package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
)

// BSON document framing: a 4-byte little-endian size that counts the whole
// document including the size field itself. The smallest document is the
// empty one (size field + terminating null), the largest is the server's
// document cap.
const (
	minRecordSize = 5
	maxRecordSize = 16 * 1024 * 1024
)

var (
	// ErrCorruptStream means a record size outside the valid range or an
	// undecodable document; the whole transcode must be abandoned.
	ErrCorruptStream = errors.New("corrupt record stream")

	// ErrTruncatedStream means input ended mid-record. Always a bug in the
	// source dump, never silently dropped.
	ErrTruncatedStream = errors.New("truncated record stream")
)

// Decoder turns length-prefixed BSON records into newline-terminated JSON
// lines. Records may arrive split across reads at any byte boundary; Absorb
// buffers partial records internally.
type Decoder struct {
	buf      []byte
	consumed int64
}

// Absorb appends p to the internal buffer and returns every complete record
// that can now be extracted, re-encoded as canonical extended JSON, one
// newline-terminated line per record. A partial record at the tail is kept
// for the next call.
func (d *Decoder) Absorb(p []byte) ([][]byte, error) {
	d.buf = append(d.buf, p...)

	var units [][]byte
	for {
		if len(d.buf) < 4 {
			return units, nil
		}
		size := int(binary.LittleEndian.Uint32(d.buf[:4]))
		if size < minRecordSize || size > maxRecordSize {
			return units, fmt.Errorf("%w: record size %d at offset %d", ErrCorruptStream, size, d.consumed)
		}
		if len(d.buf) < size {
			// Wait for more input. A record exactly filling the
			// buffer falls through and is extracted.
			return units, nil
		}

		line, err := encodeRecord(d.buf[:size])
		if err != nil {
			return units, fmt.Errorf("%w: offset %d: %v", ErrCorruptStream, d.consumed, err)
		}
		units = append(units, line)
		d.buf = d.buf[size:]
		d.consumed += int64(size)
	}
}

// Finish checks that the input ended on a record boundary.
func (d *Decoder) Finish() error {
	if len(d.buf) != 0 {
		return fmt.Errorf("%w: %d unconsumed bytes after offset %d", ErrTruncatedStream, len(d.buf), d.consumed)
	}
	return nil
}

func encodeRecord(doc []byte) ([]byte, error) {
	raw := bson.Raw(doc)
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	out, err := bson.MarshalExtJSON(raw, true, false)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Transcode drives a Decoder over r, calling emit once per record in input
// order. It returns the number of records emitted. Output is deterministic
// for a given input.
func Transcode(r io.Reader, emit func(line []byte) error) (int64, error) {
	var (
		d       Decoder
		records int64
		buf     = make([]byte, 64*1024)
	)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			units, err := d.Absorb(buf[:n])
			for _, u := range units {
				if emitErr := emit(u); emitErr != nil {
					return records, emitErr
				}
				records++
			}
			if err != nil {
				return records, err
			}
		}
		if readErr == io.EOF {
			return records, d.Finish()
		}
		if readErr != nil {
			return records, fmt.Errorf("read record stream: %w", readErr)
		}
	}
}
