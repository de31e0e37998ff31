package replay

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrBadRecordType is returned when a record header names a type this
// codec doesn't know how to decode.
var ErrBadRecordType = errors.New("replay: unknown record type")

// Reader holds a fully decoded replay byte stream and hands records out
// in order, gated by gameTime, for a playback-mode engine to dispatch
// (spec.md §4.9).
type Reader struct {
	Header FileHeader

	queue []Record
}

// NewReader decodes a full replay stream. msgpack is self-delimiting,
// so the header and every (RecordHeader, body) pair decode back to back
// with no length prefixes of our own.
func NewReader(r io.Reader) (*Reader, error) {
	dec := msgpack.NewDecoder(r)

	var header FileHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("replay: read file header: %w", err)
	}

	reader := &Reader{Header: header}
	for {
		var rh RecordHeader
		if err := dec.Decode(&rh); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("replay: read record header: %w", err)
		}

		body, err := decodeBody(dec, rh.Type)
		if err != nil {
			return nil, err
		}
		reader.queue = append(reader.queue, Record{Header: rh, Body: body})
	}
	return reader, nil
}

func decodeBody(dec *msgpack.Decoder, t RecordType) (any, error) {
	switch t {
	case RecordLoadSnapshot:
		var b LoadSnapshotBody
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("replay: decode LoadSnapshot body: %w", err)
		}
		return b, nil
	case RecordAddCommand:
		var b AddCommandBody
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("replay: decode AddCommand body: %w", err)
		}
		return b, nil
	case RecordExecuteCommand:
		var b ExecuteCommandBody
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("replay: decode ExecuteCommand body: %w", err)
		}
		return b, nil
	case RecordFrame:
		var b FrameBody
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("replay: decode Frame body: %w", err)
		}
		return b, nil
	case RecordUpdatePlayerList:
		var b UpdatePlayerListBody
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("replay: decode UpdatePlayerList body: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadRecordType, t)
	}
}

// Len reports how many records remain undispatched.
func (r *Reader) Len() int { return len(r.queue) }

// Drain pops every record due at or before currentTime, in stream
// order, and returns them for dispatch. While paused, only
// LoadSnapshot and UpdatePlayerList records are eligible (spec.md
// §4.9): the first due record of any other type stops the drain so a
// scrub-to-snapshot can proceed without quietly running simulation
// records out of order once unpaused.
func (r *Reader) Drain(currentTime float64, paused bool) []Record {
	var due []Record
	i := 0
	for ; i < len(r.queue); i++ {
		rec := r.queue[i]
		if rec.Header.GameTime > currentTime {
			break
		}
		if paused && rec.Header.Type != RecordLoadSnapshot && rec.Header.Type != RecordUpdatePlayerList {
			break
		}
		due = append(due, rec)
	}
	r.queue = r.queue[i:]
	return due
}
