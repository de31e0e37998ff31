// Package replay implements the typed record stream of spec.md §4.9/§6:
// a FileHeader followed by repeating (RecordHeader, RecordBody) pairs,
// written by a buffer-until-Start Writer and consumed by a gameTime-
// gated Reader during playback.
//
// Grounded on internal/cartio's header-then-records archive shape
// (fixed file header, then a sequence of typed chunks dispatched by a
// leading tag byte), re-targeted from a game-asset container onto a
// session recording and switched from a custom binary layout to
// msgpack for each record body, per spec.md §6.
package replay

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lockstepgg/lockstep-engine/internal/syncproto"
)

// RecordType is the RecordHeader.Type tag (spec.md §6).
type RecordType uint8

const (
	RecordLoadSnapshot     RecordType = 1
	RecordAddCommand       RecordType = 2
	RecordExecuteCommand   RecordType = 3
	RecordFrame            RecordType = 4
	RecordUpdatePlayerList RecordType = 5
)

// FileVersion is the literal FileHeader.Version this codec reads/writes.
const FileVersion = 2

// FileHeader is the first value in every replay byte stream.
type FileHeader struct {
	Version            int32  `msgpack:"version"`
	BuildID            string `msgpack:"buildId"`
	PlayerID           int32  `msgpack:"playerId"`
	GameID             string `msgpack:"gameId"`
	InitializationData []byte `msgpack:"initializationData"`
}

// RecordHeader precedes every record body.
type RecordHeader struct {
	Type     RecordType `msgpack:"type"`
	GameTime float64    `msgpack:"gameTime"`
}

// LoadSnapshotBody is record type 1. The snapshot's own time travels in
// the RecordHeader.GameTime, not inside the body.
type LoadSnapshotBody struct {
	Data []byte `msgpack:"data"`
}

// AddCommandBody is record type 2. RecordHeader.GameTime is the
// insertion time (when the local process first saw the command);
// GameTime below is the command's own execution time.
type AddCommandBody struct {
	PlayerID  int32   `msgpack:"playerId"`
	GameTime  float64 `msgpack:"gameTime"`
	CommandID int32   `msgpack:"commandId"`
	Data      []byte  `msgpack:"data"`
}

// ExecuteCommandBody is record type 3, written once per command a tick
// actually rolled into a Frame.
type ExecuteCommandBody struct {
	PlayerID  int32 `msgpack:"playerId"`
	CommandID int32 `msgpack:"commandId"`
}

// FrameBody is record type 4: a marker with no payload of its own, one
// per tick that produced a Frame.
type FrameBody struct{}

// UpdatePlayerListBody is record type 5.
type UpdatePlayerListBody struct {
	PlayerUpdate syncproto.PlayersUpdateCommand `msgpack:"playerUpdate"`
}

// Record is one decoded (header, body) pair, body already type-asserted
// to its concrete Go type by NewReader.
type Record struct {
	Header RecordHeader
	Body   any
}

// Writer buffers every appended record until Start is called, then
// flushes the FileHeader and all buffered records through the sink in
// one shot, and streams further records through immediately.
//
// This matches spec.md §4.9: recording typically begins on first
// unpause, but the header fields (buildId, gameId, initializationData)
// are often known earlier, so everything before Start is held in
// memory rather than discarded.
type Writer struct {
	header  FileHeader
	pending []pendingRecord
	enc     *msgpack.Encoder
	started bool
}

type pendingRecord struct {
	header RecordHeader
	body   any
}

// NewWriter returns a Writer seeded with the given file header. Call
// SetInitializationData before Start if trySetReplayInitialData was
// used (spec.md's supplemented initializationData feature).
func NewWriter(header FileHeader) *Writer {
	header.Version = FileVersion
	return &Writer{header: header}
}

// SetInitializationData overwrites the header's opaque blob. Returns
// false if recording has already started (trySetReplayInitialData's
// contract).
func (w *Writer) SetInitializationData(data []byte) bool {
	if w.started {
		return false
	}
	w.header.InitializationData = data
	return true
}

// InitializationData returns the header's opaque blob and whether it is
// non-empty (tryGetReplayInitialData's contract).
func (w *Writer) InitializationData() ([]byte, bool) {
	return w.header.InitializationData, len(w.header.InitializationData) > 0
}

// SetBuildID overwrites the header's build identifier. Returns false if
// recording has already started, mirroring SetInitializationData.
func (w *Writer) SetBuildID(id string) bool {
	if w.started {
		return false
	}
	w.header.BuildID = id
	return true
}

// SetPlayerID overwrites the header's playerId, for the common case
// where the engine only learns its own roster-assigned playerId after
// the writer has already been constructed. Returns false if recording
// has already started.
func (w *Writer) SetPlayerID(id int32) bool {
	if w.started {
		return false
	}
	w.header.PlayerID = id
	return true
}

// Start binds the sink and flushes the header plus every buffered
// record. Subsequent Append calls write straight through. Calling Start
// twice is a no-op.
func (w *Writer) Start(sink io.Writer) error {
	if w.started {
		return nil
	}
	w.started = true
	w.enc = msgpack.NewEncoder(sink)

	if err := w.enc.Encode(w.header); err != nil {
		return fmt.Errorf("replay: write file header: %w", err)
	}
	for _, rec := range w.pending {
		if err := writeRecord(w.enc, rec.header, rec.body); err != nil {
			return err
		}
	}
	w.pending = nil
	return nil
}

// Append buffers (if recording hasn't started) or writes through
// (otherwise) one record.
func (w *Writer) Append(header RecordHeader, body any) error {
	if !w.started {
		w.pending = append(w.pending, pendingRecord{header: header, body: body})
		return nil
	}
	return writeRecord(w.enc, header, body)
}

// LoadSnapshot, AddCommand, ExecuteCommand, Frame and UpdatePlayerList
// are typed convenience wrappers around Append, one per spec.md §6
// record type, so callers never have to pick the RecordType by hand.

func (w *Writer) LoadSnapshot(gameTime float64, data []byte) error {
	return w.Append(RecordHeader{Type: RecordLoadSnapshot, GameTime: gameTime}, LoadSnapshotBody{Data: data})
}

func (w *Writer) AddCommand(insertionTime float64, playerID int32, executionTime float64, commandID int32, data []byte) error {
	return w.Append(RecordHeader{Type: RecordAddCommand, GameTime: insertionTime},
		AddCommandBody{PlayerID: playerID, GameTime: executionTime, CommandID: commandID, Data: data})
}

func (w *Writer) ExecuteCommand(gameTime float64, playerID, commandID int32) error {
	return w.Append(RecordHeader{Type: RecordExecuteCommand, GameTime: gameTime},
		ExecuteCommandBody{PlayerID: playerID, CommandID: commandID})
}

func (w *Writer) Frame(gameTime float64) error {
	return w.Append(RecordHeader{Type: RecordFrame, GameTime: gameTime}, FrameBody{})
}

func (w *Writer) UpdatePlayerList(gameTime float64, update syncproto.PlayersUpdateCommand) error {
	return w.Append(RecordHeader{Type: RecordUpdatePlayerList, GameTime: gameTime}, UpdatePlayerListBody{PlayerUpdate: update})
}

func writeRecord(enc *msgpack.Encoder, header RecordHeader, body any) error {
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("replay: write record header: %w", err)
	}
	if err := enc.Encode(body); err != nil {
		return fmt.Errorf("replay: write record body type %d: %w", header.Type, err)
	}
	return nil
}
