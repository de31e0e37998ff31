package replay

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/lockstepgg/lockstep-engine/internal/syncproto"
)

func TestWriterBuffersUntilStart(t *testing.T) {
	w := NewWriter(FileHeader{BuildID: "b1", PlayerID: 0, GameID: "g1"})
	if err := w.AddCommand(0, 0, 0.1, 1, []byte{0x41}); err != nil {
		t.Fatalf("AddCommand before Start: %v", err)
	}

	var buf bytes.Buffer
	if err := w.Start(&buf); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected Start to flush the buffered header and records")
	}
	startBytes := append([]byte(nil), buf.Bytes()...)

	if err := w.Frame(0.1); err != nil {
		t.Fatalf("Frame after Start: %v", err)
	}

	r, err := NewReader(bytes.NewReader(startBytes))
	if err != nil {
		t.Fatalf("NewReader on partial stream (pre-Frame write): %v", err)
	}
	if r.Header.Version != FileVersion {
		t.Fatalf("expected version %d, got %d", FileVersion, r.Header.Version)
	}
	if r.Header.BuildID != "b1" {
		t.Fatalf("expected buildId b1, got %q", r.Header.BuildID)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 buffered record in the Start snapshot, got %d", r.Len())
	}
}

func TestRoundTripAllRecordTypes(t *testing.T) {
	w := NewWriter(FileHeader{BuildID: "b1", PlayerID: 2, GameID: "g1"})
	var buf bytes.Buffer
	if err := w.Start(&buf); err != nil {
		t.Fatalf("Start: %v", err)
	}

	peerID := uuid.New()
	if err := w.LoadSnapshot(0, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := w.AddCommand(0, 0, 1.0/30.0, 1, []byte{0x41}); err != nil {
		t.Fatal(err)
	}
	if err := w.ExecuteCommand(1.0/30.0, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.Frame(1.0 / 30.0); err != nil {
		t.Fatal(err)
	}
	if err := w.UpdatePlayerList(1.0/30.0, syncproto.PlayersUpdateCommand{
		CommandType:     syncproto.RosterAdd,
		UpdateID:        1,
		PlayerID:        2,
		PlayerSessionID: peerID,
	}); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Len() != 5 {
		t.Fatalf("expected 5 records, got %d", r.Len())
	}

	due := r.Drain(1.0/30.0, false)
	if len(due) != 5 {
		t.Fatalf("expected all 5 records due, got %d", len(due))
	}
	if due[0].Header.Type != RecordLoadSnapshot {
		t.Fatalf("expected first record to be LoadSnapshot, got %d", due[0].Header.Type)
	}
	upl, ok := due[4].Body.(UpdatePlayerListBody)
	if !ok {
		t.Fatalf("expected UpdatePlayerListBody, got %T", due[4].Body)
	}
	if upl.PlayerUpdate.PlayerSessionID != peerID {
		t.Fatalf("peer id did not round-trip: got %v want %v", upl.PlayerUpdate.PlayerSessionID, peerID)
	}
}

func TestDrainRespectsGameTime(t *testing.T) {
	w := NewWriter(FileHeader{})
	var buf bytes.Buffer
	w.Start(&buf)
	w.Frame(0.1)
	w.Frame(0.2)
	w.Frame(0.3)

	r, _ := NewReader(bytes.NewReader(buf.Bytes()))
	due := r.Drain(0.2, false)
	if len(due) != 2 {
		t.Fatalf("expected 2 records due at or before 0.2, got %d", len(due))
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 record left pending, got %d", r.Len())
	}
}

func TestDrainWhilePausedOnlyAdmitsSnapshotAndRoster(t *testing.T) {
	w := NewWriter(FileHeader{})
	var buf bytes.Buffer
	w.Start(&buf)
	w.LoadSnapshot(0, []byte{1})
	w.Frame(0.1)
	w.UpdatePlayerList(0.2, syncproto.PlayersUpdateCommand{UpdateID: 1})

	r, _ := NewReader(bytes.NewReader(buf.Bytes()))
	due := r.Drain(1.0, true)
	if len(due) != 1 {
		t.Fatalf("expected only the LoadSnapshot record to drain while paused, got %d", len(due))
	}
	if due[0].Header.Type != RecordLoadSnapshot {
		t.Fatalf("expected LoadSnapshot, got %d", due[0].Header.Type)
	}
	if r.Len() != 2 {
		t.Fatalf("expected the Frame and UpdatePlayerList records to stay queued, got %d", r.Len())
	}
}

func TestSetInitializationDataRejectedAfterStart(t *testing.T) {
	w := NewWriter(FileHeader{})
	if ok := w.SetInitializationData([]byte("before")); !ok {
		t.Fatalf("expected SetInitializationData to succeed before Start")
	}
	var buf bytes.Buffer
	w.Start(&buf)
	if ok := w.SetInitializationData([]byte("after")); ok {
		t.Fatalf("expected SetInitializationData to fail once recording has started")
	}
	data, ok := w.InitializationData()
	if !ok || string(data) != "before" {
		t.Fatalf("expected initialization data to remain %q, got %q (ok=%v)", "before", data, ok)
	}
}
