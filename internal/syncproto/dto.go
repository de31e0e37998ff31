// Package syncproto holds the wire message shapes and the per-tick
// send/receive logic of the sync protocol (spec.md §4.5), plus the
// snapshot bootstrap handshake (§4.6).
//
// Grounded on internal/network/network.go's message-struct-per-route
// pattern (PlayerInput, StateUpdate as plain structs carried over a
// gob-ish channel), generalized to the msgpack-framed route set spec.md
// §6 specifies and re-keyed on an opaque peer id instead of a small int.
package syncproto

import "github.com/google/uuid"

// CommandDto is the wire shape of one command inside a FrameDto batch
// (spec.md §6).
type CommandDto struct {
	CommandID     int32   `msgpack:"commandId"`
	PlayerID      int32   `msgpack:"playerId"`
	ExecutionTime float64 `msgpack:"executionTime"`
	Content       []byte  `msgpack:"content"`
}

// FrameDto is sent once per tick, per remote peer, over the
// unreliable-sequenced "lockstep.frame" route.
type FrameDto struct {
	SentOn                       int64   `msgpack:"sentOn"`
	GameplayTimeSeconds          float64 `msgpack:"gameplayTimeSeconds"`
	ValidatedGameplayTimeSeconds float64 `msgpack:"validatedGameplayTimeSeconds"`
	DeltaTimePerFrameSeconds     float64 `msgpack:"deltaTimePerFrameSeconds"`
	FirstCommandReceived         int32   `msgpack:"firstCommandReceived"`
	LastCommandReceived          int32   `msgpack:"lastCommandReceived"`
	ConsistencyData              []byte  `msgpack:"consistencyData"`
	Commands                     []CommandDto `msgpack:"commands"`
}

// SnapshotDto answers a RequestSnapshot on the reliable
// "lockstep.installSnapshot" route.
type SnapshotDto struct {
	GameplayTimeSeconds float64 `msgpack:"gameplayTimeSeconds"`
	Content             []byte  `msgpack:"content"`
}

// RosterUpdateType distinguishes Add/Remove inside a PlayersUpdateCommand.
type RosterUpdateType uint8

const (
	RosterAdd    RosterUpdateType = 0
	RosterRemove RosterUpdateType = 1
)

// PlayersUpdateCommand is the server-originated roster delta on the
// reliable "lockstepPlayers.update" route (spec.md §6), and doubles as
// the body of a replay UpdatePlayerList record (§6 record type 5).
type PlayersUpdateCommand struct {
	CommandType     RosterUpdateType `msgpack:"commandType"`
	UpdateID        int32            `msgpack:"updateId"`
	PlayerID        int32            `msgpack:"playerId"`
	PlayerSessionID uuid.UUID        `msgpack:"playerSessionId"`
}

// PlayersSnapshotInstallCommand is the server-originated full roster
// snapshot on the reliable "lockstepPlayers.installSnapshot" route.
type PlayersSnapshotInstallCommand struct {
	UpdateID        int32                `msgpack:"updateId"`
	CurrentPlayerID int32                `msgpack:"currentPlayerId"`
	Players         map[int32]uuid.UUID  `msgpack:"players"`
}
