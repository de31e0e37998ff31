// Package syncproto (continued): per-tick frame send/receive (spec.md
// §4.5) and the snapshot bootstrap handshake (§4.6), wired over an
// internal/transport.Mesh.
//
// Grounded on internal/network/network.go's UpdateFrame/OnMessage
// dispatch-by-route pair, generalized from a fixed small set of game
// messages to the literal route names and DTOs spec.md §6 specifies.
package syncproto

import (
	"log"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lockstepgg/lockstep-engine/internal/clock"
	"github.com/lockstepgg/lockstep-engine/internal/command"
	"github.com/lockstepgg/lockstep-engine/internal/consistency"
	"github.com/lockstepgg/lockstep-engine/internal/player"
	"github.com/lockstepgg/lockstep-engine/internal/transport"
)

// Route names are literal per spec.md §6.
const (
	RouteFrame           = "lockstep.frame"
	RouteCommand         = "lockstep.command"
	RouteRequestSnapshot = "lockstep.requestSnapshot"
	RouteInstallSnapshot = "lockstep.installSnapshot"
	RoutePlayersUpdate   = "lockstepPlayers.update"
	RoutePlayersSnapshot = "lockstepPlayers.installSnapshot"
)

// Sync drives the per-tick FrameDto exchange and the snapshot handshake
// over a Mesh, mutating a shared player.Table as updates arrive.
type Sync struct {
	Mesh        transport.Mesh
	Players     *player.Table
	Now         clock.NowFunc
	Consistency *consistency.Checker

	// CurrentTime, if set, lets handleFrame log a desync for commands
	// that arrive already past the local simulation clock (spec.md
	// §4.5 step 5). Logging-only; never gates correctness.
	CurrentTime func() float64

	OnConsistencyCheck func(*consistency.Result)
	OnRequestSnapshot  func(from uuid.UUID)
	OnSnapshot         func(gameTime float64, data []byte)
	OnRosterUpdate     func(PlayersUpdateCommand)
	OnRosterSnapshot   func(PlayersSnapshotInstallCommand)

	// OnCommandReceived fires once per newly inserted (non-duplicate)
	// remote command, so a host recording a replay can journal commands
	// it only ever learned about over the wire, not just ones it pushed
	// locally.
	OnCommandReceived func(playerID int32, cmd command.Command)
}

// NewSync returns a Sync registered as mesh's message handler.
func NewSync(mesh transport.Mesh, players *player.Table, now clock.NowFunc, checker *consistency.Checker) *Sync {
	s := &Sync{Mesh: mesh, Players: players, Now: now, Consistency: checker}
	mesh.OnMessage(s.dispatch)
	return s
}

func (s *Sync) dispatch(from uuid.UUID, route string, payload []byte) {
	switch route {
	case RouteFrame:
		s.handleFrame(from, payload)
	case RouteRequestSnapshot:
		if s.OnRequestSnapshot != nil {
			s.OnRequestSnapshot(from)
		}
	case RouteInstallSnapshot:
		s.handleInstallSnapshot(payload)
	case RoutePlayersUpdate:
		s.handleRosterUpdate(payload)
	case RoutePlayersSnapshot:
		s.handleRosterSnapshot(payload)
	default:
		log.Printf("[syncproto] unknown route %q from %s", route, from)
	}
}

// SendFrames builds and sends one FrameDto to every remote peer
// (spec.md §4.5's "once per frame, for each remote peer"). currentTime
// and currentCommandTime are the frame engine's observers for this
// tick; lastDelta is the δ just applied; consistencyData is this
// tick's local hash, if the host supplied one.
func (s *Sync) SendFrames(currentTime, currentCommandTime, lastDelta float64, consistencyData []byte) {
	local := s.Players.Local()
	nowMs := s.Now()

	for _, p := range s.Players.Remote() {
		dto := FrameDto{
			SentOn:                       nowMs,
			GameplayTimeSeconds:          currentTime,
			ValidatedGameplayTimeSeconds: currentCommandTime,
			DeltaTimePerFrameSeconds:     lastDelta,
			ConsistencyData:              consistencyData,
		}
		if first := p.Commands.First(); first != nil {
			dto.FirstCommandReceived = int32(first.Cmd.CommandID)
		}
		if last := p.Commands.Last(); last != nil {
			dto.LastCommandReceived = int32(last.Cmd.CommandID)
		}

		if local != nil && float64(nowMs-p.LastCommandUpdateOnMs) > 2*p.AverageLatencyMs() {
			for _, cmd := range p.LastSentCommand.After(local.Commands) {
				dto.Commands = append(dto.Commands, CommandDto{
					CommandID:     int32(cmd.CommandID),
					PlayerID:      cmd.PlayerID,
					ExecutionTime: cmd.ExecutionTime,
					Content:       cmd.Content,
				})
			}
			p.LastCommandUpdateOnMs = nowMs
		}

		payload, err := msgpack.Marshal(dto)
		if err != nil {
			log.Printf("[syncproto] marshal FrameDto for %s: %v", p.PeerID, err)
			continue
		}
		if err := s.Mesh.SendUnreliable(p.PeerID, RouteFrame, payload); err != nil {
			log.Printf("[syncproto] send FrameDto to %s: %v", p.PeerID, err)
		}
	}
}

// handleFrame implements spec.md §4.5's receive-side steps 1-8.
func (s *Sync) handleFrame(from uuid.UUID, payload []byte) {
	var dto FrameDto
	if err := msgpack.Unmarshal(payload, &dto); err != nil {
		log.Printf("[syncproto] unmarshal FrameDto from %s: %v", from, err)
		return
	}

	p := s.Players.Get(from)
	if p == nil {
		return // unknown peer; drop
	}

	nowMs := s.Now()
	latencySample := nowMs - dto.SentOn
	if latencySample < 0 {
		latencySample = 0
	}
	p.Latency.Add(float64(latencySample))

	if dto.GameplayTimeSeconds < p.GameplayTimeSeconds {
		return // stale, out-of-order FrameDto; the newer one already landed
	}

	p.GameplayTimeSeconds = dto.GameplayTimeSeconds
	p.ValidatedGameplayTimeSeconds = dto.ValidatedGameplayTimeSeconds
	p.DeltaTimePerFrameSeconds = dto.DeltaTimePerFrameSeconds
	p.SentOnMs = dto.SentOn
	p.ReceivedOnMs = nowMs

	p.ConsistencyHistory.Push(player.ConsistencySample{
		GameplayTime: dto.GameplayTimeSeconds,
		Hash:         dto.ConsistencyData,
	})

	var here float64
	if s.CurrentTime != nil {
		here = s.CurrentTime()
	}
	for _, c := range dto.Commands {
		cmd := command.Command{
			CommandID:     uint32(c.CommandID),
			PlayerID:      c.PlayerID,
			PeerID:        from,
			Content:       c.Content,
			ExecutionTime: c.ExecutionTime,
		}
		if err := p.Commands.Insert(cmd); err != nil {
			if err != command.ErrDuplicate {
				log.Printf("[syncproto] insert command from %s: %v", from, err)
			}
		} else if s.OnCommandReceived != nil {
			s.OnCommandReceived(c.PlayerID, cmd)
		}
		if c.ExecutionTime <= here {
			log.Printf("[syncproto] desync: command %d from player %d executionTime %v <= currentTime %v",
				c.CommandID, c.PlayerID, c.ExecutionTime, here)
		}
	}

	if local := s.Players.Local(); local != nil {
		p.LastSentCommand.AdvanceTo(local.Commands, uint32(dto.LastCommandReceived))
	}

	p.IsSynchronized = true

	if s.Consistency != nil {
		if result, ok := s.Consistency.Sweep(s.Players.ByPlayerID()); ok && s.OnConsistencyCheck != nil {
			s.OnConsistencyCheck(result)
		}
	}
}

// RequestSnapshot sends a reliable snapshot request to donor (spec.md
// §4.6 step 1).
func (s *Sync) RequestSnapshot(donor uuid.UUID) error {
	return s.Mesh.SendReliable(donor, RouteRequestSnapshot, nil)
}

// SendSnapshot answers a RequestSnapshot with the donor's captured
// state (spec.md §4.6 step 2).
func (s *Sync) SendSnapshot(to uuid.UUID, gameTime float64, data []byte) error {
	payload, err := msgpack.Marshal(SnapshotDto{GameplayTimeSeconds: gameTime, Content: data})
	if err != nil {
		return err
	}
	return s.Mesh.SendReliable(to, RouteInstallSnapshot, payload)
}

func (s *Sync) handleInstallSnapshot(payload []byte) {
	var dto SnapshotDto
	if err := msgpack.Unmarshal(payload, &dto); err != nil {
		log.Printf("[syncproto] unmarshal SnapshotDto: %v", err)
		return
	}
	if s.OnSnapshot != nil {
		s.OnSnapshot(dto.GameplayTimeSeconds, dto.Content)
	}
}

func (s *Sync) handleRosterUpdate(payload []byte) {
	var update PlayersUpdateCommand
	if err := msgpack.Unmarshal(payload, &update); err != nil {
		log.Printf("[syncproto] unmarshal PlayersUpdateCommand: %v", err)
		return
	}
	if s.OnRosterUpdate != nil {
		s.OnRosterUpdate(update)
	}
}

func (s *Sync) handleRosterSnapshot(payload []byte) {
	var snap PlayersSnapshotInstallCommand
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		log.Printf("[syncproto] unmarshal PlayersSnapshotInstallCommand: %v", err)
		return
	}
	if s.OnRosterSnapshot != nil {
		s.OnRosterSnapshot(snap)
	}
}

// PickDonor chooses the remote peer with the highest reported
// gameplay time as the snapshot donor (spec.md §4.6 step 1).
func PickDonor(remotes []*player.State) (uuid.UUID, bool) {
	var best *player.State
	for _, p := range remotes {
		if best == nil || p.GameplayTimeSeconds > best.GameplayTimeSeconds {
			best = p
		}
	}
	if best == nil {
		return uuid.UUID{}, false
	}
	return best.PeerID, true
}
