// Package command implements the per-player command store (spec.md §4.1):
// a doubly-linked, commandId-ordered list of commands seen from one
// player, plus cursors that walk it without reallocating or rescanning.
//
// Grounded on internal/node/node.go's child-list manipulation (copy-shift
// removal, recursive walk), generalized from a tree's children slice to
// an append-mostly linked list ordered by an integer id.
package command

import "errors"

// ErrDuplicate is returned when an insert is silently ignored because a
// command with the same id from the same player already exists.
var ErrDuplicate = errors.New("command: duplicate commandId")

// Command is a single player input (spec.md §3).
type Command struct {
	CommandID     uint32
	PlayerID      int32
	PeerID        [16]byte
	Content       []byte
	ExecutionTime float64 // GameTime: seconds since session start
}

// Node is one link in a player's command list.
type Node struct {
	Cmd  Command
	next *Node
	prev *Node
}

// Next returns the next node in commandId order, or nil at the tail.
func (n *Node) Next() *Node {
	if n == nil {
		return nil
	}
	return n.next
}

// List is a commandId-ordered doubly-linked list of one player's commands.
type List struct {
	first *Node
	last  *Node
	len   int
}

// New returns an empty command list.
func New() *List { return &List{} }

// First returns the oldest retained command, or nil if the list is empty.
func (l *List) First() *Node { return l.first }

// Last returns the newest command, or nil if the list is empty.
func (l *List) Last() *Node { return l.last }

// Len returns the number of commands currently retained.
func (l *List) Len() int { return l.len }

// Insert places cmd into the list in commandId order. The common case —
// cmd.CommandID == last.CommandID+1 — is an O(1) append. Out-of-order
// arrivals are tolerated and placed in sorted position (§4.1: "out-of-
// order inserts are tolerated and placed in sorted position, but gaps
// are never filled out of order"); a command inserted behind a Cursor's
// position is never visited by that Cursor. A duplicate commandId is a no-op,
// reported via ErrDuplicate so callers can distinguish it from a real
// insert for logging/ack purposes.
func (l *List) Insert(cmd Command) error {
	n := &Node{Cmd: cmd}

	if l.last == nil {
		l.first, l.last = n, n
		l.len++
		return nil
	}

	if cmd.CommandID == l.last.Cmd.CommandID+1 {
		n.prev = l.last
		l.last.next = n
		l.last = n
		l.len++
		return nil
	}

	if cmd.CommandID > l.last.Cmd.CommandID {
		// Leaves a gap in commandIds; still append in order. A cursor
		// follows the next link onto this node, past the missing ids.
		n.prev = l.last
		l.last.next = n
		l.last = n
		l.len++
		return nil
	}

	// Walk from the tail backwards to find sorted position (arrivals
	// this far out of order are rare — recent commands live near the
	// tail).
	cur := l.last
	for cur != nil && cur.Cmd.CommandID > cmd.CommandID {
		cur = cur.prev
	}
	if cur != nil && cur.Cmd.CommandID == cmd.CommandID {
		return ErrDuplicate
	}

	if cur == nil {
		// Belongs before the current head.
		n.next = l.first
		l.first.prev = n
		l.first = n
	} else {
		n.next = cur.next
		n.prev = cur
		cur.next.prev = n
		cur.next = n
	}
	l.len++
	return nil
}

// Cursor walks a List, advancing one command at a time along the next
// links (spec.md §4.1: "the cursor lastExecutedCommand only steps into
// the .next link"). It never moves backwards, and a missing commandId
// does not stop it.
type Cursor struct {
	node *Node
}

// NewCursor returns a cursor positioned before the list's first command.
func NewCursor() *Cursor { return &Cursor{} }

// Current returns the command the cursor last advanced onto, or nil if
// it hasn't advanced yet.
func (c *Cursor) Current() *Node { return c.node }

// Peek returns the node the cursor would advance onto next, without
// moving it, or nil at the end of the list. Across a gap in commandIds
// it returns the node that follows in the list.
func (c *Cursor) Peek(l *List) *Node {
	if c.node == nil {
		return l.first
	}
	return c.node.next
}

// Advance moves the cursor one command forward and returns the command
// advanced onto, or ok=false if there is nothing to advance into yet.
func (c *Cursor) Advance(l *List) (Command, bool) {
	var next *Node
	if c.node == nil {
		next = l.first
	} else {
		next = c.node.next
	}
	if next == nil {
		return Command{}, false
	}
	c.node = next
	return next.Cmd, true
}

// CommandID returns the id of the command the cursor currently sits on,
// or 0 if the cursor hasn't advanced yet.
func (c *Cursor) CommandID() uint32 {
	if c.node == nil {
		return 0
	}
	return c.node.Cmd.CommandID
}

// AdvanceTo moves the cursor forward to sit on the command with the
// given id, for rewinding a remote peer's ack cursor to the
// commandId it last confirmed (spec.md §4.5's "sender rewinds
// lastSentCommand to the last acknowledged id"). It never moves the
// cursor backwards and is a no-op if targetCommandID is at or behind
// where the cursor already sits.
func (c *Cursor) AdvanceTo(l *List, targetCommandID uint32) {
	for {
		next := c.Peek(l)
		if next == nil || next.Cmd.CommandID > targetCommandID {
			return
		}
		c.Advance(l)
	}
}

// After returns every command still ahead of the cursor's position, in
// commandId order, without moving the cursor — the batch a sender
// includes in its next FrameDto (spec.md §4.5's "a batch of locally
// originated commands not yet confirmed, starting at
// peer.lastSentCommand.next").
func (c *Cursor) After(l *List) []Command {
	var start *Node
	if c.node == nil {
		start = l.first
	} else {
		start = c.node.next
	}
	var out []Command
	for n := start; n != nil; n = n.next {
		out = append(out, n.Cmd)
	}
	return out
}
