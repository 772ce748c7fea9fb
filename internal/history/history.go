// Package history is the undo/redo log: a linear sequence of transactions
// with a cursor. Each transaction groups the events of one editing tick;
// undoing a transaction replays its events in reverse order with each
// event inverted.
package history

import (
	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/field"
)

// Position is a node's placement in the editor plane. The core never
// interprets it beyond storing and restoring it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is one undoable mutation. The set of implementations is closed.
// Events reference nodes by entity id, not graph index, because entity
// identity survives remove and resurrect while indices do not.
type Event interface {
	// Invert returns the event that undoes this one.
	Invert() Event
}

// AddEdge records a connection between two ports.
type AddEdge struct {
	From   uuid.UUID
	Output field.OutputID
	To     uuid.UUID
	Input  field.InputID
}

func (e AddEdge) Invert() Event {
	return RemoveEdge{From: e.From, Output: e.Output, To: e.To, Input: e.Input}
}

// RemoveEdge records a disconnection.
type RemoveEdge struct {
	From   uuid.UUID
	Output field.OutputID
	To     uuid.UUID
	Input  field.InputID
}

func (e RemoveEdge) Invert() Event {
	return AddEdge{From: e.From, Output: e.Output, To: e.To, Input: e.Input}
}

// SetInputField records an input port value change.
type SetInputField struct {
	Entity uuid.UUID
	Port   field.InputID
	Old    field.Field
	New    field.Field
}

func (e SetInputField) Invert() Event {
	return SetInputField{Entity: e.Entity, Port: e.Port, Old: e.New, New: e.Old}
}

// SetOutputField records an output port value change.
type SetOutputField struct {
	Entity uuid.UUID
	Port   field.OutputID
	Old    field.Field
	New    field.Field
}

func (e SetOutputField) Invert() Event {
	return SetOutputField{Entity: e.Entity, Port: e.Port, Old: e.New, New: e.Old}
}

// SetInputVisibility records an input port being exposed or hidden.
type SetInputVisibility struct {
	Entity uuid.UUID
	Port   field.InputID
	Old    bool
	New    bool
}

func (e SetInputVisibility) Invert() Event {
	return SetInputVisibility{Entity: e.Entity, Port: e.Port, Old: e.New, New: e.Old}
}

// SetOutputVisibility records an output port being exposed or hidden.
type SetOutputVisibility struct {
	Entity uuid.UUID
	Port   field.OutputID
	Old    bool
	New    bool
}

func (e SetOutputVisibility) Invert() Event {
	return SetOutputVisibility{Entity: e.Entity, Port: e.Port, Old: e.New, New: e.Old}
}

// AddNode records a node entering the graph. Applying it resurrects the
// node by entity identity when it is parked in limbo, and builds a fresh
// one of Kind otherwise.
type AddNode struct {
	Entity   uuid.UUID
	Kind     string
	Position Position
}

func (e AddNode) Invert() Event {
	return RemoveNode{Entity: e.Entity, Kind: e.Kind, Position: e.Position}
}

// RemoveNode records a node leaving the graph. The node itself is parked,
// not destroyed, so the inverse AddNode can bring back the exact state.
type RemoveNode struct {
	Entity   uuid.UUID
	Kind     string
	Position Position
}

func (e RemoveNode) Invert() Event {
	return AddNode{Entity: e.Entity, Kind: e.Kind, Position: e.Position}
}

// DragNode records a node position change.
type DragNode struct {
	Entity uuid.UUID
	Old    Position
	New    Position
}

func (e DragNode) Invert() Event {
	return DragNode{Entity: e.Entity, Old: e.New, New: e.Old}
}

// Transaction is the events of one editing tick, committed as a unit.
type Transaction []Event

// Inverted returns the transaction that undoes this one: events in
// reverse order, each inverted.
func (t Transaction) Inverted() Transaction {
	out := make(Transaction, 0, len(t))
	for i := len(t) - 1; i >= 0; i-- {
		out = append(out, t[i].Invert())
	}
	return out
}

// History is the transaction log plus a cursor. Transactions before the
// cursor are undoable, those at and after it are redoable. Not safe for
// concurrent use; the editor serializes access.
type History struct {
	transactions []Transaction
	cursor       int
}

func New() *History {
	return &History{}
}

// Record commits a transaction: the redo tail past the cursor is
// discarded, the transaction appended, the cursor advanced. Empty
// transactions are ignored.
func (h *History) Record(tx Transaction) {
	if len(tx) == 0 {
		return
	}
	h.transactions = append(h.transactions[:h.cursor], tx)
	h.cursor = len(h.transactions)
}

// Undo steps the cursor back and returns the transaction to apply,
// already inverted and reversed. Reports false at the beginning of
// history.
func (h *History) Undo() (Transaction, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	h.cursor--
	return h.transactions[h.cursor].Inverted(), true
}

// Redo returns the next transaction to apply forward and advances the
// cursor. Reports false at the end of history.
func (h *History) Redo() (Transaction, bool) {
	if h.cursor == len(h.transactions) {
		return nil, false
	}
	tx := h.transactions[h.cursor]
	h.cursor++
	return tx, true
}

// Len reports the number of recorded transactions.
func (h *History) Len() int { return len(h.transactions) }

// CanUndo reports whether Undo would do anything.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether Redo would do anything.
func (h *History) CanRedo() bool { return h.cursor < len(h.transactions) }
