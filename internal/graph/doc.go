// Package graph stores the node network: an arena of nodes addressed by
// generational indices plus the directed edges between their ports.
//
// # Why a generational arena
//
// The editor, the history log, and the scheduler all hold references to
// nodes across mutations. Raw pointers would dangle on removal and raw
// slice positions would silently alias a different node after reuse. An
// Index pairs the arena slot with a generation counter, so a reference to
// a removed node fails loudly (ErrStaleIndex, lookup miss) instead of
// resolving to whatever took the slot.
//
// # Invariants
//
//   - Every input port has at most one incoming edge.
//   - Edges connect existing, type-compatible ports; AddEdgeChecked
//     refuses anything that would violate this or close a cycle.
//   - Removing a node removes its incident edges in the same call.
//
// The graph itself is not synchronized. The pipeline runner guards the
// live graph with its own lock and hands clones to concurrent runs.
package graph
