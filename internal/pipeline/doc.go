// Package pipeline evaluates the node graph: it clones the live graph,
// processes nodes concurrently in dependency order, and reconciles the
// completed results back onto the live graph.
//
// At most one run is active at a time. A mutation arriving mid-run
// supersedes it: the run's context is cancelled, its results are never
// applied, and a fresh run starts over the latest graph. Supersession is
// enforced with a run token compared under the runner's lock at
// reconciliation time, so a late-completing stale run cannot write.
package pipeline
