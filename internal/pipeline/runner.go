package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vk/pipegraph/internal/ctxlog"
	"github.com/vk/pipegraph/internal/graph"
	"github.com/vk/pipegraph/internal/node"
)

// ErrDeadlock is returned when a run stalls: nodes remain unevaluated but
// none is runnable and none is in flight. An acyclic graph cannot reach
// this state, so it indicates a cycle slipped past edge validation.
var ErrDeadlock = errors.New("pipeline deadlock: unprocessed nodes remain but none are runnable")

// Result is the complete output of one run: the post-process node values
// keyed by their graph index, plus per-node processing failures. A node
// with an entry in Errors kept its sentinel outputs.
type Result struct {
	Nodes  map[graph.Index]node.Node
	Errors map[graph.Index]error
}

// Runner owns the live graph and schedules evaluation runs over it.
type Runner struct {
	mu        sync.Mutex
	live      *graph.Graph
	token     uint64
	cancelRun context.CancelFunc
	onUpdated func()

	trigger chan struct{}
}

func NewRunner(g *graph.Graph) *Runner {
	return &Runner{
		live:    g,
		trigger: make(chan struct{}, 1),
	}
}

// OnUpdated registers the callback fired after a run's results have been
// reconciled onto the live graph. Called from the run's goroutine.
func (r *Runner) OnUpdated(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdated = fn
}

// WithGraph runs fn with exclusive access to the live graph. All editor
// mutations go through here; the runner clones under the same lock, so fn
// never races a snapshot or a reconciliation.
func (r *Runner) WithGraph(fn func(g *graph.Graph)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.live)
}

// Snapshot returns a deep clone of the live graph.
func (r *Runner) Snapshot() *graph.Graph {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live.Clone()
}

// RequestProcess asks for a fresh evaluation. Non-blocking; requests
// arriving while one is pending coalesce. An in-flight run is superseded
// when the request is picked up.
func (r *Runner) RequestProcess() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Start services triggers until ctx is cancelled. Each trigger supersedes
// the active run (if any) and launches a new one over the latest graph.
func (r *Runner) Start(ctx context.Context) {
	log := ctxlog.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			if r.cancelRun != nil {
				r.cancelRun()
				r.cancelRun = nil
			}
			r.mu.Unlock()
			return
		case <-r.trigger:
		}

		runCtx, snapshot, tok := r.beginRun(ctx)
		log.Debug("run started", "token", tok, "nodes", snapshot.Len())
		go func() {
			res, err := evaluate(runCtx, snapshot)
			if err != nil {
				log.Debug("run abandoned", "token", tok, "reason", err)
				return
			}
			r.reconcile(tok, res)
		}()
	}
}

// RunOnce evaluates the current graph synchronously and reconciles the
// results. It participates in the same token protocol as Start, so a
// concurrent trigger can still supersede it.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	runCtx, snapshot, tok := r.beginRun(ctx)
	res, err := evaluate(runCtx, snapshot)
	if err != nil {
		return Result{}, err
	}
	r.reconcile(tok, res)
	return res, nil
}

// beginRun cancels the active run, stamps a new token, and clones the
// graph, all under the lock.
func (r *Runner) beginRun(ctx context.Context) (context.Context, *graph.Graph, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelRun != nil {
		r.cancelRun()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancelRun = cancel
	r.token++
	return runCtx, r.live.Clone(), r.token
}

// reconcile applies a completed run's node values to the live graph.
// Results from a superseded run are dropped whole; writes to indices that
// were removed mid-run are dropped individually. Fires the updated
// callback only when the results were applied.
func (r *Runner) reconcile(tok uint64, res Result) {
	r.mu.Lock()
	if tok != r.token {
		r.mu.Unlock()
		return
	}
	for idx, n := range res.Nodes {
		if err := r.live.SetNode(idx, n); err != nil {
			continue // node removed during the run
		}
	}
	fn := r.onUpdated
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// evaluate is the dataflow loop over one graph snapshot. Nodes whose
// upstream results are all available are dispatched concurrently; each
// completion may unlock further nodes. Before a node is dispatched its
// inputs are refreshed from the freshly computed upstream outputs, not
// from the stale snapshot values.
func evaluate(ctx context.Context, g *graph.Graph) (Result, error) {
	log := ctxlog.FromContext(ctx)

	unprocessed := g.Indices()
	inFlight := make(map[graph.Index]bool)
	res := Result{
		Nodes:  make(map[graph.Index]node.Node, len(unprocessed)),
		Errors: make(map[graph.Index]error),
	}

	type completion struct {
		idx graph.Index
		n   node.Node
		err error
	}
	// Buffered to the node count so abandoned workers never block on send
	// after this run has been dropped.
	done := make(chan completion, len(unprocessed))

	for len(unprocessed) > 0 || len(inFlight) > 0 {
		remaining := unprocessed[:0]
		for _, idx := range unprocessed {
			if !ready(g, idx, res.Nodes) {
				remaining = append(remaining, idx)
				continue
			}
			n, ok := g.Node(idx)
			if !ok {
				continue
			}
			if err := resolveInputs(g, idx, n, res.Nodes); err != nil {
				// Propagation failed; the node keeps its sentinel
				// outputs and downstream nodes still get to run.
				res.Nodes[idx] = n
				res.Errors[idx] = err
				continue
			}
			inFlight[idx] = true
			go func(idx graph.Index, n node.Node) {
				start := time.Now()
				err := n.Process(ctx)
				if err == nil {
					log.Debug("node processed", "kind", n.Kind(), "entity", n.Entity(), "duration", time.Since(start))
				}
				done <- completion{idx: idx, n: n, err: err}
			}(idx, n)
		}
		unprocessed = remaining

		if len(inFlight) == 0 {
			if len(unprocessed) > 0 {
				return Result{}, ErrDeadlock
			}
			break
		}

		select {
		case c := <-done:
			delete(inFlight, c.idx)
			res.Nodes[c.idx] = c.n
			if c.err != nil {
				if ctx.Err() != nil {
					return Result{}, ctx.Err()
				}
				log.Warn("node process failed", "kind", c.n.Kind(), "entity", c.n.Entity(), "error", c.err)
				res.Errors[c.idx] = c.err
			}
		case <-ctx.Done():
			// Outstanding goroutines are abandoned; the snapshot they
			// mutate is discarded with this run.
			return Result{}, ctx.Err()
		}
	}
	return res, nil
}

// ready reports whether every upstream source of idx has a result.
func ready(g *graph.Graph, idx graph.Index, results map[graph.Index]node.Node) bool {
	for _, ref := range g.EdgesDirected(idx, graph.Incoming) {
		if _, ok := results[ref.Source]; !ok {
			return false
		}
	}
	return true
}

// resolveInputs copies each incoming edge's freshly computed source output
// into the node's input port.
func resolveInputs(g *graph.Graph, idx graph.Index, n node.Node, results map[graph.Index]node.Node) error {
	for _, ref := range g.EdgesDirected(idx, graph.Incoming) {
		src, ok := results[ref.Source]
		if !ok {
			continue
		}
		out, ok := src.GetOutput(ref.Edge.From)
		if !ok {
			continue
		}
		if err := n.SetInput(ref.Edge.To, out); err != nil {
			return err
		}
	}
	return nil
}
