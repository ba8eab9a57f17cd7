package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/richinex/cinematic/observe"
	"github.com/richinex/cinematic/protocol"
)

// Sentinel result texts shown to the model.
const (
	NoResults   = "No results"
	ErrorPrefix = "Error: "
)

// DefaultWorkers bounds concurrent collaborator calls within one turn.
const DefaultWorkers = 4

// Result is the outcome of one dispatched command.
type Result struct {
	Command protocol.Command
	// Text is what the model sees: the collaborator output, NoResults, or an
	// ErrorPrefix sentinel.
	Text string
	// Err is the first failure behind an error sentinel, nil otherwise.
	Err error
}

// Dispatcher runs commands against a Registry.
type Dispatcher struct {
	registry  *Registry
	grammar   protocol.Grammar
	returnExe *Executor
	immExe    *Executor
	workers   int
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithGrammar sets the grammar used to split fan-out terms.
func WithGrammar(g protocol.Grammar) Option {
	return func(d *Dispatcher) { d.grammar = g }
}

// WithWorkers bounds the number of concurrent calls per turn.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithExecConfig sets retry and timeout behaviour. Immediate commands share
// the timeout but are never retried, since they mutate state.
func WithExecConfig(cfg ExecConfig) Option {
	return func(d *Dispatcher) {
		d.returnExe = NewExecutor(cfg)
		once := cfg
		once.Retries = 0
		d.immExe = NewExecutor(once)
	}
}

// WithMetrics records dispatches on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher over registry.
func New(registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		grammar:  protocol.Default,
		workers:  DefaultWorkers,
		logger:   slog.Default(),
	}
	WithExecConfig(DefaultExecConfig())(d)
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Registry returns the dispatch table.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Grammar returns the grammar used for fan-out and envelopes.
func (d *Dispatcher) Grammar() protocol.Grammar {
	return d.grammar
}

type job struct {
	cmd  int
	term int
	op   Operation
	req  Request
}

// plan resolves commands to jobs. Unknown operations produce no slot; a
// failed check produces a slot carrying the error and no jobs. A fan-out
// argument with no terms produces an empty slot, rendered as NoResults.
func (d *Dispatcher) plan(caller Caller, cmds []protocol.Command) ([]Result, [][]string, [][]error, []job) {
	results := make([]Result, 0, len(cmds))
	var texts [][]string
	var errs [][]error
	var jobs []job

	for _, cmd := range cmds {
		op, ok := d.registry.Get(cmd.Op)
		if !ok {
			d.logger.Warn("ignoring unknown operation", "operation", cmd.Op, "class", cmd.Class.String())
			continue
		}

		slot := len(results)
		results = append(results, Result{Command: cmd})

		if err := op.check(caller, cmd.Args); err != nil {
			results[slot].Err = err
			texts = append(texts, nil)
			errs = append(errs, nil)
			continue
		}

		terms := []string{""}
		if op.FanOut && len(cmd.Args) > 0 {
			terms = d.grammar.Terms(cmd.Args[0])
			if len(terms) == 0 {
				texts = append(texts, []string{""})
				errs = append(errs, []error{nil})
				continue
			}
		}

		texts = append(texts, make([]string, len(terms)))
		errs = append(errs, make([]error, len(terms)))
		for i, term := range terms {
			args := append([]string(nil), cmd.Args...)
			if op.FanOut && len(args) > 0 {
				args[0] = term
			}
			jobs = append(jobs, job{cmd: slot, term: i, op: op, req: Request{Caller: caller, Args: args}})
		}
	}

	return results, texts, errs, jobs
}

// DispatchReturn runs return-expected commands concurrently and waits for
// all of them. Results come back in command order regardless of completion
// order. Collaborator failures become error sentinels; they never abort the
// remaining calls.
func (d *Dispatcher) DispatchReturn(ctx context.Context, caller Caller, cmds []protocol.Command) []Result {
	results, texts, errs, jobs := d.plan(caller, cmds)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, j := range jobs {
		g.Go(func() error {
			texts[j.cmd][j.term], errs[j.cmd][j.term] = d.run(ctx, d.returnExe, j, protocol.ClassReturn)
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		results[i] = finish(results[i], texts[i], errs[i])
	}
	return results
}

// DispatchImmediate runs immediate commands one after another in order of
// appearance. Each runs once; failures are logged and returned but do not
// stop later commands.
func (d *Dispatcher) DispatchImmediate(ctx context.Context, caller Caller, cmds []protocol.Command) []Result {
	results, texts, errs, jobs := d.plan(caller, cmds)

	for _, j := range jobs {
		texts[j.cmd][j.term], errs[j.cmd][j.term] = d.run(ctx, d.immExe, j, protocol.ClassImmediate)
	}

	for i := range results {
		results[i] = finish(results[i], texts[i], errs[i])
		if results[i].Err != nil {
			d.logger.Warn("immediate command failed",
				"operation", results[i].Command.Op,
				"error", results[i].Err)
		}
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, exe *Executor, j job, class protocol.Class) (string, error) {
	start := time.Now()
	out, err := exe.Execute(ctx, j.op, j.req)
	elapsed := time.Since(start)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
		d.logger.Debug("command failed",
			"operation", j.op.Name,
			"user", j.req.Caller.User,
			"error", err,
			"elapsed", elapsed)
	case strings.TrimSpace(out) == "":
		status = "empty"
	}
	d.metrics.RecordDispatch(ctx, j.op.Name, class.String(), status, elapsed)

	return out, err
}

func finish(r Result, texts []string, errs []error) Result {
	if r.Err != nil {
		r.Text = ErrorPrefix + r.Err.Error()
		return r
	}

	parts := make([]string, 0, len(texts))
	for i, t := range texts {
		switch {
		case errs[i] != nil:
			if r.Err == nil {
				r.Err = errs[i]
			}
			parts = append(parts, ErrorPrefix+errs[i].Error())
		case strings.TrimSpace(t) == "":
			parts = append(parts, NoResults)
		default:
			parts = append(parts, t)
		}
	}
	r.Text = strings.Join(parts, "\n")
	return r
}

// Aggregate renders results as one RES payload in their given order.
// An empty result list yields a single NoResults envelope.
func (d *Dispatcher) Aggregate(results []Result) string {
	if len(results) == 0 {
		return d.grammar.Envelope(NoResults)
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return d.grammar.Aggregate(texts)
}

// Failed reports whether any result carries an error.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// IsSentinel reports whether text is one of the sentinel results.
func IsSentinel(text string) bool {
	return text == NoResults || strings.HasPrefix(text, ErrorPrefix)
}
