// Package runtime ties the compiled artifact, planner, execution engines,
// and subscription dispatcher together behind a single Execute entry point.
// The active artifact lives in an atomic.Value: hot reload swaps the whole
// snapshot at once, and in-flight requests keep planning against the
// snapshot they started with.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"viewql/internal/aggregate"
	"viewql/internal/compiler"
	"viewql/internal/cursor"
	"viewql/internal/dbexec"
	"viewql/internal/executor"
	"viewql/internal/planner"
	"viewql/internal/rbac"
	"viewql/internal/subscription"
)

// ErrNoArtifact is returned when Execute is called before any artifact has
// been loaded.
var ErrNoArtifact = errors.New("no compiled artifact loaded")

// Options tunes the runtime.
type Options struct {
	// RequestTimeout bounds each Execute call. Zero disables the bound.
	RequestTimeout time.Duration
	// AuditLog emits a structured log line per mutation when enabled.
	AuditLog bool
}

// Metrics receives per-operation measurements. Implemented by the
// observability package; nil disables instrumentation.
type Metrics interface {
	ObserveOperation(ctx context.Context, operation string, kind string, duration time.Duration, rows int, err error)
}

// Response is the outcome of one operation execution.
type Response struct {
	Object      map[string]any
	List        []map[string]any
	HasNextPage bool
	// NextCursor is an opaque continuation for the following page, set only
	// when HasNextPage.
	NextCursor string
	Affected   int64
	Groups     []aggregate.Row
}

// Runtime executes operations against the active artifact snapshot.
type Runtime struct {
	current    atomic.Value // *compiler.Artifact
	engine     *executor.Engine
	aggregates *aggregate.Engine
	dispatcher *subscription.Dispatcher
	logger     *slog.Logger
	metrics    Metrics
	opts       Options
}

// New creates a runtime. The dispatcher doubles as the engine's mutation
// event publisher; it may be nil when subscriptions are not served.
func New(exec dbexec.QueryExecutor, dispatcher *subscription.Dispatcher, logger *slog.Logger, metrics Metrics, opts Options) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	var publisher executor.Publisher
	if dispatcher != nil {
		publisher = dispatcher
	}
	return &Runtime{
		engine:     executor.New(exec, publisher, logger),
		aggregates: aggregate.New(exec),
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// Swap atomically replaces the active artifact. In-flight requests keep the
// snapshot they started with.
func (r *Runtime) Swap(art *compiler.Artifact) {
	r.current.Store(art)
	r.logger.Info("artifact activated",
		slog.String("schema", art.SchemaName),
		slog.String("hash", art.SchemaHash),
		slog.Int("operations", len(art.Operations)),
	)
}

// Artifact returns the active snapshot, or nil before the first Swap.
func (r *Runtime) Artifact() *compiler.Artifact {
	art, _ := r.current.Load().(*compiler.Artifact)
	return art
}

// Execute plans and runs one operation. Subscriptions are not executable
// here; use Subscribe.
func (r *Runtime) Execute(ctx context.Context, opName string, caller rbac.Caller, args map[string]any) (*Response, error) {
	art := r.Artifact()
	if art == nil {
		return nil, ErrNoArtifact
	}
	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	plan, err := planner.Plan(art, opName, caller, args)
	if err != nil {
		r.observe(ctx, opName, "plan", start, 0, err)
		return nil, err
	}

	var resp *Response
	switch plan.Kind {
	case compiler.OpSubscription:
		err = fmt.Errorf("operation %q is a subscription", opName)
	case compiler.OpAggregate:
		resp, err = r.runAggregate(ctx, plan)
	case compiler.OpMutation:
		resp, err = r.runMutation(ctx, plan, caller)
	default:
		resp, err = r.runQuery(ctx, plan)
	}
	r.observe(ctx, opName, string(plan.Kind), start, resultRows(resp), err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Runtime) runQuery(ctx context.Context, plan *planner.ExecutionPlan) (*Response, error) {
	res, err := r.engine.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Object:      res.Object,
		List:        res.List,
		HasNextPage: res.HasNextPage,
	}
	if res.HasNextPage {
		resp.NextCursor = cursor.Encode(plan.Operation, plan.Offset+plan.Limit)
	}
	return resp, nil
}

func (r *Runtime) runMutation(ctx context.Context, plan *planner.ExecutionPlan, caller rbac.Caller) (*Response, error) {
	res, err := r.engine.Execute(ctx, plan)
	if r.opts.AuditLog {
		attrs := []any{
			slog.String("operation", plan.Operation),
			slog.String("subject", caller.Subject),
			slog.Bool("success", err == nil),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		r.logger.InfoContext(ctx, "mutation audit", attrs...)
	}
	if err != nil {
		return nil, err
	}
	return &Response{Object: res.Object, Affected: res.Affected}, nil
}

func (r *Runtime) runAggregate(ctx context.Context, plan *planner.ExecutionPlan) (*Response, error) {
	groups, err := r.aggregates.Run(ctx, plan)
	if err != nil {
		return nil, err
	}
	return &Response{Groups: groups}, nil
}

// Stream is one live subscription with the caller's field projection
// applied to every delivered payload.
type Stream struct {
	C <-chan subscription.Event

	sub  *subscription.Subscription
	done chan struct{}
	once sync.Once
}

// Close detaches the stream. Safe to call more than once, and releases the
// forwarding goroutine even when a delivery is pending on C.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Close()
	})
}

// Subscribe plans a subscription operation and attaches the caller to its
// topic. Events are redacted per caller before delivery.
func (r *Runtime) Subscribe(opName string, caller rbac.Caller, args map[string]any) (*Stream, error) {
	art := r.Artifact()
	if art == nil {
		return nil, ErrNoArtifact
	}
	if r.dispatcher == nil {
		return nil, errors.New("subscriptions are not enabled")
	}
	plan, err := planner.Plan(art, opName, caller, args)
	if err != nil {
		return nil, err
	}
	if plan.Kind != compiler.OpSubscription {
		return nil, fmt.Errorf("operation %q is not a subscription", opName)
	}

	sub := r.dispatcher.Subscribe(plan.Topic, plan.Filters)
	out := make(chan subscription.Event)
	stream := &Stream{C: out, sub: sub, done: make(chan struct{})}

	go func() {
		defer close(out)
		for event := range sub.C {
			// Deep copy: redaction mutates nested objects, and the payload
			// is shared with every other subscriber on the topic.
			payload := clonePayload(event.Payload)
			plan.Projection.Redact(payload, plan.Subject)
			event.Payload = payload
			select {
			case out <- event:
			case <-stream.done:
				return
			}
		}
	}()
	return stream, nil
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func (r *Runtime) observe(ctx context.Context, operation, kind string, start time.Time, rows int, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveOperation(ctx, operation, kind, time.Since(start), rows, err)
}

func resultRows(resp *Response) int {
	if resp == nil {
		return 0
	}
	switch {
	case resp.List != nil:
		return len(resp.List)
	case resp.Groups != nil:
		return len(resp.Groups)
	case resp.Object != nil:
		return 1
	default:
		return 0
	}
}
