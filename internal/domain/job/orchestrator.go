package job

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

const defaultPollTimeout = 30 * time.Second

// ErrShutdown is returned by Submit once the orchestrator is shut down
var ErrShutdown = errors.New("orchestrator is shut down")

// loop is one job's polling goroutine
type loop struct {
	handle Handle
	seq    uint64

	// abort is closed by Cancel and observed between polls
	abort     chan struct{}
	abortOnce sync.Once

	// ctx is cancelled to detach the loop without a terminal patch
	ctx    context.Context
	cancel context.CancelFunc
}

func (l *loop) aborted() bool {
	select {
	case <-l.abort:
		return true
	default:
		return false
	}
}

// Orchestrator runs one polling loop per outstanding job and writes every
// outcome into the job's own target message.
type Orchestrator struct {
	client   Client
	sink     Sink
	notifier Notifier
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	policies map[types.Kind]Policy
	texts    Texts
	now      func() time.Time

	pollTimeout time.Duration

	mu     sync.Mutex
	loops  map[string]*loop
	states map[string]State
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithPolicy overrides the cadence of one kind
func WithPolicy(kind types.Kind, p Policy) Option {
	return func(o *Orchestrator) {
		if p.Interval > 0 && p.Timeout > 0 {
			o.policies[kind] = p
		}
	}
}

// WithTexts overrides the terminal message strings
func WithTexts(t Texts) Option {
	return func(o *Orchestrator) { o.texts = t }
}

// WithNotifier sets where terminal failures are surfaced
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics enables instrumentation
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator. The sink is usually the active
// view binder, which routes patches for unfocused sessions to the store.
func NewOrchestrator(c Client, sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      c,
		sink:        sink,
		logger:      logging.Nop(),
		policies:    DefaultPolicies(),
		texts:       DefaultTexts(),
		now:         time.Now,
		pollTimeout: defaultPollTimeout,
		loops:       make(map[string]*loop),
		states:      make(map[string]State),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("job")
	return o
}

// SetSink replaces the sink. Used to break the construction cycle with
// the binder; call before any job is submitted.
func (o *Orchestrator) SetSink(sink Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sink = sink
}

// Submit sends the request and attaches a loop to the placeholder named
// by target, which the caller has already appended. When submission
// fails the placeholder is finished with the error and no loop starts.
func (o *Orchestrator) Submit(ctx context.Context, target Target, req types.JobRequest) (Handle, error) {
	if target.StartedAt.IsZero() {
		target.StartedAt = o.now()
	}
	log := o.logger.With(logging.SessionID(target.SessionID), logging.MessageID(target.MessageID))

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return Handle{}, ErrShutdown
	}

	jobID, err := o.client.Submit(ctx, req)
	if err != nil {
		o.metrics.RecordJobSubmitted(string(target.Kind), "error")
		log.Warn("Job submission failed", zap.String("model", req.ModelID), zap.Error(err))

		reason := sanitize(client.Message(err))
		o.patch(Handle{Target: target}, types.Terminal(fmt.Sprintf("%s: %s", o.texts.SubmitFailed, reason)))
		o.notify(types.Notification{
			Level:     types.LevelError,
			Title:     o.texts.SubmitFailed,
			Detail:    reason,
			SessionID: target.SessionID,
		})
		return Handle{}, fmt.Errorf("failed to submit job: %w", err)
	}
	o.metrics.RecordJobSubmitted(string(target.Kind), "success")

	handle := Handle{JobID: jobID, Target: target}
	o.setState(jobID, StateSubmitted)
	o.patch(handle, types.MessagePatch{JobID: &jobID})

	log.Info("Job submitted", logging.JobID(jobID), zap.String("kind", string(target.Kind)), zap.String("model", req.ModelID))
	o.Attach(handle)
	return handle, nil
}

// Attach starts a polling loop for the handle. At most one loop exists
// per job id; attaching a tracked job is a no-op and returns false.
func (o *Orchestrator) Attach(h Handle) bool {
	if h.JobID == "" {
		return false
	}
	if h.StartedAt.IsZero() {
		h.StartedAt = o.now()
	}
	if !h.Kind.Valid() {
		h.Kind = types.KindText
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	if _, tracked := o.loops[h.JobID]; tracked {
		o.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.seq++
	l := &loop{
		handle: h,
		seq:    o.seq,
		abort:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	o.loops[h.JobID] = l
	o.states[h.JobID] = StatePolling
	o.wg.Add(1)
	o.mu.Unlock()

	o.metrics.IncJobLoops()
	go o.run(l)
	return true
}

// Resume attaches a loop for every placeholder in messages that is still
// streaming under a job id. The ceiling counts from the message timestamp.
// Returns the number of loops started.
func (o *Orchestrator) Resume(sessionID string, messages []types.Message) int {
	started := 0
	for _, m := range messages {
		if !m.Pending() {
			continue
		}
		if o.Attach(Handle{
			JobID: m.JobID,
			Target: Target{
				SessionID: sessionID,
				MessageID: m.ID,
				Kind:      m.Kind,
				StartedAt: m.Timestamp,
			},
		}) {
			started++
		}
	}
	if started > 0 {
		o.logger.Info("Resumed job loops", logging.SessionID(sessionID), zap.Int("count", started))
	}
	return started
}

// Cancel asks the job's loop to stop. The loop exits at its next tick
// without polling again. Reports whether the job was active.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	l, ok := o.loops[jobID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	l.abortOnce.Do(func() { close(l.abort) })
	return true
}

// CancelLatest cancels the most recently started job of a session
func (o *Orchestrator) CancelLatest(sessionID string) (Handle, bool) {
	o.mu.Lock()
	var latest *loop
	for _, l := range o.loops {
		if l.handle.SessionID != sessionID || l.aborted() {
			continue
		}
		if latest == nil || l.seq > latest.seq {
			latest = l
		}
	}
	o.mu.Unlock()

	if latest == nil {
		return Handle{}, false
	}
	latest.abortOnce.Do(func() { close(latest.abort) })
	return latest.handle, true
}

// Active returns the handles of running loops in start order
func (o *Orchestrator) Active() []Handle {
	o.mu.Lock()
	loops := make([]*loop, 0, len(o.loops))
	for _, l := range o.loops {
		loops = append(loops, l)
	}
	o.mu.Unlock()

	sort.Slice(loops, func(i, j int) bool { return loops[i].seq < loops[j].seq })
	out := make([]Handle, len(loops))
	for i, l := range loops {
		out[i] = l.handle
	}
	return out
}

// State returns the last known state of a job
func (o *Orchestrator) State(jobID string) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.states[jobID]
	return s, ok
}

// Reset detaches every loop and forgets all job state. Placeholders stay
// streaming in storage and are resumed when their session is loaded again.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	for _, l := range o.loops {
		l.cancel()
	}
	o.states = make(map[string]State)
	o.mu.Unlock()
}

// Shutdown detaches every loop without patching and waits for them to exit
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, l := range o.loops {
		l.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(l *loop) {
	h := l.handle
	log := o.logger.With(logging.JobID(h.JobID), logging.SessionID(h.SessionID), logging.MessageID(h.MessageID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job loop panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
		o.mu.Lock()
		if o.loops[h.JobID] == l {
			delete(o.loops, h.JobID)
		}
		o.mu.Unlock()
		l.cancel()
		o.metrics.DecJobLoops()
		o.wg.Done()
	}()

	policy := o.policy(h.Kind)
	deadline := h.StartedAt.Add(policy.Timeout)

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	timer := time.NewTimer(maxDuration(deadline.Sub(o.now()), 0))
	defer timer.Stop()

	for {
		detail, err := o.poll(l, deadline)

		if l.ctx.Err() != nil {
			log.Debug("Job loop detached")
			return
		}
		if l.aborted() {
			o.finish(l, StateAborted, types.MessagePatch{}, "")
			return
		}

		if err != nil {
			o.metrics.RecordPollError(string(h.Kind))
			log.Debug("Transient poll failure", zap.Error(err))
		} else if done := o.handle(l, detail); done {
			return
		}

		if !o.now().Before(deadline) {
			o.finish(l, StateTimedOut, types.MessagePatch{}, "")
			return
		}

		select {
		case <-l.ctx.Done():
			log.Debug("Job loop detached")
			return
		case <-l.abort:
			o.finish(l, StateAborted, types.MessagePatch{}, "")
			return
		case <-timer.C:
			o.finish(l, StateTimedOut, types.MessagePatch{}, "")
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) poll(l *loop, deadline time.Time) (*types.JobDetail, error) {
	timeout := o.pollTimeout
	if remaining := deadline.Sub(o.now()); remaining > 0 && remaining < timeout {
		timeout = remaining
	}
	ctx, cancel := context.WithTimeout(l.ctx, timeout)
	defer cancel()

	detail, err := o.client.Poll(ctx, l.handle.JobID)
	if err == nil && detail == nil {
		err = errors.New("empty poll response")
	}
	return detail, err
}

// handle applies one poll response and reports whether the loop is done
func (o *Orchestrator) handle(l *loop, d *types.JobDetail) bool {
	switch d.Status.Phase() {
	case types.PhaseCompleted:
		patch, ok := o.completed(l.handle.Kind, d.Result)
		if !ok {
			o.finish(l, StateFailed, types.Terminal(o.texts.EmptyResult), o.texts.EmptyResult)
			return true
		}
		o.finish(l, StateCompleted, patch, "")
		return true

	case types.PhaseFailed:
		reason := sanitize(d.Error)
		if reason == "" {
			reason = o.failedText(l.handle.Kind)
		}
		o.finish(l, StateFailed, types.Terminal(reason), reason)
		return true
	}

	if d.Progress != nil || d.EstimatedTime != nil {
		o.patch(l.handle, types.MessagePatch{Progress: d.Progress, EstimatedTime: d.EstimatedTime})
	}
	return false
}

func (o *Orchestrator) completed(kind types.Kind, r *types.JobResult) (types.MessagePatch, bool) {
	if r == nil {
		return types.MessagePatch{}, false
	}

	switch kind {
	case types.KindImage, types.KindVideo:
		if r.URL == "" {
			return types.MessagePatch{}, false
		}
		caption := o.texts.ImageDone
		if kind == types.KindVideo {
			caption = o.texts.VideoDone
		}
		patch := types.Terminal(caption)
		url := r.URL
		patch.MediaURL = &url
		return patch, true
	default:
		if r.Text == "" {
			return types.MessagePatch{}, false
		}
		return types.Terminal(r.Text), true
	}
}

// finish writes the terminal patch, records the state and surfaces
// negative outcomes
func (o *Orchestrator) finish(l *loop, state State, patch types.MessagePatch, reason string) {
	h := l.handle

	switch state {
	case StateAborted:
		done := false
		patch = types.MessagePatch{AppendContent: o.texts.StoppedSuffix, IsStreaming: &done}
	case StateTimedOut:
		reason = fmt.Sprintf(o.texts.TimedOut, o.policy(h.Kind).Timeout)
		patch = types.Terminal(reason)
	}

	o.setState(h.JobID, state)
	o.patch(h, patch)
	o.metrics.RecordJobFinished(string(h.Kind), string(state))

	o.logger.Info("Job finished",
		logging.JobID(h.JobID),
		logging.SessionID(h.SessionID),
		zap.String("state", string(state)),
		zap.Duration("elapsed", o.now().Sub(h.StartedAt)),
	)

	switch state {
	case StateFailed, StateTimedOut:
		o.notify(types.Notification{
			Level:     types.LevelError,
			Title:     o.failedText(h.Kind),
			Detail:    reason,
			SessionID: h.SessionID,
			JobID:     h.JobID,
		})
	case StateAborted:
		o.notify(types.Notification{
			Level:     types.LevelInfo,
			Title:     o.texts.Stopped,
			SessionID: h.SessionID,
			JobID:     h.JobID,
		})
	}
}

// patch routes to the sink. A target that no longer exists is not an
// error worth surfacing.
func (o *Orchestrator) patch(h Handle, p types.MessagePatch) {
	o.mu.Lock()
	sink := o.sink
	o.mu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.PatchMessage(h.SessionID, h.MessageID, p); err != nil {
		o.logger.Debug("Patch target gone",
			logging.JobID(h.JobID),
			logging.SessionID(h.SessionID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) failedText(kind types.Kind) string {
	switch kind {
	case types.KindImage:
		return o.texts.ImageFailed
	case types.KindVideo:
		return o.texts.VideoFailed
	default:
		return o.texts.TextFailed
	}
}

func (o *Orchestrator) policy(kind types.Kind) Policy {
	if p, ok := o.policies[kind]; ok {
		return p
	}
	return o.policies[types.KindText]
}

func (o *Orchestrator) setState(jobID string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[jobID] = s
}

func (o *Orchestrator) notify(n types.Notification) {
	if o.notifier == nil {
		return
	}
	n.Time = o.now()
	o.notifier.Notify(n)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
