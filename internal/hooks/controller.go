package hooks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/osi4iot/hookhost/internal/agent"
	"github.com/osi4iot/hookhost/internal/bus"
	"github.com/osi4iot/hookhost/internal/schedule"
	"github.com/osi4iot/hookhost/internal/session"
)

// Logger is where the controller reports isolated hook failures and
// configuration warnings. Failures of individual hooks never propagate to
// the operation that triggered them.
type Logger interface {
	Printf(format string, v ...any)
}

// Controller is the hook system: it owns the matcher index, the session
// metadata store, the event bus, and the schedule engine for one workspace.
// Controllers are independent; two controllers in one process share nothing.
type Controller struct {
	workspaceRoot string
	workspaceID   string
	instanceID    string

	bus      *bus.Bus
	index    *MatcherIndex
	sessions *session.Store

	runner    CommandRunner
	generator agent.TextGenerator
	confirmer Confirmer
	model     string
	logger    Logger

	natsCfg   *bus.ForwarderConfig
	forwarder *bus.Forwarder

	extraConfigPaths []string

	mu     sync.Mutex // guards issues, sched, subs across Reload/Dispose
	issues []ValidationIssue
	sched  *schedule.Scheduler
	subs   []bus.Subscription

	disposed    atomic.Bool
	disposeOnce sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithCommandRunner replaces the default shell runner.
func WithCommandRunner(r CommandRunner) Option {
	return func(c *Controller) { c.runner = r }
}

// WithTextGenerator sets the collaborator prompt hooks are sent to. Without
// one, prompt hooks are reported as skipped.
func WithTextGenerator(g agent.TextGenerator) Option {
	return func(c *Controller) { c.generator = g }
}

// WithConfirmer sets the interactive confirmer consulted for permission-
// gated commands.
func WithConfirmer(cf Confirmer) Option {
	return func(c *Controller) { c.confirmer = cf }
}

// WithModel sets the model identifier passed to the text generator.
func WithModel(model string) Option {
	return func(c *Controller) { c.model = model }
}

// WithLogger sets the failure/warning logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithConfigPaths appends extra configuration files, highest precedence.
func WithConfigPaths(paths ...string) Option {
	return func(c *Controller) { c.extraConfigPaths = paths }
}

// WithNATSForwarder republishes every emitted event onto NATS subjects so
// listeners outside the process can react. The connection is made during
// New and released by Dispose; a failed connection fails construction.
func WithNATSForwarder(cfg bus.ForwarderConfig) Option {
	return func(c *Controller) { c.natsCfg = &cfg }
}

// New constructs a controller for the workspace. The configuration files
// are loaded immediately; a missing file yields an empty configuration and
// a malformed one degrades to "no hooks" plus warnings (see Issues), never
// a construction failure.
func New(workspaceRoot, workspaceID string, opts ...Option) (*Controller, error) {
	c := &Controller{
		workspaceRoot: workspaceRoot,
		workspaceID:   workspaceID,
		instanceID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = &ShellRunner{Dir: workspaceRoot}
	}

	cfg, issues, err := LoadConfig(workspaceRoot, c.extraConfigPaths...)
	if err != nil {
		return nil, err
	}
	c.issues = issues
	c.index = NewMatcherIndex(cfg)
	c.logIssues(issues)

	var busOpts []bus.Option
	if c.logger != nil {
		busOpts = append(busOpts, bus.WithLogger(c.logger))
	}
	c.bus = bus.New(busOpts...)

	c.sessions = session.NewStore(MetadataFieldEvents(), c.emitChange)

	for _, event := range ValidEvents() {
		sub := c.bus.Subscribe(string(event), c.dispatch)
		c.subs = append(c.subs, sub)
	}

	if c.natsCfg != nil {
		fwd, err := bus.NewForwarder(*c.natsCfg)
		if err != nil {
			return nil, err
		}
		events := make([]string, 0, len(validEvents))
		for _, event := range ValidEvents() {
			events = append(events, string(event))
		}
		fwd.Attach(c.bus, events)
		c.forwarder = fwd
	}

	c.sched = c.buildScheduler(cfg)
	c.sched.Start()

	return c, nil
}

// InstanceID returns the unique id of this controller instance.
func (c *Controller) InstanceID() string { return c.instanceID }

// Bus returns the controller-owned event bus. External listeners may
// subscribe to it; it is torn down by Dispose.
func (c *Controller) Bus() *bus.Bus { return c.bus }

// MatchersForEvent returns the ordered matchers configured for event,
// possibly empty. Deprecated event names return nothing: their matchers
// were migrated at load time.
func (c *Controller) MatchersForEvent(event HookEvent) []HookMatcher {
	return c.index.MatchersForEvent(event)
}

// Issues returns every validation issue (errors and warnings) from the most
// recent configuration load.
func (c *Controller) Issues() []ValidationIssue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ValidationIssue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Warnings returns only the warning-severity issues.
func (c *Controller) Warnings() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range c.Issues() {
		if issue.Severity == SeverityWarning {
			out = append(out, issue)
		}
	}
	return out
}

// SetInitialSessionMetadata registers a session's starting state. No events
// are emitted, SessionStart included; a host that wants SessionStart hooks
// emits the event on Bus() itself. Registering a known session fails with
// session.ErrSessionExists.
func (c *Controller) SetInitialSessionMetadata(sessionID string, metadata session.Metadata) error {
	return c.sessions.SetInitial(sessionID, metadata)
}

// UpdateSessionMetadata merges partial over the session's stored state and
// emits an event for every field whose value genuinely changed. It returns
// the emitted events in field-processing order. Hook failures triggered by
// the emission are isolated and reported, never returned from here.
func (c *Controller) UpdateSessionMetadata(ctx context.Context, sessionID string, partial session.Metadata) ([]HookEvent, error) {
	names, err := c.sessions.Update(ctx, sessionID, partial)
	if err != nil {
		return nil, err
	}
	events := make([]HookEvent, len(names))
	for i, name := range names {
		events[i] = HookEvent(name)
	}
	return events, nil
}

// SessionMetadata returns a copy of a session's current metadata.
func (c *Controller) SessionMetadata(sessionID string) (session.Metadata, bool) {
	return c.sessions.Get(sessionID)
}

// EndSession removes a session and emits SessionEnd. Ending a session that
// was never registered is a no-op: nothing is emitted.
func (c *Controller) EndSession(ctx context.Context, sessionID string) {
	if !c.sessions.Remove(sessionID) {
		return
	}
	c.bus.Emit(ctx, bus.Event{
		Name:    string(SessionEnd),
		Payload: map[string]any{"sessionId": sessionID},
	})
}

// Reload re-reads the configuration and swaps the matcher index atomically;
// a concurrent reader sees either the old or the new index, never a partial
// one. The schedule engine is rebuilt against the new configuration.
func (c *Controller) Reload() error {
	cfg, issues, err := LoadConfig(c.workspaceRoot, c.extraConfigPaths...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed.Load() {
		return nil
	}

	c.issues = issues
	c.index.Replace(cfg)
	c.logIssues(issues)

	c.sched.Stop()
	c.sched = c.buildScheduler(cfg)
	c.sched.Start()
	return nil
}

// Dispose stops the schedule engine, drops all bus subscriptions, and
// closes the bus. No hook handler runs after Dispose returns. Idempotent.
func (c *Controller) Dispose() {
	c.disposeOnce.Do(func() {
		c.disposed.Store(true)

		c.mu.Lock()
		sched := c.sched
		subs := c.subs
		c.subs = nil
		c.mu.Unlock()

		sched.Stop()
		for _, sub := range subs {
			c.bus.Unsubscribe(sub)
		}
		if c.forwarder != nil {
			c.forwarder.Close()
		}
		c.bus.Close()
	})
}

// emitChange is the session store's emit callback.
func (c *Controller) emitChange(ctx context.Context, event string, change session.Change) {
	c.bus.Emit(ctx, bus.Event{
		Name: event,
		Payload: map[string]any{
			"sessionId": change.SessionID,
			"field":     change.Field,
			"oldState":  change.OldState,
			"newState":  change.NewState,
		},
	})
}

// dispatch is the bus listener that resolves matchers for an emitted event
// and hands the matched, enabled ones to the executors.
func (c *Controller) dispatch(ctx context.Context, evt bus.Event) {
	if c.disposed.Load() {
		return
	}

	input := c.envelope(evt)
	discriminator := gjson.GetBytes(input, "newState").String()

	for _, m := range c.index.MatchersForEvent(HookEvent(evt.Name)) {
		if !m.IsEnabled() {
			continue
		}
		// Schedule-only matchers fire from the schedule engine, not from
		// event emission.
		if m.IsScheduled() && m.Matcher == "" {
			continue
		}
		if m.Matcher != "" && m.Matcher != discriminator {
			continue
		}
		c.runMatcher(ctx, evt.Name, m, input)
	}
}

// runMatcher executes a matcher's definitions in order. Each failure is
// reported and isolated; sibling hooks still run.
func (c *Controller) runMatcher(ctx context.Context, event string, m HookMatcher, input []byte) {
	for _, def := range m.Hooks {
		switch def.Type {
		case HookTypeCommand:
			c.runCommandHook(ctx, event, m.PermissionMode, def, input)
		case HookTypePrompt:
			c.runPromptHook(ctx, event, def)
		}
	}
}

func (c *Controller) runCommandHook(ctx context.Context, event string, mode PermissionMode, def HookDefinition, input []byte) {
	if !c.allowCommand(ctx, mode, def.Command) {
		c.logf("hooks: command not permitted (event=%s mode=%s): %s", event, mode, def.Command)
		return
	}

	timeout := time.Duration(def.Timeout) * time.Second
	result := c.runner.Run(ctx, def.Command, timeout, input)
	switch {
	case result.TimedOut:
		c.logf("hooks: command timed out (event=%s): %s", event, def.Command)
	case result.Err != nil:
		c.logf("hooks: command failed (event=%s exit=%d): %v", event, result.ExitCode, result.Err)
	}
}

func (c *Controller) runPromptHook(ctx context.Context, event string, def HookDefinition) {
	if c.generator == nil {
		c.logf("hooks: no text generator configured, skipping prompt hook (event=%s)", event)
		return
	}
	if _, err := c.generator.GenerateText(ctx, def.Prompt, c.model); err != nil {
		c.logf("hooks: prompt hook failed (event=%s): %v", event, err)
	}
}

// allowCommand applies permission gating. "safe" never runs unattended,
// "ask" consults the confirmer when one is present, "allow-all" and the
// default run without confirmation.
func (c *Controller) allowCommand(ctx context.Context, mode PermissionMode, command string) bool {
	switch mode {
	case PermissionSafe:
		return c.confirmer != nil && c.confirmer.Confirm(ctx, command)
	case PermissionAsk:
		if c.confirmer == nil {
			return true
		}
		return c.confirmer.Confirm(ctx, command)
	default:
		return true
	}
}

// envelope serializes the hook input: the event payload plus common fields.
func (c *Controller) envelope(evt bus.Event) []byte {
	env := make(map[string]any, len(evt.Payload)+3)
	for k, v := range evt.Payload {
		env[k] = v
	}
	env["hookEventName"] = evt.Name
	env["workspaceId"] = c.workspaceID
	env["timestamp"] = time.Now().Unix()

	data, err := sonic.Marshal(env)
	if err != nil {
		c.logf("hooks: marshaling payload for %s: %v", evt.Name, err)
		return []byte("{}")
	}
	return data
}

// buildScheduler registers every cron-bearing matcher, regardless of which
// event key it was declared under.
func (c *Controller) buildScheduler(cfg *HooksConfiguration) *schedule.Scheduler {
	sched := schedule.New()
	for _, matchers := range cfg.Hooks {
		for _, m := range matchers {
			if !m.IsScheduled() || !m.IsEnabled() {
				continue
			}
			matcher := m
			err := sched.Add(m.Cron, m.Timezone, func(ctx context.Context) {
				c.fireScheduled(ctx, matcher)
			})
			if err != nil {
				// Validation already vetted the cron expression; this is
				// unreachable short of a parser disagreement.
				c.logf("hooks: %v", err)
			}
		}
	}
	return sched
}

// fireScheduled handles one cron fire. The Schedule event goes out on the
// bus first so external listeners (and an attached forwarder) observe it;
// dispatch skips schedule-only matchers, so the firing matcher cannot
// double-run. Then the firing matcher itself executes.
func (c *Controller) fireScheduled(ctx context.Context, m HookMatcher) {
	if c.disposed.Load() {
		return
	}
	evt := bus.Event{
		Name: string(Schedule),
		Payload: map[string]any{
			"cron":     m.Cron,
			"timezone": m.Timezone,
		},
	}
	c.bus.Emit(ctx, evt)
	c.runMatcher(ctx, string(Schedule), m, c.envelope(evt))
}

func (c *Controller) logIssues(issues []ValidationIssue) {
	if c.logger == nil {
		return
	}
	for _, issue := range issues {
		c.logger.Printf("hooks: %s", issue)
	}
}

func (c *Controller) logf(format string, v ...any) {
	if c.logger != nil {
		c.logger.Printf(format, v...)
	}
}
