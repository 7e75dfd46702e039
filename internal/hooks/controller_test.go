package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/osi4iot/hookhost/internal/bus"
	"github.com/osi4iot/hookhost/internal/session"
)

type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	inputs   [][]byte
	failOn   string
}

func (r *fakeRunner) Run(_ context.Context, command string, _ time.Duration, input []byte) CommandResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	r.inputs = append(r.inputs, input)
	if r.failOn != "" && command == r.failOn {
		return CommandResult{ExitCode: 1, Err: errors.New("boom")}
	}
	return CommandResult{}
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *fakeGenerator) GenerateText(_ context.Context, prompt, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return "ok", g.err
}

type staticConfirmer struct{ allow bool }

func (c *staticConfirmer) Confirm(context.Context, string) bool { return c.allow }

func newTestController(t *testing.T, configJSON string, opts ...Option) *Controller {
	t.Helper()
	workspace := isolateConfigDir(t)
	if configJSON != "" {
		writeWorkspaceFile(t, workspace, "hooks.json", configJSON)
	}

	ctrl, err := New(workspace, "ws-test", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ctrl.Dispose)
	return ctrl
}

func TestControllerLegacyConfigMigration(t *testing.T) {
	ctrl := newTestController(t, `{"hooks": {"TodoStateChange": [{"matcher": "done", "hooks": [{"type": "command", "command": "echo done"}]}]}}`)

	matchers := ctrl.MatchersForEvent(StatusStateChange)
	if len(matchers) != 1 || matchers[0].Matcher != "done" {
		t.Fatalf("MatchersForEvent(StatusStateChange) = %+v, want the migrated matcher", matchers)
	}
	if got := ctrl.MatchersForEvent(HookEvent("TodoStateChange")); len(got) != 0 {
		t.Errorf("legacy name must resolve to nothing, got %+v", got)
	}

	warnings := ctrl.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("expected one deprecation warning, got %v", warnings)
	}
	if !strings.Contains(warnings[0].Message, "TodoStateChange") ||
		!strings.Contains(warnings[0].Message, "StatusStateChange") {
		t.Errorf("warning must mention both names: %q", warnings[0].Message)
	}
}

func TestControllerMetadataUpdateDispatch(t *testing.T) {
	runner := &fakeRunner{}
	ctrl := newTestController(t,
		`{"hooks": {"StatusStateChange": [{"matcher": "todo", "hooks": [{"type": "command", "command": "notify"}]}]}}`,
		WithCommandRunner(runner))

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{"status": "backlog"}); err != nil {
		t.Fatalf("SetInitialSessionMetadata: %v", err)
	}
	if got := runner.ran(); len(got) != 0 {
		t.Fatalf("initial registration must not fire hooks, ran %v", got)
	}

	events, err := ctrl.UpdateSessionMetadata(context.Background(), "s1", session.Metadata{"status": "todo"})
	if err != nil {
		t.Fatalf("UpdateSessionMetadata: %v", err)
	}
	if !reflect.DeepEqual(events, []HookEvent{StatusStateChange}) {
		t.Fatalf("events = %v, want [StatusStateChange]", events)
	}
	for _, event := range events {
		if event == "TodoStateChange" {
			t.Error("legacy name must never be emitted")
		}
	}

	if got := runner.ran(); !reflect.DeepEqual(got, []string{"notify"}) {
		t.Fatalf("ran = %v, want [notify]", got)
	}

	var payload struct {
		HookEventName string `json:"hookEventName"`
		WorkspaceID   string `json:"workspaceId"`
		SessionID     string `json:"sessionId"`
		OldState      string `json:"oldState"`
		NewState      string `json:"newState"`
	}
	if err := json.Unmarshal(runner.inputs[0], &payload); err != nil {
		t.Fatalf("hook input is not JSON: %v", err)
	}
	if payload.OldState != "backlog" || payload.NewState != "todo" {
		t.Errorf("payload = %+v, want oldState backlog, newState todo", payload)
	}
	if payload.HookEventName != "StatusStateChange" || payload.WorkspaceID != "ws-test" || payload.SessionID != "s1" {
		t.Errorf("payload common fields = %+v", payload)
	}
}

func TestControllerNoChangeNoEmit(t *testing.T) {
	runner := &fakeRunner{}
	ctrl := newTestController(t,
		`{"hooks": {"StatusStateChange": [{"hooks": [{"type": "command", "command": "notify"}]}]}}`,
		WithCommandRunner(runner))

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{"status": "todo"}); err != nil {
		t.Fatal(err)
	}

	events, err := ctrl.UpdateSessionMetadata(context.Background(), "s1", session.Metadata{"status": "todo"})
	if err != nil {
		t.Fatalf("UpdateSessionMetadata: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("setting a field to its current value must emit nothing, got %v", events)
	}
	if got := runner.ran(); len(got) != 0 {
		t.Errorf("no hooks should run, ran %v", got)
	}
}

func TestControllerMultiFieldUpdateOrder(t *testing.T) {
	ctrl := newTestController(t, "")

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{}); err != nil {
		t.Fatal(err)
	}

	events, err := ctrl.UpdateSessionMetadata(context.Background(), "s1",
		session.Metadata{"title": "my session", "status": "todo"})
	if err != nil {
		t.Fatal(err)
	}
	// Fields process in sorted name order: status before title.
	if !reflect.DeepEqual(events, []HookEvent{StatusStateChange, TitleChange}) {
		t.Errorf("events = %v, want [StatusStateChange TitleChange]", events)
	}
}

func TestControllerSessionErrors(t *testing.T) {
	ctrl := newTestController(t, "")

	if _, err := ctrl.UpdateSessionMetadata(context.Background(), "ghost", session.Metadata{"status": "todo"}); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("update of unregistered session: err = %v, want ErrSessionNotFound", err)
	}

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{"status": "a"}); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{"status": "b"}); !errors.Is(err, session.ErrSessionExists) {
		t.Errorf("re-registration: err = %v, want ErrSessionExists", err)
	}
}

func TestControllerMatcherGating(t *testing.T) {
	runner := &fakeRunner{}
	ctrl := newTestController(t, `{"hooks": {"StatusStateChange": [
		{"matcher": "done", "hooks": [{"type": "command", "command": "on-done"}]},
		{"matcher": "todo", "enabled": false, "hooks": [{"type": "command", "command": "disabled"}]},
		{"hooks": [{"type": "command", "command": "always"}]},
		{"cron": "0 9 * * *", "hooks": [{"type": "command", "command": "schedule-only"}]}
	]}}`, WithCommandRunner(runner))

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{"status": "backlog"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.UpdateSessionMetadata(context.Background(), "s1", session.Metadata{"status": "todo"}); err != nil {
		t.Fatal(err)
	}

	// "on-done" mismatches, "disabled" is off, "schedule-only" belongs to
	// the scheduler; only the matcher-less entry fires.
	if got := runner.ran(); !reflect.DeepEqual(got, []string{"always"}) {
		t.Errorf("ran = %v, want [always]", got)
	}
}

func TestControllerPermissionGating(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		confirmer Confirmer
		wantRun   bool
	}{
		{"safe without confirmer never runs", "safe", nil, false},
		{"safe with approval runs", "safe", &staticConfirmer{allow: true}, true},
		{"safe with denial skips", "safe", &staticConfirmer{allow: false}, false},
		{"ask without confirmer proceeds", "ask", nil, true},
		{"ask with denial skips", "ask", &staticConfirmer{allow: false}, false},
		{"allow-all runs", "allow-all", nil, true},
		{"default runs", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			config := `{"hooks": {"StatusStateChange": [{"permissionMode": "` + tt.mode + `", "hooks": [{"type": "command", "command": "gated"}]}]}}`
			if tt.mode == "" {
				config = `{"hooks": {"StatusStateChange": [{"hooks": [{"type": "command", "command": "gated"}]}]}}`
			}

			opts := []Option{WithCommandRunner(runner)}
			if tt.confirmer != nil {
				opts = append(opts, WithConfirmer(tt.confirmer))
			}
			ctrl := newTestController(t, config, opts...)

			if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{}); err != nil {
				t.Fatal(err)
			}
			if _, err := ctrl.UpdateSessionMetadata(context.Background(), "s1", session.Metadata{"status": "todo"}); err != nil {
				t.Fatal(err)
			}

			ran := len(runner.ran()) == 1
			if ran != tt.wantRun {
				t.Errorf("ran = %v, want %v", ran, tt.wantRun)
			}
		})
	}
}

func TestControllerPromptHook(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl := newTestController(t,
		`{"hooks": {"StatusStateChange": [{"hooks": [{"type": "prompt", "prompt": "explain the change"}]}]}}`,
		WithTextGenerator(gen), WithModel("claude-sonnet-4-20250514"))

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{}); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.UpdateSessionMetadata(context.Background(), "s1", session.Metadata{"status": "todo"}); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(gen.prompts, []string{"explain the change"}) {
		t.Errorf("prompts = %v", gen.prompts)
	}
}

func TestControllerHookFailureIsolated(t *testing.T) {
	runner := &fakeRunner{failOn: "first"}
	ctrl := newTestController(t, `{"hooks": {"StatusStateChange": [
		{"hooks": [{"type": "command", "command": "first"}, {"type": "command", "command": "second"}]}
	]}}`, WithCommandRunner(runner))

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{}); err != nil {
		t.Fatal(err)
	}

	events, err := ctrl.UpdateSessionMetadata(context.Background(), "s1", session.Metadata{"status": "todo"})
	if err != nil {
		t.Fatalf("hook failures must not fail the update call: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("events = %v", events)
	}
	if got := runner.ran(); !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Errorf("sibling hooks must still run, ran %v", got)
	}
}

func TestControllerDispose(t *testing.T) {
	runner := &fakeRunner{}
	ctrl := newTestController(t,
		`{"hooks": {"StatusStateChange": [{"hooks": [{"type": "command", "command": "notify"}]}]}}`,
		WithCommandRunner(runner))

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{}); err != nil {
		t.Fatal(err)
	}

	ctrl.Dispose()
	ctrl.Dispose() // idempotent

	if _, err := ctrl.UpdateSessionMetadata(context.Background(), "s1", session.Metadata{"status": "todo"}); err != nil {
		t.Fatal(err)
	}
	if got := runner.ran(); len(got) != 0 {
		t.Errorf("no handler may run after Dispose, ran %v", got)
	}
}

func TestControllerEndSession(t *testing.T) {
	runner := &fakeRunner{}
	ctrl := newTestController(t,
		`{"hooks": {"SessionEnd": [{"hooks": [{"type": "command", "command": "farewell"}]}]}}`,
		WithCommandRunner(runner))

	ctrl.EndSession(context.Background(), "ghost")
	if got := runner.ran(); len(got) != 0 {
		t.Fatalf("ending an unregistered session must emit nothing, ran %v", got)
	}

	if err := ctrl.SetInitialSessionMetadata("s1", session.Metadata{}); err != nil {
		t.Fatal(err)
	}
	ctrl.EndSession(context.Background(), "s1")
	if got := runner.ran(); !reflect.DeepEqual(got, []string{"farewell"}) {
		t.Fatalf("ran = %v, want [farewell]", got)
	}
	if _, ok := ctrl.SessionMetadata("s1"); ok {
		t.Error("session still present after EndSession")
	}
}

func TestControllerScheduledFireVisibleOnBus(t *testing.T) {
	runner := &fakeRunner{}
	ctrl := newTestController(t,
		`{"hooks": {"Schedule": [{"cron": "0 9 * * *", "hooks": [{"type": "command", "command": "tick"}]}]}}`,
		WithCommandRunner(runner))

	var seen []bus.Event
	ctrl.Bus().Subscribe(string(Schedule), func(_ context.Context, evt bus.Event) {
		seen = append(seen, evt)
	})

	matchers := ctrl.MatchersForEvent(Schedule)
	if len(matchers) != 1 {
		t.Fatalf("matchers = %+v", matchers)
	}
	ctrl.fireScheduled(context.Background(), matchers[0])

	// The firing matcher runs exactly once: dispatch skips schedule-only
	// matchers, so the bus emission does not re-run it.
	if got := runner.ran(); !reflect.DeepEqual(got, []string{"tick"}) {
		t.Fatalf("ran = %v, want exactly one execution", got)
	}
	if len(seen) != 1 || seen[0].Payload["cron"] != "0 9 * * *" {
		t.Fatalf("bus listeners did not observe the fire: %+v", seen)
	}
}

func TestControllerReload(t *testing.T) {
	workspace := isolateConfigDir(t)
	ctrl, err := New(workspace, "ws-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctrl.Dispose)

	if got := ctrl.MatchersForEvent(Stop); len(got) != 0 {
		t.Fatalf("expected empty start, got %+v", got)
	}

	writeWorkspaceFile(t, workspace, "hooks.json", `{"hooks": {"Stop": [{"hooks": [{"type": "command", "command": "echo"}]}]}}`)
	if err := ctrl.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := ctrl.MatchersForEvent(Stop); len(got) != 1 {
		t.Errorf("reloaded config not visible, got %+v", got)
	}
}
