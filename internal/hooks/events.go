// Package hooks implements the configuration-driven hook dispatcher for
// agent sessions.
//
// Operators declare reactions to lifecycle events (and wall-clock schedules)
// in workspace-local hooks.json/hooks.yml files. The Controller loads and
// validates that configuration, watches session metadata for changes, and
// routes matching events to command or prompt hooks.
package hooks

// HookEvent identifies a point in the session or agent lifecycle where hooks
// can fire. The set is closed per release: it can grow, but retired members
// are never reused with a different meaning (see deprecatedEvents).
type HookEvent string

// Application-scope events.
const (
	// StatusStateChange fires when a session's status field changes
	StatusStateChange HookEvent = "StatusStateChange"

	// TitleChange fires when a session's title field changes
	TitleChange HookEvent = "TitleChange"

	// SessionStart fires when a session begins; the embedding host emits
	// it on the controller's bus, registration itself is silent
	SessionStart HookEvent = "SessionStart"

	// SessionEnd fires when a session is removed
	SessionEnd HookEvent = "SessionEnd"

	// Schedule fires when a cron-scheduled matcher comes due
	Schedule HookEvent = "Schedule"
)

// Agent-scope events.
const (
	// PreToolUse fires before any tool execution
	PreToolUse HookEvent = "PreToolUse"

	// PostToolUse fires after tool execution completes
	PostToolUse HookEvent = "PostToolUse"

	// UserPromptSubmit fires when the user submits a prompt
	UserPromptSubmit HookEvent = "UserPromptSubmit"

	// Stop fires when the main agent finishes responding
	Stop HookEvent = "Stop"

	// SubagentStop fires when a spawned sub-agent finishes
	SubagentStop HookEvent = "SubagentStop"
)

// validEvents lists every member of the current event set, application
// events first. Order is stable so subscribers see one canonical ordering.
var validEvents = []HookEvent{
	StatusStateChange,
	TitleChange,
	SessionStart,
	SessionEnd,
	Schedule,
	PreToolUse,
	PostToolUse,
	UserPromptSubmit,
	Stop,
	SubagentStop,
}

// deprecatedEvents maps retired event identifiers to their replacement.
// Replacements are always members of the valid set; the retired key itself
// never is. Lookups are single-level: no rename currently chains through
// another deprecated name.
var deprecatedEvents = map[string]HookEvent{
	"TodoStateChange": StatusStateChange,
}

// metadataFieldEvents maps session metadata fields to the event emitted when
// that field's value changes. Fields without an entry never emit.
var metadataFieldEvents = map[string]HookEvent{
	"status": StatusStateChange,
	"title":  TitleChange,
}

// IsValid returns true if the event is a member of the current event set.
func (e HookEvent) IsValid() bool {
	switch e {
	case StatusStateChange, TitleChange, SessionStart, SessionEnd, Schedule,
		PreToolUse, PostToolUse, UserPromptSubmit, Stop, SubagentStop:
		return true
	}
	return false
}

// ValidEvents returns the current event set in canonical order.
func ValidEvents() []HookEvent {
	out := make([]HookEvent, len(validEvents))
	copy(out, validEvents)
	return out
}

// ReplacementFor looks up the deprecation table. It returns the replacement
// event and true when name is a retired identifier.
func ReplacementFor(name string) (HookEvent, bool) {
	replacement, ok := deprecatedEvents[name]
	return replacement, ok
}

// EventForField returns the event emitted when the given session metadata
// field changes, or false if the field has no configured mapping.
func EventForField(field string) (HookEvent, bool) {
	event, ok := metadataFieldEvents[field]
	return event, ok
}

// MetadataFieldEvents returns the field-to-event mapping as plain strings,
// in the form the session store consumes.
func MetadataFieldEvents() map[string]string {
	out := make(map[string]string, len(metadataFieldEvents))
	for field, event := range metadataFieldEvents {
		out[field] = string(event)
	}
	return out
}
