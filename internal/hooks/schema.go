package hooks

import (
	"fmt"

	"github.com/osi4iot/hookhost/internal/schedule"
)

// HookType discriminates the two HookDefinition variants.
type HookType string

const (
	// HookTypeCommand runs a shell command
	HookTypeCommand HookType = "command"

	// HookTypePrompt sends a natural-language instruction to the model
	HookTypePrompt HookType = "prompt"
)

// PermissionMode governs whether command execution requires interactive
// confirmation before running.
type PermissionMode string

const (
	// PermissionSafe never runs unattended; without a confirmer the hook is skipped
	PermissionSafe PermissionMode = "safe"

	// PermissionAsk asks when a confirmer is present, otherwise proceeds
	PermissionAsk PermissionMode = "ask"

	// PermissionAllowAll runs without confirmation
	PermissionAllowAll PermissionMode = "allow-all"
)

// HookDefinition is a tagged variant: exactly one of Command or Prompt is
// meaningful, selected by Type. Timeout applies to command hooks only and is
// in seconds.
type HookDefinition struct {
	Type    HookType `json:"type" yaml:"type"`
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Prompt  string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Timeout int      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// HookMatcher is one configured reaction: a trigger condition (event pattern
// or cron schedule) plus gating, attached to an ordered list of definitions.
type HookMatcher struct {
	// Matcher is compared against the event's discriminating value
	// (e.g. a target status). Empty means "always match".
	Matcher string `json:"matcher,omitempty" yaml:"matcher,omitempty"`

	// Cron and Timezone configure schedule-triggered firing, orthogonal
	// to event matching.
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	PermissionMode PermissionMode `json:"permissionMode,omitempty" yaml:"permissionMode,omitempty"`
	Labels         []string       `json:"labels,omitempty" yaml:"labels,omitempty"`

	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Hooks must contain at least one definition.
	Hooks []HookDefinition `json:"hooks" yaml:"hooks"`
}

// IsEnabled reports whether the matcher may fire. A nil Enabled means true.
func (m *HookMatcher) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// IsScheduled reports whether the matcher carries a cron schedule.
func (m *HookMatcher) IsScheduled() bool {
	return m.Cron != ""
}

// HooksConfiguration is the validated, remapped output of the schema layer.
// Every key is a member of the valid event set; matcher lists preserve the
// encounter order of every raw declaration that resolved to that event.
type HooksConfiguration struct {
	Version int
	Hooks   map[HookEvent][]HookMatcher
}

// EmptyConfiguration returns a configuration with no hooks, used when no
// config file is present.
func EmptyConfiguration() *HooksConfiguration {
	return &HooksConfiguration{Hooks: make(map[HookEvent][]HookMatcher)}
}

// Severity classifies a ValidationIssue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue reports one problem found while loading hook
// configuration: the file it came from, a dotted path into the document,
// and a message.
type ValidationIssue struct {
	File     string
	Path     string
	Message  string
	Severity Severity
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s: %s: %s", i.Severity, i.File, i.Path, i.Message)
}

// rawConfig is the parsed but not yet validated form of one config file.
// Entries preserve the declaration order of event keys so that remapping is
// deterministic (first-declared-first).
type rawConfig struct {
	Version int
	Entries []rawEntry
}

type rawEntry struct {
	Event    string
	Matchers []HookMatcher
}

// validateRaw runs stage-1 validation over one parsed file. It checks every
// matcher and definition shape without interpreting event names; those are
// the remap stage's business. Any returned issue fails the whole file.
func validateRaw(file string, raw *rawConfig) []ValidationIssue {
	var issues []ValidationIssue
	for _, entry := range raw.Entries {
		for i, matcher := range entry.Matchers {
			path := fmt.Sprintf("hooks.%s[%d]", entry.Event, i)
			issues = append(issues, validateMatcher(file, path, matcher)...)
		}
	}
	return issues
}

func validateMatcher(file, path string, m HookMatcher) []ValidationIssue {
	var issues []ValidationIssue
	fail := func(subPath, format string, args ...any) {
		issues = append(issues, ValidationIssue{
			File:     file,
			Path:     subPath,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		})
	}

	switch m.PermissionMode {
	case "", PermissionSafe, PermissionAsk, PermissionAllowAll:
	default:
		fail(path+".permissionMode", "invalid permission mode %q", m.PermissionMode)
	}

	// Cron and timezone checks live in the schedule engine so validation
	// accepts exactly what scheduling will accept.
	if m.Cron != "" {
		if err := schedule.ValidSpec(m.Cron, ""); err != nil {
			fail(path+".cron", "%v", err)
		}
	}
	if m.Timezone != "" {
		if m.Cron == "" {
			fail(path+".timezone", "timezone requires a cron expression")
		} else if err := schedule.ValidTimezone(m.Timezone); err != nil {
			fail(path+".timezone", "%v", err)
		}
	}

	if len(m.Hooks) == 0 {
		fail(path+".hooks", "matcher must define at least one hook")
	}
	for j, def := range m.Hooks {
		defPath := fmt.Sprintf("%s.hooks[%d]", path, j)
		issues = append(issues, validateDefinition(file, defPath, def)...)
	}
	return issues
}

func validateDefinition(file, path string, def HookDefinition) []ValidationIssue {
	var issues []ValidationIssue
	fail := func(subPath, format string, args ...any) {
		issues = append(issues, ValidationIssue{
			File:     file,
			Path:     subPath,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		})
	}

	switch def.Type {
	case HookTypeCommand:
		if def.Command == "" {
			fail(path+".command", "command hook requires a non-empty command")
		}
	case HookTypePrompt:
		if def.Prompt == "" {
			fail(path+".prompt", "prompt hook requires a non-empty prompt")
		}
		if def.Timeout != 0 {
			fail(path+".timeout", "timeout is only valid for command hooks")
		}
	default:
		fail(path+".type", "unknown hook type %q", def.Type)
	}

	if def.Timeout < 0 {
		fail(path+".timeout", "timeout must not be negative, got %d", def.Timeout)
	}
	return issues
}
