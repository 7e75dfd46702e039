package hooks

import (
	"fmt"
	"strings"
)

// remap is stage 2 of configuration loading: it interprets the event keys of
// a validated rawConfig, migrating deprecated names forward and dropping
// unknown ones.
//
// For each top-level key, in declaration order:
//   - deprecated: warn (naming both identifiers) and merge its matchers into
//     the replacement's accumulated list, keeping their relative position
//     among all entries that resolve to that replacement;
//   - valid: append its matchers;
//   - otherwise: collect as unknown; one warning lists them all afterwards
//     and their matchers are silently dropped.
//
// The same raw input always produces the same merged output: ordering
// depends only on declaration order, never on map iteration.
func remap(file string, raw *rawConfig) (*HooksConfiguration, []ValidationIssue) {
	cfg := &HooksConfiguration{
		Version: raw.Version,
		Hooks:   make(map[HookEvent][]HookMatcher),
	}

	var warnings []ValidationIssue
	var unknown []string

	for _, entry := range raw.Entries {
		if replacement, ok := ReplacementFor(entry.Event); ok {
			warnings = append(warnings, ValidationIssue{
				File:     file,
				Path:     "hooks." + entry.Event,
				Message:  fmt.Sprintf("event %q is deprecated, use %q; matchers were migrated", entry.Event, replacement),
				Severity: SeverityWarning,
			})
			cfg.Hooks[replacement] = append(cfg.Hooks[replacement], entry.Matchers...)
			continue
		}

		event := HookEvent(entry.Event)
		if event.IsValid() {
			cfg.Hooks[event] = append(cfg.Hooks[event], entry.Matchers...)
			continue
		}

		unknown = append(unknown, entry.Event)
	}

	if len(unknown) > 0 {
		warnings = append(warnings, ValidationIssue{
			File:     file,
			Path:     "hooks",
			Message:  fmt.Sprintf("ignoring unknown events: %s", strings.Join(unknown, ", ")),
			Severity: SeverityWarning,
		})
	}

	return cfg, warnings
}

// mergeConfigurations appends src's matcher lists onto dst's, preserving
// encounter order across declaration sources. A non-zero src version wins,
// matching the "higher precedence file last" load order.
func mergeConfigurations(dst, src *HooksConfiguration) {
	for event, matchers := range src.Hooks {
		dst.Hooks[event] = append(dst.Hooks[event], matchers...)
	}
	if src.Version != 0 {
		dst.Version = src.Version
	}
}
