package hooks

import "sync/atomic"

// MatcherIndex maps events to their ordered matcher lists. Lookups never
// fail and are O(1). Replace swaps the whole mapping atomically so a reader
// can never observe a partially rebuilt index during configuration reload.
type MatcherIndex struct {
	hooks atomic.Pointer[map[HookEvent][]HookMatcher]
}

// NewMatcherIndex builds an index from a validated configuration.
func NewMatcherIndex(cfg *HooksConfiguration) *MatcherIndex {
	idx := &MatcherIndex{}
	idx.Replace(cfg)
	return idx
}

// MatchersForEvent returns the ordered matchers configured for event,
// possibly empty. Callers must not mutate the returned slice.
func (idx *MatcherIndex) MatchersForEvent(event HookEvent) []HookMatcher {
	hooks := *idx.hooks.Load()
	return hooks[event]
}

// Replace atomically installs the given configuration's mapping.
func (idx *MatcherIndex) Replace(cfg *HooksConfiguration) {
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = make(map[HookEvent][]HookMatcher)
	}
	idx.hooks.Store(&hooks)
}
