package subscription

import "sync"

// Diff describes the keys added and removed by an update call.
type Diff struct {
	Added   []Key
	Removed []Key
}

// IsEmpty reports whether the diff carries no changes.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

type entry struct {
	// order preserves insertion order within a package's key set, per
	// spec.md §4.2's "subscribers are delivered in insertion order within a
	// package set" rule.
	order []Key
	set   map[Key]struct{}
}

func newEntry(keys []Key) entry {
	e := entry{
		order: make([]Key, 0, len(keys)),
		set:   make(map[Key]struct{}, len(keys)),
	}
	for _, k := range keys {
		if _, dup := e.set[k]; dup {
			continue
		}
		e.set[k] = struct{}{}
		e.order = append(e.order, k)
	}
	return e
}

// Registry is the process-wide (sessionId, packageName) → key-set index
// (spec.md §3, §4.2). It is safe for concurrent use; per spec.md §5 writes
// for a given sessionId are expected to already be serialized by that
// session's single-writer dispatcher, but the registry itself is also
// queried read-only from other goroutines (the router, the speech pipeline)
// so it guards its own state with a mutex rather than relying on callers.
type Registry struct {
	mu sync.RWMutex
	// keyed by sessionId -> packageName -> entry
	bySession map[string]map[string]entry
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{bySession: make(map[string]map[string]entry)}
}

// Update atomically replaces packageName's key set for sessionId and returns
// the diff between the old and new sets. Re-sending an identical set returns
// an empty diff (spec.md §8 idempotence).
func (r *Registry) Update(sessionID, packageName string, keys []Key) Diff {
	next := newEntry(keys)

	r.mu.Lock()
	defer r.mu.Unlock()

	pkgs, ok := r.bySession[sessionID]
	if !ok {
		pkgs = make(map[string]entry)
		r.bySession[sessionID] = pkgs
	}
	prev, hadPrev := pkgs[packageName]

	var diff Diff
	if hadPrev {
		for _, k := range prev.order {
			if _, still := next.set[k]; !still {
				diff.Removed = append(diff.Removed, k)
			}
		}
	}
	for _, k := range next.order {
		if hadPrev {
			if _, already := prev.set[k]; already {
				continue
			}
		}
		diff.Added = append(diff.Added, k)
	}

	pkgs[packageName] = next
	return diff
}

// KeysOf returns the current key set for (sessionId, packageName), in
// insertion order. Returns nil if the package has no subscriptions.
func (r *Registry) KeysOf(sessionID, packageName string) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkgs, ok := r.bySession[sessionID]
	if !ok {
		return nil
	}
	e, ok := pkgs[packageName]
	if !ok {
		return nil
	}
	out := make([]Key, len(e.order))
	copy(out, e.order)
	return out
}

// SubscribersOf returns the packageNames in sessionID subscribed to
// effectiveKey, in insertion order of first-seen across packages iterated in
// the registry's internal order (cross-package order is unspecified per
// spec.md §4.2).
func (r *Registry) SubscribersOf(sessionID string, effectiveKey Key) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkgs, ok := r.bySession[sessionID]
	if !ok {
		return nil
	}
	var out []string
	for pkg, e := range pkgs {
		if _, subscribed := e.set[effectiveKey]; subscribed {
			out = append(out, pkg)
		}
	}
	return out
}

// MinimalLanguageSubscriptions returns the union of every transcription:* and
// translation:* key currently subscribed by any package in sessionID
// (spec.md §4.2). The order is unspecified; callers treat it as a set.
func (r *Registry) MinimalLanguageSubscriptions(sessionID string) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkgs, ok := r.bySession[sessionID]
	if !ok {
		return nil
	}
	seen := make(map[Key]struct{})
	var out []Key
	for _, e := range pkgs {
		for _, k := range e.order {
			if !k.IsLanguageKey() {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// HasMediaSubscriptions reports whether any package in sessionID subscribes
// to a key that requires microphone capture (spec.md §4.2).
func (r *Registry) HasMediaSubscriptions(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkgs, ok := r.bySession[sessionID]
	if !ok {
		return false
	}
	for _, e := range pkgs {
		for _, k := range e.order {
			if k.requiresMicrophone() {
				return true
			}
		}
	}
	return false
}

// Remove drops packageName's entries for sessionID (spec.md §4.2, used by
// stopApp). It is a no-op if the package has no entries.
func (r *Registry) Remove(sessionID, packageName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pkgs, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	delete(pkgs, packageName)
	if len(pkgs) == 0 {
		delete(r.bySession, sessionID)
	}
}

// RemoveSession drops every entry for sessionID. Called on endSession.
func (r *Registry) RemoveSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, sessionID)
}
