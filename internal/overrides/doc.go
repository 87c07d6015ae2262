// Package overrides implements the optimistic mutation store.
//
// A LocalOverride records a user's intent to change one or more fields of a
// message or subscription before the backend has confirmed it. Overrides move
// through a small state machine:
//
//	optimistic -> confirmed -> removed
//	optimistic -> failed    -> removed
//
// Set is an immutable value: every operation returns a new Set and leaves the
// receiver untouched, so a session can apply transitions under its lock and
// keep previous states for comparison.
//
// Applying a change to an (entity, field) pair that already has a pending
// override replaces the pending value instead of stacking a second one. The
// older override loses that field, keeps any others, and is dropped entirely
// once it has none left. Confirm and Rollback of a dropped override are no-ops.
package overrides
