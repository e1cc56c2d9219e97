package tickets

import (
	"errors"
	"fmt"
)

// Business errors surfaced to REST/MCP callers. These indicate caller or
// data problems and are never silently swallowed, unlike the soft worktree
// and watcher failures which degrade by policy.
var (
	ErrNotFound         = errors.New("ticket not found")
	ErrSectionNotFound  = errors.New("section not found")
	ErrAmbiguousSection = errors.New("multiple sections match")

	// ErrInvalidInput marks caller input problems: malformed ticket codes,
	// unknown enum values, unknown attribute keys, wrong value shapes.
	// Transport layers map it to a client error status.
	ErrInvalidInput = errors.New("invalid input")
)

// NotFoundError builds a descriptive not-found error with enough context
// (code, project, attempted path) for the caller to self-correct.
func NotFoundError(code, project, path string) error {
	return fmt.Errorf("%w: %s in project %s (looked at %s)", ErrNotFound, code, project, path)
}
