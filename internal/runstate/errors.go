package runstate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStoreCorruption marks a canonical manifest that failed to parse.
	ErrStoreCorruption = errors.New("store corruption")
	// ErrUnrecoverable marks a run whose manifest and backup are both unreadable.
	ErrUnrecoverable = errors.New("store unrecoverable")
	// ErrLockContention marks a write-mode open refused because another writer holds the run.
	ErrLockContention = errors.New("run lock contention")
	// ErrCollaborator marks a per-item failure reported by an external collaborator.
	ErrCollaborator = errors.New("collaborator error")
	// ErrRunAborted marks a run stopped before completion at the user's request.
	ErrRunAborted = errors.New("run aborted")
	// ErrValidation marks a mutation that would violate a store invariant.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable run or collaborator configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrValidation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "store failure"
	}
	return strings.Join(parts, ": ")
}
