package engine

import (
	"errors"
	"fmt"

	"github.com/me/deskmove/pkg/model"
)

// Kind classifies a fatal stage error.
type Kind string

const (
	// KindValidation blocks a job before any membership change.
	KindValidation Kind = "validation"
	// KindMembership means a membership change failed; its effect is unknown.
	KindMembership Kind = "membership"
	// KindTimeout means a stage with a hard limit ran past it.
	KindTimeout Kind = "timeout"
	// KindProvisioning means a target-policy resource reported failed.
	KindProvisioning Kind = "provisioning"
	// KindRejected means the backend refused a read, for example for lack
	// of permission. Retrying cannot help.
	KindRejected Kind = "rejected"
)

// ErrNoMatchingResource is wrapped by the validation error raised when no
// resource of the user belongs to a source group policy.
var ErrNoMatchingResource = errors.New("no matching resource")

// StageError is a fatal error raised while processing a stage. The job
// that produced it must be failed; no change already made is rolled back.
type StageError struct {
	Kind  Kind
	Stage model.Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(kind Kind, stage model.Stage, format string, args ...any) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of a StageError in err's chain, or "".
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
