package capture

import "fmt"

// PermissionKind names one of the three independent capture permissions.
type PermissionKind string

const (
	PermissionScreen     PermissionKind = "screen recording"
	PermissionCamera     PermissionKind = "camera"
	PermissionMicrophone PermissionKind = "microphone"
)

// PermissionError is returned when the OS refuses a capture permission. It
// is a first-class setup error; callers surface it to the user rather than
// retrying.
type PermissionError struct {
	Kind PermissionKind
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("grant %s permission to record", e.Kind)
}

// Permissions gates capture on the OS permission state.
type Permissions interface {
	// Ensure requests the permission if needed and returns a
	// *PermissionError if access is refused.
	Ensure(kind PermissionKind) error
}
