// Package orcherrors defines the orchestrator's error taxonomy. Handlers in
// internal/httpapi map these kinds to HTTP status codes at the boundary;
// nothing below that boundary should know about status codes.
package orcherrors

import "fmt"

// ValidationError reports a malformed or disallowed request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidation builds a ValidationError from a format string.
func NewValidation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a referenced session, cluster, or definition
// does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NewNotFound builds a NotFoundError from a format string.
func NewNotFound(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// DockerCauseKind classifies the underlying Docker engine failure behind a
// DockerEnvError, mirroring the legacy runtime's per-exception-type handling.
type DockerCauseKind int

const (
	DockerCauseUnknown DockerCauseKind = iota
	DockerCauseImageNotFound
	DockerCauseContainerError
	DockerCauseAPIError
)

// DockerEnvError wraps a container-runtime failure with its cause kind.
type DockerEnvError struct {
	Kind DockerCauseKind
	Op   string
	Err  error
}

func (e *DockerEnvError) Error() string {
	return fmt.Sprintf("docker env: %s: %v", e.Op, e.Err)
}

func (e *DockerEnvError) Unwrap() error { return e.Err }

// NewDockerEnvError wraps err with the given cause kind and operation name.
func NewDockerEnvError(kind DockerCauseKind, op string, err error) error {
	return &DockerEnvError{Kind: kind, Op: op, Err: err}
}

// VMCauseKind classifies the underlying libvirt/qemu failure behind a
// VMEnvError.
type VMCauseKind int

const (
	VMCauseUnknown VMCauseKind = iota
	VMCauseOverlayFailure
	VMCauseLibvirtError
	VMCauseBootTimeout
)

// VMEnvError wraps a VM-runtime failure with its cause kind.
type VMEnvError struct {
	Kind VMCauseKind
	Op   string
	Err  error
}

func (e *VMEnvError) Error() string {
	return fmt.Sprintf("vm env: %s: %v", e.Op, e.Err)
}

func (e *VMEnvError) Unwrap() error { return e.Err }

// NewVMEnvError wraps err with the given cause kind and operation name.
func NewVMEnvError(kind VMCauseKind, op string, err error) error {
	return &VMEnvError{Kind: kind, Op: op, Err: err}
}

// NoAvailablePortsError signals that the port pool could not satisfy a
// request. Defined here (rather than re-exported from internal/portpool) so
// internal/httpapi has one taxonomy package to map against; portpool's own
// error satisfies the same interface shape and is wrapped into this kind at
// the service boundary.
type NoAvailablePortsError struct {
	Message string
}

func (e *NoAvailablePortsError) Error() string { return e.Message }

// RuntimeError is the catch-all for failures that don't fit a more specific
// kind — orchestration bookkeeping bugs, unexpected nil state, and the like.
type RuntimeError struct {
	Message string
	Err     error
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// NewRuntime wraps err as a RuntimeError with a message.
func NewRuntime(message string, err error) error {
	return &RuntimeError{Message: message, Err: err}
}
