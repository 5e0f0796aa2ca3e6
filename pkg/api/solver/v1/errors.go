package solverv1

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// ToStatus converts a solver error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, solver.ErrUnavailable):
		code = codes.Unavailable
	case errors.Is(err, solver.ErrInvalidConfiguration):
		code = codes.InvalidArgument
	case errors.Is(err, solver.ErrUnknownHandle):
		code = codes.NotFound
	case errors.Is(err, solver.ErrDuplicateConfiguration):
		code = codes.AlreadyExists
	case errors.Is(err, solver.ErrNotSolved):
		code = codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

// FromStatus converts a gRPC error back into the matching solver or
// context error, keeping the server's message.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		sentinel = solver.ErrUnavailable
	case codes.InvalidArgument:
		sentinel = solver.ErrInvalidConfiguration
	case codes.NotFound:
		sentinel = solver.ErrUnknownHandle
	case codes.AlreadyExists:
		sentinel = solver.ErrDuplicateConfiguration
	case codes.FailedPrecondition:
		sentinel = solver.ErrNotSolved
	case codes.DeadlineExceeded:
		sentinel = context.DeadlineExceeded
	case codes.Canceled:
		sentinel = context.Canceled
	default:
		return err
	}
	return &remoteError{sentinel: sentinel, msg: st.Message()}
}

type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return "solver: " + e.msg }

func (e *remoteError) Unwrap() error { return e.sentinel }
