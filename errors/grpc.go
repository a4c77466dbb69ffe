package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var codeOf = []struct {
	err  error
	code codes.Code
}{
	{ErrInvalidCredentials, codes.Unauthenticated},
	{ErrNotAuthenticated, codes.Unauthenticated},
	{ErrUserAlreadyExists, codes.AlreadyExists},
	{ErrInvalidPassword, codes.InvalidArgument},
	{ErrEmptyBody, codes.InvalidArgument},
	{ErrBodyTooLong, codes.InvalidArgument},
	{ErrInvalidRecord, codes.InvalidArgument},
	{ErrSendTimeout, codes.DeadlineExceeded},
	{ErrStoreWrite, codes.Unavailable},
	{ErrConnectionLost, codes.Unavailable},
	{ErrStoreClosed, codes.Unavailable},
	{ErrTokenGeneration, codes.Internal},
}

// MapToGRPCError converts a sentinel error into a gRPC status.
// The sentinel message is kept so FromGRPCError can rebuild it on the client side.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, ErrSendTimeout.Error())
	case stderrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	for _, c := range codeOf {
		if stderrors.Is(err, c.err) {
			return status.Error(c.code, c.err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// FromGRPCError rebuilds the sentinel error carried by a gRPC status.
// Unknown statuses are returned wrapped as they are.
func FromGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, c := range codeOf {
		if st.Code() == c.code && st.Message() == c.err.Error() {
			return c.err
		}
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrSendTimeout, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, st.Message())
	}
	return err
}
