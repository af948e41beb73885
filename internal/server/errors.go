package server

import (
	"context"
	"errors"

	"VaultLedger/internal/core"
	"VaultLedger/internal/query"
	"VaultLedger/internal/state"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = map[state.ErrorKind]codes.Code{
	state.KindValidation: codes.InvalidArgument,
	state.KindInvariant:  codes.Aborted,
	state.KindPolicy:     codes.FailedPrecondition,
	state.KindPermission: codes.PermissionDenied,
	state.KindArithmetic: codes.OutOfRange,
	state.KindNotFound:   codes.NotFound,
}

// toStatus converts an engine or query error into a gRPC status error. Ledger rejections
// keep their rule name as the message prefix.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, query.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, core.ErrRunnerStopped):
		return status.Error(codes.Unavailable, err.Error())
	}
	if kind, ok := state.KindOf(err); ok {
		return status.Error(kindCodes[kind], err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func invalidArg(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}
