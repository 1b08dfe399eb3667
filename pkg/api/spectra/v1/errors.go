package spectrav1

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// Trailer keys carrying a spectra error code.
const (
	trailerDomain = "spectra-error-domain"
	trailerCode   = "spectra-error-code"
)

// Error carries an RPC failure with its spectra error code. It unwraps to
// the errcode sentinel so errors.Is works across the wire.
type Error struct {
	Code    codes.Code
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

// Unwrap returns the errcode sentinel, if one was transmitted.
func (e *Error) Unwrap() error { return e.cause }

// EncodeError converts err to a gRPC status and stores its spectra code in
// the call trailer.
func EncodeError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	domain, code := errcode.CodeOf(err)
	if domain != errcode.DomainNone {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(
			trailerDomain, string(domain),
			trailerCode, strconv.Itoa(code),
		))
	}
	return status.Error(grpcCode(err), err.Error())
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, errcode.ErrParameterOutOfRange),
		errors.Is(err, errcode.ErrPathTooLong),
		errors.Is(err, errcode.ErrParsingFailed),
		errors.Is(err, errcode.ErrDataParameterOutOfRange):
		return codes.InvalidArgument
	case errors.Is(err, errcode.ErrNotSupported),
		errors.Is(err, errcode.ErrSwitchingNotAllowed):
		return codes.Unimplemented
	}
	if domain, _ := errcode.CodeOf(err); domain != errcode.DomainNone {
		return codes.FailedPrecondition
	}
	return codes.Internal
}

// DecodeError rebuilds an error returned by Call. Errors without a spectra
// code in md come back as *Error with a nil cause.
func DecodeError(err error, md metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	e := &Error{Code: st.Code(), Message: st.Message()}
	domains, codesV := md.Get(trailerDomain), md.Get(trailerCode)
	if len(domains) > 0 && len(codesV) > 0 {
		if n, convErr := strconv.Atoi(codesV[0]); convErr == nil {
			e.cause = errcode.FromCode(errcode.Domain(domains[0]), n)
		}
	}
	return e
}
