package facetgrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/facetroute"
	"github.com/blockberries/facetroute/merkle"
)

// ErrorDomain is the errdetails.ErrorInfo domain of dispatcher errors.
const ErrorDomain = "facetroute"

// grpcCode maps an error kind to the gRPC code callers should branch on.
func grpcCode(k facetroute.Kind) codes.Code {
	switch k {
	case facetroute.KindRootZero, facetroute.KindBadEpoch, facetroute.KindInvalidProof:
		return codes.InvalidArgument
	case facetroute.KindNoPendingRoot, facetroute.KindActivationNotReady, facetroute.KindFrozen:
		return codes.FailedPrecondition
	case facetroute.KindUnauthorized:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// toStatus converts a dispatcher error to a gRPC status error carrying
// the kind as ErrorInfo.Reason. Errors without a kind become Internal.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	e, ok := facetroute.AsError(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	st := status.New(grpcCode(e.Kind), err.Error())
	md := map[string]string{}
	if e.Op != "" {
		md["op"] = e.Op
	}
	if e.Reason != "" {
		md["reason"] = e.Reason
	}
	if e.Err != nil {
		md["cause"] = e.Err.Error()
		if errors.Is(e.Err, merkle.ErrMalformedProof) {
			md["malformed_proof"] = "true"
		}
	}
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   e.Kind.String(),
		Domain:   ErrorDomain,
		Metadata: md,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// fromStatus rebuilds a *facetroute.Error from a status carrying a
// dispatcher ErrorInfo, so errors.Is against the sentinels works on
// the client. Other errors are returned unchanged.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		kind := facetroute.ParseKind(info.GetReason())
		if kind == facetroute.KindUnknown {
			continue
		}
		md := info.GetMetadata()
		out := &facetroute.Error{Kind: kind, Op: md["op"], Reason: md["reason"]}
		switch {
		case md["malformed_proof"] == "true":
			out.Err = fmt.Errorf("%w%s", merkle.ErrMalformedProof,
				strings.TrimPrefix(md["cause"], merkle.ErrMalformedProof.Error()))
		case md["cause"] != "":
			out.Err = errors.New(md["cause"])
		}
		return out
	}
	return err
}
