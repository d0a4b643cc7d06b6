package chain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrRateLimited matches any UpstreamError caused by provider throttling.
var ErrRateLimited = errors.New("rate limited")

// rpcLimitExceeded is the JSON-RPC code several providers use for throttling.
const rpcLimitExceeded = -32005

// UpstreamError wraps a failed call to the chain RPC endpoint.
type UpstreamError struct {
	Op          string
	Err         error
	RateLimited bool
}

func (e *UpstreamError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s: rate limited: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRateLimited) see through the wrapper.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited
}

// RateLimitHit reports whether the provider throttled the call.
func (e *UpstreamError) RateLimitHit() bool {
	return e.RateLimited
}

// IsRateLimited reports whether err signals "too many requests".
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return rateLimitCause(err)
}

func wrapUpstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &UpstreamError{Op: op, Err: err, RateLimited: rateLimitCause(err)}
}

func rateLimitCause(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcLimitExceeded {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}
