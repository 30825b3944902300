package fault

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

var insufficientFundsPatterns = []string{
	"insufficient funds",
	"insufficient balance",
}

var revertPatterns = []string{
	"execution reverted",
	"vm execution error",
	"transaction reverted",
}

var connectivityPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"network is unreachable",
	"broken pipe",
	"timeout",
	"503 service unavailable",
	"502 bad gateway",
}

var nonceConflictPatterns = []string{
	"nonce too low",
	"nonce too high",
	"already known",
	"replacement transaction underpriced",
	"invalid nonce",
}

// Classify maps a raw chain error onto the taxonomy. A revert message is
// matched first, before any transport wording in its reason: it turns a
// broadcast failure into Revert and leaves any other fallback as is. Insufficient funds and
// connectivity conditions then win over the per-operation fallback.
func Classify(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}

	kind := fallback
	switch {
	case matchAny(err, revertPatterns):
		if fallback == Broadcast {
			kind = Revert
		}
	case IsInsufficientFunds(err):
		kind = InsufficientFunds
	case IsConnectivity(err):
		kind = Connectivity
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsInsufficientFunds reports whether the node rejected the call because the
// account cannot cover gas
func IsInsufficientFunds(err error) bool {
	return matchAny(err, insufficientFundsPatterns)
}

// IsConnectivity reports whether err looks like the endpoint was unreachable
// or timed out
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return matchAny(err, connectivityPatterns)
}

// IsNonceConflict reports whether a broadcast was rejected because the
// nonce no longer matches the account's sequence on the node
func IsNonceConflict(err error) bool {
	return matchAny(err, nonceConflictPatterns)
}

func matchAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
