package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lmittmann/w3"

	"github.com/wagmi-world/protocol/publish/artifacts"
)

var (
	ErrArtifactNotFound     = artifacts.ErrNotFound
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrNetwork              = errors.New("network error")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrRevert               = errors.New("execution reverted")
)

// classifyRPCError maps a node or transport failure onto the error taxonomy.
// Context errors pass through untouched so callers can tell a cancellation
// apart from a chain failure.
func classifyRPCError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %s: %w", ErrInsufficientFunds, op, err)
	case strings.Contains(msg, "revert"):
		return fmt.Errorf("%w: %s: %w", ErrRevert, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
	}
}

// isNotFound reports whether err is w3's answer to a null result, which is
// how a node says a receipt does not exist yet.
func isNotFound(err error) bool {
	var callErrs w3.CallErrors
	if !errors.As(err, &callErrs) || len(callErrs) != 1 || callErrs[0] == nil {
		return false
	}
	return callErrs[0].Error() == "not found"
}
