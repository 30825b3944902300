package fault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyInsufficientFunds(t *testing.T) {
	raw := errors.New("insufficient funds for gas * price + value: address 0xabc have 0 want 1000")

	err := Classify("send transaction", raw, Broadcast)
	require.Equal(t, InsufficientFunds, KindOf(err))
	require.True(t, Is(err, InsufficientFunds))
	require.False(t, Is(err, Broadcast))
	require.ErrorIs(t, err, raw)
}

func TestClassifyGenericBroadcast(t *testing.T) {
	err := Classify("send transaction", errors.New("transaction type not supported"), Broadcast)
	require.Equal(t, Broadcast, KindOf(err))
}

func TestClassifyRevertOnBroadcast(t *testing.T) {
	err := Classify("send transaction", errors.New("execution reverted: stage exists"), Broadcast)
	require.Equal(t, Revert, KindOf(err))
}

func TestClassifyRevertDuringEstimationStaysEstimation(t *testing.T) {
	err := Classify("estimate gas", errors.New("execution reverted: stage exists"), Estimation)
	require.Equal(t, Estimation, KindOf(err))
}

func TestClassifyRevertReasonWinsOverTransportWords(t *testing.T) {
	err := Classify("send transaction", errors.New("execution reverted: stage timeout exceeded"), Broadcast)
	require.Equal(t, Revert, KindOf(err))
	require.False(t, KindOf(err).Retryable())

	err = Classify("estimate gas", errors.New("execution reverted: unexpected eof in payload"), Estimation)
	require.Equal(t, Estimation, KindOf(err))

	err = Classify("estimate gas", errors.New("execution reverted: insufficient balance"), Estimation)
	require.Equal(t, Estimation, KindOf(err))
}

func TestClassifyEOFOnlyBySentinel(t *testing.T) {
	require.Equal(t, Connectivity, KindOf(Classify("call", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), Read)))
	require.Equal(t, Read, KindOf(Classify("call", errors.New("geoffrey not found"), Read)))
}

func TestClassifyConnectivity(t *testing.T) {
	err := Classify("pending nonce", fmt.Errorf("dial: %w", context.DeadlineExceeded), Read)
	require.Equal(t, Connectivity, KindOf(err))

	err = Classify("call", errors.New("Post \"http://localhost:8545\": dial tcp 127.0.0.1:8545: connect: connection refused"), Read)
	require.Equal(t, Connectivity, KindOf(err))
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	orig := New(Validation, "submit", "productId is required")
	err := Classify("anything", fmt.Errorf("wrapped: %w", orig), Broadcast)
	require.Equal(t, Validation, KindOf(err))
}

func TestKindOfUnclassified(t *testing.T) {
	require.Equal(t, Internal, KindOf(errors.New("boom")))
	require.False(t, Is(nil, Internal))
}

func TestNonceConflict(t *testing.T) {
	require.True(t, IsNonceConflict(errors.New("nonce too low: next nonce 7, tx nonce 5")))
	require.False(t, IsNonceConflict(errors.New("gas limit reached")))
}

func TestErrorMessage(t *testing.T) {
	err := New(Validation, "submit", "productId is required")
	require.Equal(t, "validation_error: submit: productId is required", err.Error())
	require.Equal(t, "productId is required", err.Message())
	require.False(t, Validation.Retryable())
	require.True(t, Connectivity.Retryable())
}
