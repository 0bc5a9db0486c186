package herrors_test

import (
	"context"
	"errors"
	"testing"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/stretchr/testify/require"
)

func TestIsTransient_MessageSniffing(t *testing.T) {
	require.True(t, herrors.IsTransient(errors.New("dial tcp: connection refused")))
	require.True(t, herrors.IsTransient(errors.New("read timeout after 5s")))
	require.False(t, herrors.IsTransient(errors.New("invalid input")))
}

func TestIsTransient_CancellationNeverTransient(t *testing.T) {
	require.False(t, herrors.IsTransient(context.Canceled))
	require.False(t, herrors.IsTransient(context.DeadlineExceeded))

	wrapped := herrors.Wrap(herrors.CodeTransient, "timeout waiting", context.Canceled)
	// Even though it wraps context.Canceled, an AppError explicitly
	// coded Transient is honored by code first.
	require.True(t, herrors.IsTransient(wrapped))
}

func TestIsTransient_CodedDBError(t *testing.T) {
	err := codedErr{code: "connection_reset"}
	require.True(t, herrors.IsTransient(err))

	require.False(t, herrors.IsTransient(codedErr{code: "syntax_error"}))
}

func TestIsTransient_InnerPropagation(t *testing.T) {
	inner := errors.New("server busy, connection pool exhausted")
	wrapped := herrors.Wrap(herrors.CodePermanent, "outer", inner)
	require.True(t, herrors.IsTransient(wrapped))
}

func TestIsCatastrophic(t *testing.T) {
	require.True(t, herrors.IsCatastrophic(herrors.New(herrors.CodeCatastrophic, "oom")))
	require.False(t, herrors.IsCatastrophic(errors.New("plain")))
}

type codedErr struct{ code string }

func (c codedErr) Error() string     { return "db error: " + c.code }
func (c codedErr) ErrorCode() string { return c.code }
