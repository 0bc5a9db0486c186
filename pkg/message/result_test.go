package message_test

import (
	"errors"
	"testing"

	"github.com/heromessaging/messaging/pkg/message"
	"github.com/stretchr/testify/require"
)

func TestBatchResult_EmptyIsVacuouslyBoth(t *testing.T) {
	b := message.NewBatchResult(nil)
	require.True(t, b.AllSucceeded())
	require.True(t, b.AllFailed())
	require.False(t, b.AnySucceeded())
	require.Equal(t, 0, b.Total())
}

func TestBatchResult_MixedPreservesOrder(t *testing.T) {
	results := []message.Result{
		message.Success("a", nil),
		message.Failure(errors.New("boom"), nil),
		message.Success("c", nil),
	}
	b := message.NewBatchResult(results)

	require.Equal(t, 3, b.Total())
	require.False(t, b.AllSucceeded())
	require.False(t, b.AllFailed())
	require.True(t, b.AnySucceeded())
	require.Len(t, b.Successes(), 2)
	require.Len(t, b.Failures(), 1)
	require.Equal(t, "a", b.At(0).Payload())
	require.True(t, b.At(1).Failed())
}

func TestResult_Duplicate(t *testing.T) {
	r := message.SuccessDuplicate(nil)
	require.True(t, r.Succeeded())
	require.True(t, r.Duplicate())
}
