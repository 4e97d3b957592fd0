package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapErrClassification(t *testing.T) {
	t.Run("deadline exceeded becomes TimeoutError", func(t *testing.T) {
		err := wrapErr("primary", context.DeadlineExceeded)
		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, "primary", timeoutErr.Backend)
	})

	t.Run("wrapped deadline is still a TimeoutError", func(t *testing.T) {
		wrapped := errors.Join(errors.New("request failed"), context.DeadlineExceeded)
		err := wrapErr("primary", wrapped)
		var timeoutErr *TimeoutError
		assert.ErrorAs(t, err, &timeoutErr)
	})

	t.Run("other errors become ProviderError", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := wrapErr("fallback", cause)
		var providerErr *ProviderError
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, "fallback", providerErr.Backend)
		assert.ErrorIs(t, err, cause)
	})
}

func TestStubBackendScript(t *testing.T) {
	boom := errors.New("boom")
	stub := NewStubBackend("stub",
		StubResponse{Text: "first"},
		StubResponse{Err: boom},
		StubResponse{Text: "last"},
	)

	ctx := context.Background()

	out, err := stub.Infer(ctx, "p1", ModelConfig{})
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	_, err = stub.Infer(ctx, "p2", ModelConfig{})
	assert.ErrorIs(t, err, boom)

	// The last scripted entry repeats once the script is exhausted.
	for i := 0; i < 3; i++ {
		out, err = stub.Infer(ctx, "p3", ModelConfig{})
		require.NoError(t, err)
		assert.Equal(t, "last", out)
	}

	assert.Equal(t, 5, stub.Calls())
	assert.Equal(t, []string{"p1", "p2", "p3", "p3", "p3"}, stub.Prompts())
}

func TestStubBackendHonorsContext(t *testing.T) {
	stub := NewStubBackend("stub", StubResponse{Text: "unused"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := stub.Infer(ctx, "p", ModelConfig{})
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}
