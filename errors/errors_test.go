package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	original := New("disk full")
	wrapped := Wrapf(original, "save checkpoint for job %s", "42")

	assert.Contains(t, wrapped.Error(), "save checkpoint for job 42")
	assert.Contains(t, wrapped.Error(), "disk full")
	assert.True(t, Is(wrapped, original))
}

type reasonError struct {
	reason string
}

func (e *reasonError) Error() string { return e.reason }

func TestAsThroughWrap(t *testing.T) {
	wrapped := Wrap(&reasonError{reason: "not_found"}, "analyze")

	var target *reasonError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "not_found", target.reason)
}

func TestDetailsAndHints(t *testing.T) {
	err := New("cooldown active")
	err = WithDetail(err, "Until: 12:00")
	err = WithHint(err, "wait or clear the cooldown")

	assert.Equal(t, []string{"Until: 12:00"}, GetAllDetails(err))
	assert.Equal(t, []string{"wait or clear the cooldown"}, GetAllHints(err))
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found wrapped", Wrap(ErrNotFound, "job 7"), IsNotFoundError, true},
		{"invalid request", Wrapf(ErrInvalidRequest, "state %q", "done"), IsInvalidRequestError, true},
		{"unrelated", New("boom"), IsNotFoundError, false},
		{"nil", nil, IsNotFoundError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	err := Wrap(ErrConflict, "am.toml exists")
	assert.True(t, Is(err, ErrConflict))
	assert.False(t, Is(err, ErrNotFound))
}
