package grafana

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &APIError{Kind: KindConflict, Operation: "create", UID: "u"})

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsConflict(err))
	assert.False(t, IsFatal(err))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestKindOf_NonAPIErrors(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(errors.New("connection reset")))
	assert.Equal(t, KindTransient, KindOf(context.DeadlineExceeded))
	assert.False(t, IsTransient(nil))
}

func TestTransportError(t *testing.T) {
	err := transportError("update", "u", fmt.Errorf("dial: %w", context.DeadlineExceeded))

	assert.Equal(t, KindTransient, err.Kind)
	assert.Equal(t, "request timed out", err.Message)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "grafana update u: transient")
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "fatal", KindFatal.String())
	assert.Equal(t, "unknown", ErrorKind(42).String())
}
