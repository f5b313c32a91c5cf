package xauth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newAuthError(ReasonTokenExpired, nil))

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, ReasonTokenExpired, ReasonOf(err))
	assert.Equal(t, Reason(""), ReasonOf(errors.New("other")))
}

func TestAuthError_MessageAndCause(t *testing.T) {
	cause := errors.New("bad segment")
	err := newAuthError(ReasonInvalidSignature, cause)

	assert.Equal(t, "xauth: invalid signature: bad segment", err.Error())
	assert.Equal(t, "Invalid JWT signature", err.Message())
	assert.ErrorIs(t, err, cause)

	unknown := &AuthError{Reason: "custom"}
	assert.Equal(t, "xauth: custom", unknown.Error())
	assert.Equal(t, "Unauthorized", unknown.Message())
}
