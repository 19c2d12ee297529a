package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_KeepsInnermostCode(t *testing.T) {
	inner := InvalidParameter("alpha %v must be >= 0", -1)
	err := Wrapf(Wrap(inner, "compute impact"), "run %s", "r1")

	assert.Equal(t, CodeInvalidParameter, GetCode(err))
	assert.True(t, IsCode(err, CodeInvalidParameter))
	assert.Equal(t, "run r1: compute impact: alpha -1 must be >= 0", err.Error())
	assert.True(t, stderrors.Is(err, inner))
}

func TestWrap_PlainError(t *testing.T) {
	err := Wrap(fmt.Errorf("boom"), "stage failed")
	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, Wrapf(nil, "ignored %d", 1))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeDatabaseError, fmt.Errorf("connection refused"))
	assert.Equal(t, CodeDatabaseError, GetCode(err))
	assert.Equal(t, "connection refused", err.Error())

	recoded := WithCode(CodeConfigInvalid, NotFound("period"))
	assert.Equal(t, CodeConfigInvalid, GetCode(recoded))
	assert.Equal(t, "period not found", recoded.Error())
	assert.Nil(t, WithCode(CodeConfigInvalid, nil))
}

func TestGetCode_Unknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
	assert.False(t, IsCode(nil, CodeNotFound))
	assert.False(t, IsAppError(fmt.Errorf("plain")))
	assert.True(t, IsAppError(fmt.Errorf("wrapped: %w", InvalidInput("bad row"))))
}
