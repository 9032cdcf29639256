package apperr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Word string `json:"word" validate:"required"`
	Mode string `json:"mode" validate:"required,oneof=a b"`
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(sample{Word: "apple", Mode: "a"}))

	err := Validate(sample{Mode: "c"})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidInput))

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "word is required")
	assert.Contains(t, appErr.Message, "mode must be one of: a, b")
}
