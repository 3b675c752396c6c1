package validate_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/almsbox/internal/validate"
)

type input struct {
	ID     uuid.UUID `validate:"required"`
	Amount int64     `validate:"gt=0"`
	Kind   string    `validate:"omitempty,oneof=image pdf doc"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, validate.Struct(input{ID: uuid.New(), Amount: 1, Kind: "pdf"}))
	require.NoError(t, validate.Struct(input{ID: uuid.New(), Amount: 1}))

	err := validate.Struct(input{Amount: 0, Kind: "zip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ID must satisfy required")
	assert.Contains(t, err.Error(), "Amount must satisfy gt=0")
	assert.Contains(t, err.Error(), "Kind must satisfy oneof=image pdf doc")
}
