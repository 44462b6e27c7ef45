package validate

import (
	"testing"

	pferrors "github.com/angelmondragon/vertical-shop/pkg/errors"
	"github.com/stretchr/testify/require"
)

type sampleCommand struct {
	Name     string `json:"name" validate:"required,max=5"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Internal string `json:"-" validate:"omitempty,min=2"`
}

func TestStructAcceptsValidInput(t *testing.T) {
	require.NoError(t, Struct(sampleCommand{Name: "ok", Quantity: 1}))
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	err := Struct(sampleCommand{Name: "", Quantity: -1, Internal: "x"})
	require.Error(t, err)

	typed := pferrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pferrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", details["name"])
	require.Equal(t, "must be greater than or equal to 0", details["quantity"])
	require.Equal(t, "must be at least 2", details["Internal"])
}

func TestStructReportsMax(t *testing.T) {
	err := Struct(sampleCommand{Name: "toolong"})
	typed := pferrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, "must be at most 5", typed.Details().(map[string]string)["name"])
}
