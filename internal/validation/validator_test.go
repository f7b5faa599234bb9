package validation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

type sample struct {
	UserID string  `json:"user_id" validate:"required"`
	Amount float64 `json:"amount" validate:"gte=0,finite"`
	Kind   string  `json:"kind" validate:"omitempty,oneof=a b"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	t.Parallel()

	err := Struct(sample{Amount: -1, Kind: "c"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	require.ElementsMatch(t, []string{"user_id", "amount", "kind"}, fields)
	require.Contains(t, err.Error(), "kind failed oneof=a b")
}

func TestStructRejectsNonFiniteNumbers(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Struct(sample{UserID: "u", Amount: math.Inf(1)}), domain.ErrInvalidInput)
	require.NoError(t, Struct(sample{UserID: "u", Amount: 12.5}))
}
