package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
)

type vehicleRequest struct {
	PlateNumber string `json:"plateNumber" validate:"required,max=20"`
	Year        *int   `json:"year" validate:"omitempty,gte=1990,lte=2030"`
	Type        string `json:"type" validate:"omitempty,oneof=warehouse port"`
}

func TestValidate(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	year := func(y int) *int { return &y }

	tests := []struct {
		name   string
		req    vehicleRequest
		fields map[string]string
	}{
		{
			name: "valid",
			req:  vehicleRequest{PlateNumber: "12345-A-6", Year: year(2020)},
		},
		{
			name:   "missing plate",
			req:    vehicleRequest{},
			fields: map[string]string{"plateNumber": "is required"},
		},
		{
			name: "out of range year and bad type",
			req:  vehicleRequest{PlateNumber: "X", Year: year(1989), Type: "garage"},
			fields: map[string]string{
				"year": "must be greater than or equal to 1990",
				"type": "must be one of: warehouse port",
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Validate(tt.req)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Equal(t, apperr.EInvalid, apperr.Code(err))

			var aerr *apperr.Error
			require.True(t, errors.As(err, &aerr))
			got := map[string]string{}
			for _, d := range aerr.Details {
				got[d.Field] = d.Message
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestValidateNonStruct(t *testing.T) {
	t.Parallel()

	err := NewValidator().Validate("plain string")
	require.Error(t, err)
	assert.NotEqual(t, apperr.EInvalid, apperr.Code(err))
}
