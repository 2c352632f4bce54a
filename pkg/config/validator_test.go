package config

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validatedConfig struct {
	Mode     string `validate:"required,oneof=fast slow"`
	PoolSize int    `validate:"min=1,max=64"`
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		cfg     any
		wantErr error
		msg     string
	}{
		{name: "valid", cfg: &validatedConfig{Mode: "fast", PoolSize: 4}},
		{name: "nil", cfg: nil, wantErr: ErrNilConfig},
		{name: "bad enum", cfg: &validatedConfig{Mode: "warp", PoolSize: 4}, wantErr: ErrValidationFailed, msg: "must be one of [fast slow]"},
		{name: "missing", cfg: &validatedConfig{PoolSize: 4}, wantErr: ErrValidationFailed, msg: "'Mode' is required"},
		{name: "too large", cfg: &validatedConfig{Mode: "slow", PoolSize: 100}, wantErr: ErrValidationFailed, msg: "at most 64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.cfg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestValidator_CustomRule(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.RegisterValidation("even", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	}))

	assert.NoError(t, v.ValidateField(4, "even"))
	err := v.ValidateField(3, "even")
	assert.True(t, errors.Is(err, ErrValidationFailed))
}
