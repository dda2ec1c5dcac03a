package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceIDRoundTrip(t *testing.T) {
	in, err := NewInstanceID()
	require.NoError(t, err)

	out, err := ParseInstanceID(in.String())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNewInstanceIDNeverZero(t *testing.T) {
	for i := 0; i < 100; i++ {
		v, err := NewInstanceID()
		require.NoError(t, err)
		assert.NotZero(t, v)
	}
}

func TestAppKeyValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     AppKey
		wantErr bool
	}{
		{"valid", AppKey{Name: "tech.flecs.flunder", Version: "3.0.0"}, false},
		{"uppercase rejected", AppKey{Name: "Tech.Flecs", Version: "1.0.0"}, true},
		{"empty name", AppKey{Name: "", Version: "1.0.0"}, true},
		{"empty version", AppKey{Name: "tech.flecs.flunder", Version: ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAppKeyString(t *testing.T) {
	k := AppKey{Name: "tech.flecs.flunder", Version: "3.0.0"}
	assert.Equal(t, "tech.flecs.flunder#3.0.0", k.String())
}
