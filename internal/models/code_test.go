package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MDT-004", "MDT-004"},
		{"mdt-4", "MDT-004"},
		{"mdt-66", "MDT-066"},
		{"MDT-1234", "MDT-1234"},
		{"  proj-7  ", "PROJ-007"},
	}
	for _, tt := range tests {
		got, err := NormalizeCode(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNormalizeCode_Invalid(t *testing.T) {
	for _, in := range []string{"", "MDT", "MDT-", "-004", "MDT-abc", "MDT 004", "4-MDT"} {
		_, err := NormalizeCode(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid(), "status %s", s)
	}
	assert.False(t, Status("Done").Valid())
	assert.False(t, Status("").Valid())
}

func TestTypeValid(t *testing.T) {
	for _, typ := range AllTypes {
		assert.True(t, typ.Valid(), "type %s", typ)
	}
	assert.False(t, Type("Feature").Valid())
}

func TestPriorityValid(t *testing.T) {
	assert.True(t, PriorityCritical.Valid())
	assert.False(t, Priority("Urgent").Valid())
}
