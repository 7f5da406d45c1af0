package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Version(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2026-01-01"), want: UnknownValue},
		{name: "valid version", ctx: NewContext("1.4.0", "2026-01-01"), want: "1.4.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.GetVersion())
		})
	}
}

func TestContext_BuildDate(t *testing.T) {
	assert.Equal(t, UnknownValue, NewContext("1.4.0", "").GetBuildDate())
	assert.Equal(t, "2026-01-01", NewContext("1.4.0", "2026-01-01").GetBuildDate())
}

func TestContext_Release(t *testing.T) {
	assert.Equal(t, "storemigrate@1.4.0", NewContext("1.4.0", "").Release())
	var nilCtx *Context
	assert.Equal(t, "storemigrate@unknown", nilCtx.Release())
}
