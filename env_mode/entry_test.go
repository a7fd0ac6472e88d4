package env_mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnv(t *testing.T) {
	tests := map[string]ENV_MODE{
		"":            DevMode,
		"dev":         DevMode,
		" PROD ":      ProMode,
		"production":  ProMode,
		"testing":     TestMode,
		"staging-eu1": DevMode,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseEnv(in), "ParseEnv(%q)", in)
	}
}

func TestSetMode(t *testing.T) {
	prev := Mode()
	t.Cleanup(func() { SetMode(prev) })

	SetMode(TestMode)
	assert.Equal(t, TestMode, Mode())
	assert.Equal(t, []string{"test"}, Mode().Suffixes())
}
