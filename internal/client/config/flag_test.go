package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "overrides",
			args: []string{"cmd", "-u", "https://broker.example/r", "-g", "3s", "-p", "/ok, /done ,",
				"-s", "mongo", "-m", "mongodb://db", "-headless=true", "-log-level", "debug"},
			expected: &Config{
				RegistrationURL: "https://broker.example/r",
				GraceDelay:      3 * time.Second,
				SuccessPatterns: []string{"/ok", "/done"},
				StoreBackend:    "mongo",
				MongoURI:        "mongodb://db",
				Headless:        true,
				LogLevel:        "debug",
			},
		},
		{
			name:     "unknown flags are ignored",
			args:     []string{"cmd", "-z", "1", "-f", "other.db"},
			expected: &Config{SessionDBPath: "other.db"},
		},
		{name: "bad duration", args: []string{"cmd", "-g", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a,,b "))
}
