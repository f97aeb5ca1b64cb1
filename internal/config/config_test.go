package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Room struct {
		Grace time.Duration
		Chat  int
	}
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		file   string
		env    map[string]string
		assert func(t *testing.T, c testConfig)
	}{
		"keeps defaults without a file": {
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, int32(8080), c.HTTP.Port)
				assert.Equal(t, 30*time.Second, c.Room.Grace)
			},
		},
		"file overrides defaults": {
			file: "http:\n  port: 9090\nroom:\n  grace: 1m\n",
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, int32(9090), c.HTTP.Port)
				assert.Equal(t, time.Minute, c.Room.Grace)
				assert.Equal(t, 200, c.Room.Chat)
			},
		},
		"environment overrides the file": {
			file: "http:\n  port: 9090\n",
			env:  map[string]string{"LIVEQUIZ_HTTP_PORT": "7070"},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, int32(7070), c.HTTP.Port)
			},
		},
		"environment overrides defaults the file leaves out": {
			file: "http:\n  port: 9090\n",
			env:  map[string]string{"LIVEQUIZ_ROOM_GRACE": "1m"},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, int32(9090), c.HTTP.Port)
				assert.Equal(t, time.Minute, c.Room.Grace)
				assert.Equal(t, 200, c.Room.Chat)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var file string
			if tt.file != "" {
				file = filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(file, []byte(tt.file), 0o600))
			}

			var c testConfig
			c.HTTP.Port = 8080
			c.Room.Grace = 30 * time.Second
			c.Room.Chat = 200

			require.NoError(t, config.Load(file, &c))
			tt.assert(t, c)
		})
	}
}
