package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netplay.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
server = " ws://localhost:9000 "
nick = "player2"
keep_alive = "10s"
deny_peripheral_controls = [" cartridge_load_file ", ""]
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:9000", cfg.ServerURL)
	require.Equal(t, "player2", cfg.Nick)
	require.Equal(t, 10*time.Second, cfg.KeepAliveInterval)
	require.Equal(t, []string{"CARTRIDGE_LOAD_FILE"}, cfg.DenyPeripheralControls)

	// Untouched keys keep their defaults.
	def := Default()
	require.Equal(t, def.SessionType, cfg.SessionType)
	require.Equal(t, def.FragmentSize, cfg.FragmentSize)
	require.Equal(t, def.LeaveGrace, cfg.LeaveGrace)
	require.Empty(t, cfg.DenyMachineControls)
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"bad duration":       `keep_alive = "soon"`,
		"zero keep alive":    `keep_alive = "0s"`,
		"negative fragments": `fragment_size = -1`,
		"not toml":           `server = `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
