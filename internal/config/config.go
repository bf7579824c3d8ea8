// Package config holds the NetPlay client configuration and its TOML loader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/1ureka/netplay/internal/protocol"
)

const (
	DefaultSessionType       = "wmsx"
	DefaultKeepAliveInterval = 30 * time.Second
	DefaultLeaveGrace        = 300 * time.Millisecond
)

// Config stores every parameter of a NetPlay client.
type Config struct {
	ServerURL   string // Rendezvous WebSocket URL, e.g. ws://host:port
	SessionType string
	Nick        string

	FragmentSize      int           // Largest payload per DataChannel frame
	KeepAliveInterval time.Duration // Rendezvous liveness period
	LeaveGrace        time.Duration // Delay before closing the peer on a graceful leave

	// Control names denied in addition to the built-in sets.
	DenyMachineControls    []string
	DenyPeripheralControls []string

	Debug bool
}

// Default returns a Config with every tunable at its default.
func Default() Config {
	return Config{
		SessionType:       DefaultSessionType,
		FragmentSize:      protocol.DefaultFragmentSize,
		KeepAliveInterval: DefaultKeepAliveInterval,
		LeaveGrace:        DefaultLeaveGrace,
	}
}

type fileConfig struct {
	Server                 string   `toml:"server"`
	SessionType            string   `toml:"session_type"`
	Nick                   string   `toml:"nick"`
	FragmentSize           int      `toml:"fragment_size"`
	KeepAlive              string   `toml:"keep_alive"`
	LeaveGrace             string   `toml:"leave_grace"`
	DenyMachineControls    []string `toml:"deny_machine_controls"`
	DenyPeripheralControls []string `toml:"deny_peripheral_controls"`
	Debug                  bool     `toml:"debug"`
}

// LoadFile reads a TOML file on top of Default. Keys absent from the file
// keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load netplay config: %w", err)
	}

	if meta.IsDefined("server") {
		cfg.ServerURL = strings.TrimSpace(raw.Server)
	}

	if meta.IsDefined("session_type") {
		if st := strings.TrimSpace(raw.SessionType); st != "" {
			cfg.SessionType = st
		}
	}

	if meta.IsDefined("nick") {
		cfg.Nick = strings.TrimSpace(raw.Nick)
	}

	if meta.IsDefined("fragment_size") {
		if raw.FragmentSize <= 0 {
			return Config{}, fmt.Errorf("fragment_size must be positive, got %d", raw.FragmentSize)
		}
		cfg.FragmentSize = raw.FragmentSize
	}

	if meta.IsDefined("keep_alive") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.KeepAlive))
		if err != nil {
			return Config{}, fmt.Errorf("parse keep_alive: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("keep_alive must be positive, got %s", d)
		}
		cfg.KeepAliveInterval = d
	}

	if meta.IsDefined("leave_grace") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.LeaveGrace))
		if err != nil {
			return Config{}, fmt.Errorf("parse leave_grace: %w", err)
		}
		cfg.LeaveGrace = d
	}

	if meta.IsDefined("deny_machine_controls") {
		cfg.DenyMachineControls = normalizeNames(raw.DenyMachineControls)
	}

	if meta.IsDefined("deny_peripheral_controls") {
		cfg.DenyPeripheralControls = normalizeNames(raw.DenyPeripheralControls)
	}

	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	return cfg, nil
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
