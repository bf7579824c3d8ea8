// NetPlay: CLI entry point.
//
// This tool joins a hosted NetPlay session as a client: it registers with the
// rendezvous server over WebSocket, negotiates a WebRTC DataChannel with the
// host and follows the host's machine state until the session ends.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-server, -session, -nick, -config).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"github.com/1ureka/netplay/internal/app"
	"github.com/1ureka/netplay/internal/config"
	"github.com/1ureka/netplay/internal/netplay"
	"github.com/1ureka/netplay/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	server := flag.String("server", "", "Rendezvous WebSocket URL (e.g. wss://host:port)")
	session := flag.String("session", "", "Session ID to join")
	nick := flag.String("nick", "", "Nickname shown to the host")
	configPath := flag.String("config", "", "Path to a TOML config file")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("NetPlay client, v%s", version))
	pterm.Println()

	if *server != "" {
		cfg.ServerURL = *server
	}
	if *nick != "" {
		cfg.Nick = *nick
	}

	sessionID := strings.TrimSpace(*session)
	interactive := cfg.ServerURL == "" && sessionID == ""

	if cfg.ServerURL == "" {
		cfg.ServerURL = askURL()
	} else {
		wsURL, err := normalizeWSURL(cfg.ServerURL)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg.ServerURL = wsURL
	}

	if sessionID == "" {
		sessionID = askSession()
	}

	if cfg.Nick == "" {
		if interactive {
			cfg.Nick = askNick()
		} else {
			cfg.Nick = defaultNick()
		}
	}

	if err := app.RunClient(ctx, cfg, sessionID); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("left NetPlay session %s", sessionID)
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a raw rendezvous address and maps http(s) schemes
// onto ws(s). A bare host defaults to wss.
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	u.Fragment = ""
	return u.String(), nil
}

func defaultNick() string {
	return "guest-" + uuid.NewString()[:8]
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Rendezvous server (e.g. wss://server.example:8081)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// sessionInput trims raw and reports whether it names a session. The
// relay-only "@" suffix is kept for the client to interpret.
func sessionInput(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	id, _ := netplay.NormalizeSessionID(raw)
	return raw, id != ""
}

// askSession prompts for a non-empty session ID.
func askSession() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Session ID").
			Show()

		if id, ok := sessionInput(raw); ok {
			pterm.Println()
			return id
		}

		pterm.Println()
		util.LogWarning("session ID cannot be empty")
	}
}

func askNick() string {
	fallback := defaultNick()
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(fmt.Sprintf("Nickname (blank for %s)", fallback)).
		Show()
	pterm.Println()

	if nick := strings.TrimSpace(raw); nick != "" {
		return nick
	}
	return fallback
}
