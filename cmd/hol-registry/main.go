// ABOUTME: CLI for the hosted agent registry: search, chat, identity, roundtrips, skills
// ABOUTME: Manual command dispatch with colorized output and slog configured from config

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/hol-org/registry-cli/internal/auth"
	"github.com/hol-org/registry-cli/internal/broker"
	"github.com/hol-org/registry-cli/internal/config"
	"github.com/hol-org/registry-cli/internal/identity"
)

const banner = `
 _           _                      _     _
| |__   ___ | |      _ __ ___  __ _(_)___| |_ _ __ _   _
| '_ \ / _ \| |_____| '__/ _ \/ _' | / __| __| '__| | | |
| | | | (_) | |_____| | |  __/ (_| | \__ \ |_| |  | |_| |
|_| |_|\___/|_|     |_|  \___|\__, |_|___/\__|_|   \__, |
                              |___/                |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	a, err := newApp()
	if err == nil {
		switch cmd {
		case "search":
			err = a.cmdSearch(args)
		case "chat":
			err = a.cmdChat(args)
		case "history":
			err = a.cmdHistory(args)
		case "sessions":
			err = a.cmdSessions(args)
		case "balance":
			err = a.cmdBalance(args)
		case "stats":
			err = a.cmdStats(args)
		case "resolve":
			err = a.cmdResolve(args)
		case "check":
			err = a.cmdCheck(args)
		case "claim":
			err = a.cmdClaim(args)
		case "whoami":
			err = a.cmdWhoami(args)
		case "identity":
			err = a.cmdIdentity(args)
		case "roundtrip":
			err = a.cmdRoundtrip(args)
		case "skills":
			err = a.cmdSkills(args)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
			printUsage()
			os.Exit(1)
		}
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: hol-registry <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  search <query>                 Search the agent directory")
	fmt.Println("  chat <uaid> [message]          Chat with an agent (session is cached)")
	fmt.Println("  history <uaid>                 Show the cached session's message history")
	fmt.Println("  history clear                  Forget all cached sessions")
	fmt.Println("  sessions                       List cached sessions")
	fmt.Println("  balance                        Show your credit balance")
	fmt.Println("  stats                          Show directory statistics")
	fmt.Println("  resolve <uaid>                 Look up one agent")
	fmt.Println("  check <uaid>                   Show an agent's availability and trust detail")
	fmt.Println("  claim <uaid>                   Record a verified agent as yours")
	fmt.Println("  whoami                         Show your local identity")
	fmt.Println("  identity import <key>          Import an existing private key")
	fmt.Println("  roundtrip <from> <to> [msg]    Run an agent-to-agent p2p roundtrip")
	fmt.Println("  skills validate <dir>          Validate a skill bundle")
	fmt.Println("  skills publish <dir>           Publish a skill bundle")
	fmt.Println()
	yellow.Println("Chat flags:")
	fmt.Println("  --transport <name>             Force a transport (xmtp, moltbook, http, a2a, acp)")
	fmt.Println("  --agent-url <url>              Target an agent by URL instead of UAID")
	fmt.Println("  --as <uaid>                    Send as a specific claimed agent")
	fmt.Println("  --json                         Machine-readable output")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  HOL_REGISTRY_DIR               State directory (default: ~/.hol-registry)")
	fmt.Println("  REGISTRY_BROKER_API_URL        Broker base URL override")
	fmt.Println("  REGISTRY_BROKER_API_KEY        Broker API key (skips the ledger handshake)")
	fmt.Println("  HOL_PRIVATE_KEY                Import this key on first run")
	fmt.Println("  HOL_P2P_SEED                   Derivation seed for roundtrip identities")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  hol-registry search \"image generation\"")
	fmt.Println("  hol-registry chat uaid:aid:example \"Hello!\"")
	fmt.Println("  hol-registry roundtrip uaid:aid:alpha uaid:aid:beta")
	fmt.Println()
}

// app holds the wired dependencies shared by all commands.
type app struct {
	cfg    *config.Config
	store  *identity.FileStore
	client *broker.Client
	auth   *auth.Authenticator
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Logging))

	store := identity.NewFileStore(cfg.IdentityFile())
	client := broker.New(cfg.Broker.BaseURL, broker.WithAPIKey(cfg.Broker.APIKey))

	return &app{
		cfg:    cfg,
		store:  store,
		client: client,
		auth:   auth.New(client, store, cfg.LedgerNetwork()),
	}, nil
}

// loadIdentity returns the local identity, creating one on first use.
func (a *app) loadIdentity() (*identity.Identity, error) {
	return identity.GetOrCreate(a.store)
}

// ensureAuth guarantees the client carries a valid API key. A configured key
// takes precedence over the ledger handshake.
func (a *app) ensureAuth(ctx context.Context, id *identity.Identity) error {
	if a.cfg.Broker.APIKey != "" {
		return nil
	}
	_, err := a.auth.EnsureAPIKey(ctx, id)
	return err
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
