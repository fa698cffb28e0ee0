// ABOUTME: Entry point for the voyengo-gateway marketplace server
// ABOUTME: Dispatches the serve, init, token and health subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/voyengo/voyengo/internal/config"
	"github.com/voyengo/voyengo/internal/gateway"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
 __   _____  _   _  ___ _ __   __ _  ___
 \ \ / / _ \| | | |/ _ \ '_ \ / _' |/ _ \
  \ V / (_) | |_| |  __/ | | | (_| | (_) |
   \_/ \___/ \__, |\___|_| |_|\__, |\___/
             |___/            |___/
`

// getDataPath is $XDG_DATA_HOME/voyengo, falling back to ~/.local/share/voyengo.
func getDataPath() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "voyengo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "voyengo")
}

func usage() {
	fmt.Println("Usage: voyengo-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                              Start the gateway server")
	fmt.Println("  init                               Create a new config file interactively")
	fmt.Println("  token --user ID --name NAME        Mint a bearer token (--admin, --ttl 720h)")
	fmt.Println("  health                             Check HTTP and gRPC health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	commands := map[string]func() error{
		"serve":  func() error { return runServe(ctx) },
		"init":   func() error { return runInit(os.Stdin) },
		"token":  func() error { return runToken(os.Args[2:]) },
		"health": func() error { return runHealth(ctx) },
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	accent := color.New(color.FgCyan)
	muted := color.New(color.FgHiBlack)
	accent.Print(banner)
	muted.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	printSummary(cfg, configPath)

	logger.Info("starting voyengo-gateway",
		"config", configPath,
		"store", cfg.Database.Driver,
		"notify", cfg.Notify.Backend,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// printSummary writes the startup table shown under the banner.
func printSummary(cfg *config.Config, configPath string) {
	bullet := color.GreenString("    ▶ ")
	rows := [][2]string{
		{"Config", configPath},
		{"Store", cfg.Database.Driver},
		{"Notify", cfg.Notify.Backend},
	}
	if cfg.Tailscale.Enabled {
		node := color.CyanString(cfg.Tailscale.Hostname)
		switch {
		case cfg.Tailscale.Funnel:
			node += color.YellowString(" [funnel]")
		case cfg.Tailscale.HTTPS:
			node += color.YellowString(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			node += color.HiBlackString(" (ephemeral)")
		}
		rows = append(rows, [2]string{"Tailscale", node})
	} else {
		rows = append(rows,
			[2]string{"gRPC", cfg.Server.GRPCAddr},
			[2]string{"HTTP", cfg.Server.HTTPAddr},
		)
	}

	for _, row := range rows {
		fmt.Printf("%s%-10s %s\n", bullet, row[0]+":", row[1])
	}
	fmt.Println()
}
