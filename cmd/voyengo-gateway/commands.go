// ABOUTME: The init, token and health subcommands
// ABOUTME: init writes a config with a fresh JWT secret; token mints bearer tokens for local testing

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/config"
	"github.com/voyengo/voyengo/internal/gateway"
)

// initAnswers are the values collected by runInit.
type initAnswers struct {
	GRPCAddr  string
	HTTPAddr  string
	Driver    string
	DBPath    string
	DSN       string
	JWTSecret string
	Notify    string
	RedisAddr string
	Tailscale bool
	Hostname  string
	AuthKey   string
	Funnel    bool
	LogLevel  string
	LogFormat string
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("voyengo-gateway configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	a := initAnswers{JWTSecret: secret}

	fmt.Println("\n--- Server Configuration ---")
	a.GRPCAddr = prompt(reader, "gRPC address", "localhost:50051")
	a.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	a.Driver = prompt(reader, "Driver (sqlite/sqlite3/postgres)", config.DriverSQLite)
	if a.Driver == config.DriverPostgres {
		a.DSN = prompt(reader, "Postgres DSN", "postgres://voyengo@localhost:5432/voyengo?sslmode=disable")
	} else {
		a.DBPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "gateway.db"))
	}

	fmt.Println("\n--- Live Updates ---")
	a.Notify = prompt(reader, "Notifier (memory/redis)", config.NotifyMemory)
	if a.Notify == config.NotifyRedis {
		a.RedisAddr = prompt(reader, "Redis address", "localhost:6379")
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	a.Tailscale = isYes(prompt(reader, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.Hostname = prompt(reader, "Tailscale hostname", "voyengo")
		a.AuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.Funnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	data := renderConfig(a)
	if _, err := config.Parse(data, false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Println("  voyengo-gateway serve")
	return nil
}

// renderConfig produces the YAML config file for a.
func renderConfig(a initAnswers) []byte {
	var cfg strings.Builder
	cfg.WriteString("# voyengo-gateway configuration\n")
	cfg.WriteString("# Generated by voyengo-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  grpc_addr: %q\n", a.GRPCAddr)
	fmt.Fprintf(&cfg, "  http_addr: %q\n", a.HTTPAddr)
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  driver: %q\n", a.Driver)
	if a.DSN != "" {
		fmt.Fprintf(&cfg, "  dsn: %q\n", a.DSN)
	} else {
		fmt.Fprintf(&cfg, "  path: %q\n", a.DBPath)
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", a.JWTSecret)
	cfg.WriteString("  token_ttl: \"720h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("notify:\n")
	fmt.Fprintf(&cfg, "  backend: %q\n", a.Notify)
	if a.RedisAddr != "" {
		fmt.Fprintf(&cfg, "  redis_addr: %q\n", a.RedisAddr)
	}
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.Tailscale)
	if a.Tailscale {
		fmt.Fprintf(&cfg, "  hostname: %q\n", a.Hostname)
		if a.AuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", a.AuthKey)
		}
		fmt.Fprintf(&cfg, "  funnel: %t\n", a.Funnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("live:\n")
	cfg.WriteString("  resync_interval: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", a.LogFormat)

	return []byte(cfg.String())
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

// tokenArgs are the flags of the token subcommand.
type tokenArgs struct {
	UserID      string
	DisplayName string
	Admin       bool
	TTL         time.Duration
}

// parseTokenArgs accepts "--flag value" and "--flag=value" forms.
func parseTokenArgs(args []string) (tokenArgs, error) {
	var out tokenArgs
	var ttlRaw string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")

		switch name {
		case "--admin":
			if hasValue {
				return out, fmt.Errorf("--admin takes no value")
			}
			out.Admin = true
			continue
		case "--user", "--name", "--ttl":
		default:
			if strings.HasPrefix(arg, "-") {
				return out, fmt.Errorf("unknown flag: %s", arg)
			}
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}

		if !hasValue {
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a value", name)
			}
			value = args[i+1]
			i++
		}

		switch name {
		case "--user":
			out.UserID = strings.TrimSpace(value)
		case "--name":
			out.DisplayName = strings.TrimSpace(value)
		case "--ttl":
			ttlRaw = value
		}
	}

	if out.UserID == "" {
		return out, fmt.Errorf("--user flag is required")
	}
	if out.DisplayName == "" {
		return out, fmt.Errorf("--name flag is required")
	}
	if len(out.DisplayName) > 100 {
		return out, fmt.Errorf("display name exceeds maximum length of 100 characters")
	}
	if ttlRaw != "" {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil || ttl <= 0 {
			return out, fmt.Errorf("--ttl must be a positive duration such as 720h")
		}
		out.TTL = ttl
	}
	return out, nil
}

func runToken(args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if parsed.TTL == 0 {
		parsed.TTL = cfg.Auth.TokenTTL
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	token, err := verifier.Generate(auth.Identity{
		UserID:       parsed.UserID,
		DisplayName:  parsed.DisplayName,
		IsPrivileged: parsed.Admin,
	}, parsed.TTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	green.Fprint(os.Stderr, "✓ ")
	fmt.Fprintf(os.Stderr, "Token for %s (%s), expires in %s", parsed.DisplayName, parsed.UserID, parsed.TTL)
	if parsed.Admin {
		color.New(color.FgYellow).Fprint(os.Stderr, " [admin]")
	}
	fmt.Fprintln(os.Stderr)
	gray.Fprintln(os.Stderr, "  use as: Authorization: Bearer <token>")

	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := checkHTTP(ctx, fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)); err != nil {
		return err
	}
	if err := checkGRPC(ctx, cfg.Server.GRPCAddr); err != nil {
		return err
	}

	fmt.Println("healthy")
	return nil
}

func checkHTTP(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func checkGRPC(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connecting to gRPC: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: gateway.ServiceName})
	if err != nil {
		return fmt.Errorf("gRPC health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("gRPC unhealthy: %s", resp.GetStatus())
	}
	return nil
}
