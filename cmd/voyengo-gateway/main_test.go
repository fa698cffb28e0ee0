// ABOUTME: Tests for the gateway binary's argument parsing, config generation and logging
// ABOUTME: Generated configs are round-tripped through config.Parse

package main

import (
	"bufio"
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyengo/voyengo/internal/config"
)

func TestParseTokenArgs(t *testing.T) {
	t.Run("all flags", func(t *testing.T) {
		got, err := parseTokenArgs([]string{"--user", "u-42", "--name=Ada Lovelace", "--admin", "--ttl", "2h"})
		require.NoError(t, err)
		assert.Equal(t, tokenArgs{UserID: "u-42", DisplayName: "Ada Lovelace", Admin: true, TTL: 2 * time.Hour}, got)
	})

	t.Run("ttl defaults later", func(t *testing.T) {
		got, err := parseTokenArgs([]string{"--user=u-1", "--name", "Bo"})
		require.NoError(t, err)
		assert.Zero(t, got.TTL)
		assert.False(t, got.Admin)
	})

	errs := map[string][]string{
		"missing user":  {"--name", "Bo"},
		"missing name":  {"--user", "u-1"},
		"dangling flag": {"--user"},
		"unknown flag":  {"--user", "u-1", "--name", "Bo", "--role", "x"},
		"positional":    {"u-1"},
		"bad ttl":       {"--user", "u-1", "--name", "Bo", "--ttl", "forever"},
		"negative ttl":  {"--user", "u-1", "--name", "Bo", "--ttl", "-1h"},
		"admin value":   {"--user", "u-1", "--name", "Bo", "--admin=true"},
		"long name":     {"--user", "u-1", "--name", strings.Repeat("x", 101)},
	}
	for name, args := range errs {
		t.Run(name, func(t *testing.T) {
			_, err := parseTokenArgs(args)
			assert.Error(t, err)
		})
	}
}

func TestRenderConfig_SQLite(t *testing.T) {
	secret, err := generateSecret()
	require.NoError(t, err)

	data := renderConfig(initAnswers{
		GRPCAddr:  "localhost:50051",
		HTTPAddr:  "localhost:8080",
		Driver:    config.DriverSQLite,
		DBPath:    "/tmp/voyengo/gateway.db",
		JWTSecret: secret,
		Notify:    config.NotifyMemory,
		LogLevel:  "debug",
		LogFormat: "json",
	})

	cfg, err := config.Parse(data, false)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/voyengo/gateway.db", cfg.Database.Path)
	assert.Equal(t, secret, cfg.Auth.JWTSecret)
	assert.Equal(t, 720*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Live.ResyncInterval)
	assert.False(t, cfg.Tailscale.Enabled)
}

func TestRenderConfig_PostgresRedisTailscale(t *testing.T) {
	data := renderConfig(initAnswers{
		Driver:    config.DriverPostgres,
		DSN:       "postgres://voyengo@db:5432/voyengo",
		JWTSecret: strings.Repeat("s", 32),
		Notify:    config.NotifyRedis,
		RedisAddr: "redis:6379",
		Tailscale: true,
		Hostname:  "voyengo",
		Funnel:    true,
		LogLevel:  "info",
		LogFormat: "text",
	})

	cfg, err := config.Parse(data, false)
	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "redis:6379", cfg.Notify.RedisAddr)
	assert.True(t, cfg.Tailscale.Funnel)
	assert.Equal(t, "voyengo", cfg.Tailscale.Hostname)
}

func TestPrompt(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("custom\n\n"))

	assert.Equal(t, "custom", prompt(reader, "Q1", "default"))
	assert.Equal(t, "default", prompt(reader, "Q2", "default"))
	assert.Equal(t, "fallback", prompt(reader, "Q3 at EOF", "fallback"))
}

func TestIsYes(t *testing.T) {
	assert.True(t, isYes("y"))
	assert.True(t, isYes(" YES "))
	assert.False(t, isYes("no"))
	assert.False(t, isYes(""))
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

		logger.Info("hidden")
		logger.Warn("shown", "offer_id", "o-1")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, `"msg":"shown"`)
		assert.Contains(t, out, `"offer_id":"o-1"`)
	})

	t.Run("color", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

		logger.With("component", "gateway").WithGroup("req").Debug("hello", "status", 200)

		out := buf.String()
		assert.Contains(t, out, "hello")
		assert.Contains(t, out, "component=")
		assert.Contains(t, out, "req.status=")
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestVersionDefaultsToDev(t *testing.T) {
	// test binaries are built without -ldflags
	assert.Equal(t, "dev", version)
}
