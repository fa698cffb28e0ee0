// ABOUTME: Listener setup for the gateway: plain TCP or a tsnet node on the tailnet
// ABOUTME: On tailscale, HTTP is served on :80, on :443 with tailnet certs, or publicly via Funnel

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/voyengo/voyengo/internal/config"
)

// tailnetGRPCPort is the gRPC port on the tailscale node.
const tailnetGRPCPort = ":50051"

// listen opens the gRPC and HTTP listeners for the configured network.
func (g *Gateway) listen(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	addrs := g.config.Server
	if g.config.Tailscale.Enabled {
		if addrs.GRPCAddr != "" || addrs.HTTPAddr != "" {
			g.logger.Warn("tailscale enabled, ignoring configured listen addresses",
				"grpc", addrs.GRPCAddr, "http", addrs.HTTPAddr)
		}
		return g.listenTailnet(ctx)
	}

	g.logger.Info("opening TCP listeners", "server_id", g.serverID, "grpc", addrs.GRPCAddr, "http", addrs.HTTPAddr)

	if grpcLn, err = net.Listen("tcp", addrs.GRPCAddr); err != nil {
		return nil, nil, fmt.Errorf("gRPC listener on %s: %w", addrs.GRPCAddr, err)
	}
	if httpLn, err = net.Listen("tcp", addrs.HTTPAddr); err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("HTTP listener on %s: %w", addrs.HTTPAddr, err)
	}
	return grpcLn, httpLn, nil
}

// listenTailnet brings up a tsnet node and listens on it. Everything opened
// along the way is closed again if a later step fails.
func (g *Gateway) listenTailnet(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	ts := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(ts.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("tailscale state dir %s: %w", stateDir, err)
	}
	authKey, err := resolveTailscaleAuthKey(ts.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		Ephemeral: ts.Ephemeral,
		AuthKey:   authKey,
	}

	var opened []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(opened) - 1; i >= 0; i-- {
			_ = opened[i].Close()
		}
		_ = g.closeTailscale()
	}()

	g.logger.Info("starting tailscale node", "hostname", ts.Hostname, "state_dir", stateDir, "ephemeral", ts.Ephemeral)
	st, err := g.tsnetServer.Up(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("bringing up tailscale node %q: %w", ts.Hostname, err)
	}

	attrs := []any{"hostname", ts.Hostname}
	if len(st.TailscaleIPs) == 0 {
		g.logger.Warn("tailscale node came up without an address")
	} else {
		attrs = append(attrs, "tailnet_ip", st.TailscaleIPs[0].String())
	}
	if st.Self != nil {
		attrs = append(attrs, "dns_name", st.Self.DNSName)
	}
	g.logger.Info("tailscale node up", attrs...)

	grpcLn, err = g.tsnetServer.Listen("tcp", tailnetGRPCPort)
	if err != nil {
		return nil, nil, fmt.Errorf("tailnet gRPC listener: %w", err)
	}
	opened = append(opened, grpcLn)

	httpLn, err = g.tailnetHTTPListener(ts)
	if err != nil {
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// tailnetHTTPListener picks the HTTP listener: Funnel, tailnet HTTPS or plain :80.
func (g *Gateway) tailnetHTTPListener(ts config.TailscaleConfig) (net.Listener, error) {
	switch {
	case ts.Funnel:
		g.logger.Info("serving HTTP publicly through tailscale funnel")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("tailnet funnel listener: %w", err)
		}
		return ln, nil

	case ts.HTTPS:
		g.logger.Info("serving HTTP over TLS with tailnet certificates")
		local, err := g.tsnetServer.LocalClient()
		if err != nil {
			return nil, fmt.Errorf("tailscale local client: %w", err)
		}
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("tailnet HTTPS listener: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: local.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil

	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("tailnet HTTP listener: %w", err)
		}
		return ln, nil
	}
}

func (g *Gateway) closeTailscale() error {
	if g.tsnetServer == nil {
		return nil
	}
	err := g.tsnetServer.Close()
	g.tsnetServer = nil
	return err
}

// resolveTailscaleStateDir defaults to ~/.local/share/voyengo-gateway/tailscale.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir): %w", err)
	}
	return filepath.Join(home, ".local", "share", "voyengo-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey prefers the configured key, then TS_AUTHKEY.
func resolveTailscaleAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv("TS_AUTHKEY"); key != "" {
		return key, nil
	}
	return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
}
