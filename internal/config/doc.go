// Package config handles configuration loading for voyengo-gateway.
//
// # Configuration File
//
// DefaultPath resolves the file in this order:
//
//  1. Path from the VOYENGO_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/voyengo/gateway.yaml
//  3. ~/.config/voyengo/gateway.yaml
//
// Files ending in .toml are parsed as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables, expanded before parsing:
//
//	auth:
//	  jwt_secret: "${VOYENGO_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Durations use time.ParseDuration syntax ("30s", "5m", "720h"):
//
//	server.shutdown_timeout, auth.token_ttl, live.resync_interval,
//	store.retry_base_delay, idempotency.ttl
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  grpc_addr: "0.0.0.0:50051"
//	  cors_origins: ["https://app.example.com"]
//
//	database:
//	  driver: "sqlite"        # sqlite | sqlite3 | postgres
//	  path: "./voyengo.db"
//	  # dsn: "postgres://..." # for postgres
//
//	auth:
//	  jwt_secret: "${VOYENGO_JWT_SECRET}"
//
//	notify:
//	  backend: "memory"       # memory | redis
//	  # redis_addr: "localhost:6379"
//
//	logging:
//	  level: "info"
//	  format: "text"          # text | json
//
// Omitted values get defaults; Validate reports the first invalid field.
package config
