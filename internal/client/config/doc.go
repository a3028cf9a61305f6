// Package config loads runtime configuration for the authctl client commands.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file passed to Load (the --config flag).
//  3. Command-line flags bound by the CLI, which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "5s"
// or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "session_path": "/home/me/.config/gatekeeper/session.db",
//	  "request_timeout": "10s"
//	}
package config
