// Package config loads nsbus process configuration.
//
// Values are layered: built-in defaults, then a TOML file, then NSBUS_*
// environment variables (optionally read from a .env file), then CLI flags
// applied by the caller.
//
// Example nsbus.toml:
//
//	[server]
//	address = ":9500"
//	path = "/ws"
//	heartbeat_interval = "30s"
//
//	[registry]
//	evict_after = "30m"
//
//	[snapshot]
//	backend = "s3"
//	bucket = "my-bucket"
//	prefix = "nsbus/"
//	region = "us-east-1"
//
//	[log]
//	level = "info"
//	format = "json"
//
// The s3 backend loads credentials the way the AWS CLI does (environment,
// shared profiles, SSO, instance metadata). Set snapshot.anonymous to send
// unsigned requests instead.
package config
