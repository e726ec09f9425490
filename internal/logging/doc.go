// Package logging provides opt-in file-based structured logging with
// rotation for corpusvault. When a log file is configured, JSON logs are
// written there in addition to stderr; in MCP server mode, logs go to file
// only, since stdout/stderr are reserved for the JSON-RPC stream.
package logging
