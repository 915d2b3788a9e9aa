// Package config defines configuration structures for the oqpd CLI.
//
// Configuration can be provided via:
//   - A YAML configuration file
//   - Environment variables (OQPD_ prefix)
//   - Command-line flags (handled in cmd/oqpd)
//
// Precedence: flags override environment variables, which override the
// configuration file, which overrides defaults.
package config
