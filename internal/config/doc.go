// Package config provides centralized configuration management for the
// DataWalker runtime. Configuration is loaded from a JSON file whose path
// comes from the command line or the WALKER_CONFIG environment variable,
// with sensible defaults applied for anything left unset.
package config
