// Package config loads the pbctl configuration file and turns it into the
// label-keyed lookups every lifecycle operation starts from.
//
// [LoadFile] reads YAML or TOML (chosen by file extension), applies defaults
// and environment overrides, and validates the global settings. [NewRegistry]
// then validates every server entry once, recording either a resolved
// [ServerConfig] or a [ConfigError] per label. Lookups never re-validate:
// [Registry.Resolve] simply returns what was recorded at startup.
package config
