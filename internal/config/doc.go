// Package config loads LiteVault settings from LITEVAULT_* environment
// variables and an optional YAML file, applies defaults and validates the
// result, including the lease/timeout relationship the outbox depends on.
package config
