package config

import "strings"

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// NormalizeEnvironment lowercases env and defaults an empty value to development.
func NormalizeEnvironment(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return EnvDevelopment
	}
	return env
}

// IsKnownEnvironment reports whether env is development, staging or production.
func IsKnownEnvironment(env string) bool {
	switch NormalizeEnvironment(env) {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	}
	return false
}

// IsProductionLike returns true for staging and production.
// These environments must not fall back to localhost services or an open API.
func IsProductionLike(env string) bool {
	env = NormalizeEnvironment(env)
	return env == EnvStaging || env == EnvProduction
}

// IsDevelopment returns true if the server runs in the development environment.
func (s ServerConfig) IsDevelopment() bool {
	return NormalizeEnvironment(s.Environment) == EnvDevelopment
}

// IsProductionLike returns true if the server runs in staging or production.
func (s ServerConfig) IsProductionLike() bool {
	return IsProductionLike(s.Environment)
}
