package config

import (
	"os"
	"testing"
)

func TestNormalizeEnvironment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"development", "development"},
		{"DEVELOPMENT", "development"},
		{" Staging ", "staging"},
		{"PRODUCTION", "production"},
		{"", "development"}, // default
		{"qa", "qa"},
	}

	for _, tt := range tests {
		if got := NormalizeEnvironment(tt.in); got != tt.want {
			t.Errorf("NormalizeEnvironment(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsKnownEnvironment(t *testing.T) {
	for _, env := range []string{"development", "Staging", "PRODUCTION", ""} {
		if !IsKnownEnvironment(env) {
			t.Errorf("IsKnownEnvironment(%q) should be true", env)
		}
	}
	if IsKnownEnvironment("qa") {
		t.Error("IsKnownEnvironment(qa) should be false")
	}
}

func TestIsProductionLike(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"STAGING", true},
		{"development", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsProductionLike(tt.env); got != tt.want {
			t.Errorf("IsProductionLike(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestServerConfig_Environment(t *testing.T) {
	dev := ServerConfig{Environment: "development"}
	if !dev.IsDevelopment() || dev.IsProductionLike() {
		t.Error("development server should be development and not production-like")
	}

	prod := ServerConfig{Environment: "production"}
	if prod.IsDevelopment() || !prod.IsProductionLike() {
		t.Error("production server should be production-like and not development")
	}
}

func TestLoad_NormalizesEnvironment(t *testing.T) {
	clearEnv(t, larderEnvVars...)
	os.Setenv("LARDER_SERVER_ENVIRONMENT", "PRODUCTION")

	cfg, err := Load("pantry-service")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Environment != EnvProduction {
		t.Errorf("Server.Environment = %v, want production", cfg.Server.Environment)
	}
}

func TestLoadWithValidation_UnknownEnvironment(t *testing.T) {
	clearEnv(t, larderEnvVars...)
	os.Setenv("LARDER_SERVER_ENVIRONMENT", "qa")

	if _, err := LoadWithValidation("pantry-service"); err == nil {
		t.Error("LoadWithValidation() should reject an unknown environment")
	}
}
