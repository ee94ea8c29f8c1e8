package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "SERVER_PORT", "SERVER_HOST", "DB_HOST", "DB_NAME", "LOG_LEVEL")
	os.Setenv("DB_NAME", "arbmon")
	t.Cleanup(func() { os.Unsetenv("DB_NAME") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "arbmon" {
		t.Errorf("Database.Name = %q, want arbmon", cfg.Database.Name)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_RequiresDatabaseName(t *testing.T) {
	clearEnv(t, "DB_NAME")
	os.Setenv("DB_NAME", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail with no DB_NAME configured")
	}
}

func TestGetEnvAsInt_FallsBackOnInvalid(t *testing.T) {
	os.Setenv("ARBMON_TEST_INT", "not-a-number")
	defer os.Unsetenv("ARBMON_TEST_INT")

	if got := getEnvAsInt("ARBMON_TEST_INT", 42); got != 42 {
		t.Errorf("getEnvAsInt = %d, want 42", got)
	}
}

func TestGetEnvAsBool_FallsBackOnInvalid(t *testing.T) {
	os.Setenv("ARBMON_TEST_BOOL", "maybe")
	defer os.Unsetenv("ARBMON_TEST_BOOL")

	if got := getEnvAsBool("ARBMON_TEST_BOOL", true); got != true {
		t.Errorf("getEnvAsBool = %v, want true", got)
	}
}
