package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_HMAC_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Redis.OrderRateWindow != time.Minute {
		t.Errorf("Expected order rate window 1m, got %s", cfg.Redis.OrderRateWindow)
	}
	if cfg.Auth.RolesClaim == "" {
		t.Error("Roles claim should have a default")
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("Expected no kafka brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Media.Enabled() {
		t.Error("Media should be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_RSA_PUBLIC_KEY", `-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----`)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "7")
	t.Setenv("SERVER_READ_TIMEOUT", "3s")
	t.Setenv("AUTH_ROLES_CLAIM", "https://shop.test/roles")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Auth.RSAPublicKeyPEM != "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----" {
		t.Errorf("PEM newlines not restored: %q", cfg.Auth.RSAPublicKeyPEM)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Database.MaxOpenConns != 7 {
		t.Errorf("Expected 7 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("Expected read timeout 3s, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.RolesClaim != "https://shop.test/roles" {
		t.Errorf("Unexpected roles claim %s", cfg.Auth.RolesClaim)
	}
}

func TestValidateRequiresVerificationKey(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{RolesClaim: "roles"}}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error without a verification key")
	}

	cfg.Auth.HMACSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
