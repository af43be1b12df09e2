package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Driver: DriverRedis, Addrs: []string{"localhost:6379"}},
		Auth:     AuthConfig{JWTSecret: "secret"},
		Metering: MeteringConfig{PeriodPolicy: "anchor"},
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_DriverRequirements(t *testing.T) {
	tests := []struct {
		name    string
		db      DatabaseConfig
		wantErr string
	}{
		{"redis without addrs", DatabaseConfig{Driver: DriverRedis}, "database.addrs is required"},
		{"valkey without addrs", DatabaseConfig{Driver: DriverValkey}, "database.addrs is required"},
		{"postgres without dsn", DatabaseConfig{Driver: DriverPostgres}, "database.dsn is required"},
		{"unknown driver", DatabaseConfig{Driver: "mysql"}, "database.driver must be one of"},
		{"memory", DatabaseConfig{Driver: DriverMemory}, ""},
		{"postgres with dsn", DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://localhost/usage"}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Database = tc.db
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_MissingSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestValidate_PeriodPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Metering.PeriodPolicy = "weekly"

	err := cfg.Validate()
	expected := `metering.period_policy must be "anchor" or "calendar", got "weekly"`
	if err == nil || err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %v\nwant: %q", err, expected)
	}
}

func TestValidate_NegativeRetention(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.RetentionDays = -1

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative retention")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec 10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec 10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec 10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.Driver != DriverRedis {
		t.Errorf("expected driver %q, got %q", DriverRedis, cfg.Database.Driver)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout 10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Metering.StoreTimeout() != 2*time.Second {
		t.Errorf("expected store timeout 2s, got %v", cfg.Metering.StoreTimeout())
	}
	if cfg.Metering.PeriodPolicy != "anchor" {
		t.Errorf("expected period policy anchor, got %q", cfg.Metering.PeriodPolicy)
	}
	if cfg.Storage.KeyPrefix != "usagemeter:" {
		t.Errorf("expected key prefix %q, got %q", "usagemeter:", cfg.Storage.KeyPrefix)
	}
	if cfg.Storage.Retention() != 0 {
		t.Errorf("expected no retention by default, got %v", cfg.Storage.Retention())
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		Database: DatabaseConfig{Driver: DriverPostgres},
		Metering: MeteringConfig{StoreTimeoutMs: 500, PeriodPolicy: "calendar"},
		Storage:  StorageConfig{KeyPrefix: "custom:", RetentionDays: 90},
	}
	cfg.ApplyDefaults()

	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("expected driver postgres, got %q", cfg.Database.Driver)
	}
	if cfg.Metering.StoreTimeout() != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", cfg.Metering.StoreTimeout())
	}
	if cfg.Metering.PeriodPolicy != "calendar" {
		t.Errorf("expected calendar, got %q", cfg.Metering.PeriodPolicy)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected custom prefix, got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Storage.Retention() != 90*24*time.Hour {
		t.Errorf("expected 90 days, got %v", cfg.Storage.Retention())
	}
}

func TestParse_ExpandsEnvAndLimits(t *testing.T) {
	t.Setenv("USAGEMETER_TEST_SECRET", "from-env")

	data := []byte(`
http:
  port: ${USAGEMETER_TEST_PORT:-9090}
database:
  driver: memory
auth:
  jwt_secret: ${USAGEMETER_TEST_SECRET}
limits:
  free:
    document: 5
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected default port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("expected secret from env, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Limits["free"]["document"] != 5 {
		t.Errorf("expected limit override 5, got %v", cfg.Limits)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected yaml error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\n")); err == nil {
		t.Error("expected validation error for missing redis addrs")
	}
}

func TestParse_PoolAndACLSettings(t *testing.T) {
	data := []byte(`
http:
  port: 8080
database:
  driver: postgres
  dsn: postgres://localhost/usage
  username: meter
  max_open_conns: 20
  max_idle_conns: 5
  conn_max_lifetime_sec: 1800
auth:
  jwt_secret: secret
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Username != "meter" {
		t.Errorf("expected username meter, got %q", cfg.Database.Username)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected 5 idle conns, got %d", cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime() != 30*time.Minute {
		t.Errorf("expected 30m lifetime, got %v", cfg.Database.ConnMaxLifetime())
	}
}

func TestValidate_PoolSettings(t *testing.T) {
	tests := []struct {
		name    string
		db      DatabaseConfig
		wantErr string
	}{
		{"negative idle", DatabaseConfig{MaxIdleConns: -1}, "must be >= 0"},
		{"negative lifetime", DatabaseConfig{ConnMaxLifetimeSec: -5}, "must be >= 0"},
		{"idle above open", DatabaseConfig{MaxOpenConns: 4, MaxIdleConns: 8}, "exceeds database.max_open_conns"},
		{"idle without open cap", DatabaseConfig{MaxIdleConns: 8}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.db.Driver = DriverPostgres
			tc.db.DSN = "postgres://localhost/usage"
			cfg.Database = tc.db
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
