package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidateInEveryMode(t *testing.T) {
	for _, mode := range []string{"run", "sim", "archive"} {
		cfg := Defaults()
		cfg.Mode = mode
		if err := cfg.Validate(); err != nil {
			t.Errorf("mode %s: defaults failed validation: %v", mode, err)
		}
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("err = %v, want unknown mode", err)
	}
}

func TestValidateRejectsInvertedLevels(t *testing.T) {
	cfg := Defaults()
	cfg.Risk.StopOutLevel = 120
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "stop_out_level must be below margin_call_level") {
		t.Fatalf("err = %v, want level ordering error", err)
	}
}

func TestValidateRejectsDrawdownOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.Risk.MaxDrawdownPct = 1.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "max_drawdown_pct") {
		t.Fatalf("err = %v, want drawdown range error", err)
	}
}

func TestValidateRequiresPairedTelegramFields(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "token"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Fatalf("err = %v, want telegram pairing error", err)
	}
}

func TestValidateSimModeNeedsNoPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "sim"
	cfg.Postgres = PostgresConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sim mode with no postgres config: %v", err)
	}
}

func TestValidateArchiveModeNeedsS3(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("err = %v, want missing bucket error", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "sim"

[risk]
min_interval = "5s"
fee_rate = 0.001

[sim]
symbols = ["SOLUSD"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "sim" {
		t.Fatalf("mode = %q, want sim", cfg.Mode)
	}
	if cfg.Risk.MinInterval.Duration != 5*time.Second {
		t.Fatalf("min_interval = %s, want 5s", cfg.Risk.MinInterval.Duration)
	}
	if cfg.Risk.FeeRate != 0.001 {
		t.Fatalf("fee_rate = %v, want 0.001", cfg.Risk.FeeRate)
	}
	if len(cfg.Sim.Symbols) != 1 || cfg.Sim.Symbols[0] != "SOLUSD" {
		t.Fatalf("symbols = %v, want [SOLUSD]", cfg.Sim.Symbols)
	}
	// Untouched sections keep their defaults.
	if cfg.Risk.StopOutLevel != 50 {
		t.Fatalf("stop_out_level = %v, want the default 50", cfg.Risk.StopOutLevel)
	}
	if cfg.Postgres.Host != "localhost" {
		t.Fatalf("postgres host = %q, want the default localhost", cfg.Postgres.Host)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"run\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RISKD_MODE", "archive")
	t.Setenv("RISKD_POSTGRES_PASSWORD", "s3cret")
	t.Setenv("RISKD_RISK_MIN_INTERVAL", "10s")
	t.Setenv("RISKD_RISK_STOP_OUT_LEVEL", "40")
	t.Setenv("RISKD_ARCHIVE_ENABLED", "true")
	t.Setenv("RISKD_NOTIFY_EVENTS", "stop_out, margin_call")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "archive" {
		t.Fatalf("mode = %q, want archive from env", cfg.Mode)
	}
	if cfg.Postgres.Password != "s3cret" {
		t.Fatalf("password not taken from env")
	}
	if cfg.Risk.MinInterval.Duration != 10*time.Second {
		t.Fatalf("min_interval = %s, want 10s from env", cfg.Risk.MinInterval.Duration)
	}
	if cfg.Risk.StopOutLevel != 40 {
		t.Fatalf("stop_out_level = %v, want 40 from env", cfg.Risk.StopOutLevel)
	}
	if !cfg.Archive.Enabled {
		t.Fatal("archive.enabled not taken from env")
	}
	if len(cfg.Notify.Events) != 2 || cfg.Notify.Events[1] != "margin_call" {
		t.Fatalf("notify events = %v, want trimmed two-element list", cfg.Notify.Events)
	}
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RISKD_POSTGRES_PORT", "not-a-number")
	t.Setenv("RISKD_RISK_MIN_INTERVAL", "soon")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Postgres.Port != 5432 {
		t.Fatalf("port = %d, want the default 5432 on a bad override", cfg.Postgres.Port)
	}
	if cfg.Risk.MinInterval.Duration != 2*time.Second {
		t.Fatalf("min_interval = %s, want the default 2s on a bad override", cfg.Risk.MinInterval.Duration)
	}
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://user:pw@db/riskd"
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "sk"
	cfg.Notify.TelegramToken = "token"
	cfg.Notify.TelegramChatID = "42"

	red := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"postgres dsn":      red.Postgres.DSN,
		"postgres password": red.Postgres.Password,
		"s3 secret key":     red.S3.SecretKey,
		"telegram token":    red.Notify.TelegramToken,
	} {
		if strings.Contains(got, "pw") || strings.Contains(got, "sk") || strings.Contains(got, "token") {
			t.Errorf("%s leaked: %q", name, got)
		}
	}
	// The original must be untouched.
	if cfg.Postgres.Password != "pw" {
		t.Fatal("redaction must not mutate the source config")
	}
}
