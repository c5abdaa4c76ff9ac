package config

import (
	"strings"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestBuildDefaults(t *testing.T) {
	cfg, err := NewLoader(nil).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr %q", cfg.HTTPAddr)
	}
	if cfg.Billing.GSTPercent.String() != "18" {
		t.Fatalf("unexpected gst %s", cfg.Billing.GSTPercent)
	}
	want := time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC)
	if !cfg.Billing.CutOffDate.Equal(want) {
		t.Fatalf("unexpected cut-off %v", cfg.Billing.CutOffDate)
	}
	if cfg.Redis.Enabled() || cfg.Mail.Enabled() || cfg.OTel.Enabled() {
		t.Fatalf("optional integrations must be disabled by default")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error without secret and database")
	}
}

func TestBuildFromDBParts(t *testing.T) {
	l := NewLoader(envMap(map[string]string{
		"DB_USER":    "billing",
		"DB_PASS":    "s3cret",
		"DB_HOST":    "db:5432",
		"DB_NAME":    "tally",
		"JWT_SECRET": "x",
	}))
	cfg, err := l.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.DB.DSN != "postgres://billing:s3cret@db:5432/tally?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", cfg.DB.DSN)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	l := NewLoader(envMap(map[string]string{"GST_PCT": "5"}))
	if err := l.ReadYAML([]byte("GST_PCT: \"12\"\nmail_server: smtp.example.com\n")); err != nil {
		t.Fatalf("ReadYAML: %v", err)
	}
	cfg, err := l.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.Billing.GSTPercent.String() != "5" {
		t.Fatalf("env must win over file, got %s", cfg.Billing.GSTPercent)
	}
	if cfg.Mail.Server != "smtp.example.com" {
		t.Fatalf("expected file default, got %q", cfg.Mail.Server)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "BILLING_MAIL_USERNAME") {
		t.Fatalf("expected mail username error, got %v", err)
	}
}

func TestBuildRejectsBadValues(t *testing.T) {
	l := NewLoader(envMap(map[string]string{"ORG_START_DATE": "31/05/2023"}))
	if _, err := l.Build(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestStorageBucketURL(t *testing.T) {
	cases := []struct {
		cfg  StorageConfig
		want string
	}{
		{StorageConfig{Dir: "./data/blobs"}, ""},
		{StorageConfig{AccountName: "tally", Container: "documents"}, "azblob://documents?storage_account=tally"},
		{StorageConfig{URL: "file:///srv/blobs", AccountName: "tally"}, "file:///srv/blobs"},
	}
	for _, tc := range cases {
		if got := tc.cfg.BucketURL(); got != tc.want {
			t.Fatalf("BucketURL(%+v) = %q, want %q", tc.cfg, got, tc.want)
		}
	}
}
