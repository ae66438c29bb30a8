package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tola-labs/cfusage/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090

foundations:
  - name: east
    api_url: https://api.sys.east.example.com
    usage_url: https://app-usage.sys.east.example.com
    token: "bearer abc"
    timeout: 15s
  - name: west
    usage_url: https://app-usage.sys.west.example.com
    uaa:
      token_url: https://uaa.sys.west.example.com/oauth/token
      client_id: usage-reader
      client_secret: s3cret

excluded_orgs: [system, p-dataflow]
included_services: [p.mysql, p.rabbitmq]

refresh:
  interval: 2h
  on_startup: false
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr() = %s, want 127.0.0.1:9090", cfg.Server.Addr())
	}
	if len(cfg.Foundations) != 2 {
		t.Fatalf("len(Foundations) = %d, want 2", len(cfg.Foundations))
	}

	east, ok := cfg.Foundation("east")
	if !ok {
		t.Fatal("Foundation(east) not found")
	}
	if east.Token != "bearer abc" || east.Timeout != 15*time.Second {
		t.Errorf("east = %+v", east)
	}

	west, _ := cfg.Foundation("west")
	if !west.UAA.Enabled() || west.UAA.ClientID != "usage-reader" {
		t.Errorf("west.UAA = %+v", west.UAA)
	}
	if west.Timeout != 30*time.Second {
		t.Errorf("west.Timeout = %v, want default 30s", west.Timeout)
	}

	if strings.Join(cfg.ExcludedOrgs, ",") != "system,p-dataflow" {
		t.Errorf("ExcludedOrgs = %v", cfg.ExcludedOrgs)
	}
	if len(cfg.IncludedServices) != 2 {
		t.Errorf("IncludedServices = %v", cfg.IncludedServices)
	}
	if cfg.Refresh.Interval != 2*time.Hour {
		t.Errorf("Refresh.Interval = %v, want 2h", cfg.Refresh.Interval)
	}
	if cfg.Refresh.OnStartup {
		t.Error("Refresh.OnStartup = true, want false")
	}
	if !cfg.Refresh.Enabled {
		t.Error("Refresh.Enabled should default to true when omitted")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, minimalConfig())

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Refresh.Interval != 6*time.Hour || cfg.Refresh.Timeout != 30*time.Minute {
		t.Errorf("refresh defaults = %+v", cfg.Refresh)
	}
	if cfg.Refresh.OrgInterval != time.Hour {
		t.Errorf("default OrgInterval = %v, want 1h", cfg.Refresh.OrgInterval)
	}
	if !cfg.Refresh.Enabled || !cfg.Refresh.OnStartup {
		t.Errorf("refresh should be enabled on startup by default: %+v", cfg.Refresh)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics defaults = %+v", cfg.Metrics)
	}
	if cfg.IncludedServices != nil {
		t.Errorf("IncludedServices = %v, want nil", cfg.IncludedServices)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_EAST_TOKEN", "bearer from-env")

	content := `
foundations:
  - name: east
    usage_url: https://app-usage.example.com
    token: "${TEST_EAST_TOKEN}"
`
	cfg := writeAndLoad(t, content)

	if cfg.Foundations[0].Token != "bearer from-env" {
		t.Errorf("Token = %s, want bearer from-env", cfg.Foundations[0].Token)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CFUSAGE_SERVER_PORT", "9999")
	t.Setenv("CFUSAGE_EXCLUDED_ORGS", "a, b ,,c")
	t.Setenv("CFUSAGE_INCLUDED_SERVICES", "p.mysql")
	t.Setenv("CFUSAGE_REFRESH_ENABLED", "false")
	t.Setenv("CFUSAGE_REFRESH_INTERVAL", "45m")
	t.Setenv("CFUSAGE_LOG_LEVEL", "debug")
	t.Setenv("CFUSAGE_METRICS_ENABLED", "no")

	cfg := writeAndLoad(t, minimalConfig())

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Server.Port)
	}
	if strings.Join(cfg.ExcludedOrgs, ",") != "a,b,c" {
		t.Errorf("ExcludedOrgs = %v", cfg.ExcludedOrgs)
	}
	if len(cfg.IncludedServices) != 1 || cfg.IncludedServices[0] != "p.mysql" {
		t.Errorf("IncludedServices = %v", cfg.IncludedServices)
	}
	if cfg.Refresh.Enabled {
		t.Error("Refresh.Enabled should be overridden to false")
	}
	if cfg.Refresh.Interval != 45*time.Minute {
		t.Errorf("Refresh.Interval = %v", cfg.Refresh.Interval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be overridden to false")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no foundations",
			content: "server:\n  port: 8080\n",
			wantErr: "at least one foundation",
		},
		{
			name: "missing name",
			content: `
foundations:
  - usage_url: https://x
`,
			wantErr: "name is required",
		},
		{
			name: "duplicate name",
			content: `
foundations:
  - name: east
  - name: east
`,
			wantErr: "duplicated",
		},
		{
			name: "token and uaa",
			content: `
foundations:
  - name: east
    token: abc
    uaa: {token_url: https://uaa, client_id: c}
`,
			wantErr: "either token or uaa",
		},
		{
			name: "bad log level",
			content: minimalConfig() + `
logging:
  level: loud
`,
			wantErr: "logging.level",
		},
		{
			name: "bad metrics path",
			content: minimalConfig() + `
metrics:
  path: metrics
`,
			wantErr: "metrics.path",
		},
		{
			name:    "bad yaml",
			content: "foundations: [",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := config.Load(path)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingCredentialsAccepted(t *testing.T) {
	content := `
foundations:
  - name: east
`
	cfg := writeAndLoad(t, content)
	if cfg.Foundations[0].UsageURL != "" {
		t.Errorf("UsageURL = %q", cfg.Foundations[0].UsageURL)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/cfusage.yaml")
	if err == nil {
		t.Error("Load should fail for a missing file")
	}
}

func TestParseFoundations(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []config.FoundationConfig
		wantErr bool
	}{
		{
			name: "full",
			in:   "east=https://usage.east|https://api.east|bearer t1;west=https://usage.west",
			want: []config.FoundationConfig{
				{Name: "east", UsageURL: "https://usage.east", APIURL: "https://api.east", Token: "bearer t1"},
				{Name: "west", UsageURL: "https://usage.west"},
			},
		},
		{
			name: "trailing separator and spaces",
			in:   " east = https://usage.east | | tok ; ",
			want: []config.FoundationConfig{
				{Name: "east", UsageURL: "https://usage.east", Token: "tok"},
			},
		},
		{name: "missing name", in: "=https://usage", wantErr: true},
		{name: "no equals", in: "east", wantErr: true},
		{name: "too many fields", in: "east=a|b|c|d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.ParseFoundations(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFoundations() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				g, w := got[i], tt.want[i]
				if g.Name != w.Name || g.UsageURL != w.UsageURL || g.APIURL != w.APIURL || g.Token != w.Token {
					t.Errorf("[%d] = %+v, want %+v", i, g, w)
				}
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CFUSAGE_FOUNDATIONS", "east=https://usage.east|https://api.east|bearer t")
	t.Setenv("CFUSAGE_LOG_FORMAT", "console")

	if !config.HasEnvConfig() {
		t.Fatal("HasEnvConfig() = false")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if len(cfg.Foundations) != 1 || cfg.Foundations[0].Timeout != 30*time.Second {
		t.Errorf("Foundations = %+v", cfg.Foundations)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %s", cfg.Logging.Format)
	}
}

func TestLoadFromEnv_BadFoundations(t *testing.T) {
	t.Setenv("CFUSAGE_FOUNDATIONS", "east")

	if _, err := config.LoadFromEnv(); err == nil {
		t.Error("LoadFromEnv() should fail on a malformed CFUSAGE_FOUNDATIONS")
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Setenv("CFUSAGE_FOUNDATIONS", "")

	path := writeConfig(t, minimalConfig())
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback(file) error = %v", err)
	}
	if cfg.Foundations[0].Name != "east" {
		t.Errorf("Foundations = %+v", cfg.Foundations)
	}

	if _, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadWithFallback() should fail without file or env")
	}

	t.Setenv("CFUSAGE_FOUNDATIONS", "west=https://usage.west")
	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback(env) error = %v", err)
	}
	if cfg.Foundations[0].Name != "west" {
		t.Errorf("Foundations = %+v", cfg.Foundations)
	}
}

// Helpers

func minimalConfig() string {
	return `
foundations:
  - name: east
    api_url: https://api.sys.east.example.com
    usage_url: https://app-usage.sys.east.example.com
    token: "bearer abc"
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}
