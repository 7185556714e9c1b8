package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Server.Address != ":8000" {
		t.Errorf("server.address = %q", cfg.Server.Address)
	}
	if cfg.Supervisor.StartupGrace != 500*time.Millisecond {
		t.Errorf("startup_grace = %v", cfg.Supervisor.StartupGrace)
	}
	if cfg.Supervisor.StopTimeout != 5*time.Second {
		t.Errorf("stop_timeout = %v", cfg.Supervisor.StopTimeout)
	}
	rathole, err := cfg.Core("rathole")
	if err != nil {
		t.Fatalf("rathole core: %v", err)
	}
	if rathole.Command != "/usr/local/bin/rathole" || rathole.Fallback != "rathole" {
		t.Errorf("unexpected rathole launch settings: %+v", rathole)
	}
	if _, err := cfg.Core("openvpn"); err == nil {
		t.Error("expected error for unknown core")
	}
	if cfg.Database.DSN != filepath.Join(cfg.DataDir, "panel.db") {
		t.Errorf("sqlite dsn = %q", cfg.Database.DSN)
	}
}

/**
 * Test YAML file loading merged with environment overrides
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Partial core settings keep the built-in args
 * - TPANEL_SERVER_ADDRESS wins over the file
 */
func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	content := `
server:
  address: ":9000"
data_dir: /var/lib/tpanel
panel:
  public_host: panel.example.com
supervisor:
  monitor_interval: 10s
cores:
  xray:
    command: /opt/xray/xray
`
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TPANEL_SERVER_ADDRESS", ":9100")
	t.Setenv("TPANEL_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(file)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9100" {
		t.Errorf("env override not applied: %q", cfg.Server.Address)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q", cfg.Log.Level)
	}
	if cfg.Panel.PublicHost != "panel.example.com" {
		t.Errorf("public_host = %q", cfg.Panel.PublicHost)
	}
	if cfg.Supervisor.MonitorInterval != 10*time.Second {
		t.Errorf("monitor_interval = %v", cfg.Supervisor.MonitorInterval)
	}
	xray := cfg.Cores["xray"]
	if xray.Command != "/opt/xray/xray" {
		t.Errorf("xray command = %q", xray.Command)
	}
	if len(xray.Args) != 3 || xray.Args[2] != "{{.ConfigPath}}" {
		t.Errorf("xray args = %v", xray.Args)
	}
	if cfg.Database.DSN != "/var/lib/tpanel/panel.db" {
		t.Errorf("sqlite dsn = %q", cfg.Database.DSN)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
