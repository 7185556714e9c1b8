package utils

import (
	"net"
	"testing"
)

func TestGetCommandLine(t *testing.T) {
	data := struct {
		ConfigPath string
		TunnelID   string
	}{ConfigPath: "/var/lib/tpanel/rathole/a b.toml", TunnelID: "abc"}

	cmd, args, err := GetCommandLine("/usr/local/bin/rathole", []string{"-s", "{{.ConfigPath}}"}, data)
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "/usr/local/bin/rathole" {
		t.Errorf("cmd = %q", cmd)
	}
	if len(args) != 2 || args[1] != "/var/lib/tpanel/rathole/a b.toml" {
		t.Errorf("args = %q", args)
	}

	if _, _, err := GetCommandLine("xray", []string{"{{.Missing}}"}, data); err == nil {
		t.Error("expected error for unknown template field")
	}
	if _, _, err := GetCommandLine("{{.ConfigPath", nil, data); err == nil {
		t.Error("expected parse error")
	}
}

func TestStructToOrderedMap(t *testing.T) {
	row := struct {
		Name   string `json:"name"`
		Core   string `json:"core"`
		Status string `json:"status"`
	}{"hy", "hysteria2", "running"}
	m, err := StructToOrderedMap(row)
	if err != nil {
		t.Fatal(err)
	}
	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "name" || keys[2] != "status" {
		t.Errorf("keys = %v", keys)
	}
}

func TestPortListenable(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port
	if PortListenable("tcp", port) {
		t.Errorf("port %d reported free while in use", port)
	}
}
