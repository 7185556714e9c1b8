package cores

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/models"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

func testConfig(t *testing.T) *config.AppConfig {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Panel.PublicHost = "panel.example.com"
	return cfg
}

func newTunnel(core, typ string, spec map[string]interface{}) *models.Tunnel {
	return &models.Tunnel{ID: "3f2c9a1e-0000-4000-8000-000000000001", Name: "t", Core: core, Type: typ, Spec: spec}
}

func TestSpecInt(t *testing.T) {
	spec := Spec{"a": float64(8080), "b": "9090", "c": 1.5, "d": "x", "e": "", "f": 70000}
	if n, ok, err := spec.Int("a"); n != 8080 || !ok || err != nil {
		t.Errorf("a: %d %v %v", n, ok, err)
	}
	if n, ok, err := spec.Int("b"); n != 9090 || !ok || err != nil {
		t.Errorf("b: %d %v %v", n, ok, err)
	}
	if _, _, err := spec.Int("c"); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("c: expected invalid spec, got %v", err)
	}
	if _, _, err := spec.Int("d"); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("d: expected invalid spec, got %v", err)
	}
	if _, ok, _ := spec.Int("e"); ok {
		t.Error("empty string should count as absent")
	}
	if _, _, err := spec.Port("f"); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("f: expected out of range error, got %v", err)
	}
}

func TestXrayNormalizeDefaults(t *testing.T) {
	cfg := testConfig(t)
	x := &Xray{}

	tun := newTunnel(models.CoreXray, "", map[string]interface{}{})
	if err := x.Normalize(tun, cfg); err != nil {
		t.Fatal(err)
	}
	if tun.Type != "tcp" {
		t.Errorf("type = %q", tun.Type)
	}
	if tun.Spec["listen_port"] != 8080 || tun.Spec["remote_port"] != 8080 {
		t.Errorf("ports: %v", tun.Spec)
	}
	if tun.Spec["forward_to"] != "127.0.0.1:8080" {
		t.Errorf("forward_to = %v", tun.Spec["forward_to"])
	}

	grpc := newTunnel(models.CoreXray, "grpc", map[string]interface{}{"port": float64(9000)})
	if err := x.Normalize(grpc, cfg); err != nil {
		t.Fatal(err)
	}
	if grpc.Spec["service_name"] != "GrpcService" || grpc.Spec["uuid"] == "" {
		t.Errorf("grpc defaults missing: %v", grpc.Spec)
	}
	udp := newTunnel(models.CoreXray, "udp", map[string]interface{}{})
	if err := x.Normalize(udp, cfg); err != nil {
		t.Fatal(err)
	}
	if udp.Spec["header_type"] != "none" || udp.Spec["uuid"] == nil {
		t.Errorf("udp defaults missing: %v", udp.Spec)
	}
	if claims := x.Ports(udp); len(claims) != 1 || claims[0].Proto != "udp" {
		t.Errorf("udp claims = %v", claims)
	}

	bad := newTunnel(models.CoreXray, "quic", nil)
	if err := x.Normalize(bad, cfg); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected invalid type error, got %v", err)
	}
}

/**
 * Test that editing recomputes forward_to the way the edit dialog does
 * @param {*testing.T} t - Testing framework instance
 */
func TestXrayNormalizeRecomputesForwardTo(t *testing.T) {
	cfg := testConfig(t)
	tun := newTunnel(models.CoreXray, "tcp", map[string]interface{}{
		"remote_ip":   "10.0.0.5",
		"remote_port": float64(9443),
		"listen_port": float64(9443),
		"forward_to":  "127.0.0.1:8080",
	})
	if err := (&Xray{}).Normalize(tun, cfg); err != nil {
		t.Fatal(err)
	}
	if tun.Spec["forward_to"] != "10.0.0.5:9443" {
		t.Errorf("forward_to = %v", tun.Spec["forward_to"])
	}

	fromForward := newTunnel(models.CoreXray, "tcp", map[string]interface{}{"forward_to": "192.168.1.2:3000", "listen_port": 7000})
	if err := (&Xray{}).Normalize(fromForward, cfg); err != nil {
		t.Fatal(err)
	}
	if fromForward.Spec["remote_ip"] != "192.168.1.2" || fromForward.Spec["remote_port"] != 3000 {
		t.Errorf("remote derived from forward_to: %v", fromForward.Spec)
	}
}

func TestXrayRender(t *testing.T) {
	cfg := testConfig(t)
	x := &Xray{}
	tun := newTunnel(models.CoreXray, "grpc", map[string]interface{}{"port": 9000})
	if err := x.Normalize(tun, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := x.Render(tun, cfg)
	if err != nil {
		t.Fatal(err)
	}
	var doc xrayConfig
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("rendered config is not JSON: %v", err)
	}
	in := doc.Inbounds[0]
	if in.Protocol != "vless" || in.Port != 9000 {
		t.Errorf("inbound = %+v", in)
	}
	if !strings.Contains(string(data), `"serviceName": "GrpcService"`) {
		t.Errorf("grpc service name missing:\n%s", data)
	}
	if doc.Outbounds[0].Settings["redirect"] != "127.0.0.1:9000" {
		t.Errorf("outbound = %+v", doc.Outbounds[0])
	}
}

func TestXrayRenderForwarders(t *testing.T) {
	cfg := testConfig(t)
	x := &Xray{}
	cases := []struct {
		typ     string
		network string
	}{
		{"tcp", "tcp"},
		{"tcpmux", "tcp"},
		{"udp", "udp"},
	}
	for _, tc := range cases {
		tun := newTunnel(models.CoreXray, tc.typ, map[string]interface{}{
			"listen_port": 7000,
			"forward_to":  "10.0.0.8:7443",
		})
		if err := x.Normalize(tun, cfg); err != nil {
			t.Fatalf("%s: %v", tc.typ, err)
		}
		data, err := x.Render(tun, cfg)
		if err != nil {
			t.Fatalf("%s: %v", tc.typ, err)
		}
		var doc xrayConfig
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("%s: rendered config is not JSON: %v", tc.typ, err)
		}
		in := doc.Inbounds[0]
		if in.Protocol != "dokodemo-door" || in.Port != 7000 || in.StreamSettings != nil {
			t.Errorf("%s inbound = %+v", tc.typ, in)
		}
		if in.Settings["network"] != tc.network || in.Settings["address"] != "10.0.0.8" || in.Settings["port"] != float64(7443) {
			t.Errorf("%s settings = %v", tc.typ, in.Settings)
		}
	}
}

func TestRatholeNormalizeAndRender(t *testing.T) {
	cfg := testConfig(t)
	r := &Rathole{}

	missingNode := newTunnel(models.CoreRathole, "rathole", map[string]interface{}{})
	if err := r.Normalize(missingNode, cfg); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected node_id error, got %v", err)
	}

	node := "node-1"
	tun := newTunnel(models.CoreRathole, "", map[string]interface{}{
		"remote_addr": "",
		"token":       "",
		"local_addr":  "127.0.0.1:3000",
		"port":        8090,
	})
	tun.NodeID = &node
	if err := r.Normalize(tun, cfg); err != nil {
		t.Fatal(err)
	}
	if tun.Type != "rathole" {
		t.Errorf("type = %q", tun.Type)
	}
	if tun.Spec["remote_addr"] != "panel.example.com:23333" {
		t.Errorf("remote_addr = %v", tun.Spec["remote_addr"])
	}
	if token, _ := tun.Spec["token"].(string); len(token) != 32 {
		t.Errorf("token not generated: %v", tun.Spec["token"])
	}
	if tun.Spec["remote_port"] != 8090 || tun.Spec["listen_port"] != 8090 {
		t.Errorf("ports = %v", tun.Spec)
	}
	claims := r.Ports(tun)
	if len(claims) != 2 || claims[0].Port != 23333 || claims[1].Port != 8090 {
		t.Errorf("claims = %v", claims)
	}

	data, err := r.Render(tun, cfg)
	if err != nil {
		t.Fatal(err)
	}
	var doc ratholeServerConfig
	if _, err := toml.Decode(string(data), &doc); err != nil {
		t.Fatalf("rendered config is not TOML: %v\n%s", err, data)
	}
	if doc.Server.BindAddr != "0.0.0.0:23333" {
		t.Errorf("bind_addr = %q", doc.Server.BindAddr)
	}
	if svc := doc.Server.Services[tun.ID]; svc.BindAddr != "0.0.0.0:8090" {
		t.Errorf("service = %+v", doc.Server.Services)
	}

	client, err := r.RenderClient(tun)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(client), `remote_addr = "panel.example.com:23333"`) ||
		!strings.Contains(string(client), `local_addr = "127.0.0.1:3000"`) {
		t.Errorf("client config:\n%s", client)
	}
}

func TestRatholeRejectsPortEqualToControlPort(t *testing.T) {
	node := "n"
	tun := newTunnel(models.CoreRathole, "rathole", map[string]interface{}{"remote_addr": "h:9000", "port": 9000})
	tun.NodeID = &node
	if err := (&Rathole{}).Normalize(tun, testConfig(t)); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected collision error, got %v", err)
	}
}

func TestHysteria2(t *testing.T) {
	cfg := testConfig(t)
	h := &Hysteria2{}
	tun := newTunnel(models.CoreHysteria2, "", map[string]interface{}{})
	if err := h.Normalize(tun, cfg); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"port": 8448, "password": "ChangeMe123", "up": "50 Mbps", "down": "200 Mbps"}
	for k, v := range want {
		if tun.Spec[k] != v {
			t.Errorf("%s = %v, want %v", k, tun.Spec[k], v)
		}
	}
	if tun.Type != "server" {
		t.Errorf("type = %q", tun.Type)
	}

	if _, err := h.Render(tun, cfg); err == nil {
		t.Error("expected missing certificate error")
	}
	cc := cfg.Cores[models.CoreHysteria2]
	cc.TLSCert, cc.TLSKey = "/etc/ssl/panel.crt", "/etc/ssl/panel.key"
	cfg.Cores[models.CoreHysteria2] = cc
	data, err := h.Render(tun, cfg)
	if err != nil {
		t.Fatal(err)
	}
	var doc hysteriaConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Listen != ":8448" || doc.Auth.Password != "ChangeMe123" || doc.Bandwidth.Down != "200 Mbps" {
		t.Errorf("rendered = %+v", doc)
	}
}

func TestWireGuardPeers(t *testing.T) {
	cfg := testConfig(t)
	w := &WireGuard{}
	tun := newTunnel(models.CoreWireGuard, "server", map[string]interface{}{"peers": 3})
	if err := w.Normalize(tun, cfg); err != nil {
		t.Fatal(err)
	}
	if tun.Spec["address"] != "10.10.0.1/24" {
		t.Errorf("server address = %v", tun.Spec["address"])
	}
	peers := WireGuardPeers(tun)
	if len(peers) != 3 || peers[0].Address != "10.10.0.2/32" || peers[2].Address != "10.10.0.4/32" {
		t.Fatalf("peers = %+v", peers)
	}
	serverKey := tun.Spec["private_key"]
	firstPeerKey := peers[0].PrivateKey

	// 增加peer时保留已有密钥
	tun.Spec["peers"] = 4
	if err := w.Normalize(tun, cfg); err != nil {
		t.Fatal(err)
	}
	peers = WireGuardPeers(tun)
	if len(peers) != 4 || peers[0].PrivateKey != firstPeerKey || tun.Spec["private_key"] != serverKey {
		t.Errorf("keys regenerated on update")
	}

	conf, err := w.Render(tun, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(conf), "[Peer]") != 4 || !strings.Contains(string(conf), "ListenPort") {
		t.Errorf("server config:\n%s", conf)
	}
	client, err := w.RenderPeer(tun, 1, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(client), "panel.example.com:51820") || !strings.Contains(string(client), "10.10.0.3/32") {
		t.Errorf("client config:\n%s", client)
	}
	if _, err := w.RenderPeer(tun, 9, cfg); err == nil {
		t.Error("expected error for missing peer")
	}

	small := newTunnel(models.CoreWireGuard, "server", map[string]interface{}{"cidr": "10.0.0.0/30", "peers": 5})
	if err := w.Normalize(small, cfg); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected capacity error, got %v", err)
	}
	if name := w.ConfigFile(tun); len(strings.TrimSuffix(name, ".conf")) > 15 {
		t.Errorf("interface name too long: %s", name)
	}
}

func TestRegistryPlan(t *testing.T) {
	cfg := testConfig(t)
	reg := DefaultRegistry()
	tun := newTunnel(models.CoreXray, "tcp", map[string]interface{}{})
	if err := reg.Normalize(tun, cfg); err != nil {
		t.Fatal(err)
	}
	plan, err := reg.Plan(tun, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Command != "xray" || len(plan.Args) != 3 || plan.Args[2] != plan.ConfigPath {
		t.Errorf("plan = %+v", plan)
	}
	if !strings.HasSuffix(plan.ConfigPath, "/xray/"+tun.ID+".json") {
		t.Errorf("config path = %s", plan.ConfigPath)
	}

	wg := newTunnel(models.CoreWireGuard, "server", map[string]interface{}{})
	if err := reg.Normalize(wg, cfg); err != nil {
		t.Fatal(err)
	}
	wgPlan, err := reg.Plan(wg, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !wgPlan.OneShot || wgPlan.DownCommand != "wg-quick" || wgPlan.DownArgs[0] != "down" {
		t.Errorf("wireguard plan = %+v", wgPlan)
	}

	ext := newTunnel("openvpn", "udp", map[string]interface{}{"anything": true})
	if err := reg.Normalize(ext, cfg); err != nil {
		t.Errorf("extension cores must not be validated: %v", err)
	}
	if reg.Managed("openvpn") {
		t.Error("openvpn should not be managed")
	}
	if _, err := reg.Plan(ext, cfg); err == nil {
		t.Error("expected error planning an extension core")
	}
}
