package cores

import (
	"encoding/json"
	"strings"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/models"

	"github.com/google/uuid"
)

const (
	xrayDefaultPort   = 8080
	xrayDefaultRemote = "127.0.0.1"
)

var xrayTypes = map[string]bool{"tcp": true, "udp": true, "grpc": true, "tcpmux": true}

// Xray renders port forwards (labelled GOST in the admin UI) as xray-core configs.
// tcp/tcpmux/udp use a dokodemo-door inbound, grpc is vless over gRPC.
type Xray struct{}

func (x *Xray) Name() string  { return models.CoreXray }
func (x *Xray) OneShot() bool { return false }

func (x *Xray) ConfigFile(t *models.Tunnel) string {
	return t.ID + ".json"
}

/**
 * Fill xray defaults and recompute derived fields
 * @description
 * - listen_port = listen_port || remote_port || port || 8080
 * - remote_ip falls back to the host of forward_to, then 127.0.0.1
 * - remote_port falls back to the port of forward_to, then listen_port
 * - forward_to is always rewritten as remote_ip:remote_port
 * - grpc gets service_name and a client uuid, udp a uuid and header_type
 */
func (x *Xray) Normalize(t *models.Tunnel, cfg *config.AppConfig) error {
	spec := specOf(t)
	typ := strings.ToLower(strings.TrimSpace(t.Type))
	if typ == "" {
		typ = "tcp"
	}
	if !xrayTypes[typ] {
		return invalidf("unsupported xray type %q (tcp, udp, grpc, tcpmux)", t.Type)
	}
	t.Type = typ

	fwdHost, fwdPort, err := splitHostPort(spec.String("forward_to"))
	if err != nil {
		return err
	}
	remoteIP := spec.String("remote_ip")
	if remoteIP == "" {
		remoteIP = fwdHost
	}
	if remoteIP == "" {
		remoteIP = xrayDefaultRemote
	}

	listen, ok, err := spec.firstPort("listen_port", "remote_port", "port")
	if err != nil {
		return err
	}
	if !ok {
		listen = xrayDefaultPort
	}
	remote, ok, err := spec.Port("remote_port")
	if err != nil {
		return err
	}
	if !ok {
		remote = fwdPort
	}
	if remote == 0 {
		remote = listen
	}

	spec["remote_ip"] = remoteIP
	spec["listen_port"] = listen
	spec["remote_port"] = remote
	spec["forward_to"] = joinHostPort(remoteIP, remote)

	switch typ {
	case "grpc":
		spec.defaultString("service_name", "GrpcService")
		return ensureUUID(spec)
	case "udp":
		spec.defaultString("header_type", "none")
		return ensureUUID(spec)
	}
	return nil
}

func ensureUUID(spec Spec) error {
	id := spec.String("uuid")
	if id == "" {
		spec["uuid"] = uuid.NewString()
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalidf("uuid %q is not a valid UUID", id)
	}
	spec["uuid"] = id
	return nil
}

func (x *Xray) Ports(t *models.Tunnel) []PortClaim {
	port, ok, err := Spec(t.Spec).Port("listen_port")
	if err != nil || !ok {
		return nil
	}
	proto := "tcp"
	if t.Type == "udp" {
		proto = "udp"
	}
	return []PortClaim{{Proto: proto, Port: port}}
}

type xrayConfig struct {
	Log       xrayLog        `json:"log"`
	Inbounds  []xrayInbound  `json:"inbounds"`
	Outbounds []xrayOutbound `json:"outbounds"`
}

type xrayLog struct {
	LogLevel string `json:"loglevel"`
}

type xrayInbound struct {
	Tag            string                 `json:"tag"`
	Listen         string                 `json:"listen"`
	Port           int                    `json:"port"`
	Protocol       string                 `json:"protocol"`
	Settings       map[string]interface{} `json:"settings"`
	StreamSettings map[string]interface{} `json:"streamSettings,omitempty"`
}

type xrayOutbound struct {
	Tag      string                 `json:"tag"`
	Protocol string                 `json:"protocol"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

func (x *Xray) Render(t *models.Tunnel, cfg *config.AppConfig) ([]byte, error) {
	spec := Spec(t.Spec)
	listen, _, err := spec.Port("listen_port")
	if err != nil {
		return nil, err
	}
	remote, _, err := spec.Port("remote_port")
	if err != nil {
		return nil, err
	}
	in := xrayInbound{
		Tag:    "in-" + t.ID,
		Listen: "0.0.0.0",
		Port:   listen,
	}
	out := xrayOutbound{Tag: "out-" + t.ID, Protocol: "freedom"}

	switch t.Type {
	case "grpc":
		in.Protocol = "vless"
		in.Settings = map[string]interface{}{
			"clients":    []map[string]interface{}{{"id": spec.String("uuid")}},
			"decryption": "none",
		}
		in.StreamSettings = map[string]interface{}{
			"network":      "grpc",
			"grpcSettings": map[string]interface{}{"serviceName": spec.String("service_name")},
		}
		out.Settings = map[string]interface{}{"redirect": spec.String("forward_to")}
	default:
		network := "tcp"
		if t.Type == "udp" {
			network = "udp"
		}
		in.Protocol = "dokodemo-door"
		in.Settings = map[string]interface{}{
			"address": spec.String("remote_ip"),
			"port":    remote,
			"network": network,
		}
	}

	doc := xrayConfig{
		Log:       xrayLog{LogLevel: "warning"},
		Inbounds:  []xrayInbound{in},
		Outbounds: []xrayOutbound{out},
	}
	return json.MarshalIndent(doc, "", "  ")
}
