package cores

import (
	"fmt"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/models"

	"gopkg.in/yaml.v3"
)

type Hysteria2 struct{}

func (h *Hysteria2) Name() string  { return models.CoreHysteria2 }
func (h *Hysteria2) OneShot() bool { return false }

func (h *Hysteria2) ConfigFile(t *models.Tunnel) string {
	return t.ID + ".yaml"
}

func (h *Hysteria2) Normalize(t *models.Tunnel, cfg *config.AppConfig) error {
	spec := specOf(t)
	t.Type = "server"
	port, ok, err := spec.firstPort("port", "listen_port")
	if err != nil {
		return err
	}
	if !ok {
		port = 8448
	}
	spec["port"] = port
	spec.defaultString("password", "ChangeMe123")
	spec.defaultString("up", "50 Mbps")
	spec.defaultString("down", "200 Mbps")
	return nil
}

func (h *Hysteria2) Ports(t *models.Tunnel) []PortClaim {
	port, ok, err := Spec(t.Spec).Port("port")
	if err != nil || !ok {
		return nil
	}
	return []PortClaim{{Proto: "udp", Port: port}}
}

type hysteriaConfig struct {
	Listen    string            `yaml:"listen"`
	TLS       *hysteriaTLS      `yaml:"tls,omitempty"`
	Auth      hysteriaAuth      `yaml:"auth"`
	Bandwidth hysteriaBandwidth `yaml:"bandwidth"`
}

type hysteriaTLS struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type hysteriaAuth struct {
	Type     string `yaml:"type"`
	Password string `yaml:"password"`
}

type hysteriaBandwidth struct {
	Up   string `yaml:"up"`
	Down string `yaml:"down"`
}

// Render needs a certificate from spec.cert/spec.key or cores.hysteria2.tls_cert/tls_key
func (h *Hysteria2) Render(t *models.Tunnel, cfg *config.AppConfig) ([]byte, error) {
	spec := Spec(t.Spec)
	port, _, err := spec.Port("port")
	if err != nil {
		return nil, err
	}
	cert, key := spec.String("cert"), spec.String("key")
	if cert == "" || key == "" {
		cc := cfg.Cores[models.CoreHysteria2]
		cert, key = cc.TLSCert, cc.TLSKey
	}
	if cert == "" || key == "" {
		return nil, fmt.Errorf("hysteria2 needs a TLS certificate: set cores.hysteria2.tls_cert/tls_key or spec cert/key")
	}
	doc := hysteriaConfig{
		Listen: fmt.Sprintf(":%d", port),
		TLS:    &hysteriaTLS{Cert: cert, Key: key},
		Auth:   hysteriaAuth{Type: "password", Password: spec.String("password")},
		Bandwidth: hysteriaBandwidth{
			Up:   spec.String("up"),
			Down: spec.String("down"),
		},
	}
	return yaml.Marshal(doc)
}
