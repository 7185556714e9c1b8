package cores

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/models"

	"github.com/BurntSushi/toml"
)

const (
	ratholeControlPort = 23333
	ratholeServicePort = 8090
	ratholeLocalAddr   = "127.0.0.1:8080"
)

// Rathole runs one rathole server per tunnel on the panel; the node runs the client
type Rathole struct{}

func (r *Rathole) Name() string  { return models.CoreRathole }
func (r *Rathole) OneShot() bool { return false }

func (r *Rathole) ConfigFile(t *models.Tunnel) string {
	return t.ID + ".toml"
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

/**
 * Fill rathole defaults
 * @description
 * - remote_addr accepts "host:port", "port" or empty; host defaults to panel.public_host
 * - an empty token is replaced with a random 32 hex chars token
 * - remote_port = listen_port = listen_port || remote_port || port || local port || 8090
 */
func (r *Rathole) Normalize(t *models.Tunnel, cfg *config.AppConfig) error {
	spec := specOf(t)
	t.Type = models.CoreRathole
	if t.NodeID == nil || *t.NodeID == "" {
		return invalidf("rathole tunnels require node_id")
	}

	host, ctrl, err := splitHostPort(spec.String("remote_addr"))
	if err != nil {
		return err
	}
	if host == "" {
		host = cfg.Panel.PublicHost
	}
	if host == "" {
		host = "127.0.0.1"
	}
	if ctrl == 0 {
		ctrl = ratholeControlPort
	}
	spec["remote_addr"] = joinHostPort(host, ctrl)

	if spec.String("token") == "" {
		token, err := randomToken()
		if err != nil {
			return err
		}
		spec["token"] = token
	}

	localHost, localPort, err := splitHostPort(spec.defaultString("local_addr", ratholeLocalAddr))
	if err != nil {
		return err
	}
	if localHost == "" {
		localHost = "127.0.0.1"
	}
	port, ok, err := spec.firstPort("listen_port", "remote_port", "port")
	if err != nil {
		return err
	}
	if !ok {
		port = localPort
	}
	if port == 0 {
		port = ratholeServicePort
	}
	if localPort == 0 {
		localPort = port
	}
	spec["local_addr"] = joinHostPort(localHost, localPort)
	if port == ctrl {
		return invalidf("service port %d collides with the rathole control port", port)
	}
	spec["remote_port"] = port
	spec["listen_port"] = port
	return nil
}

func (r *Rathole) Ports(t *models.Tunnel) []PortClaim {
	spec := Spec(t.Spec)
	var claims []PortClaim
	if _, ctrl, err := splitHostPort(spec.String("remote_addr")); err == nil && ctrl > 0 {
		claims = append(claims, PortClaim{Proto: "tcp", Port: ctrl})
	}
	if port, ok, err := spec.Port("remote_port"); err == nil && ok {
		claims = append(claims, PortClaim{Proto: "tcp", Port: port})
	}
	return claims
}

type ratholeServerConfig struct {
	Server ratholeServer `toml:"server"`
}

type ratholeServer struct {
	BindAddr string                    `toml:"bind_addr"`
	Token    string                    `toml:"token"`
	Services map[string]ratholeService `toml:"services"`
}

type ratholeService struct {
	BindAddr  string `toml:"bind_addr,omitempty"`
	LocalAddr string `toml:"local_addr,omitempty"`
}

type ratholeClientConfig struct {
	Client ratholeClient `toml:"client"`
}

type ratholeClient struct {
	RemoteAddr string                    `toml:"remote_addr"`
	Token      string                    `toml:"token"`
	Services   map[string]ratholeService `toml:"services"`
}

func encodeTOML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode toml: %w", err)
	}
	return buf.Bytes(), nil
}

// Render produces the server side config run on the panel
func (r *Rathole) Render(t *models.Tunnel, cfg *config.AppConfig) ([]byte, error) {
	spec := Spec(t.Spec)
	_, ctrl, err := splitHostPort(spec.String("remote_addr"))
	if err != nil {
		return nil, err
	}
	port, _, err := spec.Port("remote_port")
	if err != nil {
		return nil, err
	}
	doc := ratholeServerConfig{
		Server: ratholeServer{
			BindAddr: joinHostPort("0.0.0.0", ctrl),
			Token:    spec.String("token"),
			Services: map[string]ratholeService{
				t.ID: {BindAddr: joinHostPort("0.0.0.0", port)},
			},
		},
	}
	return encodeTOML(doc)
}

// RenderClient produces the config the node runs to connect back to the panel
func (r *Rathole) RenderClient(t *models.Tunnel) ([]byte, error) {
	spec := Spec(t.Spec)
	doc := ratholeClientConfig{
		Client: ratholeClient{
			RemoteAddr: spec.String("remote_addr"),
			Token:      spec.String("token"),
			Services: map[string]ratholeService{
				t.ID: {LocalAddr: spec.String("local_addr")},
			},
		},
	}
	return encodeTOML(doc)
}
