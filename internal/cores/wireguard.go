package cores

import (
	"bytes"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/models"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"gopkg.in/ini.v1"
)

const (
	wgDefaultPort       = 51820
	wgDefaultCIDR       = "10.10.0.0/24"
	wgDefaultPeers      = 5
	wgDefaultDNS        = "1.1.1.1, 8.8.8.8"
	wgDefaultAllowedIPs = "0.0.0.0/0, ::/0"
	wgKeepalive         = 25
)

// WireGuard is applied with wg-quick up/down rather than supervised
type WireGuard struct{}

func (w *WireGuard) Name() string  { return models.CoreWireGuard }
func (w *WireGuard) OneShot() bool { return true }

// ConfigFile doubles as the interface name for wg-quick, which allows 15 characters
func (w *WireGuard) ConfigFile(t *models.Tunnel) string {
	id := strings.ReplaceAll(t.ID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "wg-" + id + ".conf"
}

// WireGuardPeer is one generated client of a wireguard tunnel
type WireGuardPeer struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

func (p WireGuardPeer) toMap() map[string]interface{} {
	return map[string]interface{}{
		"address":     p.Address,
		"private_key": p.PrivateKey,
		"public_key":  p.PublicKey,
	}
}

// WireGuardPeers decodes spec.peer_list
func WireGuardPeers(t *models.Tunnel) []WireGuardPeer {
	list, _ := t.Spec["peer_list"].([]interface{})
	peers := make([]WireGuardPeer, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		s := Spec(m)
		peers = append(peers, WireGuardPeer{
			Address:    s.String("address"),
			PrivateKey: s.String("private_key"),
			PublicKey:  s.String("public_key"),
		})
	}
	return peers
}

// hostCapacity is the number of usable host addresses of a prefix, capped at max
func hostCapacity(prefix netip.Prefix, max int) int {
	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if hostBits >= 30 {
		return max
	}
	n := (1 << hostBits) - 1 // network address
	if prefix.Addr().Is4() {
		n-- // broadcast
	}
	if n < 0 {
		return 0
	}
	return n
}

func nthHost(prefix netip.Prefix, n int) netip.Addr {
	addr := prefix.Masked().Addr()
	for i := 0; i < n; i++ {
		addr = addr.Next()
	}
	return addr
}

func generateKeyPair() (string, string, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("generate wireguard key: %w", err)
	}
	return priv.String(), priv.PublicKey().String(), nil
}

func keyPair(private string) (string, string, error) {
	if private == "" {
		return generateKeyPair()
	}
	key, err := wgtypes.ParseKey(private)
	if err != nil {
		return "", "", invalidf("invalid wireguard private key: %v", err)
	}
	return key.String(), key.PublicKey().String(), nil
}

/**
 * Fill wireguard defaults, keys and peer addresses
 * @description
 * - cidr must be a valid prefix able to hold the server and every peer
 * - server key pair is generated once and kept across updates
 * - peer_list keeps existing peers' keys when peers grows or shrinks
 * - the server takes the first host address, peer i the (i+2)th
 */
func (w *WireGuard) Normalize(t *models.Tunnel, cfg *config.AppConfig) error {
	spec := specOf(t)
	t.Type = "server"

	port, ok, err := spec.firstPort("port", "listen_port")
	if err != nil {
		return err
	}
	if !ok {
		port = wgDefaultPort
	}
	spec["port"] = port

	prefix, err := netip.ParsePrefix(spec.defaultString("cidr", wgDefaultCIDR))
	if err != nil {
		return invalidf("cidr %q is not a valid network: %v", spec.String("cidr"), err)
	}
	prefix = prefix.Masked()
	spec["cidr"] = prefix.String()

	peers, ok, err := spec.Int("peers")
	if err != nil {
		return err
	}
	if !ok {
		peers = wgDefaultPeers
	}
	if peers < 1 {
		return invalidf("peers must be at least 1")
	}
	if capacity := hostCapacity(prefix, peers+1); peers+1 > capacity {
		if capacity < 2 {
			return invalidf("cidr %s is too small for a wireguard network", prefix)
		}
		return invalidf("cidr %s can hold at most %d peers", prefix, capacity-1)
	}
	spec["peers"] = peers
	spec.defaultString("dns", wgDefaultDNS)
	spec.defaultString("allowed_ips", wgDefaultAllowedIPs)

	priv, pub, err := keyPair(spec.String("private_key"))
	if err != nil {
		return err
	}
	spec["private_key"] = priv
	spec["public_key"] = pub
	spec["address"] = netip.PrefixFrom(nthHost(prefix, 1), prefix.Bits()).String()

	hostBits := 32
	if prefix.Addr().Is6() {
		hostBits = 128
	}
	existing := WireGuardPeers(t)
	list := make([]interface{}, 0, peers)
	for i := 0; i < peers; i++ {
		var peer WireGuardPeer
		if i < len(existing) {
			peer = existing[i]
		}
		peer.PrivateKey, peer.PublicKey, err = keyPair(peer.PrivateKey)
		if err != nil {
			return err
		}
		peer.Address = netip.PrefixFrom(nthHost(prefix, i+2), hostBits).String()
		list = append(list, peer.toMap())
	}
	spec["peer_list"] = list
	return nil
}

func (w *WireGuard) Ports(t *models.Tunnel) []PortClaim {
	port, ok, err := Spec(t.Spec).Port("port")
	if err != nil || !ok {
		return nil
	}
	return []PortClaim{{Proto: "udp", Port: port}}
}

func writeINI(cfg *ini.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode wireguard config: %w", err)
	}
	return buf.Bytes(), nil
}

// Render produces the wg-quick server config
func (w *WireGuard) Render(t *models.Tunnel, cfg *config.AppConfig) ([]byte, error) {
	spec := Spec(t.Spec)
	port, _, err := spec.Port("port")
	if err != nil {
		return nil, err
	}
	file := ini.Empty(ini.LoadOptions{AllowNonUniqueSections: true})
	iface, _ := file.NewSection("Interface")
	iface.NewKey("Address", spec.String("address"))
	iface.NewKey("ListenPort", strconv.Itoa(port))
	iface.NewKey("PrivateKey", spec.String("private_key"))

	for _, peer := range WireGuardPeers(t) {
		section, _ := file.NewSection("Peer")
		section.NewKey("PublicKey", peer.PublicKey)
		section.NewKey("AllowedIPs", peer.Address)
	}
	return writeINI(file)
}

/**
 * Render the client config of one peer
 * @param {int} index - Zero based peer index
 * @returns {[]byte} wg-quick config to import on the client device
 * @description
 * - Endpoint host is panel.public_host, falling back to the server address
 */
func (w *WireGuard) RenderPeer(t *models.Tunnel, index int, cfg *config.AppConfig) ([]byte, error) {
	peers := WireGuardPeers(t)
	if index < 0 || index >= len(peers) {
		return nil, fmt.Errorf("peer %d does not exist (tunnel has %d peers)", index, len(peers))
	}
	spec := Spec(t.Spec)
	port, _, err := spec.Port("port")
	if err != nil {
		return nil, err
	}
	host := cfg.Panel.PublicHost
	if host == "" {
		host = strings.SplitN(spec.String("address"), "/", 2)[0]
	}
	peer := peers[index]

	file := ini.Empty(ini.LoadOptions{AllowNonUniqueSections: true})
	iface, _ := file.NewSection("Interface")
	iface.NewKey("PrivateKey", peer.PrivateKey)
	iface.NewKey("Address", peer.Address)
	if dns := spec.String("dns"); dns != "" {
		iface.NewKey("DNS", dns)
	}
	server, _ := file.NewSection("Peer")
	server.NewKey("PublicKey", spec.String("public_key"))
	server.NewKey("Endpoint", joinHostPort(host, port))
	server.NewKey("AllowedIPs", spec.String("allowed_ips"))
	server.NewKey("PersistentKeepalive", strconv.Itoa(wgKeepalive))
	return writeINI(file)
}
