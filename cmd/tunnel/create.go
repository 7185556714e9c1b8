package tunnel

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"tunnel-panel/cmd/root"
	"tunnel-panel/internal/models"

	"github.com/spf13/cobra"
)

var (
	createCore   string
	createType   string
	createNode   string
	createSpec   string
	createValues []string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tunnel",
	Long: `Create a tunnel. The spec is given as JSON (--spec, "@file" reads a file) and/or
key=value pairs (--set); omitted fields get the core defaults.`,
	Example: `  tunnel-panel tunnel create web --core xray --type tcp --set port=8080 --set remote_ip=10.0.0.5
  tunnel-panel tunnel create ssh --core rathole --node edge-1-id --set local_addr=127.0.0.1:22
  tunnel-panel tunnel create wg --core wireguard --spec @wg.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := parseSpec(createSpec, createValues)
		if err != nil {
			return err
		}
		return createTunnel(models.CreateTunnelRequest{
			Name:   args[0],
			Core:   createCore,
			Type:   createType,
			NodeID: models.StringPtr(createNode),
			Spec:   spec,
		})
	},
}

/**
 * Build spec from a JSON document and key=value overrides
 * @param {string} doc - JSON object, or "@path" to read it from a file
 * @param {[]string} values - key=value pairs, values that parse as JSON keep their type
 * @returns {map[string]interface{}} Spec sent to the server
 */
func parseSpec(doc string, values []string) (map[string]interface{}, error) {
	spec := map[string]interface{}{}
	if strings.HasPrefix(doc, "@") {
		data, err := os.ReadFile(doc[1:])
		if err != nil {
			return nil, err
		}
		doc = string(data)
	}
	if strings.TrimSpace(doc) != "" {
		if err := json.Unmarshal([]byte(doc), &spec); err != nil {
			return nil, fmt.Errorf("invalid spec JSON: %w", err)
		}
	}
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", kv)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		spec[key] = v
	}
	return spec, nil
}

func createTunnel(req models.CreateTunnelRequest) error {
	client := root.NewClient()
	defer client.Close()

	resp, err := client.Post("/api/tunnels", req)
	if err != nil {
		return fmt.Errorf("failed to call panel API: %w", err)
	}
	var t models.Tunnel
	if err := resp.Decode(&t); err != nil {
		return err
	}
	fmt.Printf("Tunnel %s created: %s\n", t.ID, t.Status)
	if t.ErrorMessage != nil {
		fmt.Printf("Error: %s\n", *t.ErrorMessage)
	}
	return nil
}

func init() {
	createCmd.Flags().SortFlags = false
	createCmd.Flags().StringVar(&createCore, "core", "", "Core: xray, rathole, hysteria2, wireguard or an extension core")
	createCmd.Flags().StringVarP(&createType, "type", "t", "", "Protocol sub-mode, e.g. tcp/udp/ws for xray")
	createCmd.Flags().StringVar(&createNode, "node", "", "Node ID, required by rathole")
	createCmd.Flags().StringVar(&createSpec, "spec", "", "Spec as JSON, @file reads it from a file")
	createCmd.Flags().StringArrayVar(&createValues, "set", nil, "Spec field as key=value, repeatable")
	createCmd.MarkFlagRequired("core")
	tunnelCmd.AddCommand(createCmd)
}
