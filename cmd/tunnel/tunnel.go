package tunnel

import (
	"fmt"

	"tunnel-panel/cmd/root"
	"tunnel-panel/internal/models"

	"github.com/spf13/cobra"
)

var tunnelCmd = &cobra.Command{
	Use:   "tunnel",
	Short: "Tunnel operations (list, create, start/stop etc.)",
	Long:  `Tunnel operations through the running panel server (list, create, start/stop etc.)`,
}

const tunnelExample = `  # list tunnels
  tunnel-panel tunnel list
  # create a hysteria2 server with default settings
  tunnel-panel tunnel create hy --core hysteria2
  # restart a tunnel
  tunnel-panel tunnel restart 5f0c...`

/**
 * Fetch one tunnel from the server
 * @param {string} id - Tunnel ID
 * @returns {*models.Tunnel} Tunnel record
 */
func getTunnel(id string) (*models.Tunnel, error) {
	client := root.NewClient()
	defer client.Close()

	resp, err := client.Get("/api/tunnels/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call panel API: %w", err)
	}
	var t models.Tunnel
	if err := resp.Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func init() {
	root.RootCmd.AddCommand(tunnelCmd)

	tunnelCmd.Example = tunnelExample
}
