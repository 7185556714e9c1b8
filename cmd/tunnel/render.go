package tunnel

import (
	"fmt"
	"os"

	"tunnel-panel/cmd/root"

	"github.com/spf13/cobra"
)

var (
	renderPeer   int
	renderOutput string
)

var renderCmd = &cobra.Command{
	Use:   "render <id>",
	Short: "Print the native config of a tunnel",
	Long:  `Print the config file the core runs with; --peer prints a WireGuard client config instead`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/tunnels/%s/config", args[0])
		if renderPeer >= 0 {
			path = fmt.Sprintf("/api/tunnels/%s/peers/%d", args[0], renderPeer)
		}

		client := root.NewClient()
		defer client.Close()
		resp, err := client.Get(path, nil)
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		if !resp.OK() {
			return fmt.Errorf("%d: %s", resp.StatusCode, resp.Error)
		}
		if renderOutput != "" {
			return os.WriteFile(renderOutput, resp.Body, 0600)
		}
		_, err = os.Stdout.Write(resp.Body)
		return err
	},
}

func init() {
	renderCmd.Flags().IntVarP(&renderPeer, "peer", "p", -1, "WireGuard peer index")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Write to file instead of stdout")
	tunnelCmd.AddCommand(renderCmd)
}
