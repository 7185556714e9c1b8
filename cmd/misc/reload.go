package misc

import (
	"fmt"

	"tunnel-panel/cmd/root"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload server configuration",
	Long:  `Reload server configuration by calling the reload API of the running panel`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := root.NewClient()
		defer client.Close()

		resp, err := client.Post("/api/reload", nil)
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		if resp.Error != "" {
			return fmt.Errorf("panel API returned error(%d): %s", resp.StatusCode, resp.Error)
		}
		fmt.Printf("Successfully reloaded server configuration, status code: %d\n", resp.StatusCode)
		return nil
	},
}

func init() {
	root.RootCmd.AddCommand(reloadCmd)
}
