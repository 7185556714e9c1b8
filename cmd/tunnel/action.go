package tunnel

import (
	"fmt"

	"tunnel-panel/cmd/root"
	"tunnel-panel/internal/models"

	"github.com/spf13/cobra"
)

/**
 * Run start/stop/restart on a tunnel
 * @param {string} action - start, stop or restart
 * @param {string} id - Tunnel ID
 * @returns {error} API error, e.g. for extension cores
 */
func tunnelAction(action, id string) error {
	client := root.NewClient()
	defer client.Close()

	resp, err := client.Post(fmt.Sprintf("/api/tunnels/%s/%s", id, action), nil)
	if err != nil {
		return fmt.Errorf("failed to call panel API: %w", err)
	}
	var t models.Tunnel
	if err := resp.Decode(&t); err != nil {
		return err
	}
	fmt.Printf("Tunnel %s: %s\n", t.Name, t.Status)
	if t.ErrorMessage != nil {
		fmt.Printf("Error: %s\n", *t.ErrorMessage)
	}
	return nil
}

func actionCommand(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tunnelAction(action, args[0])
		},
	}
}

func init() {
	tunnelCmd.AddCommand(actionCommand("start", "Start a tunnel"))
	tunnelCmd.AddCommand(actionCommand("stop", "Stop a tunnel, the monitor will not restart it"))
	tunnelCmd.AddCommand(actionCommand("restart", "Restart a tunnel"))
}
