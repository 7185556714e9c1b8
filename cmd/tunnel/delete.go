package tunnel

import (
	"fmt"

	"tunnel-panel/cmd/root"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Stop and delete a tunnel",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := root.NewClient()
		defer client.Close()

		resp, err := client.Delete("/api/tunnels/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		if err := resp.Decode(nil); err != nil {
			return err
		}
		fmt.Printf("Tunnel %s deleted\n", args[0])
		return nil
	},
}

func init() {
	tunnelCmd.AddCommand(deleteCmd)
}
