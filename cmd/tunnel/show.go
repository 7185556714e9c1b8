package tunnel

import (
	"tunnel-panel/internal/utils"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a tunnel with its spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := getTunnel(args[0])
		if err != nil {
			return err
		}
		return utils.PrintJSON(t)
	},
}

func init() {
	tunnelCmd.AddCommand(showCmd)
}
