package misc

import (
	"fmt"

	"tunnel-panel/cmd/root"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/utils"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show health summary and key metrics of the running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := root.NewClient()
		defer client.Close()

		resp, err := client.Get("/healthz", nil)
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		var health models.HealthResponse
		if err := resp.Decode(&health); err != nil {
			return err
		}
		fmt.Printf("Version %s, %s, up %s (since %s)\n", health.Version, health.Status, health.Uptime, health.StartTime)
		row, err := utils.StructToOrderedMap(health.Metrics)
		if err != nil {
			return err
		}
		utils.PrintFormat([]*orderedmap.OrderedMap{row})
		return nil
	},
}

func init() {
	root.RootCmd.AddCommand(metricsCmd)
}
