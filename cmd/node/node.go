package node

import (
	"fmt"
	"time"

	"tunnel-panel/cmd/root"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/utils"
	"tunnel-panel/services"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Remote node operations (list, add, remove, rathole)",
}

type Node_Columns struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := root.NewClient()
		defer client.Close()

		resp, err := client.Get("/api/nodes", nil)
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		var nodes []models.Node
		if err := resp.Decode(&nodes); err != nil {
			return err
		}
		if len(nodes) == 0 {
			fmt.Println("No nodes")
			return nil
		}
		var dataList []*orderedmap.OrderedMap
		for _, n := range nodes {
			row := Node_Columns{ID: n.ID, Name: n.Name, Address: n.Address, Status: string(n.Status), LastSeen: "-"}
			if n.LastSeen != nil {
				row.LastSeen = n.LastSeen.Format(time.DateTime)
			}
			recordMap, _ := utils.StructToOrderedMap(row)
			dataList = append(dataList, recordMap)
		}
		utils.PrintFormat(dataList)
		return nil
	},
}

var addAddress string

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := root.NewClient()
		defer client.Close()

		resp, err := client.Post("/api/nodes", models.CreateNodeRequest{Name: args[0], Address: addAddress})
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		var n models.Node
		if err := resp.Decode(&n); err != nil {
			return err
		}
		fmt.Printf("Node %s registered: %s\n", n.Name, n.ID)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a node without tunnels",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := root.NewClient()
		defer client.Close()

		resp, err := client.Delete("/api/nodes/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		if err := resp.Decode(nil); err != nil {
			return err
		}
		fmt.Printf("Node %s removed\n", args[0])
		return nil
	},
}

var ratholeCmd = &cobra.Command{
	Use:   "rathole <id>",
	Short: "Print the rathole client configs a node must run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := root.NewClient()
		defer client.Close()

		resp, err := client.Get("/api/nodes/"+args[0]+"/rathole", nil)
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		var configs []services.RatholeClientConfig
		if err := resp.Decode(&configs); err != nil {
			return err
		}
		for _, c := range configs {
			fmt.Printf("# %s (%s)\n%s\n", c.Name, c.TunnelID, c.Config)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringVarP(&addAddress, "address", "a", "", "Public address of the node")
	nodeCmd.AddCommand(listCmd, addCmd, removeCmd, ratholeCmd)
	root.RootCmd.AddCommand(nodeCmd)
}
