package tunnel

import (
	"fmt"
	"strings"
	"time"

	"tunnel-panel/cmd/root"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/utils"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var (
	listCore   string
	listStatus string
	listJSON   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tunnels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTunnels()
	},
}

/**
 *	Fields displayed in list format
 */
type Tunnel_Columns struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Core     string `json:"core"`
	Type     string `json:"type"`
	Port     string `json:"port"`
	Status   string `json:"status"`
	Revision int64  `json:"revision"`
	Updated  string `json:"updated"`
	Error    string `json:"error"`
}

/**
 * List tunnels with filtering
 * @returns {error} Returns error if listing fails, nil on success
 * @description
 * - Filters by core and/or status if specified
 * - Uses utils.PrintFormat for formatted output, --json prints raw records
 */
func listTunnels() error {
	client := root.NewClient()
	defer client.Close()

	resp, err := client.Get("/api/tunnels", nil)
	if err != nil {
		return fmt.Errorf("failed to call panel API: %w", err)
	}
	var tunnels []models.Tunnel
	if err := resp.Decode(&tunnels); err != nil {
		return err
	}

	var filtered []models.Tunnel
	for _, t := range tunnels {
		if listCore != "" && t.Core != listCore {
			continue
		}
		if listStatus != "" && string(t.Status) != listStatus {
			continue
		}
		filtered = append(filtered, t)
	}
	if listJSON {
		return utils.PrintJSON(filtered)
	}
	if len(filtered) == 0 {
		fmt.Println("No tunnels")
		return nil
	}

	var dataList []*orderedmap.OrderedMap
	for _, t := range filtered {
		row := Tunnel_Columns{
			ID:       t.ID,
			Name:     t.Name,
			Core:     t.Core,
			Type:     t.Type,
			Port:     tunnelPort(t.Spec),
			Status:   string(t.Status),
			Revision: t.Revision,
			Updated:  t.UpdatedAt.Format(time.DateTime),
		}
		if t.ErrorMessage != nil {
			row.Error = truncate(*t.ErrorMessage, 48)
		}
		recordMap, _ := utils.StructToOrderedMap(row)
		dataList = append(dataList, recordMap)
	}
	utils.PrintFormat(dataList)
	return nil
}

// tunnelPort picks the first port-like field of a spec
func tunnelPort(spec map[string]interface{}) string {
	for _, key := range []string{"listen_port", "remote_port", "port"} {
		if v, ok := spec[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return "-"
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	listCmd.Flags().SortFlags = false
	listCmd.Flags().StringVar(&listCore, "core", "", "Only show tunnels of this core")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Only show tunnels in this status")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")
	tunnelCmd.AddCommand(listCmd)
}
