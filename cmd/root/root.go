package root

import (
	"tunnel-panel/internal/config"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/rpc"

	"github.com/spf13/cobra"
)

var (
	configFile string
	apiToken   string
	apiAddress string
)

var RootCmd = &cobra.Command{
	Use:   "tunnel-panel",
	Short: "隧道管理面板",
	Long:  `tunnel-panel管理xray、rathole、hysteria2、wireguard隧道的配置、启动、监控和远端节点`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.SetConfigFile(configFile)
		if err := config.Init(); err != nil {
			return err
		}
		cfg := config.App()
		// 服务模式输出到日志文件，命令行模式只输出警告以上
		if cmd.Name() == "server" {
			logger.InitLogger(cfg.Log.Path, cfg.Log.Level, cfg.Log.Path == "" || cfg.Log.Path == "console")
		} else {
			logger.InitLogger("console", "warn", true)
		}
		return nil
	},
	SilenceUsage: true,
}

/**
 * Create rpc client for CLI subcommands
 * @returns {rpc.HTTPClient} Client talking to the local panel server
 * @description
 * - --addr forces tcp to the given address, otherwise the unix socket is preferred
 * - --token overrides TPANEL_TOKEN
 */
func NewClient() rpc.HTTPClient {
	cfg := rpc.DefaultHTTPConfig()
	if apiAddress != "" {
		cfg.Network = "tcp"
		cfg.Address = apiAddress
	}
	if apiToken != "" {
		cfg.Token = apiToken
	}
	return rpc.NewHTTPClient(cfg)
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	RootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "API令牌（默认读取TPANEL_TOKEN）")
	RootCmd.PersistentFlags().StringVar(&apiAddress, "addr", "", "面板服务tcp地址，例如127.0.0.1:8000")
}
