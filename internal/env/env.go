package env

import (
	"os"
	"path/filepath"
)

// (default: $TPANEL_HOME, else $HOME/.tunnel-panel)
var PanelDir string = GetPanelDir()

// 构建时通过 -ldflags "-X tunnel-panel/internal/env.Version=..." 注入
var (
	Version       = "dev"
	BuildTime     = ""
	BuildCommitId = ""
)

/**
 * Get panel home directory path
 * @returns {string} Returns panel directory path
 * @description
 * - TPANEL_HOME overrides the default location
 * - Falls back to the working directory when no home directory is known
 */
func GetPanelDir() string {
	if dir := os.Getenv("TPANEL_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return ".tunnel-panel"
	}
	return filepath.Join(homeDir, ".tunnel-panel")
}

// SocketPath is where the server publishes its unix socket for local CLI calls
func SocketPath() string {
	return filepath.Join(PanelDir, "run", "tunnel-panel.sock")
}
