package cmd

import (
	_ "tunnel-panel/cmd/misc"
	_ "tunnel-panel/cmd/node"
	_ "tunnel-panel/cmd/root"
	_ "tunnel-panel/cmd/server"
	_ "tunnel-panel/cmd/tunnel"
)
