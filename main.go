package main

import (
	"os"

	_ "tunnel-panel/cmd"
	"tunnel-panel/cmd/root"
)

func main() {
	if err := root.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
