package server

import (
	"net"
	"os"
	"path/filepath"

	"tunnel-panel/internal/logger"
)

type ListenAddr struct {
	Network string
	Address string
}

/**
 * Create TCP and Unix socket listeners
 * @param {[]ListenAddr} addrs - Listener addresses
 * @returns {[]net.Listener} Listeners that could be opened
 * @returns {error} Last error, only fatal when no listener was created
 * @description
 * - Stale unix socket files are removed before listening
 * - The socket directory is created with 0700, the socket is chmod 0600
 */
func CreateListeners(addrs []ListenAddr) ([]net.Listener, error) {
	var listeners []net.Listener

	var lastErr error
	for _, addr := range addrs {
		if addr.Network == "unix" {
			if err := os.MkdirAll(filepath.Dir(addr.Address), 0700); err != nil {
				logger.Errorf("Failed to create socket directory: %v", err)
				lastErr = err
				continue
			}
			if err := os.Remove(addr.Address); err != nil && !os.IsNotExist(err) {
				logger.Errorf("Failed to remove existing socket file: %v", err)
				lastErr = err
				continue
			}
		}
		ln, err := net.Listen(addr.Network, addr.Address)
		if err != nil {
			logger.Errorf("Failed to create listener on %s://%s: %v", addr.Network, addr.Address, err)
			lastErr = err
			continue
		}
		if addr.Network == "unix" {
			os.Chmod(addr.Address, 0600)
		}
		logger.Infof("Listening on %s://%s", addr.Network, addr.Address)
		listeners = append(listeners, ln)
	}
	return listeners, lastErr
}
