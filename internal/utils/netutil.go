package utils

import (
	"fmt"
	"net"
)

/**
 * Check whether a local port can still be bound
 * @param {string} proto - "tcp" or "udp"
 * @param {int} port - Port number
 * @returns {bool} true when nothing else listens on the port
 */
func PortListenable(proto string, port int) bool {
	addr := fmt.Sprintf(":%d", port)
	switch proto {
	case "udp":
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		pc.Close()
		return true
	default:
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		l.Close()
		return true
	}
}
