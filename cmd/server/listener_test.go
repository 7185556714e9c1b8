//go:build !windows

package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestCreateListeners(t *testing.T) {
	dir, err := os.MkdirTemp("", "tp")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "run", "p.sock")
	// 残留的socket文件会被替换
	os.MkdirAll(filepath.Dir(sock), 0700)
	os.WriteFile(sock, nil, 0600)

	listeners, err := CreateListeners([]ListenAddr{
		{Network: "tcp", Address: "127.0.0.1:0"},
		{Network: "unix", Address: sock},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(listeners) != 2 {
		t.Fatalf("listeners = %d", len(listeners))
	}
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial socket: %v", err)
	}
	conn.Close()

	info, err := os.Stat(sock)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("socket mode = %v", info.Mode().Perm())
	}
}

func TestCreateListenersPartialFailure(t *testing.T) {
	listeners, err := CreateListeners([]ListenAddr{
		{Network: "tcp", Address: "127.0.0.1:0"},
		{Network: "tcp", Address: "256.0.0.1:1"},
	})
	for _, ln := range listeners {
		ln.Close()
	}
	if len(listeners) != 1 || err == nil {
		t.Errorf("listeners = %d, err = %v", len(listeners), err)
	}
}
