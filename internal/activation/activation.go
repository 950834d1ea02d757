// Package activation provides the listening socket of the webhook server,
// inherited from systemd socket activation when present.
package activation

import (
	"fmt"
	"net"
	"os"

	"github.com/caarlos0/env/v11"
)

// Systemd passes sockets starting at fd 3 (after stdin, stdout, stderr)
const firstFD = 3

type listenEnv struct {
	PID int `env:"LISTEN_PID"`
	FDs int `env:"LISTEN_FDS"`
}

// Listen returns the socket systemd activated this process with, or a new TCP
// listener on addr otherwise. The boolean reports whether the socket was
// inherited.
func Listen(addr string) (net.Listener, bool, error) {
	ln, err := inherited()
	if err != nil {
		return nil, false, err
	}
	if ln != nil {
		return ln, true, nil
	}

	ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, false, nil
}

// inherited returns nil without error when the process was not socket
// activated or the activation targets another process.
func inherited() (net.Listener, error) {
	var e listenEnv
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("invalid socket activation environment: %w", err)
	}
	if e.PID != os.Getpid() || e.FDs < 1 {
		return nil, nil
	}
	if e.FDs > 1 {
		return nil, fmt.Errorf("expected a single activated socket, got %d", e.FDs)
	}

	file := os.NewFile(uintptr(firstFD), "systemd-socket")
	if file == nil {
		return nil, fmt.Errorf("failed to open fd %d", firstFD)
	}
	defer func() {
		_ = file.Close()
	}()

	ln, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener from fd %d: %w", firstFD, err)
	}

	// Child processes such as git must not see the activation.
	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return ln, nil
}
