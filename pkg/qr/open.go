package qr

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Open hands path to the platform's default viewer without waiting for it.
func Open(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	case "darwin":
		cmd = exec.Command("open", path)
	default:
		return fmt.Errorf("open %s: unsupported platform %s", path, runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	go func() { _ = cmd.Wait() }()
	return nil
}
