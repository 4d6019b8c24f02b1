package relay

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener opens a URL in a context where the user can accept the target's
// certificate and where a relay peer can come up.
type Opener interface {
	Open(url string) error
}

// BrowserOpener launches the user's default web browser.
// It supports Linux, macOS, and Windows.
type BrowserOpener struct{}

// Open opens the specified URL in the default web browser.
// Returns an error if the browser could not be opened.
func (BrowserOpener) Open(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	// Start the command but don't wait for it to complete
	// The browser will open in the background
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
