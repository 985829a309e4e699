// Package platform wraps operating system integrations.
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Operating system constants
const (
	OSDarwin  = "darwin"
	OSWindows = "windows"
	OSLinux   = "linux"
)

// Command constants
const (
	OpenCommand     = "open"
	ExplorerCommand = "explorer"
	XDGOpenCommand  = "xdg-open"
)

// Command parameters
const (
	MacOSSelectFlag    = "-R"
	WindowsSelectParam = "/select,"
)

// LinuxFileManagers are tried in order when xdg-open fails.
var LinuxFileManagers = []string{"nautilus", "dolphin", "thunar", "nemo", "pcmanfm"}

// runCommand is replaced in tests.
var runCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// Reveal opens the system file manager at path, selecting the file where the
// platform supports it.
func Reveal(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file does not exist: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	return revealOn(runtime.GOOS, absPath)
}

func revealOn(goos, absPath string) error {
	switch goos {
	case OSDarwin:
		return runCommand(OpenCommand, MacOSSelectFlag, absPath)
	case OSWindows:
		return runCommand(ExplorerCommand, WindowsSelectParam+absPath)
	case OSLinux:
		return revealLinux(absPath)
	default:
		return fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// revealLinux opens the containing directory; file selection is not
// standardised across Linux file managers.
func revealLinux(absPath string) error {
	dir := filepath.Dir(absPath)

	if err := runCommand(XDGOpenCommand, dir); err == nil {
		return nil
	}

	for _, fm := range LinuxFileManagers {
		if _, err := lookPath(fm); err == nil {
			return runCommand(fm, dir)
		}
	}

	return fmt.Errorf("no suitable file manager found")
}
