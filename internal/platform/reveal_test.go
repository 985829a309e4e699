package platform

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type call struct {
	name string
	args []string
}

func stubCommands(t *testing.T, fail map[string]bool, available map[string]bool) *[]call {
	t.Helper()
	var calls []call

	origRun, origLook := runCommand, lookPath
	t.Cleanup(func() {
		runCommand, lookPath = origRun, origLook
	})

	runCommand = func(name string, args ...string) error {
		calls = append(calls, call{name: name, args: args})
		if fail[name] {
			return errors.New("exit status 1")
		}
		return nil
	}
	lookPath = func(file string) (string, error) {
		if available[file] {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("not found")
	}
	return &calls
}

func TestRevealNonExistentFile(t *testing.T) {
	err := Reveal(filepath.Join(t.TempDir(), "nonexistent.webp"))
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if !strings.Contains(err.Error(), "file does not exist:") {
		t.Errorf("Error message should contain 'file does not exist:', got: %v", err)
	}
}

func TestRevealPerPlatform(t *testing.T) {
	tests := []struct {
		goos     string
		expected call
	}{
		{OSDarwin, call{OpenCommand, []string{MacOSSelectFlag, "/out/a.webp"}}},
		{OSWindows, call{ExplorerCommand, []string{WindowsSelectParam + "/out/a.webp"}}},
		{OSLinux, call{XDGOpenCommand, []string{"/out"}}},
	}

	for _, test := range tests {
		calls := stubCommands(t, nil, nil)
		if err := revealOn(test.goos, "/out/a.webp"); err != nil {
			t.Errorf("%s: unexpected error %v", test.goos, err)
		}
		if len(*calls) != 1 || !reflect.DeepEqual((*calls)[0], test.expected) {
			t.Errorf("%s: expected %+v, got %+v", test.goos, test.expected, *calls)
		}
	}
}

func TestRevealLinuxFallsBackToFileManager(t *testing.T) {
	calls := stubCommands(t, map[string]bool{XDGOpenCommand: true}, map[string]bool{"thunar": true})

	if err := revealOn(OSLinux, "/out/a.webp"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(*calls) != 2 || (*calls)[1].name != "thunar" {
		t.Errorf("Expected thunar fallback, got %+v", *calls)
	}
}

func TestRevealLinuxNoFileManager(t *testing.T) {
	stubCommands(t, map[string]bool{XDGOpenCommand: true}, nil)

	if err := revealOn(OSLinux, "/out/a.webp"); err == nil {
		t.Error("Expected error when no file manager is available")
	}
}

func TestRevealUnsupportedOS(t *testing.T) {
	stubCommands(t, nil, nil)
	if err := revealOn("plan9", "/out/a.webp"); err == nil {
		t.Error("Expected error for unsupported OS")
	}
}

func TestRevealExistingFile(t *testing.T) {
	calls := stubCommands(t, nil, nil)
	path := filepath.Join(t.TempDir(), "a.webp")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_ = Reveal(path)
	if len(*calls) == 0 {
		t.Skip("platform without a reveal command")
	}
}
