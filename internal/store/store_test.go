package store

import (
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name string `json:"name" mapstructure:"name"`
	Size int64  `json:"size" mapstructure:"size"`
}

func TestOpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.IsSet("anything") {
		t.Error("Fresh store should be empty")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Open must not create the file")
	}
}

func TestOpenRejectsNonJSON(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "store.yaml")); err == nil {
		t.Error("Expected error for non-JSON store path")
	}
}

func TestSaveAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	s.Set("records", []record{{Name: "a.png", Size: 10}, {Name: "b.png", Size: 20}})
	if err := s.SetLastOutputDirectory("/tmp/out"); err != nil {
		t.Fatalf("SetLastOutputDirectory failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}

	var got []record
	if err := reopened.UnmarshalKey("records", &got); err != nil {
		t.Fatalf("UnmarshalKey failed: %v", err)
	}
	if len(got) != 2 || got[0].Name != "a.png" || got[1].Size != 20 {
		t.Errorf("Unexpected records after reopen: %+v", got)
	}
	if dir := reopened.LastOutputDirectory(); dir != "/tmp/out" {
		t.Errorf("Expected last output directory /tmp/out, got %q", dir)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp.json"))
	if len(matches) != 0 {
		t.Errorf("Temporary files left behind: %v", matches)
	}
}

func TestKeysAreCaseInsensitive(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Set("Last_Output_Directory", "/x")
	if got := s.LastOutputDirectory(); got != "/x" {
		t.Errorf("Expected /x, got %q", got)
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Expected error for corrupt store file")
	}
}
