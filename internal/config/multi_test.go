package config

import (
	"os"
	"path/filepath"
	"testing"
)

func createProfile(t *testing.T, label string) {
	t.Helper()
	if err := os.MkdirAll(ConfigsDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := SaveYAML(DefaultConfig(), filepath.Join(ConfigsDir(), label+".yaml")); err != nil {
		t.Fatal(err)
	}
}

func TestSwitchConfig(t *testing.T) {
	isolateConfigRoot(t)
	createProfile(t, "Default")
	createProfile(t, "Server")

	if err := SwitchConfig("Server"); err != nil {
		t.Fatalf("switch: %v", err)
	}

	label, err := CurrentLabel()
	if err != nil {
		t.Fatal(err)
	}
	if label != "Server" {
		t.Errorf("expected active label Server, got %q", label)
	}

	if err := SwitchConfig("Nope"); err == nil {
		t.Error("switching to a missing profile must fail")
	}
}

func TestListConfigsMarksActive(t *testing.T) {
	isolateConfigRoot(t)
	createProfile(t, "Default")
	createProfile(t, "Server")
	if err := SwitchConfig("Default"); err != nil {
		t.Fatal(err)
	}

	list, err := ListConfigs()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(list))
	}
	if list[0].Label != "Default" || !list[0].Active {
		t.Errorf("expected Default active first, got %+v", list[0])
	}
	if list[1].Label != "Server" || list[1].Active {
		t.Errorf("expected inactive Server second, got %+v", list[1])
	}
}

func TestRemoveConfigFallsBackToDefault(t *testing.T) {
	isolateConfigRoot(t)
	createProfile(t, "Default")
	createProfile(t, "Server")
	if err := SwitchConfig("Server"); err != nil {
		t.Fatal(err)
	}

	if err := RemoveConfig("Server", true); err != nil {
		t.Fatalf("remove: %v", err)
	}

	label, err := CurrentLabel()
	if err != nil {
		t.Fatal(err)
	}
	if label != "Default" {
		t.Errorf("expected fallback to Default, got %q", label)
	}

	if err := RemoveConfig("Default", true); err == nil {
		t.Error("removing the Default profile must be refused")
	}
}
