package creds

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	data := `{"address": "robot.example.viam.cloud", "entity_id": "abc", "api_key": "secret"}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Address != "robot.example.viam.cloud" || c.EntityID != "abc" || c.APIKey != "secret" {
		t.Errorf("loaded credentials = %+v", c)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("missing file should not load")
	}
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("VIAM_MACHINE_ADDRESS", "robot.example.viam.cloud")
	t.Setenv("VIAM_API_KEY_ID", "abc")
	t.Setenv("VIAM_API_KEY", "secret")

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Address != "robot.example.viam.cloud" || c.EntityID != "abc" || c.APIKey != "secret" {
		t.Errorf("loaded credentials = %+v", c)
	}
}

func TestLoadEnvIncomplete(t *testing.T) {
	t.Setenv("VIAM_MACHINE_ADDRESS", "robot.example.viam.cloud")
	t.Setenv("VIAM_API_KEY_ID", "")
	t.Setenv("VIAM_API_KEY", "")

	if _, err := Load(""); err == nil {
		t.Error("incomplete environment should not load")
	}
}
