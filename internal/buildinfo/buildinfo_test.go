package buildinfo

import "testing"

func TestInfoPrefersLinkerValues(t *testing.T) {
	old := Commit
	Commit = "abc123"
	defer func() { Commit = old }()

	info := Info()
	if info["commit"] != "abc123" {
		t.Fatalf("commit = %q", info["commit"])
	}
	if info["version"] == "" || info["goVersion"] == "" {
		t.Fatalf("missing fields: %v", info)
	}
}
