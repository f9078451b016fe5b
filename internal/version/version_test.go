package version

import "testing"

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("got version %q, want %q", info.Version, Version)
	}
	if info.GoVersion == "" {
		t.Error("expected go version from build info")
	}
}
