package api

import (
	"testing"
)

func TestTLSConfig_Enabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  TLSConfig
		want bool
	}{
		{"empty", TLSConfig{}, false},
		{"only cert", TLSConfig{CertFile: "/path/to/cert.pem"}, false},
		{"only key", TLSConfig{KeyFile: "/path/to/key.pem"}, false},
		{"both", TLSConfig{CertFile: "/path/to/cert.pem", KeyFile: "/path/to/key.pem"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTLSConfig_LoadNotEnabled(t *testing.T) {
	cfg, err := TLSConfig{CertFile: "/path/to/cert.pem"}.Load()
	if err != nil {
		t.Fatalf("Load should not fail when TLS is not enabled: %v", err)
	}
	if cfg != nil {
		t.Error("Load should return nil when TLS is not enabled")
	}
}

func TestTLSConfig_LoadInvalidFiles(t *testing.T) {
	cfg, err := TLSConfig{
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	}.Load()
	if err == nil {
		t.Fatal("Load should fail when cert files don't exist")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}
