package internal

import (
	"strings"
	"testing"

	"github.com/starford/songbook/internal/prefs"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestApplicationConfig_EmptyLogFormatDefaultsJSON(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.LogFormat = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty log format should default: %v", err)
	}
	if cfg.App.LogFormat != LogFormatJSON {
		t.Errorf("log format = %q, want %q", cfg.App.LogFormat, LogFormatJSON)
	}
}

func TestApplicationConfig_Version(t *testing.T) {
	for _, v := range []string{"2.0.3", "v2.1.0", "3.0.0-beta.1"} {
		cfg := NewDefaultConfig()
		cfg.App.Version = v
		if err := cfg.Validate(); err != nil {
			t.Errorf("version %q should pass: %v", v, err)
		}
	}

	cfg := NewDefaultConfig()
	cfg.App.Version = "two"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("non-semver version should fail")
	}
	if !strings.Contains(err.Error(), "semantic version") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestApplicationConfig_InvalidPlatformAndMode(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.Platform = "amiga"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown platform should fail")
	}

	cfg = NewDefaultConfig()
	cfg.App.Mode = "staging"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestPrefsConfig(t *testing.T) {
	cfg := PrefsConfig{Driver: prefs.DriverMemory}
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory driver needs no path: %v", err)
	}

	cfg = PrefsConfig{Driver: prefs.DriverTOML}
	if err := cfg.Validate(); err == nil {
		t.Error("toml driver without path should fail")
	}

	cfg = PrefsConfig{Driver: "redis", Path: "x"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestRemoteConfig_Required(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Books.Remote.Branch = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing branch should fail")
	}
}

func TestHTTPConfig_Address(t *testing.T) {
	c := HTTPConfig{Port: 9090}
	if got := c.Address(); got != ":9090" {
		t.Errorf("Address = %q", got)
	}
}

func TestResolverConfig_EmptyBaseURLUsesServer(t *testing.T) {
	cfg := NewDefaultConfig()
	rc := resolverConfig(cfg)
	if rc.LocalBase != "http://localhost:8080/" {
		t.Errorf("LocalBase = %q", rc.LocalBase)
	}
	if !rc.Production || rc.Platform != cfg.App.Platform {
		t.Errorf("resolver config = %+v", rc)
	}
}
