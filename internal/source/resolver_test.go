package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/songbook/internal/catalog"
)

func testConfig() Config {
	return Config{
		Platform:   PlatformAndroid,
		Production: true,
		LocalBase:  "https://localhost",
		RemoteBase: "https://raw.githubusercontent.com/",
		Org:        "ACC-Hymns",
		Repo:       "acchymns-web",
		Branch:     "main",
	}
}

const (
	localCH  = "https://localhost/books/CH"
	remoteCH = "https://raw.githubusercontent.com/ACC-Hymns/acchymns-web/main/books/CH"
)

func TestBookURL(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Config)
		ref   catalog.Ref
		force bool
		want  string
	}{
		{name: "remote in native production", ref: "CH", want: remoteCH},
		{name: "web always local", mod: func(c *Config) { c.Platform = PlatformWeb }, ref: "CH", want: localCH},
		{name: "prepackaged always local", ref: "ZH", want: "https://localhost/books/ZH"},
		{name: "development local", mod: func(c *Config) { c.Production = false }, ref: "CH", want: localCH},
		{name: "forced fallback local", ref: "CH", force: true, want: localCH},
		{name: "ios production remote", mod: func(c *Config) { c.Platform = PlatformIOS }, ref: "CH", want: remoteCH},
		{name: "desktop production remote", mod: func(c *Config) { c.Platform = PlatformDesktop }, ref: "CH", want: remoteCH},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mod != nil {
				tt.mod(&cfg)
			}
			assert.Equal(t, tt.want, NewResolver(cfg).BookURL(tt.ref, tt.force))
		})
	}
}

func TestBookURL_Deterministic(t *testing.T) {
	r := NewResolver(testConfig())
	assert.Equal(t, r.BookURL("HZ", false), r.BookURL("HZ", false))
}

func TestDocumentURLs(t *testing.T) {
	r := NewResolver(testConfig())

	primary, fallback := r.DocumentURLs("CH", DocSongs, false)
	assert.Equal(t, remoteCH+"/songs.json", primary)
	assert.Equal(t, localCH+"/songs.json", fallback)

	primary, fallback = r.DocumentURLs("ZH", DocSummary, false)
	assert.Equal(t, primary, fallback)
}

func TestLocalURL_TrailingSlash(t *testing.T) {
	cfg := testConfig()
	cfg.LocalBase = "file:///opt/app/"
	assert.Equal(t, "file:///opt/app/books/GH", NewResolver(cfg).LocalURL("GH"))
}

func TestIsDocument(t *testing.T) {
	for _, d := range Documents {
		assert.True(t, IsDocument(d), d)
	}
	assert.False(t, IsDocument("cover.png"))
	assert.False(t, IsDocument("../summary.json"))
}
