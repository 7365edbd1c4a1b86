package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/adrg/xdg"

	cfg "github.com/NamanBalaji/bitwire/internal/config"
)

func withTempConfigHome(t *testing.T) (restore func(), dir string, file string) {
	t.Helper()
	orig := xdg.ConfigHome
	dir = t.TempDir()
	xdg.ConfigHome = dir
	restore = func() { xdg.ConfigHome = orig }
	file = filepath.Join(dir, "bitwire")
	return
}

func TestGetConfig_Table(t *testing.T) {
	restore, _, cfgFile := withTempConfigHome(t)
	defer restore()

	def := cfg.DefaultConfig()

	tests := []struct {
		name      string
		preWrite  bool
		contents  string
		expectErr bool
		check     func(t *testing.T, got *cfg.Config, def cfg.Config)
	}{
		{
			name:     "missing_file_returns_defaults",
			preWrite: false,
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if !reflect.DeepEqual(*got, def) {
					t.Fatalf("expected defaults\nwant: %#v\ngot:  %#v", def, *got)
				}
			},
		},
		{
			name:     "empty_file_returns_defaults",
			preWrite: true,
			contents: "",
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if !reflect.DeepEqual(*got, def) {
					t.Fatalf("expected defaults\nwant: %#v\ngot:  %#v", def, *got)
				}
			},
		},
		{
			name:      "invalid_yaml_returns_error",
			preWrite:  true,
			contents:  ": not yaml",
			expectErr: true,
			check:     func(t *testing.T, _ *cfg.Config, _ cfg.Config) {},
		},
		{
			name:     "no_wire_section_uses_defaults",
			preWrite: true,
			contents: "maxPeers: 7\n",
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if got.MaxPeers != 7 {
					t.Fatalf("maxPeers not applied, got %d", got.MaxPeers)
				}
				if !reflect.DeepEqual(*got.Wire, *def.Wire) {
					t.Fatalf("wire defaults not applied\nwant: %#v\ngot:  %#v", *def.Wire, *got.Wire)
				}
			},
		},
		{
			name:     "partial_override_and_fallback",
			preWrite: true,
			contents: `
listenAddr: 127.0.0.1:7000
peerIDPrefix: -XX0001-
wire:
  maxMessageLen: 65536
  strictKeySort: true
  readTimeout: 30s
  extensions:
    ut_metadata: 3
    ut_pex: 4
`,
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if got.ListenAddr != "127.0.0.1:7000" {
					t.Fatalf("want listenAddr override got %q", got.ListenAddr)
				}
				if got.PeerIDPrefix != "-XX0001-" {
					t.Fatalf("want peerIDPrefix override got %q", got.PeerIDPrefix)
				}
				if got.MaxPeers != def.MaxPeers {
					t.Fatalf("want maxPeers default %d got %d", def.MaxPeers, got.MaxPeers)
				}
				if got.DataDir != def.DataDir {
					t.Fatalf("want dataDir default %q got %q", def.DataDir, got.DataDir)
				}
				if got.Wire.MaxMessageLen != 65536 {
					t.Fatalf("want wire.maxMessageLen=65536 got %d", got.Wire.MaxMessageLen)
				}
				if !got.Wire.StrictKeySort {
					t.Fatal("want wire.strictKeySort=true")
				}
				if got.Wire.ReadTimeout != 30*time.Second {
					t.Fatalf("want wire.readTimeout=30s got %s", got.Wire.ReadTimeout)
				}
				want := map[string]uint8{"ut_metadata": 3, "ut_pex": 4}
				if !reflect.DeepEqual(got.Wire.Extensions, want) {
					t.Fatalf("want extensions %v got %v", want, got.Wire.Extensions)
				}
				if got.Wire.MaxDecodeDepth != def.Wire.MaxDecodeDepth {
					t.Fatalf("want wire.maxDecodeDepth default %d got %d", def.Wire.MaxDecodeDepth, got.Wire.MaxDecodeDepth)
				}
				if got.Wire.HandshakeTimeout != def.Wire.HandshakeTimeout {
					t.Fatalf("want wire.handshakeTimeout default %s got %s", def.Wire.HandshakeTimeout, got.Wire.HandshakeTimeout)
				}
				if got.Wire.ClientName != def.Wire.ClientName {
					t.Fatalf("want wire.clientName default %q got %q", def.Wire.ClientName, got.Wire.ClientName)
				}
			},
		},
		{
			name:     "explicit_zero_values_fall_back_to_defaults",
			preWrite: true,
			contents: `
maxPeers: 0
dataDir: ""
wire:
  maxMessageLen: 0
  handshakeTimeout: 0s
  clientName: ""
`,
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if got.MaxPeers != def.MaxPeers {
					t.Fatalf("maxPeers zero should fallback. want %d got %d", def.MaxPeers, got.MaxPeers)
				}
				if got.DataDir != def.DataDir {
					t.Fatalf("dataDir zero should fallback. want %q got %q", def.DataDir, got.DataDir)
				}
				if got.Wire.MaxMessageLen != def.Wire.MaxMessageLen {
					t.Fatalf("wire.maxMessageLen zero should fallback. want %d got %d", def.Wire.MaxMessageLen, got.Wire.MaxMessageLen)
				}
				if got.Wire.HandshakeTimeout != def.Wire.HandshakeTimeout {
					t.Fatalf("wire.handshakeTimeout zero should fallback. want %s got %s", def.Wire.HandshakeTimeout, got.Wire.HandshakeTimeout)
				}
				if got.Wire.ClientName != def.Wire.ClientName {
					t.Fatalf("wire.clientName zero should fallback. want %q got %q", def.Wire.ClientName, got.Wire.ClientName)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Remove(cfgFile)
			if tt.preWrite {
				if err := os.WriteFile(cfgFile, []byte(tt.contents), 0o644); err != nil {
					t.Fatalf("write config: %v", err)
				}
			}

			got, err := cfg.GetConfig()
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			tt.check(t, got, def)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	def := cfg.DefaultConfig()

	if def.Wire.MaxMessageLen != 1<<17 {
		t.Errorf("want default maxMessageLen %d got %d", 1<<17, def.Wire.MaxMessageLen)
	}
	if def.Wire.MaxDecodeDepth != 50 {
		t.Errorf("want default maxDecodeDepth 50 got %d", def.Wire.MaxDecodeDepth)
	}
	if len(def.PeerIDPrefix) != 8 {
		t.Errorf("peer id prefix should be 8 bytes, got %q", def.PeerIDPrefix)
	}
	if def.DBPath() != filepath.Join(def.DataDir, "peers.db") {
		t.Errorf("unexpected db path %q", def.DBPath())
	}
	if def.LogPath() == def.DBPath() {
		t.Error("log and db paths collide")
	}
}
