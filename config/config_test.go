package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/arloliu/go-lxi/internal/instsim"
	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/lxi"
	"github.com/stretchr/testify/require"
)

const tomlProfile = `
log_level = "debug"
client_id = 12
timeout_ms = 1500

[[instrument]]
name = "scope"
resource = "TCPIP0::192.168.1.20::inst1::INSTR"
term_char = "\\n"

[[instrument]]
name = "dmm"
host = "10.0.0.5"
lock_device = true
lock_timeout_ms = 250
max_bytes = 4096
`

const yamlProfile = `
log_level: warn
portmapper_port: 10111
instruments:
  - name: psu
    host: psu.lab
    device: gpib0,5
    port: 1024
    wait_lock: true
`

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_TOML(t *testing.T) {
	require := require.New(t)

	cfg, err := Load(writeFile(t, "lxi.toml", tomlProfile))
	require.NoError(err)

	require.Equal(logger.DebugLevel, cfg.Level())
	require.Equal(int32(12), cfg.ClientID)
	require.Equal(111, cfg.PortmapperPort)
	require.Equal(1500*time.Millisecond, cfg.Timeout())
	require.Len(cfg.Instruments, 2)

	scope, ok := cfg.Instrument("scope")
	require.True(ok)
	addr, err := scope.Address()
	require.NoError(err)
	require.Equal(lxi.Address{Host: "192.168.1.20", SubAddress: "inst1"}, addr)

	ch, set, err := scope.termChar()
	require.NoError(err)
	require.True(set)
	require.Equal(byte('\n'), ch)

	dmm, ok := cfg.Instrument("dmm")
	require.True(ok)
	addr, err = dmm.Address()
	require.NoError(err)
	require.Equal(lxi.Address{Host: "10.0.0.5", SubAddress: "inst0"}, addr)
	require.True(dmm.LockDevice)
	require.Equal(4096, dmm.MaxBytes)

	_, ok = cfg.Instrument("missing")
	require.False(ok)
}

func TestLoad_YAML(t *testing.T) {
	require := require.New(t)

	cfg, err := Load(writeFile(t, "lxi.yml", yamlProfile))
	require.NoError(err)

	require.Equal(logger.WarnLevel, cfg.Level())
	require.Equal(10111, cfg.PortmapperPort)
	require.Equal(5*time.Second, cfg.Timeout())

	psu, ok := cfg.Instrument("psu")
	require.True(ok)
	require.Equal(1024, psu.Port)
	require.True(psu.WaitLock)

	addr, err := psu.Address()
	require.NoError(err)
	require.Equal(lxi.Address{Host: "psu.lab", SubAddress: "gpib0,5"}, addr)

	_, err = lxi.New(cfg.ClientOptions(psu)...)
	require.NoError(err)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"Unknown Extension", "lxi.ini", "log_level = info"},
		{"Unknown TOML Key", "lxi.toml", "log_levle = \"info\""},
		{"Unknown YAML Key", "lxi.yaml", "log_levle: info"},
		{"Bad Level", "lxi.toml", "log_level = \"loud\""},
		{"Timeout Out Of Range", "lxi.yaml", "timeout_ms: 5"},
		{"Instrument Without Name", "lxi.yaml", "instruments:\n  - host: a\n"},
		{"Instrument Without Host", "lxi.yaml", "instruments:\n  - name: a\n"},
		{"Duplicate Instrument", "lxi.yaml", "instruments:\n  - {name: a, host: h}\n  - {name: a, host: h}\n"},
		{"Bad Resource", "lxi.toml", "[[instrument]]\nname = \"a\"\nresource = \"GPIB0::5::INSTR\"\n"},
		{"Bad Term Char", "lxi.toml", "[[instrument]]\nname = \"a\"\nhost = \"h\"\nterm_char = \"ab\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSave_RoundTrip(t *testing.T) {
	require := require.New(t)

	original, err := Parse([]byte(tomlProfile), FormatTOML)
	require.NoError(err)

	for _, name := range []string{"out.toml", "out.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(Save(path, original))

		loaded, err := Load(path)
		require.NoError(err, name)
		require.Equal(original, loaded, name)
	}
}

func TestClientOptions_ConnectSimulator(t *testing.T) {
	require := require.New(t)

	srv, err := instsim.Start(instsim.Config{})
	require.NoError(err)
	defer srv.Close()

	cfg, err := Parse([]byte(`
instruments:
  - name: sim
    host: 127.0.0.1
    port: `+strconv.Itoa(srv.Port())+`
    term_char: "\n"
`), FormatYAML)
	require.NoError(err)

	inst, ok := cfg.Instrument("sim")
	require.True(ok)

	client, err := lxi.New(cfg.ClientOptions(inst)...)
	require.NoError(err)
	defer client.Close()

	addr, err := inst.Address()
	require.NoError(err)

	h, err := client.NewHandle(addr)
	require.NoError(err)
	require.NoError(client.Link(context.Background(), h, 1000))

	require.NoError(client.Send(h, []byte("*IDN?"), 1000))
	reply, err := client.Receive(h, 256, 1000)
	require.NoError(err)
	require.Equal(instsim.IDNResponse, string(reply))
}
