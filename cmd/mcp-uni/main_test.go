package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iHeyTang/mcp-uni/pkg/config"
	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
)

func runValidate(t *testing.T, args ...string) (*observer.ObservedLogs, zap.AtomicLevel, error) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	level := zap.NewAtomicLevel()
	root := newRootCmd(zap.New(core), level)
	root.SetArgs(append([]string{"validate"}, args...))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return logs, level, root.Execute()
}

func TestValidateFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-uni.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 8100
streamPath: /mcp
logLevel: warn
mcpServers:
  echo:
    command: mcp-echo
`), 0o600))

	logs, level, err := runValidate(t, "--config", path, "-p", "9001", "--log-level", "info")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level.Level())

	entries := logs.FilterMessage("configuration is valid").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 9001, fields["port"])
	assert.Equal(t, "/mcp", fields["streamPath"])
	assert.Equal(t, []any{"echo"}, fields["servers"])
}

func TestValidateUsesConfigLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-uni.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: error\n"), 0o600))

	_, level, err := runValidate(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, zapcore.ErrorLevel, level.Level())
}

func TestValidateRejectsInvalidSettings(t *testing.T) {
	_, _, err := runValidate(t, "--port", "70000")
	require.ErrorContains(t, err, "invalid port")

	_, _, err = runValidate(t, "--stream", "nope")
	require.ErrorContains(t, err, "invalid streamPath")

	_, _, err = runValidate(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConnectConfiguredSkipsFailures(t *testing.T) {
	dialer := mcphost.DialerFunc(func(ctx context.Context, name string, _ mcphost.TransportDescriptor) (mcphost.Session, error) {
		if name == "down" {
			return nil, errors.New("connection refused")
		}
		server := mcp.NewServer(&mcp.Implementation{Name: name, Version: "v0.0.1"}, nil)
		serverTransport, clientTransport := mcp.NewInMemoryTransports()
		if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
			return nil, err
		}
		client := mcp.NewClient(&mcp.Implementation{Name: "mcp-uni-test", Version: "v0.0.1"}, nil)
		return client.Connect(ctx, clientTransport, nil)
	})
	reg := mcphost.NewRegistry(&mcphost.RegistryOptions{Dialer: dialer, MaxAttempts: 1})
	t.Cleanup(func() { reg.TeardownAll(context.Background()) })

	cfg := config.Default()
	cfg.Servers["b-up"] = mcphost.DescriptorSpec{Type: "stdio", Command: "b"}
	cfg.Servers["a-up"] = mcphost.DescriptorSpec{Type: "stdio", Command: "a"}
	cfg.Servers["down"] = mcphost.DescriptorSpec{Type: "stdio", Command: "down"}
	cfg.Servers["invalid"] = mcphost.DescriptorSpec{Type: "carrier-pigeon"}

	core, logs := observer.New(zap.InfoLevel)
	connectConfigured(context.Background(), reg, cfg, zap.New(core))

	assert.Equal(t, []string{"a-up", "b-up"}, reg.Names())
	assert.Equal(t, 1, logs.FilterMessage("backend not connected").Len())
	assert.Equal(t, 1, logs.FilterMessage("invalid backend transport").Len())
	assert.Equal(t, 2, logs.FilterMessage("backend connected").Len())
}
