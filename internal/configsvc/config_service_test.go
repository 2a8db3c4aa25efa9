package configsvc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testConfig struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func startService(t *testing.T) *Service {
	t.Helper()
	svc := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("config service did not become ready")
	}
	return svc
}

func waitFor(t *testing.T, ch <-chan testConfig) testConfig {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config change")
		return testConfig{}
	}
}

func TestRegisterReadsInitialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: alpha\ncount: 3\n"), 0644))

	svc := startService(t)
	cfg, err := Register(svc, path, testConfig{}, func(testConfig, error) {})
	require.NoError(t, err)
	assert.Equal(t, testConfig{Name: "alpha", Count: 3}, cfg)
}

func TestRegisterMissingFileFails(t *testing.T) {
	svc := startService(t)
	_, err := Register(svc, filepath.Join(t.TempDir(), "absent.yml"), testConfig{}, func(testConfig, error) {})
	require.Error(t, err)
}

func TestReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: alpha\n"), 0644))

	svc := startService(t)
	changes := make(chan testConfig, 4)
	_, err := Register(svc, path, testConfig{}, func(cfg testConfig, err error) {
		if err == nil {
			changes <- cfg
		}
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name: beta\ncount: 7\n"), 0644))
	cfg := waitFor(t, changes)
	assert.Equal(t, testConfig{Name: "beta", Count: 7}, cfg)
}

func TestRegisterWriteableCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.yml")

	svc := startService(t)
	def := testConfig{Name: "default", Count: 1}
	cfg, writer, err := RegisterWriteable(svc, path, def, func(testConfig, error) {})
	require.NoError(t, err)
	require.NotNil(t, writer)
	assert.Equal(t, def, cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestWriterTriggersReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.yml")

	svc := startService(t)
	changes := make(chan testConfig, 4)
	_, writer, err := RegisterWriteable(svc, path, testConfig{}, func(cfg testConfig, err error) {
		if err == nil {
			changes <- cfg
		}
	})
	require.NoError(t, err)

	require.NoError(t, writer.Write(testConfig{Name: "gamma", Count: 2}))
	for {
		cfg := waitFor(t, changes)
		if cfg.Name == "gamma" {
			assert.Equal(t, 2, cfg.Count)
			return
		}
	}
}
