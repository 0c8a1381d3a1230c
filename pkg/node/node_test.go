package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahahalyy/blockchain-simulator/pkg/config"
	"github.com/wahahalyy/blockchain-simulator/pkg/logger"
)

func testConfig(t *testing.T, port int) config.Config {
	t.Helper()
	return config.Config{
		Port:    port,
		Host:    "127.0.0.1",
		DataDir: t.TempDir(),
	}
}

func TestNewCreatesGenesisAndWalletOnFirstRun(t *testing.T) {
	n, err := New(testConfig(t, 15001), logger.NewLogger(logger.DefaultConfig()))
	require.NoError(t, err)

	assert.Equal(t, 1, n.Chain().Len())
	assert.NotEmpty(t, n.Wallet().Address())
}

func TestNewReloadsPersistedStateOnRestart(t *testing.T) {
	cfg := testConfig(t, 15002)
	log := logger.NewLogger(logger.DefaultConfig())

	first, err := New(cfg, log)
	require.NoError(t, err)
	firstAddress := first.Wallet().Address()

	second, err := New(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, firstAddress, second.Wallet().Address())
	assert.Equal(t, first.Chain().Tip().Hash, second.Chain().Tip().Hash)
}

func TestStartAndShutdown(t *testing.T) {
	n, err := New(testConfig(t, 15003), logger.NewLogger(logger.DefaultConfig()))
	require.NoError(t, err)

	require.NoError(t, n.Start())
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, n.Shutdown(ctx))
}
