package main

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ctfdesk/config"
)

// offlineYAML never needs the RPC endpoint: the http transport dials lazily.
const offlineYAML = `
network:
  chain_id: 100
  rpc_url: http://127.0.0.1:1
  conditional_tokens: "0x0000000000000000000000000000000000000c7f"
  collateral_token: "0x0000000000000000000000000000000000000e77"
  oracle_address: "0x0000000000000000000000000000000000000a11"
  adapter_address: "0x0000000000000000000000000000000000000ada"
  optimistic_oracle_address: "0x0000000000000000000000000000000000000001"
  reward_token_address: "0x0000000000000000000000000000000000000002"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	doc := offlineYAML + "storage:\n  dsn: " + filepath.Join(dir, "ctfdesk.db") + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestRun_ExitCodes(t *testing.T) {
	path := writeConfig(t)

	assert.Equal(t, 0, run([]string{"-h"}))
	assert.Equal(t, 2, run([]string{"-nope"}))
	assert.Equal(t, 1, run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Equal(t, 2, run([]string{"-config", path, "-account", "not-an-address", "history"}))

	assert.Equal(t, 0, run([]string{"-config", path, "history"}))
	assert.Equal(t, 1, run([]string{"-config", path, "history", "abc"}))
	assert.Equal(t, 1, run([]string{"-config", path, "bogus"}))

	assert.Equal(t, 0, run([]string{"-config", path, "history", "5"}))
}

func TestNewApp_ReadAccount(t *testing.T) {
	cfg, err := config.Parse([]byte(offlineYAML))
	require.NoError(t, err)
	cfg.Storage.DSN = ":memory:"
	readAccount := common.HexToAddress("0xacc1")

	a, err := newApp(context.Background(), cfg, readAccount, false)
	require.NoError(t, err)
	defer a.close()
	assert.Equal(t, readAccount, a.session.Account())
	assert.False(t, a.session.CanSign())
}

func TestNewApp_ReadAccountRefusedWithKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(offlineYAML))
	require.NoError(t, err)
	cfg.Storage.DSN = ":memory:"
	cfg.Wallet.PrivateKey = hex.EncodeToString(crypto.FromECDSA(key))

	_, err = newApp(context.Background(), cfg, common.HexToAddress("0xacc1"), false)
	assert.ErrorContains(t, err, "only valid without a private key")

	a, err := newApp(context.Background(), cfg, common.Address{}, false)
	require.NoError(t, err)
	defer a.close()
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), a.session.Account())
}
