package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ctfdesk/config"
)

const validYAML = `
network:
  chain_id: 100
  rpc_url: https://rpc.example.org
  conditional_tokens: "0xCeAfDD6bc0bEF976fdCd1112955828E00543c0Ce"
  collateral_token: "0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d"
  oracle_address: "0x0000000000000000000000000000000000000a11"
  adapter_address: "0x0000000000000000000000000000000000000ada"
  optimistic_oracle_address: "0x0000000000000000000000000000000000000001"
  reward_token_address: "0x0000000000000000000000000000000000000002"
  start_block: 1000
wallet:
  account: "0x00000000000000000000000000000000000000ac"
markets:
  - title: Will it rain?
    question_id: "0x0000000000000000000000000000000000000000000000000000000000000001"
    amm_address: "0x0000000000000000000000000000000000000a33"
  - title: Who wins?
    outcomes: [Red, Green, Blue]
    condition_id: "0x00000000000000000000000000000000000000000000000000000000000000c1"
    amm_address: "0x0000000000000000000000000000000000000a34"
`

func TestParse_DefaultsAndDescriptors(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.MarketInterval())
	assert.Equal(t, 30*time.Second, cfg.OracleInterval())
	assert.Equal(t, 4, cfg.Polling.OracleConcurrency)
	assert.Equal(t, "ctfdesk.db", cfg.Storage.DSN)
	assert.Equal(t, uint64(1000), cfg.Network.StartBlock)

	var want [32]byte
	copy(want[:], "YES_OR_NO_QUERY")
	assert.Equal(t, want, cfg.Network.Identifier())

	ds := cfg.Descriptors()
	require.Len(t, ds, 2)
	assert.Equal(t, 2, ds[0].OutcomeCount, "binary when nothing says otherwise")
	assert.Equal(t, common.Hash{}, ds[0].ConditionID, "derived later")
	assert.Equal(t, common.HexToHash("0x01"), ds[0].QuestionID)
	assert.Equal(t, 3, ds[1].OutcomeCount)
	assert.Equal(t, common.HexToHash("0xc1"), ds[1].ConditionID, "configured id kept verbatim")
	assert.Equal(t, "Green", ds[1].OutcomeTitle(1))
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("CTFDESK_RPC_URL", "https://override.example.org")
	t.Setenv("CTFDESK_PRIVATE_KEY", "0xabc")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.org", cfg.Network.RPCURL)
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParse_HexPriceIdentifier(t *testing.T) {
	doc := validYAML + "\n" + `polling:
  market_interval_seconds: 5
`
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.MarketInterval())

	cfg.Network.PriceIdentifier = "0x11" + strings.Repeat("00", 31)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, byte(0x11), cfg.Network.Identifier()[0])

	cfg.Network.PriceIdentifier = "0x1234"
	assert.ErrorContains(t, cfg.Validate(), "32 bytes")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	cfg.Network.ChainID = 0
	cfg.Network.CollateralToken = "not-an-address"
	cfg.Markets[0].OutcomeCount = 1
	cfg.Markets[0].QuestionID = ""
	cfg.Markets[1].ConditionID = "0x12"
	cfg.Markets[1].Outcomes = []string{"only one"}

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"chain_id",
		"collateral_token",
		"markets[0].outcome_count 1",
		"markets[0]: condition_id or question_id",
		"markets[1].condition_id",
		"1 outcome titles for 3 outcomes",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidate_OutcomeCountUpperBound(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)
	cfg.Markets[1].Outcomes = nil
	cfg.Markets[1].OutcomeCount = 257
	assert.ErrorContains(t, cfg.Validate(), "out of range")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config.Load: read")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Markets, 2)
}
