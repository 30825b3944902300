package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const testContract = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONTRACT_ADDRESS", testContract)
	t.Setenv("PRIVATE_KEY", "0x01")

	s, err := Load(viper.New())
	require.NoError(t, err)

	require.Equal(t, uint64(20), s.GasBufferPercent)
	require.True(t, s.WaitForConfirmation)
	require.Equal(t, 2*time.Minute, s.ConfirmationTimeout)
	require.Equal(t, 8, s.HistoryFetchConcurrency)
	require.Equal(t, int64(10<<20), s.MaxMediaBytes)
	require.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", s.Contract.Hex())
	require.NoError(t, s.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONTRACT_ADDRESS", testContract)
	t.Setenv("PRIVATE_KEY", "0x01")
	t.Setenv("GAS_BUFFER_PERCENT", "35")
	t.Setenv("WAIT_FOR_CONFIRMATION", "false")
	t.Setenv("CONFIRMATION_TIMEOUT", "15")
	t.Setenv("CHAIN_ID", "11155111")

	s, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, uint64(35), s.GasBufferPercent)
	require.False(t, s.WaitForConfirmation)
	require.Equal(t, 15*time.Second, s.ConfirmationTimeout)
	require.Equal(t, int64(11155111), s.ChainID)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(file, []byte("contract_address: "+testContract+"\nprivate_key: \"0x02\"\napi_port: 9191\n"), 0o600))
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("API_PORT", "")

	s, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, 9191, s.APIPort)
	require.Equal(t, "0x02", s.PrivateKey)
}

func TestValidateRejects(t *testing.T) {
	base := func() *Settings {
		return &Settings{
			RPCURL:          "http://localhost:8545",
			ContractAddress: testContract,
			PrivateKey:      "0x01",
			MaxMediaBytes:   1,
			APIPort:         8080,
		}
	}
	require.NoError(t, base().Validate())

	s := base()
	s.ContractAddress = ""
	require.Error(t, s.Validate())

	s = base()
	s.ContractAddress = "not-an-address"
	require.Error(t, s.Validate())

	s = base()
	s.PrivateKey = " "
	require.Error(t, s.Validate())

	s = base()
	s.APIPort = 70000
	require.Error(t, s.Validate())
}
