package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("MINT_ADDRESS", solana.SolMint.String())
	t.Setenv("DEV_PUBLIC_KEY", solana.SystemProgramID.String())
}

func TestGiveaway_Config_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ModeBurn, cfg.Mode)
	require.Equal(t, EntryModeUniform, cfg.EntryMode)
	require.Equal(t, 20*time.Minute, cfg.CycleInterval)
	require.Equal(t, 0.02, cfg.ReserveSOL)
	require.Equal(t, 300, cfg.SlippageBps)
	require.Equal(t, uint64(2000), cfg.PriorityFeeMicro)
	require.True(t, cfg.EnableCron)
	require.False(t, cfg.CanSign())
	require.Equal(t, "mainnet", cfg.Network)
}

func TestGiveaway_Config_MissingMint(t *testing.T) {
	t.Setenv("MINT_ADDRESS", "")
	t.Setenv("DEV_PUBLIC_KEY", solana.SystemProgramID.String())

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "MINT_ADDRESS")
}

func TestGiveaway_Config_SignerFromBase58(t *testing.T) {
	setBaseEnv(t)
	kp, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	t.Setenv("SIGNER_SECRET_KEY", kp.String())
	t.Setenv("DEV_PUBLIC_KEY", kp.PublicKey().String())

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.CanSign())
	require.Equal(t, kp.PublicKey(), cfg.Wallet)
}

func TestGiveaway_Config_SignerFromJSONArray(t *testing.T) {
	kp, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	nums := make([]int, len(kp))
	for i, b := range []byte(kp) {
		nums[i] = int(b)
	}
	raw, err := json.Marshal(nums)
	require.NoError(t, err)

	parsed, err := ParseSecretKey(string(raw))
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey(), parsed.PublicKey())
}

func TestGiveaway_Config_SignerDevKeyMismatch(t *testing.T) {
	setBaseEnv(t)
	kp, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	t.Setenv("SIGNER_SECRET_KEY", kp.String())
	t.Setenv("DEV_PUBLIC_KEY", solana.SystemProgramID.String())

	_, err = Load()
	require.Error(t, err)
}

func TestGiveaway_Config_DevnetDetection(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RPC_URL", "https://api.devnet.solana.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "devnet", cfg.Network)
}

func TestGiveaway_Config_BareSecondsInterval(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CYCLE_INTERVAL", "45")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, cfg.CycleInterval)
}

func TestGiveaway_Config_InvalidMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("FLYWHEEL_MODE", "hodl")

	_, err := Load()
	require.Error(t, err)
}
