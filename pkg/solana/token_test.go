package solana

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestGiveaway_Solana_BurnCheckedEncoding(t *testing.T) {
	t.Parallel()
	source := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	ix := BurnCheckedInstruction(solana.TokenProgramID, source, mint, owner, 123_456_789, 6)

	require.Equal(t, solana.TokenProgramID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 10)
	require.Equal(t, byte(tokenIxBurnChecked), data[0])
	require.Equal(t, uint64(123_456_789), binary.LittleEndian.Uint64(data[1:9]))
	require.Equal(t, byte(6), data[9])

	accs := ix.Accounts()
	require.Len(t, accs, 3)
	require.Equal(t, source, accs[0].PublicKey)
	require.True(t, accs[0].IsWritable)
	require.Equal(t, owner, accs[2].PublicKey)
	require.True(t, accs[2].IsSigner)
}

func TestGiveaway_Solana_TransferCheckedEncoding(t *testing.T) {
	t.Parallel()
	source := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	ix := TransferCheckedInstruction(Token2022ProgramID, source, mint, dest, owner, 42, 9)

	require.Equal(t, Token2022ProgramID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	require.Equal(t, byte(tokenIxTransferChecked), data[0])
	require.Equal(t, uint64(42), binary.LittleEndian.Uint64(data[1:9]))
	require.Equal(t, byte(9), data[9])
	require.Len(t, ix.Accounts(), 4)
}

func TestGiveaway_Solana_SetComputeUnitPriceEncoding(t *testing.T) {
	t.Parallel()
	ix := SetComputeUnitPriceInstruction(2000)

	require.Equal(t, ComputeBudgetProgramID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	require.Equal(t, byte(computeBudgetIxSetComputeUnitPrice), data[0])
	require.Equal(t, uint64(2000), binary.LittleEndian.Uint64(data[1:9]))
	require.Empty(t, ix.Accounts())
}

func TestGiveaway_Solana_ParseTokenAccount(t *testing.T) {
	t.Parallel()
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	data := make([]byte, 165)
	copy(data[0:32], mint.Bytes())
	copy(data[32:64], owner.Bytes())
	binary.LittleEndian.PutUint64(data[64:72], 987_654_321)

	acc, err := ParseTokenAccount(data)
	require.NoError(t, err)
	require.Equal(t, mint, acc.Mint)
	require.Equal(t, owner, acc.Owner)
	require.Equal(t, uint64(987_654_321), acc.Amount)
}

func TestGiveaway_Solana_ParseTokenAccountTooShort(t *testing.T) {
	t.Parallel()
	_, err := ParseTokenAccount(make([]byte, 40))
	require.Error(t, err)
}

func TestGiveaway_Solana_AssociatedTokenAddressVariantsDiffer(t *testing.T) {
	t.Parallel()
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	classic, err := AssociatedTokenAddress(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	t22, err := AssociatedTokenAddress(owner, mint, Token2022ProgramID)
	require.NoError(t, err)

	require.NotEqual(t, classic, t22)

	// The classic derivation must agree with the library's own helper.
	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	require.Equal(t, want, classic)
}

func TestGiveaway_Solana_LamportConversions(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1.5, LamportsToSOL(1_500_000_000))
	require.Equal(t, uint64(20_000_000), SOLToLamports(0.02))
	require.Equal(t, uint64(0), SOLToLamports(-1))
}
