package solana

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Token2022ProgramID is the Token-2022 program. The flywheel mint may live
// under either this or the classic token program; callers probe both.
var Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// ComputeBudgetProgramID is the compute budget program used for priority fees.
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// TokenPrograms lists both token program variants, newest first. Probe order
// matters: when both variants hold a positive balance the newer one wins.
var TokenPrograms = []solana.PublicKey{Token2022ProgramID, solana.TokenProgramID}

// SPL token instruction discriminants used below.
const (
	tokenIxTransferChecked = 12
	tokenIxBurnChecked     = 15
)

// computeBudgetIxSetComputeUnitPrice is the SetComputeUnitPrice discriminant.
const computeBudgetIxSetComputeUnitPrice = 3

// AssociatedTokenAddress derives the associated token account of owner for
// mint under the given token program variant.
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

// BurnCheckedInstruction burns amount raw tokens from source. Works for both
// token program variants; the variant is selected by tokenProgram.
func BurnCheckedInstruction(tokenProgram, source, mint, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = tokenIxBurnChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals

	return solana.NewInstruction(tokenProgram, solana.AccountMetaSlice{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(owner, false, true),
	}, data)
}

// TransferCheckedInstruction moves amount raw tokens between token accounts of
// the same mint.
func TransferCheckedInstruction(tokenProgram, source, mint, dest, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = tokenIxTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals

	return solana.NewInstruction(tokenProgram, solana.AccountMetaSlice{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(dest, true, false),
		solana.NewAccountMeta(owner, false, true),
	}, data)
}

// CreateAssociatedTokenAccountIdempotentInstruction creates the associated
// token account of owner for mint if it does not exist yet.
func CreateAssociatedTokenAccountIdempotentInstruction(payer, owner, mint, ata, tokenProgram solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(tokenProgram, false, false),
	}, []byte{1}) // 1 = CreateIdempotent
}

// SetComputeUnitPriceInstruction sets the priority fee in microlamports per
// compute unit.
func SetComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = computeBudgetIxSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:9], microLamports)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// TokenAccount is the decoded prefix of an SPL token account. Both token
// program variants share this base layout.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

const tokenAccountPrefixLen = 72

// ParseTokenAccount decodes the mint, owner and amount from raw token account
// data of either token program variant.
func ParseTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < tokenAccountPrefixLen {
		return nil, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return &TokenAccount{
		Mint:   solana.PublicKeyFromBytes(data[0:32]),
		Owner:  solana.PublicKeyFromBytes(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

// DeserializeTransaction decodes a serialized (possibly versioned) transaction
// as returned by the PumpPortal and Jupiter APIs.
func DeserializeTransaction(raw []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// SignWith signs tx with the given key for every required signer slot it
// covers.
func SignWith(tx *solana.Transaction, key solana.PrivateKey) error {
	pub := key.PublicKey()
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(pub) {
			return &key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}
