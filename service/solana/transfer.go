package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// NewTransferInstruction builds a System Program transfer of lamports from -> to.
func NewTransferInstruction(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	return system.NewTransferInstruction(lamports, from, to).Build()
}

// NewUnsignedTransaction stamps instructions with a fee payer and a recent
// blockhash. The result carries empty signature slots for the signer to fill.
func NewUnsignedTransaction(instructions []solana.Instruction, payer solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}
