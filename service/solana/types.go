package solana

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// LamportsPerSOL is the number of base units (lamports) in one SOL.
const LamportsPerSOL uint64 = 1_000_000_000

// Blockhash is a recent blockhash together with the last block height at
// which a transaction stamped with it is still accepted by the cluster.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

var (
	// ErrBlockhashExpired is returned by ConfirmTransaction when the cluster's
	// block height moved past the transaction's last valid block height.
	ErrBlockhashExpired = errors.New("blockhash expired before confirmation")

	// ErrTransactionFailed is wrapped by TransactionError.
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

// TransactionError reports an on-chain failure for a broadcast transaction.
type TransactionError struct {
	Signature solana.Signature
	Detail    string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Signature, e.Detail)
}

func (e *TransactionError) Unwrap() error {
	return ErrTransactionFailed
}
