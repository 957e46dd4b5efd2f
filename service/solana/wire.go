package solana

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// EncodeTransaction serializes tx to its wire format and base64-encodes it.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction is the inverse of EncodeTransaction.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 transaction: %w", err)
	}
	return DecodeTransactionBytes(raw)
}

// DecodeTransactionBytes decodes a transaction from its wire format.
func DecodeTransactionBytes(raw []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}
