package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	// MemoProgramIDSPL is the SPL Memo program (most common)
	MemoProgramIDSPL = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

	// MemoProgramIDLegacy is the legacy memo program (v1)
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// TransferSummary is one native SOL transfer found in a transaction.
type TransferSummary struct {
	From     solana.PublicKey
	To       solana.PublicKey
	Lamports uint64
}

// Description is a human-oriented summary of an unsigned transaction, used
// by the signing agent to tell the user what they are approving.
type Description struct {
	FeePayer          solana.PublicKey
	RecentBlockhash   solana.Hash
	Transfers         []TransferSummary
	Memo              *string
	OtherInstructions int
}

// TotalLamports sums all native transfers.
func (d *Description) TotalLamports() uint64 {
	var total uint64
	for _, t := range d.Transfers {
		total += t.Lamports
	}
	return total
}

// String renders the description for an approval prompt.
func (d *Description) String() string {
	s := fmt.Sprintf("fee payer %s", d.FeePayer)
	for _, t := range d.Transfers {
		s += fmt.Sprintf("; transfer %s SOL to %s", FormatLamports(t.Lamports), t.To)
	}
	if d.Memo != nil {
		s += fmt.Sprintf("; memo %q", *d.Memo)
	}
	if d.OtherInstructions > 0 {
		s += fmt.Sprintf("; %d other instruction(s)", d.OtherInstructions)
	}
	return s
}

// DescribeTransaction decodes the instructions of tx into a Description.
// Instructions that are neither system transfers nor memos are counted but
// not interpreted.
func DescribeTransaction(tx *solana.Transaction) (*Description, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction")
	}
	accountKeys := tx.Message.AccountKeys
	if len(accountKeys) == 0 {
		return nil, fmt.Errorf("transaction has no account keys")
	}

	desc := &Description{
		// The fee payer is always the first account of the message.
		FeePayer:        accountKeys[0],
		RecentBlockhash: tx.Message.RecentBlockhash,
	}

	for _, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			return nil, fmt.Errorf("program id index %d out of bounds", instruction.ProgramIDIndex)
		}
		programID := accountKeys[instruction.ProgramIDIndex]

		switch {
		case programID.Equals(SystemProgramID):
			transfer, err := parseSystemTransfer(instruction, accountKeys)
			if err != nil {
				desc.OtherInstructions++
				continue
			}
			desc.Transfers = append(desc.Transfers, *transfer)
		case programID.Equals(MemoProgramIDSPL) || programID.Equals(MemoProgramIDLegacy):
			if memo := parseMemo(instruction.Data); memo != "" {
				desc.Memo = &memo
			}
		default:
			desc.OtherInstructions++
		}
	}

	return desc, nil
}

// parseSystemTransfer extracts a System Program Transfer instruction.
func parseSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (*TransferSummary, error) {
	// System Transfer instruction format:
	// [0..4]  = instruction type (u32, should be 2 for Transfer)
	// [4..12] = lamports (u64)
	if len(instruction.Data) < 12 {
		return nil, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return nil, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	// System Transfer accounts: [from, to]
	if len(instruction.Accounts) < 2 {
		return nil, fmt.Errorf("transfer instruction missing accounts")
	}
	fromIdx, toIdx := int(instruction.Accounts[0]), int(instruction.Accounts[1])
	if fromIdx >= len(accountKeys) || toIdx >= len(accountKeys) {
		return nil, fmt.Errorf("transfer account index out of bounds")
	}

	return &TransferSummary{
		From:     accountKeys[fromIdx],
		To:       accountKeys[toIdx],
		Lamports: binary.LittleEndian.Uint64(instruction.Data[4:12]),
	}, nil
}

// parseMemo extracts the memo text from a Memo Program instruction.
// Memos are raw UTF-8; some clients base64 encode them first.
func parseMemo(data []byte) string {
	memo := string(data)

	if decoded, err := base64.StdEncoding.DecodeString(memo); err == nil && len(decoded) > 0 {
		if utf8.Valid(decoded) && !containsNUL(decoded) {
			return string(decoded)
		}
	}

	return memo
}

func containsNUL(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}
