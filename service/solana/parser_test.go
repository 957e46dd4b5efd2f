package solana

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func TestNewUnsignedTransaction_DescribesTransfer(t *testing.T) {
	from := newKey(t).PublicKey()
	to := newKey(t).PublicKey()
	blockhash := solana.Hash{9, 9, 9}

	tx, err := NewUnsignedTransaction(
		[]solana.Instruction{NewTransferInstruction(from, to, 2*LamportsPerSOL)},
		from,
		blockhash,
	)
	require.NoError(t, err)

	// Fee payer is the first account and the only required signer
	require.NotEmpty(t, tx.Message.AccountKeys)
	assert.Equal(t, from, tx.Message.AccountKeys[0])
	assert.Equal(t, blockhash, tx.Message.RecentBlockhash)
	assert.Equal(t, uint8(1), tx.Message.Header.NumRequiredSignatures)

	desc, err := DescribeTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, from, desc.FeePayer)
	require.Len(t, desc.Transfers, 1)
	assert.Equal(t, from, desc.Transfers[0].From)
	assert.Equal(t, to, desc.Transfers[0].To)
	assert.Equal(t, 2*LamportsPerSOL, desc.Transfers[0].Lamports)
	assert.Equal(t, 2*LamportsPerSOL, desc.TotalLamports())
	assert.Nil(t, desc.Memo)
	assert.Zero(t, desc.OtherInstructions)
	assert.Contains(t, desc.String(), "transfer 2.0000 SOL to "+to.String())
}

func TestDescribeTransaction_MemoAndUnknownInstructions(t *testing.T) {
	payer := newKey(t).PublicKey()
	unknownProgram := newKey(t).PublicKey()

	memoData := []byte("order-42")
	transferData := make([]byte, 12)
	binary.LittleEndian.PutUint32(transferData[0:4], SystemProgramTransferInstruction)
	binary.LittleEndian.PutUint64(transferData[4:12], 5000)

	receiver := newKey(t).PublicKey()
	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{payer, receiver, SystemProgramID, MemoProgramIDSPL, unknownProgram},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []uint16{0, 1}, Data: transferData},
				{ProgramIDIndex: 3, Data: memoData},
				{ProgramIDIndex: 4, Data: []byte{1}},
			},
		},
	}

	desc, err := DescribeTransaction(tx)
	require.NoError(t, err)
	require.Len(t, desc.Transfers, 1)
	assert.Equal(t, uint64(5000), desc.Transfers[0].Lamports)
	assert.Equal(t, receiver, desc.Transfers[0].To)
	require.NotNil(t, desc.Memo)
	assert.Equal(t, "order-42", *desc.Memo)
	assert.Equal(t, 1, desc.OtherInstructions)
	assert.Contains(t, desc.String(), `memo "order-42"`)
}

func TestDescribeTransaction_NonTransferSystemInstruction(t *testing.T) {
	payer := newKey(t).PublicKey()

	// CreateAccount is system instruction type 0
	data := make([]byte, 52)
	binary.LittleEndian.PutUint32(data[0:4], 0)

	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{payer, SystemProgramID},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []uint16{0, 0}, Data: data},
			},
		},
	}

	desc, err := DescribeTransaction(tx)
	require.NoError(t, err)
	assert.Empty(t, desc.Transfers)
	assert.Equal(t, 1, desc.OtherInstructions)
}

func TestDescribeTransaction_Invalid(t *testing.T) {
	_, err := DescribeTransaction(nil)
	assert.Error(t, err)

	_, err = DescribeTransaction(&solana.Transaction{})
	assert.Error(t, err)

	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys:  []solana.PublicKey{newKey(t).PublicKey()},
			Instructions: []solana.CompiledInstruction{{ProgramIDIndex: 7}},
		},
	}
	_, err = DescribeTransaction(tx)
	assert.Error(t, err)
}

func TestParseMemo(t *testing.T) {
	assert.Equal(t, "hello world", parseMemo([]byte("hello world")))
	// base64 of "workflow_id=abc"
	assert.Equal(t, "workflow_id=abc", parseMemo([]byte("d29ya2Zsb3dfaWQ9YWJj")))
}

func TestEncodeDecodeTransaction_PreservesSignature(t *testing.T) {
	key := newKey(t)
	to := newKey(t).PublicKey()

	tx, err := NewUnsignedTransaction(
		[]solana.Instruction{NewTransferInstruction(key.PublicKey(), to, 1)},
		key.PublicKey(),
		solana.Hash{1},
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(key.PublicKey()) {
			return &key
		}
		return nil
	})
	require.NoError(t, err)

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)

	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Signatures, 1)
	assert.Equal(t, tx.Signatures[0], decoded.Signatures[0])
	require.NoError(t, decoded.VerifySignatures())

	_, err = DecodeTransaction("!!not-base64!!")
	assert.Error(t, err)
}
