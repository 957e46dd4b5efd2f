package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingApprover answers with a fixed decision and remembers requests.
type recordingApprover struct {
	mu       sync.Mutex
	approve  bool
	err      error
	requests []ApprovalRequest
}

func (r *recordingApprover) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.approve, r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSigner(t *testing.T, approver Approver, trusted bool) *Signer {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return NewSigner(key, approver, trusted, testLogger())
}

func unsignedTransfer(t *testing.T, payer solana.PublicKey, lamports uint64) *solana.Transaction {
	t.Helper()
	to, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	tx, err := solanapkg.NewUnsignedTransaction(
		[]solana.Instruction{solanapkg.NewTransferInstruction(payer, to.PublicKey(), lamports)},
		payer,
		solana.Hash{3},
	)
	require.NoError(t, err)
	return tx
}

func TestSigner_SilentConnect(t *testing.T) {
	approver := &recordingApprover{approve: true}

	untrusted := newTestSigner(t, approver, false)
	_, err := untrusted.Connect(context.Background(), wallet.ConnectOptions{OnlyIfTrusted: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, wallet.ErrAuthorizationDenied)
	assert.ErrorIs(t, err, ErrNotTrusted)
	assert.Empty(t, approver.requests, "silent connect must never prompt")

	trusted := newTestSigner(t, approver, true)
	pub, err := trusted.Connect(context.Background(), wallet.ConnectOptions{OnlyIfTrusted: true})
	require.NoError(t, err)
	assert.Equal(t, trusted.PublicKey(), pub)
	assert.Empty(t, approver.requests)
}

func TestSigner_ExplicitConnectPromptsOnce(t *testing.T) {
	approver := &recordingApprover{approve: true}
	s := newTestSigner(t, approver, false)

	pub, err := s.Connect(context.Background(), wallet.ConnectOptions{})
	require.NoError(t, err)
	assert.Equal(t, s.PublicKey(), pub)
	require.Len(t, approver.requests, 1)
	assert.Equal(t, ActionConnect, approver.requests[0].Action)
	assert.True(t, s.Trusted())

	// Later silent connects succeed without prompting
	_, err = s.Connect(context.Background(), wallet.ConnectOptions{OnlyIfTrusted: true})
	require.NoError(t, err)
	assert.Len(t, approver.requests, 1)
}

func TestSigner_ExplicitConnectRejected(t *testing.T) {
	s := newTestSigner(t, DenyAll{}, false)

	_, err := s.Connect(context.Background(), wallet.ConnectOptions{})
	assert.ErrorIs(t, err, wallet.ErrAuthorizationDenied)
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.False(t, s.Trusted())
}

func TestSigner_SignTransaction(t *testing.T) {
	approver := &recordingApprover{approve: true}
	s := newTestSigner(t, approver, true)
	tx := unsignedTransfer(t, s.PublicKey(), 2*solanapkg.LamportsPerSOL)

	signed, err := s.SignTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, signed.Signatures, 1)
	require.NoError(t, signed.VerifySignatures())

	require.Len(t, approver.requests, 1)
	req := approver.requests[0]
	assert.Equal(t, ActionSign, req.Action)
	require.NotNil(t, req.Description)
	assert.Equal(t, 2*solanapkg.LamportsPerSOL, req.Description.TotalLamports())
	assert.Contains(t, req.Prompt(), "transfer 2.0000 SOL")
}

func TestSigner_SignRejectedByUser(t *testing.T) {
	s := newTestSigner(t, DenyAll{}, true)
	tx := unsignedTransfer(t, s.PublicKey(), 1)

	_, err := s.SignTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, wallet.ErrSigningRejected)
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Empty(t, tx.Signatures)
}

func TestSigner_RefusesForeignFeePayer(t *testing.T) {
	approver := &recordingApprover{approve: true}
	s := newTestSigner(t, approver, true)
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	tx := unsignedTransfer(t, other.PublicKey(), 1)

	_, err = s.SignTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, wallet.ErrSigningRejected)
	assert.ErrorIs(t, err, ErrForeignFeePayer)
	assert.Empty(t, approver.requests)
}

func TestSigner_SignRequiresConnect(t *testing.T) {
	s := newTestSigner(t, AutoApprove{}, false)
	tx := unsignedTransfer(t, s.PublicKey(), 1)

	_, err := s.SignTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, wallet.ErrAuthorizationDenied)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSigner_ApprovalDeadline(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := newTestSigner(t, NewTerminalApprover(pr, io.Discard), true)
	tx := unsignedTransfer(t, s.PublicKey(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.SignTransaction(ctx, tx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminalApprover(t *testing.T) {
	var out strings.Builder
	a := NewTerminalApprover(strings.NewReader("y\nno\nYES\n"), &out)
	req := ApprovalRequest{Action: ActionConnect}

	ok, err := a.Approve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Approve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Approve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = a.Approve(context.Background(), req)
	assert.Error(t, err, "input exhausted")

	assert.Contains(t, out.String(), "Allow a wallet session to connect")
}

func TestKeyFromMnemonic(t *testing.T) {
	mnemonic, err := NewMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(mnemonic), 24)

	k1, err := KeyFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	k2, err := KeyFromMnemonic("  "+strings.ReplaceAll(mnemonic, " ", "  ")+"\n", "")
	require.NoError(t, err)
	assert.Equal(t, k1.PublicKey(), k2.PublicKey())

	k3, err := KeyFromMnemonic(mnemonic, "passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, k1.PublicKey(), k3.PublicKey())

	_, err = KeyFromMnemonic("not a real mnemonic", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestLoadKeypairFile(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	// solana-keygen writes the 64 key bytes as a JSON array
	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())

	_, err = LoadKeypairFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("keypair: /tmp/id.json\ntrusted: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/id.json", cfg.Keypair)
	assert.True(t, cfg.Trusted)
	assert.Equal(t, ApprovalPrompt, cfg.Approval)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "solwallet.agent", cfg.SubjectPrefix)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)

	cfg, err = ParseConfig([]byte("mnemonic_env: MY_WORDS\napproval: auto\nsubject_prefix: dev.agent\nrequest_timeout: 30s\n"))
	require.NoError(t, err)
	assert.Equal(t, ApprovalAuto, cfg.Approval)
	assert.Equal(t, "dev.agent", cfg.SubjectPrefix)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("approval: maybe\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one of keypair or mnemonic_env is required")
	assert.Contains(t, err.Error(), "approval must be")

	_, err = ParseConfig([]byte("keypair: a\nmnemonic_env: B\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")

	_, err = ParseConfig([]byte("keypair: [unclosed"))
	require.Error(t, err)
}

func TestConfig_LoadKeyFromMnemonicEnv(t *testing.T) {
	mnemonic, err := NewMnemonic()
	require.NoError(t, err)
	t.Setenv("TEST_AGENT_MNEMONIC", mnemonic)

	cfg := &Config{MnemonicEnv: "TEST_AGENT_MNEMONIC"}
	key, err := cfg.LoadKey()
	require.NoError(t, err)

	want, err := KeyFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, want.PublicKey(), key.PublicKey())

	cfg = &Config{MnemonicEnv: "TEST_AGENT_MNEMONIC_UNSET"}
	_, err = cfg.LoadKey()
	assert.Error(t, err)
}
