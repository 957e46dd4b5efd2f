package nats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// connectTestNATS connects to TEST_NATS_URL or skips.
func connectTestNATS(t *testing.T) *Remote {
	t.Helper()
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("Skipping NATS test (TEST_NATS_URL not set)")
	}
	nc, err := Dial(url, "solwallet-test", testLogger())
	if err != nil {
		t.Skipf("Skipping NATS test (cannot connect: %v)", err)
	}
	t.Cleanup(nc.Close)

	prefix := "test." + uuid.NewString()[:8]
	return NewRemote(nc, prefix, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())
}

func startServer(t *testing.T, remote *Remote, agent wallet.Agent, timeout time.Duration) *Server {
	t.Helper()
	srv := NewServer(remote.nc, remote.prefix, agent, timeout, nil, testLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "solwallet.agent.sign", Subject("solwallet.agent", OpSign))
}

func TestCodeFor(t *testing.T) {
	assert.Equal(t, CodeNotTrusted, codeFor(&wallet.Error{Kind: wallet.AuthorizationDenied}))
	assert.Equal(t, CodeRejected, codeFor(&wallet.Error{Kind: wallet.SigningRejected, Err: errors.New("no")}))
	assert.Equal(t, CodeInvalidRequest, codeFor(&wallet.Error{Kind: wallet.ValidationFailure}))
	assert.Equal(t, CodeTimeout, codeFor(context.DeadlineExceeded))
	assert.Equal(t, CodeInternal, codeFor(errors.New("boom")))
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, wallet.AuthorizationDenied, kindFor(CodeNotTrusted, wallet.SigningRejected))
	assert.Equal(t, wallet.SigningRejected, kindFor(CodeRejected, wallet.AuthorizationDenied))
	assert.Equal(t, wallet.NetworkFailure, kindFor(CodeTimeout, wallet.SigningRejected))
	assert.Equal(t, wallet.SigningRejected, kindFor(CodeInternal, wallet.SigningRejected))
	assert.Equal(t, wallet.AuthorizationDenied, kindFor("something_new", wallet.AuthorizationDenied))
}

func TestErrorCodesRoundTrip(t *testing.T) {
	// What the server sends for an agent error is mapped back to the same kind
	for _, kind := range []wallet.Kind{wallet.AuthorizationDenied, wallet.SigningRejected} {
		reply := errorReply(&wallet.Error{Kind: kind, Op: "x"})
		assert.Equal(t, kind, kindFor(reply.Code, wallet.KindUnknown), kind.String())
	}
}

func TestMockAgent(t *testing.T) {
	key := newKey(t)
	m := NewMockAgent(key)
	ctx := context.Background()

	assert.True(t, m.Present(ctx))
	pub, err := m.Connect(ctx, wallet.ConnectOptions{OnlyIfTrusted: true})
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), pub)

	m.SetTrusted(false)
	_, err = m.Connect(ctx, wallet.ConnectOptions{OnlyIfTrusted: true})
	assert.ErrorIs(t, err, wallet.ErrAuthorizationDenied)

	m.SetPresent(false)
	assert.False(t, m.Present(ctx))
	assert.Len(t, m.GetConnects(), 2)
}

func TestRemote_RoundTrip(t *testing.T) {
	remote := connectTestNATS(t)
	key := newKey(t)
	agent := NewMockAgent(key)
	startServer(t, remote, agent, time.Second)
	ctx := context.Background()

	assert.True(t, remote.Present(ctx))

	pub, err := remote.Connect(ctx, wallet.ConnectOptions{OnlyIfTrusted: true})
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), pub)

	to := newKey(t).PublicKey()
	tx, err := solanapkg.NewUnsignedTransaction(
		[]solana.Instruction{solanapkg.NewTransferInstruction(pub, to, 42)},
		pub,
		solana.Hash{1},
	)
	require.NoError(t, err)

	signed, err := remote.SignTransaction(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, signed.VerifySignatures())
	assert.Equal(t, 1, agent.GetSignedCount())
}

func TestRemote_ErrorCodesMapToKinds(t *testing.T) {
	remote := connectTestNATS(t)
	agent := NewMockAgent(newKey(t))
	startServer(t, remote, agent, time.Second)
	ctx := context.Background()

	agent.SetTrusted(false)
	_, err := remote.Connect(ctx, wallet.ConnectOptions{OnlyIfTrusted: true})
	assert.ErrorIs(t, err, wallet.ErrAuthorizationDenied)

	agent.SetSignError(&wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: errors.New("user rejected")})
	tx, err := solanapkg.NewUnsignedTransaction(
		[]solana.Instruction{solanapkg.NewTransferInstruction(agent.PublicKey(), newKey(t).PublicKey(), 1)},
		agent.PublicKey(),
		solana.Hash{1},
	)
	require.NoError(t, err)
	_, err = remote.SignTransaction(ctx, tx)
	assert.ErrorIs(t, err, wallet.ErrSigningRejected)

	var reply *ErrorReply
	require.True(t, errors.As(err, &reply))
	assert.Equal(t, CodeRejected, reply.Code)
}

func TestRemote_NoAgentIsAbsent(t *testing.T) {
	remote := connectTestNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.False(t, remote.Present(ctx))

	_, err := remote.Connect(ctx, wallet.ConnectOptions{})
	assert.ErrorIs(t, err, wallet.ErrAgentAbsent)
}

func TestRemote_WithSession(t *testing.T) {
	remote := connectTestNATS(t)
	agent := NewMockAgent(newKey(t))
	startServer(t, remote, agent, time.Second)

	session, err := wallet.NewSession(wallet.Options{
		Ledger:  &stubLedger{balance: 1_500_000_000},
		Agent:   remote,
		Network: "localnet",
		Logger:  testLogger(),
	})
	require.NoError(t, err)

	session.Initialize(context.Background())
	v := session.View()
	assert.True(t, v.Connected)
	assert.Equal(t, agent.PublicKey().String(), v.WalletAddress)
	require.NotNil(t, v.Balance)
	assert.Equal(t, "1.5000", *v.Balance)
}

// stubLedger answers balance queries only.
type stubLedger struct {
	balance uint64
}

func (s *stubLedger) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return s.balance, nil
}

func (s *stubLedger) LatestBlockhash(ctx context.Context) (*solanapkg.Blockhash, error) {
	return &solanapkg.Blockhash{}, nil
}

func (s *stubLedger) SendRawTransaction(ctx context.Context, rawTx []byte) (solana.Signature, error) {
	return solana.Signature{}, errors.New("not supported")
}

func (s *stubLedger) ConfirmTransaction(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	return errors.New("not supported")
}
