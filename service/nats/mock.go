package nats

import (
	"context"
	"sync"

	"github.com/brojonat/solwallet/service/wallet"
	"github.com/gagliardetto/solana-go"
)

// MockAgent is an in-memory stand-in for a remote agent. It implements
// wallet.Agent and wallet.PresenceChecker for tests of code that would
// otherwise need a NATS server and a running agent process.
type MockAgent struct {
	mu         sync.RWMutex
	key        solana.PrivateKey
	present    bool
	trusted    bool
	connectErr error
	signErr    error

	connects []wallet.ConnectOptions
	signed   []*solana.Transaction
}

// NewMockAgent creates a present, trusted agent for key.
func NewMockAgent(key solana.PrivateKey) *MockAgent {
	return &MockAgent{key: key, present: true, trusted: true}
}

func (m *MockAgent) Present(ctx context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.present
}

func (m *MockAgent) Connect(ctx context.Context, opts wallet.ConnectOptions) (solana.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, opts)
	if !m.present {
		return solana.PublicKey{}, &wallet.Error{Kind: wallet.AgentAbsent, Op: "connect"}
	}
	if m.connectErr != nil {
		return solana.PublicKey{}, m.connectErr
	}
	if opts.OnlyIfTrusted && !m.trusted {
		return solana.PublicKey{}, &wallet.Error{Kind: wallet.AuthorizationDenied, Op: "connect"}
	}
	m.trusted = true
	return m.key.PublicKey(), nil
}

func (m *MockAgent) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signErr != nil {
		return nil, m.signErr
	}
	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(m.key.PublicKey()) {
			return &m.key
		}
		return nil
	}); err != nil {
		return nil, &wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: err}
	}
	m.signed = append(m.signed, tx)
	return tx, nil
}

// SetPresent toggles whether the agent answers pings.
func (m *MockAgent) SetPresent(present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.present = present
}

// SetTrusted sets whether silent connects succeed.
func (m *MockAgent) SetTrusted(trusted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trusted = trusted
}

// SetConnectError makes Connect fail with err.
func (m *MockAgent) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// SetSignError makes SignTransaction fail with err.
func (m *MockAgent) SetSignError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signErr = err
}

// GetConnects returns the options of every Connect call.
func (m *MockAgent) GetConnects() []wallet.ConnectOptions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wallet.ConnectOptions, len(m.connects))
	copy(out, m.connects)
	return out
}

// GetSignedCount returns the number of transactions signed.
func (m *MockAgent) GetSignedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signed)
}

// PublicKey returns the agent's address.
func (m *MockAgent) PublicKey() solana.PublicKey {
	return m.key.PublicKey()
}
