package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/gagliardetto/solana-go"
)

var (
	// ErrNotTrusted is returned by a silent connect before the user has
	// authorized this agent.
	ErrNotTrusted = errors.New("agent has not been authorized")

	// ErrUserRejected is returned when the user declines an approval prompt.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrForeignFeePayer is returned for transactions paid by another account.
	ErrForeignFeePayer = errors.New("transaction fee payer is not this wallet")

	// ErrNotConnected is returned when signing is requested before connect.
	ErrNotConnected = errors.New("wallet is not connected")
)

// Signer is a signing agent holding one private key. It implements
// wallet.Agent directly; service/nats exposes it to other processes.
type Signer struct {
	key      solana.PrivateKey
	approver Approver
	logger   *slog.Logger

	mu      sync.Mutex
	trusted bool
}

// NewSigner creates a signer. trusted marks the key as previously authorized,
// so silent connects succeed without a prompt.
func NewSigner(key solana.PrivateKey, approver Approver, trusted bool, logger *slog.Logger) *Signer {
	if approver == nil {
		approver = AutoApprove{}
	}
	return &Signer{
		key:      key,
		approver: approver,
		trusted:  trusted,
		logger:   logger.With("component", "signer", "public_key", key.PublicKey().String()),
	}
}

// PublicKey returns the wallet address.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// Trusted reports whether the user has authorized this agent.
func (s *Signer) Trusted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trusted
}

// Connect returns the public key. A silent connect fails with
// AuthorizationDenied unless the agent is already trusted; an explicit connect
// prompts the approver and, once approved, trusts the caller from then on.
func (s *Signer) Connect(ctx context.Context, opts wallet.ConnectOptions) (solana.PublicKey, error) {
	if s.Trusted() {
		s.logger.DebugContext(ctx, "connect from trusted session", "only_if_trusted", opts.OnlyIfTrusted)
		return s.PublicKey(), nil
	}
	if opts.OnlyIfTrusted {
		return solana.PublicKey{}, &wallet.Error{Kind: wallet.AuthorizationDenied, Op: "connect", Err: ErrNotTrusted}
	}

	ok, err := s.approver.Approve(ctx, ApprovalRequest{
		Action:    ActionConnect,
		PublicKey: s.PublicKey(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return solana.PublicKey{}, ctx.Err()
		}
		return solana.PublicKey{}, &wallet.Error{Kind: wallet.AuthorizationDenied, Op: "connect", Err: err}
	}
	if !ok {
		s.logger.InfoContext(ctx, "connect rejected by user")
		return solana.PublicKey{}, &wallet.Error{Kind: wallet.AuthorizationDenied, Op: "connect", Err: ErrUserRejected}
	}

	s.mu.Lock()
	s.trusted = true
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "connect approved")
	return s.PublicKey(), nil
}

// SignTransaction signs tx after the approver accepts its description. Only
// transactions whose fee payer is this wallet are signed.
func (s *Signer) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if !s.Trusted() {
		return nil, &wallet.Error{Kind: wallet.AuthorizationDenied, Op: "sign", Err: ErrNotConnected}
	}

	desc, err := solanapkg.DescribeTransaction(tx)
	if err != nil {
		return nil, &wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: fmt.Errorf("unreadable transaction: %w", err)}
	}
	if !desc.FeePayer.Equals(s.PublicKey()) {
		s.logger.WarnContext(ctx, "refusing to sign for another fee payer", "fee_payer", desc.FeePayer.String())
		return nil, &wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: ErrForeignFeePayer}
	}

	ok, err := s.approver.Approve(ctx, ApprovalRequest{
		Action:      ActionSign,
		PublicKey:   s.PublicKey(),
		Description: desc,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: err}
	}
	if !ok {
		s.logger.InfoContext(ctx, "signature rejected by user", "transaction", desc.String())
		return nil, &wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: ErrUserRejected}
	}

	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return nil, &wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: err}
	}

	s.logger.InfoContext(ctx, "transaction signed",
		"lamports", desc.TotalLamports(),
		"transfers", len(desc.Transfers),
	)
	return tx, nil
}
