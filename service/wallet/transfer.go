package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/gagliardetto/solana-go"
)

// TransferRequest is a validated native SOL transfer. It is built per send
// and never stored.
type TransferRequest struct {
	Sender         solana.PublicKey
	Receiver       solana.PublicKey
	AmountLamports uint64
}

// TransferResult is returned by a successful send.
type TransferResult struct {
	Signature string `json:"signature"`
}

// NewTransferRequest validates the user's free-text inputs. Every failure is a
// ValidationFailure and is detected before any network or agent call.
func NewTransferRequest(sender solana.PublicKey, receiver, amount string) (*TransferRequest, error) {
	receiver = strings.TrimSpace(receiver)
	amount = strings.TrimSpace(amount)

	if receiver == "" {
		return nil, &Error{Kind: ValidationFailure, Op: "validate", Err: ErrReceiverRequired}
	}
	if amount == "" {
		return nil, &Error{Kind: ValidationFailure, Op: "validate", Err: ErrAmountRequired}
	}

	lamports, err := solanapkg.ParseSOL(amount)
	if err != nil {
		return nil, &Error{Kind: ValidationFailure, Op: "validate", Err: err}
	}

	to, err := solana.PublicKeyFromBase58(receiver)
	if err != nil {
		return nil, &Error{Kind: ValidationFailure, Op: "validate", Err: ErrReceiverInvalid}
	}

	return &TransferRequest{
		Sender:         sender,
		Receiver:       to,
		AmountLamports: lamports,
	}, nil
}

// SendTransfer submits the pending transfer: validate, build, stamp with a
// fresh blockhash, sign through the agent, broadcast, and wait for
// confirmation. There is no retry. On success the signature is reported, the
// balance is refreshed once and the pending inputs are cleared; on failure
// the pending inputs are left as they were.
//
// Only one transfer may be submitted at a time; a concurrent call returns
// ErrTransferInProgress.
func (s *Session) SendTransfer(ctx context.Context) (*TransferResult, error) {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "transfer rejected, another is in progress")
		s.notify(ctx, LevelError, MsgTransferInProgress)
		return nil, ErrTransferInProgress
	}
	addr := s.walletAddress
	receiver, amount := s.pendingReceiver, s.pendingAmount
	s.mu.Unlock()
	if addr == nil {
		s.notify(ctx, LevelError, MsgConnectFirst)
		return nil, &Error{Kind: ValidationFailure, Op: "validate", Err: ErrNotConnected}
	}

	// Validation runs on the captured inputs without the lock held.
	req, err := NewTransferRequest(*addr, receiver, amount)
	if err != nil {
		s.logger.InfoContext(ctx, "transfer input rejected", "error", err)
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordTransfer(ValidationFailure.String(), 0)
		}
		s.notify(ctx, LevelError, UserMessage(err))
		return nil, err
	}

	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "transfer rejected, another is in progress")
		s.notify(ctx, LevelError, MsgTransferInProgress)
		return nil, ErrTransferInProgress
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	if s.opts.Metrics != nil {
		s.opts.Metrics.SetTransferInFlight(true)
	}
	start := time.Now()

	sig, err := s.submit(ctx, req)

	s.mu.Lock()
	s.state = StateIdle
	if err == nil {
		s.pendingReceiver = ""
		s.pendingAmount = ""
	}
	s.mu.Unlock()

	duration := time.Since(start).Seconds()
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetTransferInFlight(false)
	}

	if err != nil {
		kind := KindOf(err)
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordTransfer(kind.String(), duration)
		}
		s.logger.ErrorContext(ctx, "transfer failed",
			"error", err,
			"kind", kind.String(),
			"receiver", req.Receiver.String(),
			"lamports", req.AmountLamports,
		)
		s.notify(ctx, LevelError, MsgTransferFailed)
		return nil, err
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordTransfer("success", duration)
	}
	s.logger.InfoContext(ctx, "transfer confirmed",
		"signature", sig.String(),
		"receiver", req.Receiver.String(),
		"lamports", req.AmountLamports,
		"duration_seconds", duration,
	)
	s.notify(ctx, LevelInfo, msgTransferSucceeded+sig.String())
	s.GetBalance(ctx, req.Sender)

	return &TransferResult{Signature: sig.String()}, nil
}

// submit runs the stamp, sign, broadcast and confirm steps. Each step gets
// its own deadline; the returned error always carries a Kind.
func (s *Session) submit(ctx context.Context, req *TransferRequest) (solana.Signature, error) {
	if s.opts.Agent == nil {
		return solana.Signature{}, &Error{Kind: AgentAbsent, Op: "sign"}
	}

	cctx, cancel := withTimeout(ctx, s.opts.CallTimeout)
	blockhash, err := s.opts.Ledger.LatestBlockhash(cctx)
	cancel()
	if err != nil {
		return solana.Signature{}, classify("stamp", NetworkFailure, err)
	}

	tx, err := solanapkg.NewUnsignedTransaction(
		[]solana.Instruction{solanapkg.NewTransferInstruction(req.Sender, req.Receiver, req.AmountLamports)},
		req.Sender,
		blockhash.Hash,
	)
	if err != nil {
		return solana.Signature{}, &Error{Kind: ValidationFailure, Op: "build", Err: err}
	}

	sctx, cancel := withTimeout(ctx, s.opts.SignTimeout)
	signed, err := s.opts.Agent.SignTransaction(sctx, tx)
	cancel()
	if err != nil {
		return solana.Signature{}, classify("sign", SigningRejected, err)
	}
	if signed == nil {
		return solana.Signature{}, &Error{Kind: SigningRejected, Op: "sign", Err: errors.New("agent returned no transaction")}
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return solana.Signature{}, &Error{Kind: SigningRejected, Op: "serialize", Err: err}
	}

	bctx, cancel := withTimeout(ctx, s.opts.CallTimeout)
	sig, err := s.opts.Ledger.SendRawTransaction(bctx, raw)
	cancel()
	if err != nil {
		return solana.Signature{}, classify("broadcast", BroadcastFailure, err)
	}
	s.logger.InfoContext(ctx, "transfer broadcast", "signature", sig.String())

	fctx, cancel := withTimeout(ctx, s.opts.ConfirmTimeout)
	err = s.opts.Ledger.ConfirmTransaction(fctx, sig, blockhash.LastValidBlockHeight)
	cancel()
	if err != nil {
		return sig, classify("confirm", ConfirmationFailure, err)
	}

	return sig, nil
}

// classify wraps err with kind unless err already carries one. Deadline
// expiry is always a NetworkFailure.
func classify(op string, kind Kind, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: NetworkFailure, Op: op, Err: fmt.Errorf("deadline exceeded: %w", err)}
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnknown {
		return &Error{Kind: e.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
