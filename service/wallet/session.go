package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConnectOptions are passed to the signing agent on connect.
type ConnectOptions struct {
	// OnlyIfTrusted asks the agent to connect without prompting, and to fail
	// if the user has not authorized this session before.
	OnlyIfTrusted bool `json:"only_if_trusted"`
}

// Agent is the external signing agent. It holds the private key; the session
// only ever sees the public key and signed transactions.
type Agent interface {
	Connect(ctx context.Context, opts ConnectOptions) (solana.PublicKey, error)
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// PresenceChecker is implemented by agents that may be configured but not
// reachable (e.g. a remote agent process that is not running).
type PresenceChecker interface {
	Present(ctx context.Context) bool
}

// Ledger is the connection handle to the cluster.
type Ledger interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	LatestBlockhash(ctx context.Context) (*solanapkg.Blockhash, error)
	SendRawTransaction(ctx context.Context, rawTx []byte) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error
}

// State gates transfer submission.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
)

// Options configures a Session.
type Options struct {
	Ledger   Ledger
	Agent    Agent // nil means no agent is installed
	Notifier Notifier
	Network  string

	// Deadlines for each suspension point. Zero means wait indefinitely.
	CallTimeout     time.Duration // ledger reads, broadcast, silent connect
	SignTimeout     time.Duration // explicit connect and signing (may wait on a human)
	ConfirmTimeout  time.Duration
	PresenceTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Session is one wallet session: a connection handle, an optional signing
// agent and the user's pending transfer input. It is safe for concurrent use;
// the mutex is never held across calls to the ledger or the agent.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger

	mu              sync.Mutex
	walletAddress   *solana.PublicKey
	balance         *decimal.Decimal
	balanceLamports *uint64
	pendingReceiver string
	pendingAmount   string
	state           State
}

// NewSession creates a session bound to opts.Ledger. All other fields start empty.
func NewSession(opts Options) (*Session, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(context.Context, Notice) {})
	}
	if opts.PresenceTimeout <= 0 {
		opts.PresenceTimeout = 2 * time.Second
	}

	id := uuid.NewString()
	return &Session{
		id:     id,
		opts:   opts,
		logger: opts.Logger.With("component", "wallet_session", "session_id", id),
		state:  StateIdle,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Initialize performs the opportunistic silent reconnect done at startup.
// Failures are logged only.
func (s *Session) Initialize(ctx context.Context) {
	s.logger.InfoContext(ctx, "initializing wallet session",
		"network", s.opts.Network,
		"agent_configured", s.opts.Agent != nil,
	)
	if err := s.Connect(ctx, true); err != nil {
		s.logger.DebugContext(ctx, "silent reconnect did not succeed", "error", err)
	}
}

// Connect connects to the signing agent. A silent connect never prompts and
// never notifies the user; an explicit connect reports failures to the user.
// On success the wallet address is set and the balance is refreshed.
func (s *Session) Connect(ctx context.Context, silent bool) error {
	mode := "explicit"
	timeout := s.opts.SignTimeout
	if silent {
		mode = "silent"
		timeout = s.opts.CallTimeout
	}

	if !s.agentPresent(ctx) {
		err := &Error{Kind: AgentAbsent, Op: "connect"}
		s.recordConnect(mode, err)
		if silent {
			s.logger.DebugContext(ctx, "no signing agent available for silent connect")
			return err
		}
		s.logger.WarnContext(ctx, "explicit connect without a signing agent")
		s.notify(ctx, LevelError, MsgAgentAbsent)
		return err
	}

	cctx, cancel := withTimeout(ctx, timeout)
	pub, err := s.opts.Agent.Connect(cctx, ConnectOptions{OnlyIfTrusted: silent})
	cancel()
	if err != nil {
		kind := KindOf(err)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			kind = NetworkFailure
		case kind == KindUnknown:
			kind = AuthorizationDenied
		}
		werr := &Error{Kind: kind, Op: "connect", Err: err}
		s.recordConnect(mode, werr)
		if silent {
			s.logger.WarnContext(ctx, "silent connect failed", "error", err, "kind", kind.String())
			return werr
		}
		s.logger.ErrorContext(ctx, "wallet connect failed", "error", err, "kind", kind.String())
		s.notify(ctx, LevelError, UserMessage(werr))
		return werr
	}

	s.mu.Lock()
	s.walletAddress = &pub
	s.mu.Unlock()

	s.recordConnect(mode, nil)
	s.logger.InfoContext(ctx, "wallet connected", "address", pub.String(), "mode", mode)

	s.RefreshBalance(ctx)
	return nil
}

// RefreshBalance fetches the connected wallet's balance. Without a wallet it
// does nothing.
func (s *Session) RefreshBalance(ctx context.Context) {
	s.mu.Lock()
	addr := s.walletAddress
	s.mu.Unlock()
	if addr == nil {
		return
	}
	s.GetBalance(ctx, *addr)
}

// GetBalance fetches the balance of address, converts it to SOL rounded to
// four decimals and stores it. On failure the previous value is kept.
func (s *Session) GetBalance(ctx context.Context, address solana.PublicKey) {
	cctx, cancel := withTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	lamports, err := s.opts.Ledger.GetBalance(cctx, address)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to refresh balance",
			"address", address.String(),
			"error", err,
		)
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordBalanceRefresh("error")
		}
		return
	}

	sol := solanapkg.LamportsToSOL(lamports).Round(solanapkg.DisplayPlaces)

	s.mu.Lock()
	s.balance = &sol
	s.balanceLamports = &lamports
	s.mu.Unlock()

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordBalanceRefresh("success")
	}
	s.logger.DebugContext(ctx, "balance refreshed",
		"address", address.String(),
		"lamports", lamports,
		"sol", sol.StringFixed(solanapkg.DisplayPlaces),
	)
}

// SetPendingReceiver records the receiver text field.
func (s *Session) SetPendingReceiver(receiver string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReceiver = receiver
}

// SetPendingAmount records the amount text field.
func (s *Session) SetPendingAmount(amount string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAmount = amount
}

// SetPending records both text fields at once.
func (s *Session) SetPending(receiver, amount string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReceiver = receiver
	s.pendingAmount = amount
}

// View is a read-only snapshot of the session for rendering.
type View struct {
	SessionID       string  `json:"session_id"`
	Network         string  `json:"network"`
	Connected       bool    `json:"connected"`
	WalletAddress   string  `json:"wallet_address,omitempty"`
	Balance         *string `json:"balance,omitempty"`
	BalanceLamports *uint64 `json:"balance_lamports,omitempty"`
	PendingReceiver string  `json:"pending_receiver"`
	PendingAmount   string  `json:"pending_amount"`
	State           State   `json:"state"`
	AgentConfigured bool    `json:"agent_configured"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID:       s.id,
		Network:         s.opts.Network,
		Connected:       s.walletAddress != nil,
		PendingReceiver: s.pendingReceiver,
		PendingAmount:   s.pendingAmount,
		State:           s.state,
		AgentConfigured: s.opts.Agent != nil,
	}
	if s.walletAddress != nil {
		v.WalletAddress = s.walletAddress.String()
	}
	if s.balance != nil {
		b := s.balance.StringFixed(solanapkg.DisplayPlaces)
		v.Balance = &b
		lamports := *s.balanceLamports
		v.BalanceLamports = &lamports
	}
	return v
}

func (s *Session) agentPresent(ctx context.Context) bool {
	if s.opts.Agent == nil {
		return false
	}
	pc, ok := s.opts.Agent.(PresenceChecker)
	if !ok {
		return true
	}
	pctx, cancel := context.WithTimeout(ctx, s.opts.PresenceTimeout)
	defer cancel()
	return pc.Present(pctx)
}

func (s *Session) notify(ctx context.Context, level Level, msg string) {
	s.opts.Notifier.Notify(ctx, Notice{Level: level, Message: msg, Time: time.Now().UTC()})
}

func (s *Session) recordConnect(mode string, err error) {
	if s.opts.Metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	s.opts.Metrics.RecordConnect(mode, outcome)
}

// withTimeout applies d to ctx; a non-positive d leaves ctx without a deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
