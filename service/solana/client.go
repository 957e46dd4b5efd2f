package solana

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	GetBlockHeight(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (uint64, error)

	SendRawTransaction(
		ctx context.Context,
		rawTx []byte,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// Client is the session's connection handle to a Solana cluster.
// It wraps the RPC client with the ledger operations the wallet session needs
// and records metrics for every call. A Client is safe for concurrent use and
// is never mutated after construction.
type Client struct {
	rpc          RPCClient
	logger       *slog.Logger
	metrics      *metrics.Metrics
	endpoint     string // label for metrics and logs (e.g. "devnet")
	commitment   rpc.CommitmentType
	pollInterval time.Duration
	limiter      *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithCommitment sets the commitment level used for reads and for deciding
// when a transaction counts as confirmed. Defaults to "confirmed".
func WithCommitment(commitment rpc.CommitmentType) Option {
	return func(c *Client) {
		c.commitment = commitment
	}
}

// WithPollInterval sets how often ConfirmTransaction polls signature status.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithRateLimit throttles outgoing RPC calls to rps requests per second.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet-beta", "devnet").
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		commitment:   rpc.CommitmentConfirmed,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the label this client was created with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// GetBalance returns the balance of account in lamports.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var out *rpc.GetBalanceResult
	err := c.call(ctx, "GetBalance", func(ctx context.Context) error {
		var err error
		out, err = c.rpc.GetBalance(ctx, account, c.commitment)
		return err
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get balance",
			"account", account.String(),
			"error", err,
		)
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if out == nil {
		return 0, fmt.Errorf("get balance: empty response")
	}

	c.logger.DebugContext(ctx, "fetched balance",
		"account", account.String(),
		"lamports", out.Value,
		"slot", out.Context.Slot,
	)
	return out.Value, nil
}

// LatestBlockhash fetches a fresh blockhash. Callers must not cache it: a
// transaction stamped with a stale blockhash is rejected by the cluster.
func (c *Client) LatestBlockhash(ctx context.Context) (*Blockhash, error) {
	var out *rpc.GetLatestBlockhashResult
	err := c.call(ctx, "GetLatestBlockhash", func(ctx context.Context) error {
		var err error
		out, err = c.rpc.GetLatestBlockhash(ctx, c.commitment)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("get latest blockhash: empty response")
	}

	c.logger.DebugContext(ctx, "fetched latest blockhash",
		"blockhash", out.Value.Blockhash.String(),
		"last_valid_block_height", out.Value.LastValidBlockHeight,
	)
	return &Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// SendRawTransaction submits a serialized, signed transaction and returns
// its signature. Preflight runs at the client's commitment level.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (solana.Signature, error) {
	var sig solana.Signature
	err := c.call(ctx, "SendRawTransaction", func(ctx context.Context) error {
		var err error
		sig, err = c.rpc.SendRawTransaction(ctx, rawTx, rpc.TransactionOpts{
			PreflightCommitment: c.commitment,
		})
		return err
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send raw transaction: %w", err)
	}

	c.logger.InfoContext(ctx, "transaction submitted",
		"signature", sig.String(),
		"endpoint", c.endpoint,
	)
	return sig, nil
}

// ConfirmTransaction blocks until sig reaches the client's commitment level.
// It returns a *TransactionError if the transaction failed on chain,
// ErrBlockhashExpired if lastValidBlockHeight (when non-zero) is passed first,
// or the context's error if ctx ends first. RPC errors are returned as-is;
// there is no retry.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	polls := 0
	finish := func(outcome string) {
		if c.metrics != nil {
			c.metrics.RecordConfirmationPolls(c.endpoint, outcome, polls)
		}
	}

	for {
		polls++

		var out *rpc.GetSignatureStatusesResult
		err := c.call(ctx, "GetSignatureStatuses", func(ctx context.Context) error {
			var err error
			out, err = c.rpc.GetSignatureStatuses(ctx, sig)
			return err
		})
		if err != nil {
			finish("error")
			return fmt.Errorf("get signature status: %w", err)
		}

		if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				finish("failed")
				return &TransactionError{Signature: sig, Detail: fmt.Sprintf("%v", status.Err)}
			}
			if reachedCommitment(status.ConfirmationStatus, c.commitment) {
				finish("confirmed")
				c.logger.InfoContext(ctx, "transaction confirmed",
					"signature", sig.String(),
					"status", status.ConfirmationStatus,
					"slot", status.Slot,
					"polls", polls,
				)
				return nil
			}
		}

		if lastValidBlockHeight > 0 {
			var height uint64
			err := c.call(ctx, "GetBlockHeight", func(ctx context.Context) error {
				var err error
				height, err = c.rpc.GetBlockHeight(ctx, c.commitment)
				return err
			})
			if err == nil && height > lastValidBlockHeight {
				finish("expired")
				return fmt.Errorf("%w: block height %d > %d", ErrBlockhashExpired, height, lastValidBlockHeight)
			}
		}

		select {
		case <-ctx.Done():
			finish("canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// call runs fn after waiting on the rate limiter and records metrics for it.
func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) error {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.RecordThrottleWait(c.endpoint, time.Since(waitStart).Seconds())
		}
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if strings.Contains(err.Error(), "429") {
			c.logger.WarnContext(ctx, "rate limited by RPC endpoint",
				"method", method,
				"endpoint", c.endpoint,
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
		}
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	}
	return err
}

// reachedCommitment reports whether status is at least as final as target.
func reachedCommitment(status rpc.ConfirmationStatusType, target rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		default:
			return 0
		}
	}
	want := rank(string(target))
	if want == 0 {
		want = rank("confirmed")
	}
	return rank(string(status)) >= want
}
