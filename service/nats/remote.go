package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Remote is a wallet.Agent served by another process over NATS. It also
// implements wallet.PresenceChecker: an agent process that is not running
// is reported as absent.
type Remote struct {
	nc      *nats.Conn
	prefix  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRemote creates a remote agent client under prefix.
func NewRemote(nc *nats.Conn, prefix string, m *metrics.Metrics, logger *slog.Logger) *Remote {
	return &Remote{
		nc:      nc,
		prefix:  prefix,
		metrics: m,
		logger:  logger.With("component", "remote_agent", "prefix", prefix),
	}
}

// Present pings the agent. Any failure, including no responders, is absence.
func (r *Remote) Present(ctx context.Context) bool {
	var reply PingReply
	if err := r.request(ctx, OpPing, PingRequest{RequestID: uuid.NewString()}, &reply); err != nil {
		r.logger.DebugContext(ctx, "agent ping failed", "error", err)
		return false
	}
	return reply.OK
}

// Connect asks the agent for its public key.
func (r *Remote) Connect(ctx context.Context, opts wallet.ConnectOptions) (solana.PublicKey, error) {
	req := ConnectRequest{RequestID: uuid.NewString(), OnlyIfTrusted: opts.OnlyIfTrusted}
	var reply ConnectReply
	if err := r.request(ctx, OpConnect, req, &reply); err != nil {
		return solana.PublicKey{}, err
	}
	if reply.Error != nil {
		return solana.PublicKey{}, &wallet.Error{
			Kind: kindFor(reply.Error.Code, wallet.AuthorizationDenied),
			Op:   "connect",
			Err:  reply.Error,
		}
	}

	pub, err := solana.PublicKeyFromBase58(reply.PublicKey)
	if err != nil {
		return solana.PublicKey{}, &wallet.Error{
			Kind: wallet.AuthorizationDenied,
			Op:   "connect",
			Err:  fmt.Errorf("agent returned invalid public key %q: %w", reply.PublicKey, err),
		}
	}
	return pub, nil
}

// SignTransaction sends tx to the agent and returns the signed copy.
func (r *Remote) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	encoded, err := solanapkg.EncodeTransaction(tx)
	if err != nil {
		return nil, &wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: err}
	}

	req := SignRequest{RequestID: uuid.NewString(), Transaction: encoded}
	var reply SignReply
	if err := r.request(ctx, OpSign, req, &reply); err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, &wallet.Error{
			Kind: kindFor(reply.Error.Code, wallet.SigningRejected),
			Op:   "sign",
			Err:  reply.Error,
		}
	}

	signed, err := solanapkg.DecodeTransaction(reply.Transaction)
	if err != nil {
		return nil, &wallet.Error{Kind: wallet.SigningRejected, Op: "sign", Err: err}
	}
	return signed, nil
}

// request performs one request/reply round trip. No responders means no
// agent process is listening and is reported as AgentAbsent.
func (r *Remote) request(ctx context.Context, op string, req, reply any) error {
	start := time.Now()
	status := "error"
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordAgentRequest(op, status, time.Since(start).Seconds())
		}
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	msg, err := r.nc.RequestWithContext(ctx, Subject(r.prefix, op), data)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrNoResponders):
			status = "no_responders"
			return &wallet.Error{Kind: wallet.AgentAbsent, Op: op, Err: err}
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
			status = "timeout"
			return fmt.Errorf("agent %s request: %w", op, context.DeadlineExceeded)
		default:
			return &wallet.Error{Kind: wallet.NetworkFailure, Op: op, Err: err}
		}
	}

	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return &wallet.Error{Kind: wallet.NetworkFailure, Op: op, Err: fmt.Errorf("malformed reply: %w", err)}
	}
	status = "success"
	return nil
}
