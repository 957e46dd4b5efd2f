package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/nats-io/nats.go"
)

// Dial connects to NATS with the reconnect settings both processes use.
func Dial(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", "url", url, "name", name)
	return nc, nil
}

// Server exposes a wallet.Agent over NATS request/reply.
type Server struct {
	nc      *nats.Conn
	prefix  string
	agent   wallet.Agent
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewServer creates a server for agent under prefix. timeout bounds each
// request, including time spent waiting for the user; zero means no bound.
func NewServer(nc *nats.Conn, prefix string, agent wallet.Agent, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		nc:      nc,
		prefix:  prefix,
		agent:   agent,
		timeout: timeout,
		metrics: m,
		logger:  logger.With("component", "agent_server", "prefix", prefix),
	}
}

// Start subscribes to the agent subjects.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 {
		return fmt.Errorf("agent server already started")
	}

	handlers := map[string]nats.MsgHandler{
		OpPing:    s.handlePing,
		OpConnect: s.handleConnect,
		OpSign:    s.handleSign,
	}
	for op, h := range handlers {
		sub, err := s.nc.Subscribe(Subject(s.prefix, op), h)
		if err != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("failed to subscribe to %s: %w", Subject(s.prefix, op), err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.nc.Flush(); err != nil {
		s.unsubscribeLocked()
		return fmt.Errorf("failed to flush subscriptions: %w", err)
	}

	s.logger.Info("agent server listening")
	return nil
}

// Stop unsubscribes. In-flight requests still get their reply.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked()
	s.logger.Info("agent server stopped")
}

func (s *Server) unsubscribeLocked() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}
	s.subs = nil
}

func (s *Server) handlePing(msg *nats.Msg) {
	var req PingRequest
	_ = json.Unmarshal(msg.Data, &req)
	s.respond(msg, OpPing, "success", time.Now(), PingReply{RequestID: req.RequestID, OK: true})
}

func (s *Server) handleConnect(msg *nats.Msg) {
	start := time.Now()
	var req ConnectRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, OpConnect, "error", start, ConnectReply{
			Error: &ErrorReply{Code: CodeInvalidRequest, Message: "malformed connect request"},
		})
		return
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	logger := s.logger.With("request_id", req.RequestID)
	pub, err := s.agent.Connect(ctx, wallet.ConnectOptions{OnlyIfTrusted: req.OnlyIfTrusted})
	if err != nil {
		logger.InfoContext(ctx, "connect refused", "error", err, "only_if_trusted", req.OnlyIfTrusted)
		s.respond(msg, OpConnect, "error", start, ConnectReply{RequestID: req.RequestID, Error: errorReply(err)})
		return
	}

	logger.InfoContext(ctx, "connect granted", "only_if_trusted", req.OnlyIfTrusted)
	s.respond(msg, OpConnect, "success", start, ConnectReply{RequestID: req.RequestID, PublicKey: pub.String()})
}

func (s *Server) handleSign(msg *nats.Msg) {
	start := time.Now()
	var req SignRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, OpSign, "error", start, SignReply{
			Error: &ErrorReply{Code: CodeInvalidRequest, Message: "malformed sign request"},
		})
		return
	}
	logger := s.logger.With("request_id", req.RequestID)

	tx, err := solanapkg.DecodeTransaction(req.Transaction)
	if err != nil {
		logger.Warn("undecodable transaction in sign request", "error", err)
		s.respond(msg, OpSign, "error", start, SignReply{
			RequestID: req.RequestID,
			Error:     &ErrorReply{Code: CodeInvalidRequest, Message: err.Error()},
		})
		return
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	signed, err := s.agent.SignTransaction(ctx, tx)
	if err != nil {
		logger.InfoContext(ctx, "sign refused", "error", err)
		s.respond(msg, OpSign, "error", start, SignReply{RequestID: req.RequestID, Error: errorReply(err)})
		return
	}

	encoded, err := solanapkg.EncodeTransaction(signed)
	if err != nil {
		s.respond(msg, OpSign, "error", start, SignReply{
			RequestID: req.RequestID,
			Error:     &ErrorReply{Code: CodeInternal, Message: err.Error()},
		})
		return
	}
	s.respond(msg, OpSign, "success", start, SignReply{RequestID: req.RequestID, Transaction: encoded})
}

func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Server) respond(msg *nats.Msg, op, status string, start time.Time, reply any) {
	if s.metrics != nil {
		s.metrics.RecordAgentRequest("serve_"+op, status, time.Since(start).Seconds())
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("failed to marshal reply", "op", op, "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("failed to send reply", "op", op, "error", err)
	}
}
