package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/brojonat/solwallet/service/wallet"
)

const maxRequestBodySize = 1 << 16 // two short text fields

// errTransactionFailed is the only detail a client gets for a failed
// submission; the cause is in the server log.
const errTransactionFailed = "transaction failed"

// sessionResponse is the JSON body of GET /api/v1/session.
type sessionResponse struct {
	Session wallet.View     `json:"session"`
	Notices []wallet.Notice `json:"notices"`
}

type pendingRequest struct {
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

// handleGetSession returns the session view and drains pending notices.
// GET /api/v1/session
func handleGetSession(session SessionService, notices NoticeSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := sessionResponse{Session: session.View(), Notices: []wallet.Notice{}}
		if notices != nil {
			resp.Notices = notices.Drain()
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleConnect performs an explicit connect.
// POST /api/v1/session/connect
func handleConnect(session SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The agent may be waiting on the user; let the session's own deadline
		// decide, not the client connection.
		ctx := context.WithoutCancel(r.Context())

		if err := session.Connect(ctx, false); err != nil {
			logger.Info("connect failed", "error", err, "kind", wallet.KindOf(err).String())
			writeError(w, wallet.UserMessage(err), statusForConnectError(err))
			return
		}
		writeJSON(w, session.View(), http.StatusOK)
	})
}

// handleSetPending records the receiver and amount fields.
// PUT /api/v1/session/pending
func handleSetPending(session SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req pendingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			logger.Debug("invalid pending request body", "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		session.SetPending(req.Receiver, req.Amount)
		writeJSON(w, session.View(), http.StatusOK)
	})
}

// handleRefreshBalance re-reads the wallet balance. A failed read keeps the
// previous balance and is not an HTTP error.
// POST /api/v1/session/balance
func handleRefreshBalance(session SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view := session.View()
		if !view.Connected {
			writeError(w, wallet.MsgConnectFirst, http.StatusConflict)
			return
		}
		session.RefreshBalance(r.Context())
		writeJSON(w, session.View(), http.StatusOK)
	})
}

// handleTransfer submits the pending transfer and waits for confirmation.
// POST /api/v1/session/transfer
func handleTransfer(session SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Once broadcast, a transfer must run to its outcome even if the
		// client goes away.
		ctx := context.WithoutCancel(r.Context())

		result, err := session.SendTransfer(ctx)
		if err != nil {
			status, message := statusForTransferError(err)
			logger.Info("transfer request failed", "status", status, "kind", wallet.KindOf(err).String())
			writeError(w, message, status)
			return
		}
		writeJSON(w, result, http.StatusOK)
	})
}

// statusForConnectError maps a connect failure to an HTTP status.
func statusForConnectError(err error) int {
	switch wallet.KindOf(err) {
	case wallet.AgentAbsent:
		return http.StatusServiceUnavailable
	case wallet.AuthorizationDenied:
		return http.StatusForbidden
	case wallet.NetworkFailure:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// statusForTransferError maps a send failure to a status and the message the
// client may see. Failures after validation all read "transaction failed".
func statusForTransferError(err error) (int, string) {
	if errors.Is(err, wallet.ErrTransferInProgress) {
		return http.StatusConflict, wallet.UserMessage(err)
	}
	if wallet.KindOf(err) == wallet.ValidationFailure {
		return http.StatusBadRequest, wallet.UserMessage(err)
	}
	return http.StatusBadGateway, errTransactionFailed
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
