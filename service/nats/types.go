package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/solwallet/service/wallet"
)

// Subjects are "<prefix>.<op>", e.g. "solwallet.agent.sign".
const (
	OpPing    = "ping"
	OpConnect = "connect"
	OpSign    = "sign"
)

// Subject returns the subject for op under prefix.
func Subject(prefix, op string) string {
	return prefix + "." + op
}

// Error codes carried in ErrorReply.
const (
	CodeNotTrusted     = "not_trusted"
	CodeRejected       = "rejected"
	CodeInvalidRequest = "invalid_request"
	CodeTimeout        = "timeout"
	CodeInternal       = "internal"
)

// ErrorReply is the error half of every reply.
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorReply) Error() string {
	return fmt.Sprintf("agent error %s: %s", e.Code, e.Message)
}

// PingRequest checks that an agent is listening.
type PingRequest struct {
	RequestID string `json:"request_id"`
}

// PingReply answers a ping.
type PingReply struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
}

// ConnectRequest asks the agent for its public key.
type ConnectRequest struct {
	RequestID     string `json:"request_id"`
	OnlyIfTrusted bool   `json:"only_if_trusted"`
}

// ConnectReply carries the public key in base58, or an error.
type ConnectReply struct {
	RequestID string      `json:"request_id"`
	PublicKey string      `json:"public_key,omitempty"`
	Error     *ErrorReply `json:"error,omitempty"`
}

// SignRequest carries an unsigned transaction as base64 of its wire encoding.
type SignRequest struct {
	RequestID   string `json:"request_id"`
	Transaction string `json:"transaction"`
}

// SignReply carries the signed transaction in the same encoding, or an error.
type SignReply struct {
	RequestID   string      `json:"request_id"`
	Transaction string      `json:"transaction,omitempty"`
	Error       *ErrorReply `json:"error,omitempty"`
}

// codeFor maps an agent-side error to its wire code.
func codeFor(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, wallet.ErrAuthorizationDenied):
		return CodeNotTrusted
	case errors.Is(err, wallet.ErrSigningRejected):
		return CodeRejected
	case errors.Is(err, wallet.ErrValidationFailure):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}

// kindFor maps a wire code back to the session's error kind. Unknown codes
// take fallback.
func kindFor(code string, fallback wallet.Kind) wallet.Kind {
	switch code {
	case CodeNotTrusted:
		return wallet.AuthorizationDenied
	case CodeRejected:
		return wallet.SigningRejected
	case CodeTimeout:
		return wallet.NetworkFailure
	default:
		return fallback
	}
}

func errorReply(err error) *ErrorReply {
	return &ErrorReply{Code: codeFor(err), Message: err.Error()}
}
