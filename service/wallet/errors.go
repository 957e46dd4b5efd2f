package wallet

import (
	"errors"
	"fmt"
)

// Kind classifies session failures.
type Kind int

const (
	KindUnknown Kind = iota
	AgentAbsent
	AuthorizationDenied
	ValidationFailure
	NetworkFailure
	SigningRejected
	BroadcastFailure
	ConfirmationFailure
)

func (k Kind) String() string {
	switch k {
	case AgentAbsent:
		return "agent_absent"
	case AuthorizationDenied:
		return "authorization_denied"
	case ValidationFailure:
		return "validation_failure"
	case NetworkFailure:
		return "network_failure"
	case SigningRejected:
		return "signing_rejected"
	case BroadcastFailure:
		return "broadcast_failure"
	case ConfirmationFailure:
		return "confirmation_failure"
	default:
		return "unknown"
	}
}

// Error is a classified session failure. Op names the step that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare kind sentinels below, so errors.Is(err, ErrSigningRejected)
// holds for any *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is. Signing agents return these to tell the
// session why a request did not succeed.
var (
	ErrAgentAbsent         = &Error{Kind: AgentAbsent}
	ErrAuthorizationDenied = &Error{Kind: AuthorizationDenied}
	ErrValidationFailure   = &Error{Kind: ValidationFailure}
	ErrNetworkFailure      = &Error{Kind: NetworkFailure}
	ErrSigningRejected     = &Error{Kind: SigningRejected}
	ErrBroadcastFailure    = &Error{Kind: BroadcastFailure}
	ErrConfirmationFailure = &Error{Kind: ConfirmationFailure}
)

var (
	// ErrTransferInProgress rejects a send while another one is being submitted.
	ErrTransferInProgress = errors.New("a transfer is already in progress")

	// ErrNotConnected is wrapped when a send is attempted without a wallet.
	ErrNotConnected = errors.New("no wallet connected")

	ErrReceiverRequired = errors.New("receiver address is required")
	ErrReceiverInvalid  = errors.New("receiver address is not a valid Solana address")
	ErrAmountRequired   = errors.New("amount is required")
)

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
