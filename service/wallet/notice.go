package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// Level is the severity of a user-visible notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// User-facing messages.
const (
	MsgAgentAbsent        = "Solana signing agent not found. Install and start a compatible wallet agent, then connect again."
	MsgConnectDenied      = "Wallet connection was not approved."
	MsgConnectFailed      = "Could not reach the wallet agent."
	MsgConnectFirst       = "Connect a wallet before sending."
	MsgTransferInProgress = "A transfer is already being submitted. Wait for it to finish."
	MsgTransferFailed     = "Transaction failed"
	msgTransferSucceeded  = "Transaction successful: "
)

// Notice is a message for the user, the equivalent of a browser alert.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier is the user interface surface the session reports to.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) {
	f(ctx, n)
}

// NoticeBoard keeps the most recent notices until a reader drains them.
type NoticeBoard struct {
	mu      sync.Mutex
	notices []Notice
	max     int
}

// NewNoticeBoard creates a board that retains at most max notices.
func NewNoticeBoard(max int) *NoticeBoard {
	if max < 1 {
		max = 1
	}
	return &NoticeBoard{max: max}
}

func (b *NoticeBoard) Notify(_ context.Context, n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	if over := len(b.notices) - b.max; over > 0 {
		b.notices = append([]Notice(nil), b.notices[over:]...)
	}
}

// Drain returns pending notices oldest first and empties the board.
func (b *NoticeBoard) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		return []Notice{}
	}
	return out
}

// UserMessage returns the text shown to the user for err. Validation and
// agent-absent failures are specific; any other connect failure is
// MsgConnectFailed and every submission failure collapses to MsgTransferFailed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransferInProgress):
		return MsgTransferInProgress
	case errors.Is(err, ErrNotConnected):
		return MsgConnectFirst
	}

	var e *Error
	errors.As(err, &e)

	switch KindOf(err) {
	case ValidationFailure:
		if e.Err != nil {
			return sentence(e.Err.Error())
		}
		return "Invalid input."
	case AgentAbsent:
		return MsgAgentAbsent
	case AuthorizationDenied:
		return MsgConnectDenied
	}
	if e != nil && e.Op == "connect" {
		return MsgConnectFailed
	}
	return MsgTransferFailed
}

// sentence capitalizes the first letter and adds a trailing period.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}
