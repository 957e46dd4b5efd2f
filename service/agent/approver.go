package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/gagliardetto/solana-go"
)

// Action is what the user is asked to approve.
type Action string

const (
	ActionConnect Action = "connect"
	ActionSign    Action = "sign"
)

// ApprovalRequest describes one prompt.
type ApprovalRequest struct {
	Action      Action
	PublicKey   solana.PublicKey
	Description *solanapkg.Description // set for ActionSign
}

// Prompt renders the request for a human.
func (r ApprovalRequest) Prompt() string {
	switch r.Action {
	case ActionConnect:
		return fmt.Sprintf("Allow a wallet session to connect to %s?", r.PublicKey)
	case ActionSign:
		if r.Description == nil {
			return "Sign transaction?"
		}
		return fmt.Sprintf("Sign transaction: %s?", r.Description)
	default:
		return fmt.Sprintf("Approve %s?", r.Action)
	}
}

// Approver decides whether a request goes ahead. It may block on a human.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
}

// AutoApprove approves everything. For unattended and test agents.
type AutoApprove struct{}

func (AutoApprove) Approve(context.Context, ApprovalRequest) (bool, error) {
	return true, nil
}

// DenyAll rejects everything.
type DenyAll struct{}

func (DenyAll) Approve(context.Context, ApprovalRequest) (bool, error) {
	return false, nil
}

// TerminalApprover asks on out and reads a y/n answer from in.
// Prompts are serialized. A single goroutine reads in.
type TerminalApprover struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan answer
}

// NewTerminalApprover creates an approver reading answers from in.
func NewTerminalApprover(in io.Reader, out io.Writer) *TerminalApprover {
	return &TerminalApprover{in: bufio.NewReader(in), out: out, lines: make(chan answer)}
}

type answer struct {
	line string
	err  error
}

func (t *TerminalApprover) readLoop() {
	for {
		line, err := t.in.ReadString('\n')
		t.lines <- answer{line: line, err: err}
		if err != nil {
			close(t.lines)
			return
		}
	}
}

// Approve prints the prompt and waits for an answer or ctx. Anything other
// than "y" or "yes" is a rejection.
func (t *TerminalApprover) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.once.Do(func() { go t.readLoop() })

	if _, err := fmt.Fprintf(t.out, "%s [y/N]: ", req.Prompt()); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(t.out, "\n(timed out)")
		return false, ctx.Err()
	case a, ok := <-t.lines:
		if !ok {
			return false, fmt.Errorf("failed to read answer: %w", io.EOF)
		}
		if a.err != nil && a.line == "" {
			return false, fmt.Errorf("failed to read answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
