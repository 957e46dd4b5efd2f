package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/solwallet/client"
	"github.com/urfave/cli/v2"
)

func sessionCommands() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Wallet session commands",
		Subcommands: []*cli.Command{
			sessionShowCommand(),
			sessionConnectCommand(),
			sessionPendingCommand(),
			sessionBalanceCommand(),
			sessionSendCommand(),
		},
	}
}

func newClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SOLWALLET_SERVER_URL env var or use --server-url)")
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(serverURL, nil, logger), nil
}

func sessionShowCommand() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Aliases: []string{"get"},
		Usage:   "Show the session and any pending notices",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			session, notices, err := cl.GetSession(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}

			if jsonRequested(c) {
				return printJSON(c, map[string]interface{}{
					"session": session,
					"notices": notices,
				})
			}
			printSession(c.App.Writer, session)
			printNotices(c.App.Writer, notices)
			return nil
		},
	}
}

func sessionConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Connect the session to its signing agent",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the agent to approve",
				Value: 3 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			session, err := cl.Connect(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}

			if jsonRequested(c) {
				return printJSON(c, session)
			}
			printSession(c.App.Writer, session)
			return nil
		},
	}
}

func sessionPendingCommand() *cli.Command {
	return &cli.Command{
		Name:      "pending",
		Usage:     "Set the receiver and amount for the next transfer",
		ArgsUsage: "RECEIVER AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("receiver and amount are required")
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			session, err := cl.SetPending(c.Context, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("failed to set pending transfer: %w", err)
			}

			if jsonRequested(c) {
				return printJSON(c, session)
			}
			fmt.Fprintf(c.App.Writer, "Receiver: %s\n", session.PendingReceiver)
			fmt.Fprintf(c.App.Writer, "Amount:   %s SOL\n", session.PendingAmount)
			return nil
		},
	}
}

func sessionBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Re-read the wallet balance",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			session, err := cl.RefreshBalance(c.Context)
			if err != nil {
				return fmt.Errorf("failed to refresh balance: %w", err)
			}

			if jsonRequested(c) {
				return printJSON(c, session)
			}
			fmt.Fprintf(c.App.Writer, "Balance: %s SOL\n", balanceText(session))
			return nil
		},
	}
}

func sessionSendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send SOL and wait for confirmation",
		Description: `With --to and --amount the pending fields are set first. Without them
the transfer uses whatever was last set with "session pending".`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "to",
				Usage: "Receiver address",
			},
			&cli.StringFlag{
				Name:  "amount",
				Usage: "Amount in SOL, e.g. 0.25",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for signing and confirmation",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			var result *client.TransferResult
			if c.IsSet("to") || c.IsSet("amount") {
				result, err = cl.Send(ctx, c.String("to"), c.String("amount"))
			} else {
				result, err = cl.Transfer(ctx)
			}
			if err != nil {
				return fmt.Errorf("transfer failed: %w", err)
			}

			if jsonRequested(c) {
				return printJSON(c, result)
			}
			fmt.Fprintf(c.App.Writer, "Transaction successful: %s\n", result.Signature)
			return nil
		},
	}
}

func balanceText(s *client.Session) string {
	if s.Balance == nil {
		return "-"
	}
	return *s.Balance
}

func printSession(w io.Writer, s *client.Session) {
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(w, "Wallet Session")
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(w, "Session:  %s\n", s.SessionID)
	fmt.Fprintf(w, "Network:  %s\n", s.Network)
	if s.Connected {
		fmt.Fprintf(w, "Wallet:   %s\n", s.WalletAddress)
		fmt.Fprintf(w, "Balance:  %s SOL\n", balanceText(s))
	} else {
		fmt.Fprintf(w, "Wallet:   (not connected)\n")
	}
	if s.PendingReceiver != "" || s.PendingAmount != "" {
		fmt.Fprintf(w, "Pending:  %s SOL to %s\n", s.PendingAmount, s.PendingReceiver)
	}
	fmt.Fprintf(w, "State:    %s\n", s.State)
	if !s.AgentConfigured {
		fmt.Fprintf(w, "Agent:    (not configured)\n")
	}
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func printNotices(w io.Writer, notices []client.Notice) {
	for _, n := range notices {
		fmt.Fprintf(w, "[%s] %s %s\n", n.Time.Format(time.RFC3339), n.Level, n.Message)
	}
}
