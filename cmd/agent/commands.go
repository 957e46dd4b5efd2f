package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solwallet/service/agent"
	"github.com/brojonat/solwallet/service/metrics"
	natssvc "github.com/brojonat/solwallet/service/nats"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Serve connect and sign requests until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Address for the Prometheus metrics endpoint (empty disables it)",
				EnvVars: []string{"METRICS_ADDR"},
				Value:   ":9091",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := agent.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}

			logger := setupLogger(cfg.LogLevel)
			logger.Info("starting signing agent",
				"nats_url", cfg.NATSURL,
				"subject_prefix", cfg.SubjectPrefix,
				"approval", cfg.Approval,
				"trusted", cfg.Trusted,
			)

			key, err := cfg.LoadKey()
			if err != nil {
				return fmt.Errorf("failed to load signing key: %w", err)
			}

			var approver agent.Approver = agent.AutoApprove{}
			if cfg.Approval == agent.ApprovalPrompt {
				approver = agent.NewTerminalApprover(os.Stdin, os.Stderr)
			}
			signer := agent.NewSigner(key, approver, cfg.Trusted, logger)

			m := metrics.NewMetrics(nil)
			if addr := c.String("metrics-addr"); addr != "" {
				metricsServer := &http.Server{
					Addr:    addr,
					Handler: promhttp.Handler(),
				}
				go func() {
					logger.Info("starting metrics HTTP server", "addr", addr)
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics server error", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := metricsServer.Shutdown(shutdownCtx); err != nil {
						logger.Error("failed to shutdown metrics server", "error", err)
					}
				}()
			}

			nc, err := natssvc.Dial(cfg.NATSURL, "solwallet-agent", logger)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Drain()

			srv := natssvc.NewServer(nc, cfg.SubjectPrefix, signer, cfg.RequestTimeout, m, logger)
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start agent server: %w", err)
			}

			logger.Info("signing agent ready", "public_key", signer.PublicKey().String())

			// Wait for shutdown signal
			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			sig := <-shutdown
			logger.Info("shutdown signal received", "signal", sig.String())

			srv.Stop()
			logger.Info("shutdown complete")
			return nil
		},
	}
}

func pubkeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "pubkey",
		Usage: "Print the public key of the configured signing key",
		Action: func(c *cli.Context) error {
			cfg, err := agent.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			key, err := cfg.LoadKey()
			if err != nil {
				return fmt.Errorf("failed to load signing key: %w", err)
			}
			fmt.Fprintln(c.App.Writer, key.PublicKey().String())
			return nil
		},
	}
}

func mnemonicCommand() *cli.Command {
	return &cli.Command{
		Name:  "mnemonic",
		Usage: "Generate a new 24 word BIP39 mnemonic",
		Action: func(c *cli.Context) error {
			mnemonic, err := agent.NewMnemonic()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, mnemonic)
			return nil
		},
	}
}
