package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"provision-saga/internal/application/checkout"
	"provision-saga/internal/common/configs"
	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/provisioning"
	"provision-saga/internal/domain/saga"
	httpclient "provision-saga/internal/infrastructure/http"
	"provision-saga/internal/infrastructure/sessionstore"
)

// cliSession bundles what every session command needs.
type cliSession struct {
	name    string
	client  *httpclient.Client
	store   *sessionstore.BoltStore
	session *checkout.Session
}

func openSession(flags *globalFlags) (*cliSession, error) {
	interval, err := configs.GetPollInterval()
	if err != nil {
		return nil, err
	}

	store, err := sessionstore.Open(flags.sessionFile, flags.sessionName)
	if err != nil {
		return nil, err
	}

	client := httpclient.NewClient(flags.coordinator)
	session := checkout.NewSession(client, store, store,
		checkout.WithPollInterval(interval),
		checkout.WithLogger(logger.NewConsoleLoggerTo(os.Stderr)),
	)
	return &cliSession{name: flags.sessionName, client: client, store: store, session: session}, nil
}

func (r *cliSession) Close() {
	r.session.Close()
	r.store.Close()
}

func configFromFlags(cmd *cobra.Command) (provisioning.ResourceConfig, error) {
	f := cmd.Flags()
	var cfg provisioning.ResourceConfig
	var err error
	if cfg.Name, err = f.GetString("name"); err != nil {
		return cfg, err
	}
	if cfg.Owner, err = f.GetString("owner"); err != nil {
		return cfg, err
	}
	if cfg.MemoryMB, err = f.GetInt("memory"); err != nil {
		return cfg, err
	}
	if cfg.DiskMB, err = f.GetInt("disk"); err != nil {
		return cfg, err
	}
	if cfg.CPUPercent, err = f.GetInt("cpu"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Server name")
	cmd.Flags().String("owner", "", "Panel username that will own the server")
	cmd.Flags().Int("memory", 1024, "Memory in MB (0 = unlimited)")
	cmd.Flags().Int("disk", 1024, "Disk in MB (0 = unlimited)")
	cmd.Flags().Int("cpu", 100, "CPU percent (0 = unlimited)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("owner")
}

func printReservation(w io.Writer, r provisioning.Reservation) {
	fmt.Fprintf(w, "Server:  %s (owner %s)\n", r.Name, r.Owner)
	fmt.Fprintf(w, "Memory:  %s\n", tier(r.MemoryMB, "MB"))
	fmt.Fprintf(w, "Disk:    %s\n", tier(r.DiskMB, "MB"))
	fmt.Fprintf(w, "CPU:     %s\n", tier(r.CPUPercent, "%"))
	fmt.Fprintf(w, "Amount:  Rp %d\n", r.Amount)
}

func tier(v int, unit string) string {
	if v == provisioning.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d %s", v, unit)
}

func printQR(w io.Writer, st checkout.State) {
	if st.Charge == nil {
		return
	}
	fmt.Fprintf(w, "\nTransaction: %s\n", st.Charge.TransactionID)
	fmt.Fprintf(w, "Pay exactly Rp %d with this QRIS payload:\n\n  %s\n\n", st.Charge.Amount, st.Charge.QRPayload)
	if !st.Charge.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "Expires at %s\n", st.Charge.ExpiresAt.Local().Format(time.DateTime))
	}
}

// waitForOutcome blocks until the session leaves the QR step. With manual set, every line on stdin
// triggers a check. Ctrl-C stops waiting but keeps the order so `resume` can pick it up.
func waitForOutcome(cmd *cobra.Command, rt *cliSession, manual bool) error {
	out := cmd.OutOrStdout()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if manual {
		fmt.Fprintln(out, "Press Enter to check the payment status.")
		go func() {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if ctx.Err() != nil {
					return
				}
				if _, err := rt.session.CheckNow(ctx); err != nil && !errors.Is(err, saga.ErrInvalidTransition) {
					fmt.Fprintf(out, "Check failed: %v\n", err)
					continue
				}
				if st := rt.session.State(); st.Waiting() && st.Message != "" {
					fmt.Fprintln(out, st.Message)
				}
			}
		}()
	} else {
		fmt.Fprintln(out, "Waiting for payment...")
	}

	st, err := rt.session.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(out, "\nStopped waiting. Run `checkout resume --session %s` to continue.\n", rt.name)
			return nil
		}
		return err
	}
	return printOutcome(out, st)
}

func printOutcome(w io.Writer, st checkout.State) error {
	if st.Credentials != nil {
		c := st.Credentials
		fmt.Fprintln(w, st.Message)
		fmt.Fprintf(w, "Panel:    %s\n", c.PanelURL)
		fmt.Fprintf(w, "Server:   %s (id %s)\n", c.ServerName, c.ServerID)
		fmt.Fprintf(w, "Username: %s\n", c.Username)
		if c.Password != "" {
			fmt.Fprintf(w, "Password: %s\n", c.Password)
		} else {
			fmt.Fprintln(w, "Password: unchanged (existing panel account)")
		}
		return nil
	}

	if st.Step == saga.StepPaymentFailed {
		fmt.Fprintln(w, st.Message)
		if st.TransactionID != "" {
			fmt.Fprintf(w, "Transaction: %s\n", st.TransactionID)
		}
		if st.Err != nil {
			return st.Err
		}
		return errors.New("payment failed")
	}

	if st.Message != "" {
		fmt.Fprintln(w, st.Message)
	}
	return nil
}
