package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"provision-saga/internal/domain/saga"
	httpclient "provision-saga/internal/infrastructure/http"
)

func quoteCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Show the price of a server configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			r, err := httpclient.NewClient(flags.coordinator).Quote(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printReservation(cmd.OutOrStdout(), r)
			return nil
		},
	}
	addConfigFlags(cmd)
	return cmd
}

func payCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Order a server, show the QR and wait for payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			manual, _ := cmd.Flags().GetBool("manual")

			rt, err := openSession(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			// A pending order is resumed, never silently replaced.
			if err := rt.session.Restore(cmd.Context()); err != nil && !errors.Is(err, saga.ErrSessionRecovery) {
				return err
			}
			if st := rt.session.State(); st.Step == saga.StepShowQr {
				return fmt.Errorf("order %s is still pending: run `checkout resume` or `checkout cancel`", st.TransactionID)
			}

			r, err := rt.client.Quote(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printReservation(cmd.OutOrStdout(), r)

			if err := rt.session.Submit(cmd.Context(), r); err != nil {
				return err
			}
			printQR(cmd.OutOrStdout(), rt.session.State())
			return waitForOutcome(cmd, rt, manual)
		},
	}
	addConfigFlags(cmd)
	cmd.Flags().Bool("manual", false, "Check payment when Enter is pressed, in addition to polling")
	return cmd
}

func resumeCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume waiting for a pending order",
		RunE: func(cmd *cobra.Command, args []string) error {
			manual, _ := cmd.Flags().GetBool("manual")

			rt, err := openSession(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.session.Restore(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), rt.session.State().Message)
				return err
			}
			st := rt.session.State()
			if st.Step != saga.StepShowQr {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending order.")
				return nil
			}
			printReservation(cmd.OutOrStdout(), *st.Reservation)
			printQR(cmd.OutOrStdout(), st)
			return waitForOutcome(cmd, rt, manual)
		},
	}
	cmd.Flags().Bool("manual", false, "Check payment when Enter is pressed, in addition to polling")
	return cmd
}

func cancelCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Abandon the pending order; the QR is left to expire",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openSession(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.session.Restore(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), rt.session.State().Message)
				return nil
			}
			st := rt.session.State()
			if st.Step != saga.StepShowQr {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending order.")
				return nil
			}
			if err := rt.session.Cancel(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order %s cancelled. Do not pay the old QR.\n", st.TransactionID)
			return nil
		},
	}
}
