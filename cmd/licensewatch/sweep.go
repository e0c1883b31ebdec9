package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep and print the outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			a.startAudit()
			defer func() {
				ctx, cancel := shutdownContext(cfg)
				defer cancel()
				a.close(ctx)
			}()

			out, err := a.engine.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode outcome: %w", err)
			}
			return nil
		},
	}
}

func resendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resend <license-id>",
		Short: "Resend the notification for one open alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			a.startAudit()
			defer func() {
				ctx, cancel := shutdownContext(cfg)
				defer cancel()
				a.close(ctx)
			}()

			res, err := a.engine.Resend(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if !res.Success {
				return fmt.Errorf("resend failed: %s", res.Message)
			}
			return nil
		},
	}
}
