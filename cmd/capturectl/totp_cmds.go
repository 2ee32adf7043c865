package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Jai-Dhiman/capture-sub001/totp"
)

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [code]",
		Short: "Present a TOTP second factor for the current sign-in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, flow, err := totpFlow(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			code, err := totpCode(args)
			if err != nil {
				return err
			}
			if err := flow.Verify(ctx, code); err != nil {
				return errors.Wrap(err, "verification failed")
			}
			reportStage(a.store.Snapshot().Stage)
			return nil
		},
	}
}

func totpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "totp",
		Short: "Manage authenticator-app two-factor authentication",
	}
	cmd.AddCommand(totpSetupCmd(), totpBackupCodesCmd(), totpDisableCmd())
	return cmd
}

func totpSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Enroll an authenticator app",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, flow, err := totpFlow(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			enrollment, err := flow.SetupBegin(ctx)
			if err != nil {
				return errors.Wrap(err, "could not begin enrollment")
			}

			fmt.Println("Add this secret to your authenticator app:")
			fmt.Println()
			fmt.Printf("  Secret: %s\n", enrollment.Secret)
			fmt.Printf("  URI:    %s\n", enrollment.URI)
			fmt.Println()

			code, err := totpCode(nil)
			if err != nil {
				return err
			}
			if err := flow.SetupComplete(ctx, code); err != nil {
				return errors.Wrap(err, "enrollment failed")
			}
			fmt.Println("Two-factor authentication is on.")
			reportStage(a.store.Snapshot().Stage)
			return nil
		},
	}
}

func totpBackupCodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup-codes",
		Short: "Generate single-use recovery codes, replacing any previous set",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, flow, err := totpFlow(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			codes, err := flow.BackupCodes(ctx)
			if err != nil {
				return errors.Wrap(err, "could not generate backup codes")
			}

			fmt.Println("Store these codes somewhere safe; each works once:")
			fmt.Println()
			for _, code := range codes {
				fmt.Printf("  %s\n", code)
			}
			return nil
		},
	}
}

func totpDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn off authenticator-app two-factor authentication",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, flow, err := totpFlow(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title("Disable two-factor authentication?").
					Description("Your account will be protected by email codes only.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				return nil
			}

			if err := flow.Disable(ctx); err != nil {
				return errors.Wrap(err, "could not disable")
			}
			fmt.Println("Two-factor authentication is off.")
			return nil
		},
	}
}

// totpFlow wires an app plus a bootstrapped TOTP flow. Caller closes
// the returned app.
func totpFlow(ctx context.Context) (*app, *totp.Flow, error) {
	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}
	if err := a.bootstrap(ctx); err != nil {
		a.close()
		return nil, nil, err
	}
	flow, err := totp.NewFlow(a.client, a.store)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	return a, flow, nil
}

func totpCode(args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	var code string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Authenticator code").Value(&code),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}
