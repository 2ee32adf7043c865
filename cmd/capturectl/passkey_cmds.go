package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Jai-Dhiman/capture-sub001/internal/utils"
	"github.com/Jai-Dhiman/capture-sub001/passkey"
)

func passkeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passkey",
		Short: "Manage registered passkeys",
	}
	cmd.AddCommand(passkeyListCmd(), passkeyAddCmd(), passkeyRemoveCmd())
	return cmd
}

func passkeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the account's registered passkeys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, flow, err := passkeyFlow(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			credentials, err := flow.List(ctx)
			if err != nil {
				return errors.Wrap(err, "could not list passkeys")
			}
			if len(credentials) == 0 {
				fmt.Println("No passkeys registered.")
				return nil
			}
			for _, credential := range credentials {
				name := utils.ValueOr(credential.DeviceName, "(unnamed device)")
				fmt.Printf("%s  %s  created %s\n", credential.ID, name, credential.CreatedAt)
			}
			return nil
		},
	}
}

func passkeyAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Register a new passkey on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, flow, err := passkeyFlow(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := flow.Register(ctx); err != nil {
				if passkey.IsCancelled(err) {
					fmt.Println("Cancelled.")
					return nil
				}
				return errors.Wrap(err, "could not register a passkey")
			}
			fmt.Println("Passkey registered.")
			reportStage(a.store.Snapshot().Stage)
			return nil
		},
	}
}

func passkeyRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a registered passkey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, flow, err := passkeyFlow(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := flow.Remove(ctx, args[0]); err != nil {
				return errors.Wrap(err, "could not remove the passkey")
			}
			fmt.Println("Passkey removed.")
			return nil
		},
	}
}

func passkeyFlow(ctx context.Context) (*app, *passkey.Flow, error) {
	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}
	if err := a.bootstrap(ctx); err != nil {
		a.close()
		return nil, nil, err
	}
	flow, err := passkey.NewFlow(a.client, a.store, terminalAuthenticator{})
	if err != nil {
		a.close()
		return nil, nil, err
	}
	return a, flow, nil
}

// terminalAuthenticator reports passkeys unsupported: a terminal has
// no platform credential store. List and rm still work; add fails with
// a configuration error naming the missing capability.
type terminalAuthenticator struct{}

func (terminalAuthenticator) Create(ctx context.Context, options protocol.CredentialCreation) (json.RawMessage, error) {
	return nil, errors.New("no platform authenticator available")
}

func (terminalAuthenticator) Get(ctx context.Context, options protocol.CredentialAssertion) (json.RawMessage, error) {
	return nil, errors.New("no platform authenticator available")
}

func (terminalAuthenticator) Supported() bool { return false }
