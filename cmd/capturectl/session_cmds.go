package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/internal/utils"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the locally stored session without touching the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			record, err := a.keeper.Load(cmd.Context())
			if err != nil {
				return err
			}
			if record == nil || record.Session == nil {
				fmt.Println("No stored session.")
				return nil
			}

			if record.User != nil {
				fmt.Printf("Account:  %s\n", record.User.Email)
			}
			fmt.Printf("Stage:    %s\n", record.Stage)

			expiry := record.Session.ExpiryTime()
			if record.Session.ExpiresAt == 0 {
				// Fall back to the exp claim inside the access token.
				if parsed, err := authclient.TokenExpiry(record.Session.AccessToken); err == nil {
					expiry = parsed
				} else {
					fmt.Println("Expiry:   unknown")
					return nil
				}
			}
			if time.Now().After(expiry) {
				fmt.Printf("Expiry:   %s (expired)\n", expiry.Local().Format(time.RFC1123))
			} else {
				fmt.Printf("Expiry:   %s (in %s)\n", expiry.Local().Format(time.RFC1123), time.Until(expiry).Round(time.Second))
			}
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Ask the backend who the stored session belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.bootstrap(ctx); err != nil {
				return err
			}
			snap := a.store.Snapshot()
			if snap.Session == nil {
				return errors.New("not signed in")
			}

			me, err := a.client.Me(ctx, snap.Session.AccessToken)
			if err != nil {
				return errors.Wrap(err, "whoami failed")
			}

			fmt.Printf("ID:       %s\n", me.User.ID)
			fmt.Printf("Email:    %s\n", me.User.Email)
			if phone := utils.Value(me.User.Phone); phone != "" {
				fmt.Printf("Phone:    %s\n", phone)
			}
			fmt.Printf("Profile:  %v\n", utils.ValueOr(me.ProfileExists, true))
			fmt.Printf("2FA due:  %v\n", utils.Value(me.SecuritySetupRequired))
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.bootstrap(ctx); err != nil {
				return err
			}
			if a.store.Snapshot().Session == nil {
				return errors.New("not signed in")
			}

			newSession, err := a.store.RefreshSession(ctx)
			if err != nil {
				return errors.Wrap(err, "refresh failed")
			}
			if newSession == nil {
				fmt.Println("Nothing to refresh; signed out.")
				return nil
			}
			fmt.Printf("Session refreshed; now valid until %s.\n", newSession.ExpiryTime().Local().Format(time.RFC1123))
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.bootstrap(ctx); err != nil {
				return err
			}
			if err := a.store.ClearAuth(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}
