package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/Jai-Dhiman/capture-sub001/deeplink"
	"github.com/Jai-Dhiman/capture-sub001/session"
)

// appleEndpoint is static; Apple publishes no OIDC discovery document
// compatible with the authorization-code flow used here
var appleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

const googleLoginTimeout = 5 * time.Minute

func loginCmd() *cobra.Command {
	var google bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an email code or Google",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if google {
				return googleLogin(ctx, a)
			}
			return emailLogin(ctx, a)
		},
	}
	cmd.Flags().BoolVar(&google, "google", false, "Sign in with Google instead of an email code")
	return cmd
}

func emailLogin(ctx context.Context, a *app) error {
	var email string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&email).
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter an email address")
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		return err
	}

	if err := a.client.SendCode(ctx, email); err != nil {
		return errors.Wrap(err, "could not send the verification code")
	}
	fmt.Printf("A sign-in code was sent to %s.\n", email)

	var code string
	form = huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Verification code").Value(&code),
	))
	if err := form.Run(); err != nil {
		return err
	}

	result, err := a.client.VerifyCode(ctx, email, strings.TrimSpace(code))
	if err != nil {
		return errors.Wrap(err, "verification failed")
	}
	if err := a.store.SetAuthData(ctx, result); err != nil {
		return err
	}

	reportStage(a.store.Snapshot().Stage)
	return nil
}

// googleLogin runs the loopback-redirect OAuth flow: start a local
// listener, print the authorize URL for the browser, and redeem the
// redirect when it lands
func googleLogin(ctx context.Context, a *app) error {
	listener, err := deeplink.NewLoopback(a.cfg.LoopbackAddr)
	if err != nil {
		return err
	}

	flow, err := a.oauth(listener.RedirectURI())
	if err != nil {
		return err
	}

	authURL, err := flow.Start(ctx, "google")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, googleLoginTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := listener.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer cancel()

		fmt.Println("Open this URL in your browser to sign in:")
		fmt.Println()
		fmt.Println("  " + authURL)
		fmt.Println()

		select {
		case <-ctx.Done():
			return errors.New("sign-in timed out before the browser redirect arrived")
		case callbackURL := <-listener.URLs():
			result, err := flow.HandleCallback(ctx, callbackURL)
			if err != nil {
				return err
			}
			return a.store.SetAuthData(ctx, result)
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	reportStage(a.store.Snapshot().Stage)
	return nil
}

func reportStage(stage session.Stage) {
	switch stage {
	case session.StageAuthenticated:
		fmt.Println("Signed in.")
	case session.StageSecuritySetupRequired:
		fmt.Println("Signed in. Two-factor setup is required: run `capturectl totp setup` or `capturectl passkey add`.")
	case session.StageProfileRequired:
		fmt.Println("Signed in. Finish creating your profile in the app to complete setup.")
	default:
		fmt.Println("Not signed in.")
	}
}
