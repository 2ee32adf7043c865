package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Jai-Dhiman/capture-sub001/applife"
	"github.com/Jai-Dhiman/capture-sub001/connectivity"
	"github.com/Jai-Dhiman/capture-sub001/deeplink"
	"github.com/Jai-Dhiman/capture-sub001/lifecycle"
	"github.com/Jai-Dhiman/capture-sub001/offline"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the session lifecycle controller in the foreground",
		Long: `Run mounts the lifecycle controller the way an app would: the stored
session is restored, tokens refresh ahead of expiry with backoff on
failure, deferred work drains when connectivity returns, and OAuth
redirects landing on the loopback listener complete sign-ins. Alerts
stream to stdout. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			banner := figure.NewFigure("capture", "cybermedium", true)
			banner.Print()
			fmt.Println()

			listener, err := deeplink.NewLoopback(a.cfg.LoopbackAddr)
			if err != nil {
				return err
			}
			flow, err := a.oauth(listener.RedirectURI())
			if err != nil {
				return err
			}

			probe := connectivity.NewProbe(a.cfg.APIBaseURL)
			life := applife.NewNotifier(applife.StateActive)
			queue := offline.NewQueue()

			controller, err := lifecycle.New(a.store, queue,
				lifecycle.Deps{
					Connectivity: probe,
					AppLife:      life,
					DeepLinks:    listener,
					OAuth:        flow,
				},
				lifecycle.WithMinSplash(a.cfg.MinSplash),
				lifecycle.WithLeeway(a.cfg.RefreshLeeway),
				lifecycle.WithMaxRetries(a.cfg.MaxRefreshRetries),
				lifecycle.WithDecisionFunc(sessionExpiredPrompt),
			)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return ignoreCancel(probe.Run(ctx)) })
			g.Go(func() error { return ignoreCancel(listener.Run(ctx)) })
			g.Go(func() error { return ignoreCancel(controller.Run(ctx)) })
			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case alert := <-controller.Alerts():
						fmt.Printf("[%s] %s\n", alert.Severity, alert.Message)
					}
				}
			})

			<-controller.Ready()
			snap := a.store.Snapshot()
			fmt.Printf("Ready. Stage: %s. Redirect listener: %s\n", snap.Stage, listener.RedirectURI())

			err = g.Wait()
			fmt.Println("Stopped.")
			return err
		},
	}
}

// sessionExpiredPrompt is the blocking choice shown once refresh
// retries are exhausted
func sessionExpiredPrompt(ctx context.Context) lifecycle.Decision {
	retry := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Your session could not be refreshed.").
			Description("Keep trying, or sign out now?").
			Affirmative("Retry").
			Negative("Sign out").
			Value(&retry),
	))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := form.Run(); err != nil {
			retry = true
		}
	}()

	select {
	case <-ctx.Done():
		return lifecycle.DecisionRetry
	case <-done:
	}
	if retry {
		return lifecycle.DecisionRetry
	}
	return lifecycle.DecisionLogout
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
