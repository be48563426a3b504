package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appLog "peoplecal/internal/log"
	"peoplecal/internal/scheduler"
	"peoplecal/internal/web"
)

func serveCmd(st *state) *cobra.Command {
	var (
		listen  string
		noCheck bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the refresh schedule and completion handling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if listen != "" {
				a.cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, a, !noCheck)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&noCheck, "no-initial-check", false, "Skip the refresh that runs at startup")
	return cmd
}

func serve(ctx context.Context, a *app, initialCheck bool) error {
	appLog.Info("peoplecal starting",
		"version", Version,
		"listen", a.cfg.Listen,
		"timezone", a.clock.Location().String(),
		"refresh", a.cfg.Tasks.Refresh,
		"imports", len(a.cfg.Imports),
	)

	unsubscribe := a.tasks.Subscribe()
	defer unsubscribe()

	sched := scheduler.New(a.clock.Location())
	if a.cfg.Tasks.Refresh != "" {
		if err := sched.Add("refresh", a.cfg.Tasks.Refresh, a.refresh); err != nil {
			return err
		}
	}

	srv := web.NewServer(web.Deps{
		Config:    a.cfg,
		Reminders: a.reminders,
		People:    a.people,
		Tasks:     a.tasks,
		Entries:   a.store,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, a.cfg.Listen) })
	g.Go(func() error { return sched.Run(gctx) })
	if initialCheck {
		g.Go(func() error {
			if err := a.refresh(gctx); err != nil {
				appLog.Error("initial refresh failed", err)
			}
			return nil
		})
	}

	err := g.Wait()
	appLog.Info("peoplecal exiting")
	return err
}
