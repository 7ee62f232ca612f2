package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"aeroport/internal/bot"
	"aeroport/internal/config"
	"aeroport/internal/model"
	"aeroport/internal/scheduler"
	"aeroport/internal/web"
)

type settingsFunc func() (*config.Settings, error)

func newRootCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "aeroport",
		Short:         "Scheduled scraping of shop catalogs into destinations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "settings file")

	// Read on first use, after flags are parsed.
	settings := settingsFunc(sync.OnceValues(func() (*config.Settings, error) {
		return config.LoadSettings(cfg.SettingsPath)
	}))
	root.AddCommand(
		newAirlinesCommand(settings),
		newOriginsCommand(settings),
		newProcessCommand(cfg, settings, log),
		newServeCommand(cfg, settings, log),
		newFlightsCommand(cfg),
	)
	return root
}

func newAirlinesCommand(settings settingsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "airlines",
		Short: "List airlines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := settings()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTITLE\tENABLED\tORIGINS")
			for _, a := range airlines().Airlines() {
				var names []string
				for _, o := range a.Origins() {
					names = append(names, o.Name)
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", a.Name, a.Title,
					s.Airlines[a.Name].Enabled, strings.Join(names, ","))
			}
			return tw.Flush()
		},
	}
}

func newOriginsCommand(settings settingsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "origins <airline>",
		Short: "List the origins of an airline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings()
			if err != nil {
				return err
			}
			a, ok := airlines().Get(args[0])
			if !ok {
				return fmt.Errorf("unknown airline %q", args[0])
			}
			as := s.Airlines[a.Name]
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTITLE\tENABLED\tDESTINATION\tSCHEDULE")
			for _, o := range a.Origins() {
				var crontabs []string
				for _, e := range as.Schedule[o.Name] {
					crontabs = append(crontabs, e.Crontab)
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", o.Name, o.Title,
					as.Enabled && as.Origins[o.Name].IsEnabled(),
					s.DestinationFor(a.Name, "", o.DefaultDestination),
					strings.Join(crontabs, "; "))
			}
			return tw.Flush()
		},
	}
}

func newProcessCommand(cfg *config.Config, settings settingsFunc, log *slog.Logger) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "process <airline> <origin>",
		Short: "Run one origin now and wait for it to finish",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings()
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg, s, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			f, err := rt.dispatcher.ProcessOrigin(cmd.Context(), args[0], args[1], dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flight %s %s: %d items\n", f.UUID, f.Status, f.NumProcessed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "destination", "d", "", "destination name (default: from settings)")
	return cmd
}

func newServeCommand(cfg *config.Config, settings settingsFunc, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled origins and the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := context.WithCancel(cmd.Context())
			defer stop()

			s, err := settings()
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg, s, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			sched, err := scheduler.New(rt.dispatcher, scheduler.Jobs(rt.settings), log.With("component", "scheduler"))
			if err != nil {
				return err
			}

			srv := web.NewServer(ctx, cfg.Listen, web.Deps{
				Flights:  rt.store,
				Launcher: rt.dispatcher,
				Registry: rt.dispatcher.Registry(),
				Settings: rt.settings,
				Metrics:  rt.metrics.Handler(),
				Log:      log,
			})

			var tower *bot.Bot
			if cfg.TelegramBotToken != "" {
				tower, err = bot.New(cfg.TelegramBotToken, bot.Deps{
					Flights:  rt.store,
					Launcher: rt.dispatcher,
					Registry: rt.dispatcher.Registry(),
					Settings: rt.settings,
				}, cfg, log)
				if err != nil {
					return err
				}
			}

			var wg sync.WaitGroup
			wg.Go(func() { sched.Run(ctx) })
			if tower != nil {
				wg.Go(func() { tower.Run(ctx) })
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("admin api listening", "addr", cfg.Listen)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err = <-errCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				log.Error("shutdown admin api", "error", serr)
			}
			stop()
			wg.Wait()
			if err != nil {
				return fmt.Errorf("admin api: %w", err)
			}
			return nil
		},
	}
}

func newFlightsCommand(cfg *config.Config) *cobra.Command {
	var (
		stuck time.Duration
		limit int
	)
	cmd := &cobra.Command{
		Use:   "flights",
		Short: "List recent flights, or flights stuck in the air",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var flights []model.Flight
			if stuck > 0 {
				flights, err = store.ListStuckFlights(cmd.Context(), time.Now().Add(-stuck))
			} else {
				flights, err = store.ListFlights(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			return printFlights(cmd.OutOrStdout(), flights)
		},
	}
	cmd.Flags().DurationVar(&stuck, "stuck", 0, "only flights in the air for longer than this")
	cmd.Flags().IntVar(&limit, "limit", web.DefaultListLimit, "number of flights to show")
	return cmd
}

func printFlights(w io.Writer, flights []model.Flight) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tAIRLINE\tORIGIN\tSTATUS\tSTARTED\tDURATION\tITEMS")
	for _, f := range flights {
		started, took := "-", "-"
		if f.StartedAt != nil {
			started = humanize.Time(*f.StartedAt)
			if f.FinishedAt != nil {
				took = f.FinishedAt.Sub(*f.StartedAt).Round(time.Second).String()
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", f.UUID, f.Airline, f.Origin, f.Status,
			started, took, humanize.Comma(f.NumProcessed))
	}
	return tw.Flush()
}
