package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/server"
)

type extractOptions struct {
	keywords  string
	location  string
	platforms []string
	timeout   time.Duration
}

type extractResult struct {
	Session extract.Session  `json:"session"`
	Records []extract.Record `json:"records"`
}

// newExtractCmd runs one session in-process and prints the final snapshot as
// JSON. An interrupt stops the session and still prints what was collected.
func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Runs a single extraction session and prints the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if len(opts.platforms) == 0 {
				for _, spec := range cfg.Collectors {
					opts.platforms = append(opts.platforms, spec.ID)
				}
			}
			// The CLI keeps its metrics private so nothing is scraped.
			app, err := server.Build(cmd.Context(), cfg, server.WithRegisterer(prometheus.NewRegistry()))
			if err != nil {
				return err
			}
			return runExtract(cmd, app, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.keywords, "keywords", "k", "", "search keywords")
	cmd.Flags().StringVarP(&opts.location, "location", "l", "", "search location")
	cmd.Flags().StringSliceVarP(&opts.platforms, "platforms", "p", nil,
		"platforms to query (default: every configured platform)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "stop the session after this long")
	return cmd
}

func runExtract(cmd *cobra.Command, app *server.App, opts *extractOptions) (err error) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if cerr := app.Close(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	coord := app.Coordinator()
	id, err := coord.Start(ctx, extract.Query{
		Keywords:  opts.keywords,
		Location:  opts.location,
		Platforms: opts.platforms,
	})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	app.Logger().Info("session started", zap.String("session_id", id), zap.Strings("platforms", opts.platforms))

	if werr := coord.Wait(ctx); werr != nil {
		app.Logger().Warn("stopping session", zap.String("session_id", id), zap.Error(werr))
		coord.Stop()
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer drainCancel()
		if err := coord.Wait(drainCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	sess, records, _ := coord.Snapshot()
	if records == nil {
		records = []extract.Record{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(extractResult{Session: sess, Records: records}); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
