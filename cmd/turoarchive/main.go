package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/turoarchive/turoarchive/internal/config"
	"github.com/turoarchive/turoarchive/internal/metadata"
	"github.com/turoarchive/turoarchive/internal/models"
	"github.com/turoarchive/turoarchive/internal/pipeline"
	"github.com/turoarchive/turoarchive/internal/remote"
	"github.com/turoarchive/turoarchive/internal/syncqueue"
	"github.com/turoarchive/turoarchive/internal/verifyapi"
)

func main() {
	// .env is optional; the environment itself wins.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCommand(logger).Execute(); err != nil {
		logger.Error("Command failed.", "error", err)
		os.Exit(1)
	}
}

func rootCommand(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "turoarchive",
		Short:         "Archive teacher-submitted instructional documents as tamper-evident PDFs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		processCommand(logger),
		queueCommand(logger),
		daemonCommand(logger),
		verifyCommand(logger),
		serveCommand(logger),
	)
	return root
}

// services bundles everything a command may need; fields are nil when their
// construction failed in a tolerable way (e.g. no OCR offline).
type services struct {
	cfg       *config.Config
	store     *syncqueue.Store
	conn      *syncqueue.Connectivity
	queue     *syncqueue.Queue
	remote    *remote.GCPStore
	extractor *metadata.Extractor
}

func buildServices(ctx context.Context, logger *slog.Logger, needOCR bool) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	remoteStore, err := remote.NewGCPStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create remote store: %w", err)
	}

	queueStore, err := syncqueue.OpenStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open sync queue: %w", err)
	}

	conn := syncqueue.NewConnectivity(cfg.ProbeURL, cfg.ProbeTimeout)
	queue := syncqueue.New(queueStore, remoteStore, conn, logger, cfg.AllowWeekdayComplianceFallback)

	svc := &services{
		cfg:    cfg,
		store:  queueStore,
		conn:   conn,
		queue:  queue,
		remote: remoteStore,
	}

	if needOCR {
		extractor, err := metadata.NewExtractor(ctx, cfg, logger)
		if err != nil {
			logger.Warn("Optical recognition unavailable, metadata will be limited.", "error", err)
		} else {
			svc.extractor = extractor
		}
	}
	return svc, nil
}

func (s *services) close() {
	if s.extractor != nil {
		_ = s.extractor.Close()
	}
	_ = s.store.Close()
	_ = s.remote.Close()
}

func processCommand(logger *slog.Logger) *cobra.Command {
	var opts models.UploadOptions
	var docType string
	var offline bool

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Run one document through the integrity pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := buildServices(ctx, logger, true)
			if err != nil {
				return err
			}
			defer svc.close()

			if offline {
				svc.conn.SetOffline(true)
			}
			if docType != "" {
				opts.DocType = models.DocType(docType)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input file: %w", err)
			}
			file := &models.SourceFile{
				Name: filepath.Base(args[0]),
				Ext:  filepath.Ext(args[0]),
				Size: int64(len(data)),
				Data: data,
			}

			p := pipeline.New(svc.extractor, svc.remote, svc.queue, logger, svc.cfg)

			outcome, err := p.Process(ctx, file, opts, func(ev models.PipelineEvent) {
				logger.Info("Pipeline progress.", "phase", ev.Phase, "progress", ev.Progress, "message", ev.Message)
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, outcome)
		},
	}

	cmd.Flags().StringVar(&docType, "doc-type", "", "document type (DLL, ISP, ISR)")
	cmd.Flags().IntVar(&opts.WeekNumber, "week", 0, "week number")
	cmd.Flags().StringVar(&opts.SchoolYear, "school-year", "", "school year, e.g. 2025-2026")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "subject")
	cmd.Flags().IntVar(&opts.GradeLevel, "grade", 0, "grade level")
	cmd.Flags().StringVar(&opts.School, "school", "", "school name")
	cmd.Flags().StringVar(&opts.Teacher, "teacher", "", "teacher name")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip direct upload and queue immediately")
	return cmd
}

func queueCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the offline sync queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the number of pending uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(cmd.Context(), logger, false)
			if err != nil {
				return err
			}
			defer svc.close()

			size, err := svc.queue.Size(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"pending": size})
		},
	})

	var force bool
	drain := &cobra.Command{
		Use:   "drain",
		Short: "Attempt delivery of all pending uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(cmd.Context(), logger, false)
			if err != nil {
				return err
			}
			defer svc.close()

			result, err := svc.queue.Drain(cmd.Context(), force)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	drain.Flags().BoolVar(&force, "force", false, "drain even if connectivity checks fail")
	cmd.AddCommand(drain)
	return cmd
}

func daemonCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the background drain loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(ctx, logger, false)
			if err != nil {
				return err
			}
			defer svc.close()

			drain := func(force bool) {
				drainCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
				defer cancel()
				if _, err := svc.queue.Drain(drainCtx, force); err != nil {
					logger.Warn("Scheduled drain failed.", "error", err)
				}
			}

			scheduler := cron.New()
			if _, err := scheduler.AddFunc("@every "+svc.cfg.DrainInterval.String(), func() { drain(false) }); err != nil {
				return fmt.Errorf("schedule periodic drain: %w", err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			// SIGUSR1 stands in for the foreground/visibility trigger:
			// poke the daemon to drain right now.
			wake := make(chan os.Signal, 1)
			signal.Notify(wake, syscall.SIGUSR1)

			// Watch for connectivity returning and drain on the edge.
			go func() {
				online := false
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						now := svc.conn.Check(ctx)
						if now && !online {
							logger.Info("Connectivity restored, draining queue.")
							drain(false)
						}
						online = now
					}
				}
			}()

			logger.Info("Daemon started.", "drainInterval", svc.cfg.DrainInterval.String())
			for {
				select {
				case <-ctx.Done():
					logger.Info("Daemon stopping.")
					return nil
				case <-wake:
					logger.Info("Received wake signal, draining queue.")
					drain(false)
				}
			}
		},
	}
}

func verifyCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <fingerprint>",
		Short: "Check whether the archive holds a document with this fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(cmd.Context(), logger, false)
			if err != nil {
				return err
			}
			defer svc.close()

			record, err := svc.remote.QueryByFingerprint(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return printJSON(cmd, map[string]any{"verified": false, "fingerprint": args[0]})
			}
			return printJSON(cmd, map[string]any{"verified": true, "fingerprint": args[0], "record": record})
		},
	}
}

func serveCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the verification HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(ctx, logger, false)
			if err != nil {
				return err
			}
			defer svc.close()

			server := &http.Server{
				Addr:    svc.cfg.ListenAddr,
				Handler: verifyapi.New(svc.remote, logger, 5*time.Minute).Router(),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Verification endpoint listening.", "addr", svc.cfg.ListenAddr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
