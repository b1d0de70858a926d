package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chartvoice/chartvoice/pkg/config"
	"github.com/chartvoice/chartvoice/pkg/jobs"
	"github.com/chartvoice/chartvoice/pkg/marketdata"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Render-job queue commands",
}

var jobsWorkOpts struct {
	outDir string
}

var jobsWorkCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the queue worker",
	Long: `Poll the render-job queue and process jobs until interrupted. Supported
job kinds:

  chart_snapshot  {"symbol":"AAPL","range":"3mo","interval":"1d"}
                  fetches price history and writes it as JSON under --out`,
	RunE: runJobsWork,
}

var jobsEnqueueOpts struct {
	kind     string
	payload  string
	priority int
}

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue one job",
	RunE:  runJobsEnqueue,
}

func init() {
	jobsWorkCmd.Flags().StringVar(&jobsWorkOpts.outDir, "out", "snapshots", "Directory chart snapshots are written to")
	jobsEnqueueCmd.Flags().StringVar(&jobsEnqueueOpts.kind, "kind", "chart_snapshot", "Job kind")
	jobsEnqueueCmd.Flags().StringVar(&jobsEnqueueOpts.payload, "payload", "", "Job payload as JSON")
	jobsEnqueueCmd.Flags().IntVar(&jobsEnqueueOpts.priority, "priority", 0, "Job priority (higher runs first)")
	jobsCmd.AddCommand(jobsWorkCmd)
	jobsCmd.AddCommand(jobsEnqueueCmd)
}

func openStore(cfg config.Config, logger *slog.Logger) (jobs.Store, error) {
	if cfg.JobsDriver == config.JobsDriverPostgres {
		return jobs.NewPostgresStore(cfg.JobsDSN, logger)
	}
	return jobs.NewSQLiteStore(cfg.JobsSQLitePath, logger)
}

func runJobsEnqueue(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var payload json.RawMessage
	if jobsEnqueueOpts.payload != "" {
		if !json.Valid([]byte(jobsEnqueueOpts.payload)) {
			return fmt.Errorf("--payload must be valid JSON")
		}
		payload = json.RawMessage(jobsEnqueueOpts.payload)
	}

	job, err := store.Enqueue(cmd.Context(), jobsEnqueueOpts.kind, payload, jobsEnqueueOpts.priority)
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %s kind=%s priority=%d\n", job.ID, job.Kind, job.Priority)
	return nil
}

func runJobsWork(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := os.MkdirAll(jobsWorkOpts.outDir, 0o755); err != nil {
		return err
	}

	upstream := marketdata.NewUpstream(marketdata.UpstreamConfig{
		BaseURL:  cfg.MarketDataBaseURL,
		CacheTTL: cfg.MarketDataCacheTTL,
		Logger:   logger,
	})
	worker := &queueWorker{
		store:    store,
		upstream: upstream,
		outDir:   jobsWorkOpts.outDir,
		lease:    cfg.JobsLease,
		log:      logger.With("component", "jobs-worker"),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.log.Info("worker started", "driver", string(cfg.JobsDriver), "poll_interval", cfg.JobsPollInterval.String())
	ticker := time.NewTicker(cfg.JobsPollInterval)
	defer ticker.Stop()
	for {
		worker.drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type queueWorker struct {
	store    jobs.Store
	upstream *marketdata.Upstream
	outDir   string
	lease    time.Duration
	log      *slog.Logger
}

// drain processes jobs until the queue is empty or ctx is done. Stale
// leases from crashed workers are requeued first.
func (w *queueWorker) drain(ctx context.Context) {
	if n, err := w.store.RequeueStale(ctx); err != nil {
		w.log.Warn("requeue stale failed", "error", err)
	} else if n > 0 {
		w.log.Info("requeued stale jobs", "count", n)
	}

	for ctx.Err() == nil {
		job, err := w.store.Dequeue(ctx, w.lease)
		if err != nil {
			w.log.Warn("dequeue failed", "error", err)
			return
		}
		if job == nil {
			return
		}

		if err := w.process(ctx, job); err != nil {
			w.log.Warn("job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
			if ferr := w.store.Fail(ctx, job.ID, err.Error()); ferr != nil {
				w.log.Warn("recording failure failed", "job_id", job.ID, "error", ferr)
			}
			continue
		}
		if err := w.store.Complete(ctx, job.ID); err != nil {
			w.log.Warn("completing job failed", "job_id", job.ID, "error", err)
			continue
		}
		w.log.Info("job done", "job_id", job.ID, "kind", job.Kind)
	}
}

type snapshotPayload struct {
	Symbol   string `json:"symbol"`
	Range    string `json:"range"`
	Interval string `json:"interval"`
}

func (w *queueWorker) process(ctx context.Context, job *jobs.Job) error {
	switch job.Kind {
	case "chart_snapshot":
		return w.snapshot(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (w *queueWorker) snapshot(ctx context.Context, job *jobs.Job) error {
	var p snapshotPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("payload symbol is required")
	}

	candles, err := w.upstream.History(ctx, p.Symbol, p.Range, p.Interval)
	if err != nil {
		return err
	}
	quote, err := w.upstream.Quote(ctx, p.Symbol)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"job_id":       job.ID,
		"symbol":       strings.ToUpper(p.Symbol),
		"quote":        quote,
		"candles":      candles,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s-%s.json", strings.ToUpper(p.Symbol), job.ID)
	return os.WriteFile(filepath.Join(w.outDir, name), out, 0o644)
}
