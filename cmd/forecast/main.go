package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dan9191/sales-forecast/internal/artifact"
	"github.com/Dan9191/sales-forecast/internal/config"
	"github.com/Dan9191/sales-forecast/internal/forecast"
	"github.com/Dan9191/sales-forecast/internal/models"
	"github.com/Dan9191/sales-forecast/internal/repository"
	"github.com/Dan9191/sales-forecast/internal/scheduler"
	"github.com/Dan9191/sales-forecast/internal/secrets"
	"github.com/Dan9191/sales-forecast/internal/service"
	"github.com/Dan9191/sales-forecast/internal/utils/email"
	"github.com/Dan9191/sales-forecast/internal/warehouse"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var flags struct {
	outputPath string
	schedule   string
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	rootCmd := &cobra.Command{
		Use:   "sales-forecast",
		Short: "Forecast monthly sales and store the results",
		Long: `Loads the sales history from the warehouse, fits a BATS model, writes the
combined history+forecast table to --prediction_total_file_path and appends
85/90/95% confidence intervals to SALES_CONFIDENCE_INTERVALS.

Paths ending in .csv or .json are written in that format, anything else as
msgpack. s3://bucket/key paths are uploaded to S3.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), logger)
		},
	}
	rootCmd.Flags().StringVar(&flags.outputPath, "prediction_total_file_path", "", "Destination of the combined history+forecast artifact")
	rootCmd.Flags().StringVar(&flags.schedule, "schedule", "", "Cron spec to run on (overrides FORECAST_SCHEDULE); empty runs once")
	if err := rootCmd.MarkFlagRequired("prediction_total_file_path"); err != nil {
		logger.Fatalf("Failed to configure flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logger.Fatalf("Forecast failed: %v", err)
	}
}

func run(ctx context.Context, logger *logrus.Logger) error {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	resolver, err := secrets.NewResolver(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}
	sender := email.NewSender(cfg, logger)

	job := scheduler.JobFunc{
		JobName: "sales-forecast",
		Fn: func(ctx context.Context) error {
			summary, err := runPipeline(ctx, cfg, resolver, logger, flags.outputPath)
			notify(sender, logger, summary, err)
			return err
		},
	}

	schedule := flags.schedule
	if schedule == "" {
		schedule = cfg.Schedule
	}

	sched := scheduler.New(ctx, logger)
	if schedule == "" {
		return sched.RunNow(job)
	}

	if err := sched.AddJob(schedule, job); err != nil {
		return err
	}
	sched.Start()
	<-ctx.Done()
	logger.Info("Shutting down")
	sched.Stop()
	return nil
}

// runPipeline opens one warehouse session for the run and closes it on every path
func runPipeline(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver, logger *logrus.Logger, outputPath string) (*models.RunSummary, error) {
	password, err := resolver.Password(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve warehouse password: %w", err)
	}
	wh := cfg.Warehouse
	wh.Password = password

	session, err := warehouse.Open(ctx, wh, logger)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	// Initialize layers
	repo := repository.NewRepository(session, logger)
	if cfg.AutoCreate {
		if err := repo.EnsureIntervalTable(ctx); err != nil {
			return nil, err
		}
	}
	writer := artifact.NewWriter(cfg.AWSRegion, logger)
	fitter := service.NewBATSFitter(forecast.DefaultBATSConfig())
	svc := service.NewService(repo, repo, fitter, writer, cfg, logger)

	return svc.Run(ctx, outputPath)
}

// notify reports the run outcome; a failed notification never fails the run
func notify(sender *email.Sender, logger *logrus.Logger, summary *models.RunSummary, runErr error) {
	if !sender.Enabled() {
		return
	}
	var err error
	if runErr != nil {
		err = sender.SendRunFailure(runErr)
	} else {
		err = sender.SendRunSummary(summary)
	}
	if err != nil {
		logger.Warnf("Failed to send run notification: %v", err)
	}
}
