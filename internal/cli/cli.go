// ============================================================================
// Stagerunner CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command line interface for the scheduler
//
// Command Structure:
//   stagerunner                    # Root command
//   ├── run                        # Start the scheduler loop
//   │   └── --jobs, -j            # Optional job definitions file
//   ├── status                     # Inspect on-disk scheduler state
//   ├── halt                       # Flip the stop flag to request a stop
//   ├── --config, -c              # Config file (persistent flag)
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// Configuration Management:
//   YAML config file (default: configs/default.yaml) with:
//   - scheduler: filesystem paths, pool size, tick interval
//   - metrics: Prometheus monitoring configuration
//
// run Command:
//   1. Load config file
//   2. Start the metrics HTTP server (if enabled)
//   3. Construct the scheduler (resumes automatically when the resume
//      marker is present)
//   4. Decode and schedule jobs from --jobs, if given (on a resumed run
//      they are added alongside the restored jobs)
//   5. Drive the loop; SIGINT/SIGTERM checkpoint and exit gracefully
//
// halt Command:
//   Rewrites the condition cache with {"is_running": false}. A scheduler
//   polling that file checkpoints and exits; this is the out-of-band
//   kill-switch for long-running deployments.
//
// status Command:
//   Reads the on-disk state (snapshot directories, done log, control
//   files) without touching a running process.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kiselas/stagerunner/internal/controlfile"
	"github.com/kiselas/stagerunner/internal/donelog"
	"github.com/kiselas/stagerunner/internal/job"
	"github.com/kiselas/stagerunner/internal/metrics"
	"github.com/kiselas/stagerunner/internal/scheduler"
	"github.com/kiselas/stagerunner/pkg/types"
)

var log = slog.Default()

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Scheduler struct {
		QueuedDir      string        `yaml:"queued_dir"`
		RunningDir     string        `yaml:"running_dir"`
		DoneLog        string        `yaml:"done_log"`
		ConditionCache string        `yaml:"condition_cache"`
		SchedulerData  string        `yaml:"scheduler_data"`
		PoolSize       int    `yaml:"pool_size"`
		TickIntervalMs int    `yaml:"tick_interval_ms"`
	} `yaml:"scheduler"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// SchedulerConfig converts the YAML section into the scheduler's config
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		QueuedDir:          c.Scheduler.QueuedDir,
		RunningDir:         c.Scheduler.RunningDir,
		DoneLogPath:        c.Scheduler.DoneLog,
		ConditionCachePath: c.Scheduler.ConditionCache,
		SchedulerDataPath:  c.Scheduler.SchedulerData,
		PoolSize:           c.Scheduler.PoolSize,
		TickInterval:       time.Duration(c.Scheduler.TickIntervalMs) * time.Millisecond,
	}
}

var configFile string

// BuildCLI assembles the root command tree
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stagerunner",
		Short: "Stagerunner: a persistent cooperative job scheduler",
		Long: `Stagerunner runs multi-stage jobs cooperatively on a single thread with:
- Per-job scheduled start times and dependency gating
- Retry budgets and wall-clock deadlines
- Stop/resume through on-disk snapshots`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildHaltCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	var jobsFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler loop",
		Long:  "Drive scheduled jobs until they drain or a stop is requested. Resumes automatically from a previous checkpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(jobsFile)
		},
	}

	cmd.Flags().StringVarP(&jobsFile, "jobs", "j", "", "JSON file with job definitions to schedule")

	return cmd
}

func runScheduler(jobsFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := []scheduler.Option{}
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		opts = append(opts, scheduler.WithMetrics(collector))
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	sched, err := scheduler.New(cfg.SchedulerConfig(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if jobsFile != "" {
		tasks, err := loadJobs(jobsFile)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			sched.Schedule(t)
		}
		log.Info("Scheduled jobs from file", "file", jobsFile, "count", len(tasks))
	}

	// SIGINT/SIGTERM cancel the context; the loop checkpoints and returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("scheduler run failed: %w", err)
	}

	log.Info("Scheduler exited")
	return nil
}

// loadJobs decodes job definitions through the task registry.
// File format: a JSON array of snapshot envelopes (kind, meta, state).
func loadJobs(path string) ([]job.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}

	var envelopes []types.SnapshotEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}

	var tasks []job.Task
	for i := range envelopes {
		env := envelopes[i]
		if env.SchemaVer == 0 {
			env.SchemaVer = 1
		}
		if env.Meta.ID == "" {
			env.Meta.ID = types.NewJobID()
		}
		if env.Meta.StartAt.IsZero() {
			env.Meta.StartAt = time.Now()
		}
		if env.Meta.MaxWorkingTime == 0 {
			env.Meta.MaxWorkingTime = types.NoDeadline
		}
		t, err := job.Decode(env)
		if err != nil {
			return nil, fmt.Errorf("failed to decode job %d: %w", i, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func buildHaltCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "halt",
		Short: "Request a graceful stop",
		Long:  "Flip the on-disk stop flag so a running scheduler checkpoints and exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			path := cfg.SchedulerConfig().ConditionCachePath
			if path == "" {
				path = scheduler.DefaultConditionCache
			}
			if err := controlfile.NewStopFlag(path).RequestStop(); err != nil {
				return err
			}
			fmt.Printf("Stop requested via %s\n", path)
			return nil
		},
	}
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler state",
		Long:  "Display on-disk queue statistics and control file state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	sc := cfg.SchedulerConfig()

	fmt.Println("Stagerunner status")
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  config file:   %s\n", configFile)
	fmt.Printf("  pool size:     %d\n", orDefault(sc.PoolSize, scheduler.DefaultPoolSize))
	fmt.Printf("  tick interval: %s\n", orDefaultDuration(sc.TickInterval, scheduler.DefaultTickInterval))
	fmt.Println()

	queuedDir := orDefaultString(sc.QueuedDir, scheduler.DefaultQueuedDir)
	runningDir := orDefaultString(sc.RunningDir, scheduler.DefaultRunningDir)
	fmt.Println("Snapshots:")
	fmt.Printf("  queued:  %d file(s) in %s\n", countFiles(queuedDir), queuedDir)
	fmt.Printf("  running: %d file(s) in %s\n", countFiles(runningDir), runningDir)
	fmt.Println()

	done := donelog.New(orDefaultString(sc.DoneLogPath, scheduler.DefaultDoneLogPath))
	completed, err := done.Count()
	if err != nil {
		return err
	}
	fmt.Println("Done log:")
	fmt.Printf("  completed jobs: %d (%s)\n", completed, done.Path())
	fmt.Println()

	marker := controlfile.NewSchedulerData(orDefaultString(sc.SchedulerDataPath, scheduler.DefaultSchedulerDataPath))
	fmt.Println("Control files:")
	if marker.Exists() {
		content, err := marker.Read()
		if err != nil {
			return err
		}
		fmt.Printf("  resume marker: present (queued=%d running=%d)\n",
			content.LenQueuedTasks, content.LenRunningTasks)
	} else {
		fmt.Println("  resume marker: absent (next run starts fresh)")
	}

	return nil
}

func countFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}
