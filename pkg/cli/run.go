package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openet/core/internal/engine"
	"github.com/openet/core/internal/watch"
	"github.com/openet/core/pkg/config"
	pctx "github.com/openet/core/pkg/context"
	"github.com/openet/core/pkg/daemon"
	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/notifier"
	"github.com/openet/core/pkg/types"
)

// ErrTasksFailed is returned by run when any export task failed
var ErrTasksFailed = errors.New("export tasks failed")

// runFlags override the export section for one invocation
type runFlags struct {
	start      string
	end        string
	tiles      []string
	interval   string
	cpuProfile string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "override export.start_date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "override export.end_date (YYYY-MM-DD, exclusive)")
	cmd.Flags().StringSliceVar(&f.tiles, "tiles", nil, "override export.mgrs_tiles")
	cmd.Flags().StringVar(&f.interval, "interval", "", "override export.interval")
}

func (f *runFlags) apply(cfg *types.Config) {
	if cfg.Export == nil {
		return
	}
	if f.start != "" {
		cfg.Export.StartDate = f.start
	}
	if f.end != "" {
		cfg.Export.EndDate = f.end
	}
	if len(f.tiles) > 0 {
		cfg.Export.MGRSTiles = f.tiles
	}
	if f.interval != "" {
		cfg.Export.Interval = f.interval
	}
}

func (c *CLI) newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Interpolate and export every selected tile and period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)

			if flags.cpuProfile != "" {
				stop, err := startCPUProfile(c.resolvePath(flags.cpuProfile))
				if err != nil {
					return err
				}
				defer stop()
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = pctx.EnrichContext(ctx)

			lock := daemon.NewManager(c.config.ProjectRoot, c.logger)
			if err := lock.Acquire("run", pctx.GetRunID(ctx)); err != nil {
				return err
			}
			defer lock.Release()

			result, err := c.runOnce(ctx, cfg)
			if result != nil {
				c.renderRun(result)
			}
			if err != nil {
				return err
			}
			if result.Summary.Failed > 0 {
				c.printError(fmt.Sprintf("%d of %d tasks failed, see 'openet status'",
					result.Summary.Failed, len(result.Tasks)))
				return fmt.Errorf("%w: %d", ErrTasksFailed, result.Summary.Failed)
			}
			c.printSuccess(fmt.Sprintf("Exported %d tasks in %s",
				result.Summary.Completed, notifier.FormatDuration(result.Summary.Duration)))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.cpuProfile, "cpuprofile", "", "write a CPU profile to this file")
	return cmd
}

func (c *CLI) runOnce(ctx context.Context, cfg *types.Config) (*engine.RunResult, error) {
	deps, err := engine.NewDependencyFactory(c.config.ProjectRoot, c.logger, cfg).CreateDefaults()
	if err != nil {
		return nil, err
	}
	runner, err := engine.NewRunner(c.config.ProjectRoot, c.logger, deps)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, cfg)
}

func (c *CLI) renderRun(result *engine.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(c.output)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "Status", "Attempts", "Duration", "Output"})
	for _, task := range result.Tasks {
		output := task.OutputKey
		if task.Err != nil {
			output = task.Err.Error()
		}
		t.AppendRow(table.Row{
			task.Name,
			statusColor(task.Status).Sprint(task.Status),
			task.Attempts,
			notifier.FormatDuration(task.Duration),
			output,
		})
	}
	t.AppendFooter(table.Row{"Run " + result.RunID, "", "", notifier.FormatDuration(result.Summary.Duration), ""})
	t.Render()
}

func startCPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("start cpu profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}

func (c *CLI) newWatchCmd() *cobra.Command {
	var (
		flags   = &runFlags{}
		initial bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rerun the export when scene files or the config change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)
			if cfg.Watch == nil || cfg.Watch.Dir == "" {
				return fmt.Errorf("%w: watch.dir is required", engine.ErrIncompleteConfig)
			}

			lock := daemon.NewManager(c.config.ProjectRoot, c.logger)
			if err := lock.Acquire("watch", ""); err != nil {
				return err
			}
			defer lock.Release()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return c.watchLoop(ctx, cfg, flags, initial)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&initial, "initial-run", true, "run once before waiting for changes")
	return cmd
}

// watchLoop serializes runs. Changes arriving during a run collapse into one
// follow-up run.
func (c *CLI) watchLoop(ctx context.Context, cfg *types.Config, flags *runFlags, initial bool) error {
	var (
		mu      sync.Mutex
		current = cfg
	)
	trigger := make(chan string, 1)
	notify := func(reason string) {
		select {
		case trigger <- reason:
		default:
		}
	}

	w, err := watch.New(watch.Options{
		Dir:           c.resolvePath(cfg.Watch.Dir),
		Patterns:      cfg.Watch.Patterns,
		Exclude:       cfg.Watch.Exclude,
		SettlingDelay: time.Duration(cfg.Watch.SettlingDelay) * time.Millisecond,
		Logger:        c.logger.WithTarget("watch"),
	}, func(events []watch.Event) {
		for _, e := range events {
			c.logger.Debug("Scene file changed",
				logger.WithField("path", e.Path),
				logger.WithField("type", string(e.Type)))
		}
		notify(fmt.Sprintf("%d scene files changed", len(events)))
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	reload := config.NewReloadManager(c.configPath(), c.logger.WithTarget("config"))
	reload.AddCallback(func(next *types.Config, err error) {
		if err != nil {
			c.printWarning("Config reload failed, keeping the previous config: " + err.Error())
			return
		}
		c.applyOverrides(next)
		if err := c.manager.ValidateConfig(next); err != nil {
			c.printWarning("Reloaded config is invalid, keeping the previous config: " + err.Error())
			return
		}
		flags.apply(next)
		mu.Lock()
		current = next
		mu.Unlock()
		notify("config changed")
	})
	if err := reload.StartWatching(); err != nil {
		return err
	}
	defer reload.StopWatching()

	if initial {
		notify("initial run")
	}
	c.printInfo("Watching " + w.Dir() + " (Ctrl+C to stop)")

	for {
		select {
		case <-ctx.Done():
			c.printInfo("Stopped watching")
			return nil
		case reason := <-trigger:
			mu.Lock()
			run := current
			mu.Unlock()

			c.printInfo("Running export: " + reason)
			result, err := c.runOnce(ctx, run)
			switch {
			case errors.Is(err, context.Canceled):
				continue
			case err != nil:
				c.printError(err.Error())
			case result.Summary.Failed > 0:
				c.printWarning(fmt.Sprintf("%d tasks failed", result.Summary.Failed))
			default:
				c.printSuccess(fmt.Sprintf("Exported %d tasks", result.Summary.Completed))
			}
		}
	}
}

func (c *CLI) newStopCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the openet run or watch process of this project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := daemon.NewManager(c.config.ProjectRoot, c.logger).Stop(ctx)
			if errors.Is(err, daemon.ErrNotRunning) {
				c.printInfo("No openet process is running")
				return nil
			}
			if err != nil {
				return err
			}
			c.printSuccess(fmt.Sprintf("Stopped openet %s (pid %d)", status.Command, status.PID))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "kill the process if it has not exited after this long")
	return cmd
}
