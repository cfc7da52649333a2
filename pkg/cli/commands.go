package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openet/core/internal/engine"
	"github.com/openet/core/internal/state"
	"github.com/openet/core/pkg/config"
	"github.com/openet/core/pkg/daemon"
	"github.com/openet/core/pkg/notifier"
	"github.com/openet/core/pkg/storage"
	"github.com/openet/core/pkg/types"
	"github.com/openet/core/pkg/validation"
)

// ErrInvalidProject is returned by validate when any check fails
var ErrInvalidProject = errors.New("project validation failed")

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(c.output, "openet v%s\n", c.config.Version)
			return nil
		},
	}
}

func (c *CLI) newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.DefaultFileName,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := c.manager.SaveConfig(path, c.manager.GetDefaultConfig()); err != nil {
				return err
			}
			c.printSuccess("Created " + path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}

func (c *CLI) newValidateCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config, feature files and input collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				c.printError(err.Error())
				return err
			}

			var store storage.ObjectStore
			if !offline {
				deps, err := engine.NewDependencyFactory(c.config.ProjectRoot, c.logger, cfg).CreateDefaults()
				if err != nil {
					return err
				}
				store = deps.Store
			}
			result := validation.NewProjectValidator(c.config.ProjectRoot, store).Validate(cmd.Context(), cfg)

			if len(result.Errors) > 0 {
				t := table.NewWriter()
				t.SetOutputMirror(c.output)
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"Level", "Field", "Message"})
				for _, e := range result.Errors {
					field := e.Section
					if e.Field != "" {
						field += "." + e.Field
					}
					t.AppendRow(table.Row{levelColor(e.Level).Sprint(e.Level), field, e.Message})
				}
				t.Render()
			}
			if !result.Valid {
				c.printError(fmt.Sprintf("%d errors in %s", result.Count(validation.ValidationLevelError), c.configPath()))
				return ErrInvalidProject
			}
			c.printSuccess("Config is valid: " + c.configPath())
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the object store checks")
	return cmd
}

func levelColor(l validation.ValidationLevel) *color.Color {
	switch l {
	case validation.ValidationLevelError:
		return color.New(color.FgRed)
	case validation.ValidationLevelWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func (c *CLI) newTilesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "List the MGRS export tiles selected by the config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			tiles, err := engine.SelectTiles(c.config.ProjectRoot, cfg, c.logger)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.output)
				enc.SetIndent("", "  ")
				return enc.Encode(tiles)
			}

			t := table.NewWriter()
			t.SetOutputMirror(c.output)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Tile", "CRS", "Shape", "WRS2"})
			for _, tile := range tiles {
				t.AppendRow(table.Row{
					tile.Index,
					tile.CRS,
					fmt.Sprintf("%dx%d", tile.Shape[0], tile.Shape[1]),
					strings.Join(tile.WRS2Tiles, " "),
				})
			}
			t.AppendFooter(table.Row{"Total", len(tiles), "", ""})
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tiles as JSON")
	return cmd
}

func (c *CLI) newStatusCmd() *cobra.Command {
	var (
		asJSON  bool
		cleanup bool
	)
	cmd := &cobra.Command{
		Use:   "status [task-prefix]",
		Short: "Show the state of export tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := daemon.NewManager(c.config.ProjectRoot, c.logger).Status()
			if err != nil {
				return err
			}
			sm := state.NewStateManager(c.config.ProjectRoot, c.logger)
			if cleanup {
				if err := sm.Cleanup(); err != nil {
					return err
				}
			}
			states, err := sm.DiscoverStates()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				filtered := states[:0]
				for _, s := range states {
					if strings.HasPrefix(s.Task, args[0]) {
						filtered = append(filtered, s)
					}
				}
				states = filtered
			}

			if asJSON {
				enc := json.NewEncoder(c.output)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Process *daemon.Status     `json:"process"`
					Tasks   []*state.TaskState `json:"tasks"`
				}{owner, states})
			}
			if owner != nil {
				c.printInfo(fmt.Sprintf("openet %s running (pid %d, since %s)",
					owner.Command, owner.PID, owner.StartTime.Local().Format(time.DateTime)))
			}
			if len(states) == 0 {
				c.printInfo("No task state found in " + sm.StateDir())
				return nil
			}
			c.renderStates(states)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the states as JSON")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "remove stale and old state files first")
	return cmd
}

func (c *CLI) renderStates(states []*state.TaskState) {
	now := time.Now()
	t := table.NewWriter()
	t.SetOutputMirror(c.output)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "Status", "Attempts", "Duration", "Updated", "Output"})

	counts := make(map[types.TaskStatus]int)
	for _, s := range states {
		counts[s.Status]++
		status := statusColor(s.Status).Sprint(s.Status)
		if s.Stale(now) {
			status = color.New(color.FgYellow).Sprint("stale")
		}
		output := s.OutputKey
		if s.Status == types.TaskStatusFailed {
			output = s.LastError
		}
		t.AppendRow(table.Row{
			s.Task,
			status,
			s.Attempts,
			notifier.FormatDuration(s.Duration),
			s.UpdatedAt.Local().Format(time.DateTime),
			output,
		})
	}
	t.AppendFooter(table.Row{
		"Total",
		fmt.Sprintf("%d completed, %d failed", counts[types.TaskStatusCompleted], counts[types.TaskStatusFailed]),
		"", "", "", "",
	})
	t.Render()
}

func statusColor(s types.TaskStatus) *color.Color {
	switch s {
	case types.TaskStatusCompleted:
		return color.New(color.FgGreen)
	case types.TaskStatusFailed:
		return color.New(color.FgRed)
	case types.TaskStatusRunning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

// resolvePath joins relative paths to the project root
func (c *CLI) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.config.ProjectRoot, path)
}
