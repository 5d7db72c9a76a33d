package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rundown/internal/amqp"
	"rundown/internal/app"
	"rundown/internal/core"
	"rundown/internal/export/xlsx"
	"rundown/internal/fixture"
	"rundown/internal/storage"
)

func (c *CLIApp) generateCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Regenerate the baseline profile of one project or of every active project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Generator.Generate(ctx, projectID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.jsonOutput {
					return writeJSON(out, res)
				}
				success(out, "Execution %s: %d projects processed, %d points written in %dms",
					res.ExecutionID, res.ProjectsProcessed, res.ProfilesCreated, res.ExecutionTimeMs)
				for _, e := range res.Errors {
					warning(out, "%s %s: %s", e.ProjectID, e.ErrorType, e.Message)
				}
				for _, id := range res.FlaggedProjects {
					warning(out, "%s: forecast exceeds plan", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id (default: all active projects)")
	return cmd
}

func (c *CLIApp) profilesCmd() *cobra.Command {
	var projectID, profileType, scenario string
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Show a stored rundown series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pt := core.ProfileType(profileType)
			if !pt.IsValid() {
				return fmt.Errorf("%w: %s", core.ErrInvalidType, profileType)
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				points, err := a.Backend.Store.GetProfiles(ctx, projectID, pt, scenario)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.jsonOutput {
					return writeJSON(out, points)
				}
				if len(points) == 0 {
					warning(out, "No %s points stored for project %s scenario %s", pt, projectID, scenario)
					return nil
				}
				return renderTable(out, []string{"Month", "Planned", "Actual", "Predicted"}, profileRows(points, c.currency))
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id")
	cmd.Flags().StringVarP(&profileType, "type", "t", string(core.TotalBudget), "Profile type: total_budget or contingency")
	cmd.Flags().StringVarP(&scenario, "scenario", "s", core.BaselineScenario, "Scenario name")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func (c *CLIApp) exportCmd() *cobra.Command {
	var projectID, scenario, path string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a project's profiles to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				project, err := a.Backend.Store.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				wb := xlsx.Workbook{Project: project, Scenario: scenario}
				for _, pt := range project.ProfileTypes() {
					points, err := a.Backend.Store.GetProfiles(ctx, projectID, pt, scenario)
					if err != nil {
						return err
					}
					wb.Points = append(wb.Points, points...)
				}
				if path == "" {
					path = wb.Filename()
				}

				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create %s: %w", path, err)
				}
				if err := xlsx.Write(f, wb); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Wrote %d points to %s", len(wb.Points), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id")
	cmd.Flags().StringVarP(&scenario, "scenario", "s", core.BaselineScenario, "Scenario name")
	cmd.Flags().StringVarP(&path, "out", "o", "", "Output file (default: rundown-<project>-<scenario>.xlsx)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func (c *CLIApp) scenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Manage what-if scenarios",
	}

	var projectID string
	cmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "Project id")
	_ = cmd.MarkPersistentFlagRequired("project")

	var createdBy string
	create := &cobra.Command{
		Use:   "create NAME ADJUSTMENT",
		Short: "Create a scenario; ADJUSTMENT is a percentage (-10%) or an absolute delta (+500)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			adj, err := parseAdjustment(args[1])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				sc, err := a.Scenarios.CreateScenario(ctx, projectID, args[0], adj, createdBy)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Created scenario %s (%s) for project %s", sc.Name, describeAdjustment(sc.Adjustment), sc.ProjectID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&createdBy, "created-by", os.Getenv("USER"), "Creator recorded on the scenario")

	apply := &cobra.Command{
		Use:   "apply NAME",
		Short: "Regenerate the points stored under a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Scenarios.ApplyScenario(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				c.reportApply(cmd, args[0], res.ProfilesCreated, res.Flagged)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List a project's scenarios, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				scenarios, err := a.Scenarios.ListScenarios(ctx, projectID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.jsonOutput {
					return writeJSON(out, scenarios)
				}
				return renderTable(out, []string{"Name", "Adjustment", "Created by", "Updated"}, scenarioRows(scenarios))
			})
		},
	}

	update := &cobra.Command{
		Use:   "update NAME ADJUSTMENT",
		Short: "Change a scenario's adjustment and re-apply it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			adj, err := parseAdjustment(args[1])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Scenarios.UpdateScenario(ctx, projectID, args[0], adj)
				if err != nil {
					return err
				}
				c.reportApply(cmd, args[0], res.ProfilesCreated, res.Flagged)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a scenario and its stored points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Scenarios.DeleteScenario(ctx, projectID, args[0]); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Deleted scenario %s", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, apply, list, update, del)
	return cmd
}

func (c *CLIApp) reportApply(cmd *cobra.Command, name string, points int, flagged bool) {
	out := cmd.OutOrStdout()
	success(out, "Scenario %s: %d points written", name, points)
	if flagged {
		warning(out, "Scenario %s: forecast exceeds plan", name)
	}
}

func (c *CLIApp) logCmd() *cobra.Command {
	var executionID string
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show generation log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Backend.Store.ListGenerationLog(ctx, executionID, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.jsonOutput {
					return writeJSON(out, entries)
				}
				return renderTable(out,
					[]string{"Time", "Execution", "Project", "Status", "Processed", "Points", "Errors", "Duration"},
					logRows(entries))
			})
		},
	}
	cmd.Flags().StringVarP(&executionID, "execution", "e", "", "Only entries of this execution id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	return cmd
}

func (c *CLIApp) notifyCmd() *cobra.Command {
	var projectID, change, eventID string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Publish a financial-event change notification to the worker queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is required to publish notifications")
			}
			msg := amqp.NewProjectChangedMessage(projectID, change, eventID)
			if err := msg.Validate(); err != nil {
				return err
			}

			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.PublishProjectChanged(cmd.Context(), msg); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Published %s notification for project %s", msg.Change, msg.ProjectID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id")
	cmd.Flags().StringVar(&change, "change", amqp.ChangeUpdated, "Change kind: inserted, updated or deleted")
	cmd.Flags().StringVar(&eventID, "event", "", "Financial event id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func (c *CLIApp) seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed FIXTURE",
		Short: "Copy projects and events from a YAML, JSON or TOML fixture into the SQL backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := fixture.Load(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Backend.SQL == nil {
					return fmt.Errorf("seed needs a SQL backend, DATA_BACKEND is %s", a.Config.DataBackend)
				}
				if err := a.Backend.SQL.Seed(ctx, data); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Seeded %d projects and %d events", len(data.Projects), len(data.Events))
				return nil
			})
		},
	}
	return cmd
}

func (c *CLIApp) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply, roll back or inspect schema migrations of the SQL backend",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dialect, err := storage.ParseDialect(cfg.DataBackend)
			if err != nil {
				return fmt.Errorf("migrate needs a SQL backend: %w", err)
			}
			dsn := cfg.PostgresDSN
			if dialect == storage.SQLite {
				dsn = storage.SQLiteDSN(cfg.SQLiteDBPath)
			}

			out := cmd.OutOrStdout()
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			switch action {
			case "down":
				if err := storage.RollbackMigrations(dialect, dsn); err != nil {
					return err
				}
				success(out, "Rolled back %s schema", dialect)
			case "version":
				version, dirty, ok, err := storage.MigrationVersion(dialect, dsn)
				if err != nil {
					return err
				}
				if !ok {
					warning(out, "No migrations applied")
					return nil
				}
				fmt.Fprintf(out, "version %d (dirty: %t)\n", version, dirty)
			default:
				if err := storage.RunMigrations(dialect, dsn); err != nil {
					return err
				}
				success(out, "Migrated %s schema", dialect)
			}
			return nil
		},
	}
	return cmd
}

// parseAdjustment reads "-10%" as a percentage and "+500" or "500" as an absolute delta.
func parseAdjustment(s string) (core.Adjustment, error) {
	s = strings.TrimSpace(s)
	kind := core.Absolute
	if strings.HasSuffix(s, "%") {
		kind = core.Percentage
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	v, err := core.ParseAmount(s)
	if err != nil {
		return core.Adjustment{}, fmt.Errorf("invalid adjustment %q: %w", s, err)
	}
	return core.Adjustment{Kind: kind, Value: v}, nil
}
