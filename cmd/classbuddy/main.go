package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/ClassBuddy/internal/app"
	"github.com/dharsanguruparan/ClassBuddy/internal/classroom"
	"github.com/dharsanguruparan/ClassBuddy/internal/classify"
	"github.com/dharsanguruparan/ClassBuddy/internal/config"
	"github.com/dharsanguruparan/ClassBuddy/internal/llm"
	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/pipeline"
	"github.com/dharsanguruparan/ClassBuddy/internal/queue"
	"github.com/dharsanguruparan/ClassBuddy/internal/schedule"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

var (
	configFile string
	logLevel   string
	asJSON     bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "classbuddy: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classbuddy",
		Short: "ClassBuddy study material pipeline",
		Long: `ClassBuddy watches Classroom courses for new or edited materials and announcements
and generates summaries, flashcards, quizzes, audio overviews and project or lab guidance from them.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides CLASSBUDDY_CONFIG)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.AddCommand(
		newRunCmd(),
		newWatchCmd(),
		newEnqueueCmd(),
		newStatusCmd(),
		newRequeueCmd(),
		newAnalyzeCmd(),
		newCoursesCmd(),
	)
	return cmd
}

type courseFlags struct {
	ids   []string
	all   bool
	since int
}

func (f *courseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.ids, "course", nil, "Course id to scan (repeatable)")
	cmd.Flags().BoolVar(&f.all, "all-courses", false, "Scan every active course")
	cmd.Flags().IntVar(&f.since, "since", 0, "Only list posts updated in the last N hours")
}

func (f *courseFlags) apply(cfg *config.Config) {
	if len(f.ids) > 0 {
		cfg.Courses.IDs = f.ids
	}
	if f.all {
		cfg.Courses.All = true
	}
	if f.since > 0 {
		cfg.Courses.SinceHours = f.since
	}
}

// loadConfig reads configuration and builds the logger. Logs go to stderr
// so command output stays machine readable.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if configFile != "" {
		if err := os.Setenv("CLASSBUDDY_CONFIG", configFile); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logging.NewWithWriter(os.Stderr, cfg.LogLevel), nil
}

func newRunCmd() *cobra.Command {
	var courses courseFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one detection and generation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			courses.apply(cfg)
			a, err := app.New(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.Pipeline.Run(ctx, a.Scope())
			if report != nil {
				if perr := printReport(cmd.OutOrStdout(), report); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	courses.register(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	var courses courseFlags
	var immediate bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run passes on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			courses.apply(cfg)
			a, err := app.New(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			sched, err := schedule.New(cfg.Schedule, func(ctx context.Context) error {
				_, err := a.Pipeline.Run(ctx, a.Scope())
				return err
			}, logger)
			if err != nil {
				return err
			}
			logger.Info("watching courses", "schedule", cfg.Schedule)
			return sched.Run(ctx, immediate)
		},
	}
	courses.register(cmd)
	cmd.Flags().BoolVar(&immediate, "immediate", true, "Run one pass before the first tick")
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var courses courseFlags
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Detect items and queue them for the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			courses.apply(cfg)
			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			candidates, courseErrs, err := a.Pipeline.Detect(ctx, a.Scope())
			if err != nil {
				return err
			}
			for _, ce := range courseErrs {
				logger.Warn("course skipped", "course", ce.CourseID, "err", ce.Error)
			}
			client := asynq.NewClient(asynq.RedisClientOpt{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer client.Close()
			var queued, duplicate int
			for _, c := range candidates {
				attempts := 0
				if c.Record != nil {
					attempts = c.Record.AttemptCount
				}
				ok, err := queue.EnqueueItem(ctx, client, c.Item, attempts)
				if err != nil {
					return err
				}
				if ok {
					queued++
				} else {
					duplicate++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "detected %d, queued %d, already queued %d\n", len(candidates), queued, duplicate)
			return nil
		},
	}
	courses.register(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var course, status string
	var limit int
	var incomplete bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List processing records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()
			filter := storage.Filter{CourseID: course, Limit: limit}
			if status != "" {
				for _, part := range strings.Split(status, ",") {
					st := model.Status(strings.TrimSpace(part))
					if !st.Valid() {
						return fmt.Errorf("unknown status %q", part)
					}
					filter.Statuses = append(filter.Statuses, st)
				}
			}
			var recs []model.ProcessingRecord
			if incomplete {
				recs, err = store.AllIncomplete(ctx)
			} else {
				recs, err = store.List(ctx, filter)
			}
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&course, "course", "", "Only show records of this course")
	cmd.Flags().StringVar(&status, "status", "", "Comma separated statuses, e.g. failed,partial")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of records")
	cmd.Flags().BoolVar(&incomplete, "incomplete", false, "Only show pending and partial records")
	return cmd
}

func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <item-id>",
		Short: "Reset the attempt count of an item so the next pass retries it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			rec, err := a.Pipeline.Requeue(ctx, args[0])
			if errors.Is(err, pipeline.ErrNothingToRequeue) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already complete\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s requeued (%s, missing %s)\n", rec.ItemID, rec.Status, joinKinds(rec.Missing()))
			return nil
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Classify announcement text from arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if text == "" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(raw)
			}
			var completer llm.Completer
			if cfg.Pipeline.Classifier == "llm" {
				if completer, err = llm.New(cfg.LLM); err != nil {
					return err
				}
			}
			classifier, err := app.NewClassifier(cfg.Pipeline.Classifier, completer)
			if err != nil {
				return err
			}
			res, err := classify.Resolve(classifier.Classify(cmd.Context(), text))
			if err != nil {
				return err
			}
			return printAnalysis(cmd.OutOrStdout(), res)
		},
	}
}

func newCoursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List the active courses visible to the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			courses, err := classroom.New(cfg.Google, 0, logger).ListCourses(cmd.Context())
			if err != nil {
				return err
			}
			return printCourses(cmd.OutOrStdout(), courses)
		},
	}
}

func printReport(w io.Writer, report *pipeline.Report) error {
	if asJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "run %s: listed %d, detected %d\n", report.RunID, report.Listed, report.Detected)
	sections := []struct {
		name  string
		items []pipeline.ItemResult
	}{
		{"completed", report.Completed},
		{"partial", report.Partial},
		{"failed", report.Failed},
		{"permanently failed", report.PermanentlyFailed},
		{"pending", report.Pending},
	}
	for _, sec := range sections {
		if len(sec.items) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s (%d)\n", sec.name, len(sec.items))
		for _, it := range sec.items {
			line := fmt.Sprintf("  %s  %s", it.ItemID, it.Title)
			if len(it.Missing) > 0 {
				line += "  missing: " + joinKinds(it.Missing)
			}
			if it.Error != "" {
				line += "  error: " + it.Error
			}
			fmt.Fprintln(w, line)
		}
	}
	for _, ce := range report.CourseErrors {
		fmt.Fprintf(w, "course %s skipped: %s\n", ce.CourseID, ce.Error)
	}
	if report.Aborted != "" {
		fmt.Fprintf(w, "aborted: %s\n", report.Aborted)
	}
	return nil
}

func printRecords(w io.Writer, recs []model.ProcessingRecord) error {
	if asJSON {
		return writeJSON(w, recs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tSTATUS\tATTEMPTS\tMISSING\tTITLE")
	for i := range recs {
		rec := &recs[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", rec.ItemID, rec.Status, rec.AttemptCount, joinKinds(rec.Missing()), rec.Title)
	}
	return tw.Flush()
}

func printCourses(w io.Writer, courses []model.Course) error {
	if asJSON {
		return writeJSON(w, courses)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, c := range courses {
		fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.Name)
	}
	return tw.Flush()
}

func printAnalysis(w io.Writer, res classify.Result) error {
	kinds := model.KindsForCategory(res.Category)
	if asJSON {
		return writeJSON(w, map[string]any{
			"category": res.Category,
			"keywords": res.Keywords,
			"kinds":    kinds,
		})
	}
	fmt.Fprintf(w, "category: %s\n", res.Category)
	if len(res.Keywords) > 0 {
		fmt.Fprintf(w, "keywords: %s\n", strings.Join(res.Keywords, ", "))
	}
	fmt.Fprintf(w, "artifacts: %s\n", joinKinds(kinds))
	return nil
}

func joinKinds(kinds []model.ArtifactKind) string {
	if len(kinds) == 0 {
		return "-"
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
