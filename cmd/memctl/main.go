// Package main implements memctl, a CLI for inspecting and maintaining the
// context memory database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianapps/contextmem/internal/config"
	"github.com/meridianapps/contextmem/internal/contextmem"
	"github.com/meridianapps/contextmem/internal/insights"
	"github.com/meridianapps/contextmem/internal/logging"
	"github.com/meridianapps/contextmem/internal/storage"
)

var (
	configPath string
	dbPath     string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Inspect and maintain the user-context memory store",
	Long: `memctl operates directly on the context memory database: listing what
the store knows, recording or forgetting facts, running retention
maintenance, and rendering insights.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(relevantCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(statsCmd)
}

// app bundles the wired components a command runs against.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	backend *storage.SQLiteBackend
	store   *contextmem.Store
	service *contextmem.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	backend, err := storage.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	store, err := contextmem.NewStore(backend, logger, contextmem.WithParams(cfg.Params()))
	if err != nil {
		return nil, err
	}
	service, err := contextmem.NewService(store, logger)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, backend: backend, store: store, service: service}, nil
}

func (a *app) close() {
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("closing backend", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func printItems(items []*contextmem.ContextItem) {
	if len(items) == 0 {
		fmt.Println("(nothing stored)")
		return
	}
	for _, it := range items {
		fmt.Printf("%-10s  %-28s  conf=%.2f  reinf=%d  %s\n",
			it.Category, it.Key, it.Confidence, it.ReinforcementCount, it.Value)
	}
}

var recallCmd = &cobra.Command{
	Use:   "recall [topic]",
	Short: "List stored context, optionally filtered by category or topic",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		var category *contextmem.Category
		if raw, _ := cmd.Flags().GetString("category"); raw != "" {
			c, err := contextmem.ParseCategory(raw)
			if err != nil {
				return err
			}
			category = &c
		}

		topic := ""
		if len(args) == 1 {
			topic = args[0]
		}

		items, err := a.service.Recall(cmd.Context(), category, topic)
		if err != nil {
			return err
		}
		printItems(items)
		return nil
	},
}

var rememberCmd = &cobra.Command{
	Use:   "remember <category> <value>",
	Short: "Record an explicit fact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		category, err := contextmem.ParseCategory(args[0])
		if err != nil {
			return err
		}
		key, _ := cmd.Flags().GetString("key")

		item, err := a.service.Remember(cmd.Context(), category, key, args[1], contextmem.SourceExplicit)
		if err != nil {
			return err
		}
		fmt.Printf("Remembered %s/%s (confidence %.2f)\n", item.Category, item.Key, item.Confidence)
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget a key, a whole category, or everything",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		req := contextmem.ForgetRequest{}
		req.Key, _ = cmd.Flags().GetString("key")
		req.All, _ = cmd.Flags().GetBool("all")
		if raw, _ := cmd.Flags().GetString("category"); raw != "" {
			c, err := contextmem.ParseCategory(raw)
			if err != nil {
				return err
			}
			req.Category = &c
		}
		confirmed, _ := cmd.Flags().GetBool("yes")

		removed, err := a.service.Forget(cmd.Context(), req, confirmed)
		if err != nil {
			return err
		}
		fmt.Printf("Forgot %d item(s)\n", removed)
		return nil
	},
}

var relevantCmd = &cobra.Command{
	Use:   "relevant [query]",
	Short: "Rank context for a query and print it prompt-formatted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		maxItems, _ := cmd.Flags().GetInt("max")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")

		items, err := a.service.RelevantContext(cmd.Context(), query, maxItems, minConf)
		if err != nil {
			return err
		}
		fmt.Print(contextmem.FormatForPrompt(items))
		return nil
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Render synthesized insights and the prompt summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		agg, err := insights.NewAggregator(a.store, a.logger)
		if err != nil {
			return err
		}

		for _, in := range agg.GenerateInsights(cmd.Context()) {
			fmt.Printf("[%.2f] %s\n", in.Confidence, in.Text)
		}
		if summary := agg.PromptSummary(cmd.Context()); summary != "" {
			fmt.Println()
			fmt.Println(summary)
		}
		return nil
	},
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run retention maintenance",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		maintainer, err := contextmem.NewMaintainer(a.store, a.logger)
		if err != nil {
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var report contextmem.MaintenanceReport
		if light, _ := cmd.Flags().GetBool("light"); light {
			report, err = maintainer.RunLightMaintenance(ctx)
		} else {
			report, err = maintainer.RunFullMaintenance(ctx)
		}
		if err != nil {
			return err
		}

		if report.Skipped {
			fmt.Println("Store under capacity, nothing to do")
			return nil
		}
		fmt.Printf("Removed %d item(s): %d stale, %d weak patterns, %d over capacity (%s)\n",
			report.Total(), report.StalePruned, report.WeakPatternsPruned,
			report.CapacityEvicted, report.Duration.Round(time.Millisecond))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print item count against capacity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		count, err := a.store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d / %d items\n", count, a.store.Params().Capacity)
		return nil
	},
}

func init() {
	recallCmd.Flags().String("category", "", "restrict to one category")
	rememberCmd.Flags().String("key", "", "item key (derived from value when empty)")
	forgetCmd.Flags().String("key", "", "forget a single key")
	forgetCmd.Flags().String("category", "", "forget a whole category")
	forgetCmd.Flags().Bool("all", false, "forget everything")
	forgetCmd.Flags().Bool("yes", false, "confirm category-wide or store-wide forgets")
	relevantCmd.Flags().Int("max", 5, "maximum items to return")
	relevantCmd.Flags().Float64("min-confidence", 0.3, "minimum effective confidence")
	maintainCmd.Flags().Bool("light", false, "run the cheap over-capacity guard only")
	maintainCmd.Flags().Duration("timeout", time.Minute, "time box for the maintenance run")
}
