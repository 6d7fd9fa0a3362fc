// Package main is the CLI entry point for foldsort — a rule-driven file
// organizer. Point it at a folder and a rules file and it moves, copies,
// renames, deletes, or runs a command against every file that matches a
// rule, in priority order, first match wins.
//
// Architecture overview:
//
//	foldsort sort --source ~/Downloads --rules photos,docs
//	    |-- internal/rules   (load + validate the ruleset)
//	    |-- internal/sorter  (walk the tree, match, dispatch to the executor)
//	    |-- internal/executor(move/copy/rename/delete/execute one file)
//	    |-- internal/runregistry (track the run, mediate cancellation)
//	    |-- internal/audit   (hash-chained log of every outcome)
//
// CLI commands (cobra):
//
//	foldsort sort [--source P] [--rules ID,...] [--dry-run]
//	foldsort add FILE
//	foldsort remove ID
//	foldsort toggle ID
//	foldsort list
//	foldsort export ID PATH
//	foldsort validate
//	foldsort template
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/foldsort/foldsort/internal/audit"
	"github.com/foldsort/foldsort/internal/config"
	"github.com/foldsort/foldsort/internal/dashboard"
	"github.com/foldsort/foldsort/internal/rules"
	"github.com/foldsort/foldsort/internal/runregistry"
	"github.com/foldsort/foldsort/internal/sorter"
	"github.com/foldsort/foldsort/internal/template"
)

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

// configPath is the global flag for foldsort's config.yaml. Defaults to
// the platform config dir, honoring FOLDSORT_CONFIG_DIR.
var (
	configPath string
	stateDir   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "foldsort",
	Short:   "foldsort — rule-driven file organizer",
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	Long: `foldsort sorts a folder's files by evaluating a set of rules against
each file's facts (name, extension, size, dates, image metadata) and
running the first matching rule's actions: move, copy, rename, delete,
or run an arbitrary command.`,
}

func init() {
	defaultPath := defaultConfigPath()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "Path to foldsort's config.yaml")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Override where run history, the audit log, and run reports are written (defaults to config.yaml's logs_folder)")

	rootCmd.AddCommand(sortCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(templateCmd)
}

// defaultConfigPath resolves config.yaml under foldsort's discovered
// config directory, falling back to the current directory if discovery
// fails (e.g. no writable HOME).
func defaultConfigPath() string {
	dir, err := config.DiscoverConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "config.yaml")
}

// loadConfig loads config.yaml. config.Load already returns sane
// defaults when the file doesn't exist, so first-run requires no
// special handling here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if stateDir != "" {
		cfg.LogsFolder = stateDir
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*rules.Store, error) {
	store, err := rules.NewStore(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("loading rules %s: %w", cfg.RulesFile, err)
	}
	return store, nil
}

// ============================================================================
// foldsort sort — run the sorter over a source folder
// ============================================================================

var (
	sortSource  string
	sortRuleIDs []string
	sortDryRun  bool
	sortWatch   bool
	sortAddr    string
)

var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Sort a folder's files according to the loaded ruleset",
	Long: `Walks --source (or the configured source_folder), matches every file
against the loaded ruleset in priority order, and runs the first
matching rule's actions. Pass --dry-run to preview outcomes without
touching the filesystem, and --rules to restrict which rule ids are
considered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSort(cmd.Context())
	},
}

func init() {
	sortCmd.Flags().StringVar(&sortSource, "source", "", "Folder to sort (defaults to config's source_folder)")
	sortCmd.Flags().StringSliceVar(&sortRuleIDs, "rules", nil, "Restrict to these rule ids (comma-separated)")
	sortCmd.Flags().BoolVar(&sortDryRun, "dry-run", false, "Preview outcomes without touching the filesystem")
	sortCmd.Flags().BoolVar(&sortWatch, "watch", false, "Serve a live progress dashboard while sorting")
	sortCmd.Flags().StringVar(&sortAddr, "dashboard-addr", "127.0.0.1:4621", "Address for --watch's dashboard server")
}

func runSort(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	source := sortSource
	if source == "" {
		source = cfg.SourceFolder
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	ruleset := store.Snapshot()

	reg, err := runregistry.NewRegistry(filepath.Join(cfg.LogsFolder, "runs.yaml"))
	if err != nil {
		return fmt.Errorf("opening run registry: %w", err)
	}

	auditLog, err := audit.New(filepath.Join(cfg.LogsFolder, "audit"))
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLog.Close()

	runID := fmt.Sprintf("run-%d", len(reg.List())+1)
	cancel := reg.Start(runID, source, sortDryRun)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var observer sorter.Observer = sorter.NopObserver{}
	if sortWatch {
		dash := dashboard.New(dashboard.Options{AuditLog: auditLog, Registry: reg})
		observer = dash
		srv := startDashboardServer(sortAddr, dash)
		defer srv.Close()
		fmt.Printf("[foldsort] dashboard listening on http://%s/dashboard\n", sortAddr)

		watcher, err := config.NewWatcher(cfg.RulesFile, config.WatchTargets{
			OnRulesChange: func() {
				if err := store.Reload(); err != nil {
					fmt.Fprintf(os.Stderr, "[foldsort] rules reload failed: %v\n", err)
				}
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "[foldsort] rules file watcher unavailable: %v\n", err)
		} else {
			defer watcher.Close()
		}
	}

	go func() {
		<-ctx.Done()
		reg.Cancel(runID)
	}()

	opts := sorter.Options{
		RuleIDs:  sortRuleIDs,
		DryRun:   sortDryRun,
		Observer: observer,
		Cancel:   cancel,
	}

	report, sortErr := sorter.Sort(ctx, source, ruleset, opts)

	if report != nil {
		logReportToAudit(auditLog, runID, report)
		if err := reg.Finish(runID, report.ScannedN, report.MatchedN, report.Cancelled, sortErr); err != nil {
			fmt.Fprintf(os.Stderr, "[foldsort] failed to record run outcome: %v\n", err)
		}
	}

	if sortErr != nil {
		return fmt.Errorf("sort failed: %w", sortErr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// logReportToAudit appends one audit entry per file outcome (or a skip
// entry for files that matched no rule).
func logReportToAudit(auditLog *audit.AuditLog, runID string, report *sorter.Report) {
	for _, f := range report.Files {
		if len(f.Outcomes) == 0 {
			auditLog.LogSkip(runID, f.Path)
			continue
		}
		for _, o := range f.Outcomes {
			message := ""
			if o.Error != nil {
				message = o.Error.Error()
			}
			auditLog.LogAction(runID, f.RuleID, f.Path, string(o.Kind), o.Target, o.Success, message)
		}
	}
	auditLog.LogLifecycle(runID, "finish", map[string]any{
		"scanned_n": report.ScannedN,
		"matched_n": report.MatchedN,
		"cancelled": report.Cancelled,
	})
}

// startDashboardServer starts the dashboard HTTP server in the
// background and returns it so the caller can close it when the sort
// finishes.
func startDashboardServer(addr string, dash *dashboard.Dashboard) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/dashboard", dash)
	mux.Handle("/dashboard/ws", dash.WebSocketHandler())
	mux.Handle("/api/", dash.APIHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "[foldsort] dashboard server error: %v\n", err)
		}
	}()
	return srv
}

// ============================================================================
// foldsort add FILE — add a rule defined in a standalone YAML file
// ============================================================================

var addCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Add a rule defined in a YAML file to the ruleset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		var r rules.Rule
		if err := yaml.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("parsing rule %s: %w", args[0], err)
		}

		if err := store.Add(r); err != nil {
			return fmt.Errorf("adding rule: %w", err)
		}

		fmt.Printf("[foldsort] rule %q added\n", r.ID)
		return nil
	},
}

// ============================================================================
// foldsort remove ID
// ============================================================================

var removeCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a rule by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return fmt.Errorf("removing rule %s: %w", args[0], err)
		}
		fmt.Printf("[foldsort] rule %q removed\n", args[0])
		return nil
	},
}

// ============================================================================
// foldsort toggle ID
// ============================================================================

var toggleCmd = &cobra.Command{
	Use:   "toggle ID",
	Short: "Flip a rule's enabled state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		if err := store.Toggle(args[0]); err != nil {
			return fmt.Errorf("toggling rule %s: %w", args[0], err)
		}
		fmt.Printf("[foldsort] rule %q toggled\n", args[0])
		return nil
	},
}

// ============================================================================
// foldsort list — list every rule in declaration order
// ============================================================================

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every rule in declaration order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}

		all := store.List()
		if len(all) == 0 {
			fmt.Println("No rules configured.")
			return nil
		}

		fmt.Printf("%-20s %-8s %-8s %-10s %s\n", "ID", "ENABLED", "PRIORITY", "ACTIONS", "NAME")
		fmt.Printf("%-20s %-8s %-8s %-10s %s\n", "--", "-------", "--------", "-------", "----")
		for _, r := range all {
			kinds := make([]string, len(r.Then))
			for i, a := range r.Then {
				kinds[i] = string(a.Kind)
			}
			fmt.Printf("%-20s %-8t %-8d %-10s %s\n", r.ID, r.Enabled, r.Priority, strings.Join(kinds, ","), r.Name)
		}
		return nil
	},
}

// ============================================================================
// foldsort export ID PATH
// ============================================================================

var exportCmd = &cobra.Command{
	Use:   "export ID PATH",
	Short: "Write a single rule to a standalone YAML file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		if err := store.Export(args[0], args[1]); err != nil {
			return fmt.Errorf("exporting rule %s: %w", args[0], err)
		}
		fmt.Printf("[foldsort] rule %q exported to %s\n", args[0], args[1])
		return nil
	},
}

// ============================================================================
// foldsort validate — validate the loaded ruleset without sorting
// ============================================================================

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configured rules file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// NewStore validates on load; a validation failure surfaces here.
		store, err := openStore(cfg)
		if err != nil {
			fmt.Printf("[foldsort] INVALID: %v\n", err)
			return err
		}
		fmt.Printf("[foldsort] %s is valid (%d rules)\n", cfg.RulesFile, len(store.List()))
		return nil
	},
}

// ============================================================================
// foldsort template — print the placeholder vocabulary and validate one
// ============================================================================

var templateArg string

var templateCmd = &cobra.Command{
	Use:   "template [TEMPLATE]",
	Short: "Print the placeholder vocabulary, or validate a single template string",
	Long: `With no argument, prints the variables and filters foldsort templates
understand (e.g. {{filename}}, {{modified_year}}, {{name|upper}}).
With an argument, validates that string as a rename/move/copy/execute
template and reports any error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			printTemplateHelp()
			return nil
		}
		if err := template.Validate(args[0]); err != nil {
			fmt.Printf("[foldsort] INVALID: %v\n", err)
			return err
		}
		fmt.Println("[foldsort] template is valid")
		return nil
	},
}

func printTemplateHelp() {
	fmt.Println(`Variables:
  {{filename}}       full file name, e.g. "photo.JPG"
  {{name}}           file name without extension, e.g. "photo"
  {{extension}}      lowercase extension without the dot, e.g. "jpg" (alias: {{ext}})
  {{size}}           file size in bytes
  {{year}}, {{month}}, {{day}}              EXIF capture date if present, else modified time
  {{created_year}}, {{created_month}}, {{created_day}}
  {{modified_year}}, {{modified_month}}, {{modified_day}}
  {{metadata.KEY}}   an EXIF metadata field by key, e.g. {{metadata.Model}}

Filters:
  {{name|upper}}                uppercase
  {{name|lower}}                lowercase
  {{modified_year|date:%Y-%m}}  reformat the variable's date source with a
                                 strftime layout (%Y %m %d %H %M %S %B %A)`)
}
