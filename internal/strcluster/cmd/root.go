package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"strcluster/internal/config"
	"strcluster/internal/engine"
	"strcluster/internal/logging"
	strlog "strcluster/internal/strcluster/log"
)

var logger *logging.LoggerCloser

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "Directory for logs and profiles")
	rootCmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/strcluster/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Print the clusters without TUI")
	rootCmd.Flags().BoolP("json", "j", false, "Print the clusters as JSON")
	rootCmd.Flags().String("format", formatTree, "Output format with --no-tui: tree, table or json")
	rootCmd.Flags().BoolP("open", "s", false, "Open the string cluster as soon as the binary is loaded")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
	addFilterFlags(rootCmd)

	rootCmd.AddCommand(runCmd)
}

// addFilterFlags registers the flags overriding the configured toggles.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("query", "Q", "", "Initial filter text")
	cmd.Flags().BoolP("regex", "r", false, "Treat the query as a regular expression")
	cmd.Flags().Bool("hide", true, "Hide functions without a match")
	cmd.Flags().Bool("collapse", false, "Collapse the 0_sub bucket")
	cmd.Flags().Int("min-len", 0, "Minimum string length (default from config)")
	cmd.Flags().Bool("unterminated", false, "Also accept strings not followed by NUL")
	cmd.Flags().Bool("no-demangle", false, "Show raw symbol names")
}

// loadConfig reads the config file and applies the flags set on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return loadConfigFrom(cmd, false)
}

// loadConfigFrom is loadConfig that can start from the defaults when an
// explicit config file does not exist yet.
func loadConfigFrom(cmd *cobra.Command, allowMissing bool) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if allowMissing && errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if dir, _ := flags.GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if flags.Lookup("regex") != nil {
		if flags.Changed("regex") {
			cfg.UseRegex, _ = flags.GetBool("regex")
		}
		if flags.Changed("hide") {
			cfg.HideNonMatching, _ = flags.GetBool("hide")
		}
		if flags.Changed("collapse") {
			cfg.CollapseNoFunc, _ = flags.GetBool("collapse")
		}
		if flags.Changed("min-len") {
			cfg.MinStringLength, _ = flags.GetInt("min-len")
		}
		if flags.Changed("unterminated") {
			cfg.Unterminated, _ = flags.GetBool("unterminated")
		}
		if noDemangle, _ := flags.GetBool("no-demangle"); noDemangle {
			cfg.Demangle = false
		}
	}
	return cfg, cfg.Validate()
}

func dataDir(cfg config.Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return pathpkg.Join(dir, "strcluster")
	}
	return ""
}

// setupLogging points charm log and slog at the same destination. The TUI
// owns the terminal, so interactive runs log to a file in the data dir.
func setupLogging(cfg config.Config, toFile bool) {
	if toFile {
		os.Setenv("STRCLUSTER_LOG_TO_FILE", "1")
	}
	if cfg.Debug {
		os.Setenv("STRCLUSTER_LOG_LEVEL", "debug")
	}
	logger = logging.NewLogger(dataDir(cfg))
	log.SetDefault(logger.Logger)
	strlog.Setup(logger.Path(), cfg.Debug)
	slog.Debug("logging ready", "file", logger.Path(), "debug", logging.IsDebug())
}

// filterFromFlags reads the query of a run.
func filterFromFlags(cmd *cobra.Command, cfg config.Config) filterFlags {
	q, _ := cmd.Flags().GetString("query")
	return filterFlags{query: q, opts: cfg.Options()}
}

// startProfiles starts the profiles requested on cmd and returns the
// function stopping them.
func startProfiles(cmd *cobra.Command) (func(), error) {
	stop := func() {}
	if cpuprofile, _ := cmd.Flags().GetString("cpuprofile"); cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return stop, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return stop, fmt.Errorf("could not start CPU profile: %w", err)
		}
		stop = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}
	if memprofile, _ := cmd.Flags().GetString("memprofile"); memprofile != "" {
		cpu := stop
		stop = func() {
			cpu()
			f, err := os.Create(memprofile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
				return
			}
			defer f.Close()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
			}
		}
	}
	return stop, nil
}

// resolveFile returns the absolute path of the binary argument.
func resolveFile(file string) (string, error) {
	absPath, err := pathpkg.Abs(file)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", file)
		}
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	return absPath, nil
}

// runOutput loads path and prints it in format without a TUI.
func runOutput(w io.Writer, path, format string, cfg config.Config, f filterFlags) error {
	e, err := engine.Load(path, cfg.EngineOptions())
	if err != nil {
		return err
	}
	defer e.Close()
	return writeFormat(w, e, format, f)
}

var rootCmd = &cobra.Command{
	Use:   "strcluster [file]",
	Short: "Browse the strings of an ARM64 binary grouped by function",
	Long: `StringCluster groups the strings of an ARM64 ELF binary by the functions
referencing them and shows them as a filterable tree.`,
	Example: `
# Browse a library interactively
strcluster libgame.so

# Open the string panel right away with a query
strcluster -s -Q password libgame.so

# Print the functions using format strings
strcluster -n -Q '%s' libgame.so
  `,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := ResolveCwd(cmd)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		format, _ := cmd.Flags().GetString("format")
		if jsonOutput {
			noTUI, format = true, formatJSON
		}
		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
		}
		if noTUI {
			os.Setenv("STRCLUSTER_NO_COLOR", "1")
		}
		setupLogging(cfg, !noTUI)

		stop, err := startProfiles(cmd)
		if err != nil {
			return err
		}
		defer stop()

		absPath, err := resolveFile(args[0])
		if err != nil {
			return err
		}

		f := filterFromFlags(cmd, cfg)
		if noTUI {
			return runOutput(cmd.OutOrStdout(), absPath, format, cfg, f)
		}

		open, _ := cmd.Flags().GetBool("open")
		program := tea.NewProgram(
			NewModel(cmd.Context(), absPath, cfg, modelOptions{Open: open, Query: f.query}),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	},
}

func Execute() {
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			noTUI = true
			break
		}
	}
	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		if err := os.Chdir(cwd); err != nil {
			return "", fmt.Errorf("failed to change directory: %w", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return cwd, nil
}
