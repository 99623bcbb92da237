package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/rawdog-dev/rawdog/internal/bash"
	"github.com/rawdog-dev/rawdog/internal/config"
	"github.com/rawdog-dev/rawdog/internal/core"
	"github.com/rawdog-dev/rawdog/internal/envinfo"
	"github.com/rawdog-dev/rawdog/internal/history"
	"github.com/rawdog-dev/rawdog/internal/venv"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var BUILD_VERSION = "dev"

var helpFlag = flag.Bool("h", false, "display help information")
var versionFlag = flag.Bool("ver", false, "display build version")

const helpText = `rawdog - environment and configuration tooling for the rawdog assistant

USAGE:
  rawdog [options] <command> [args...]

COMMANDS:
  env [-save PROMPT]      Print the environment description sent with prompts
  config [KEY]            Print ~/.rawdog/config.yaml, or the value of one key
  python                  Print the script interpreter, creating the environment if needed
  install PKG...          Install packages into the script environment
  history [-n N] [-search TEXT]
                          Replay stored interaction examples
  history -delete ID      Delete one stored example
  history -reset          Delete all stored examples

OPTIONS:
`

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(BUILD_VERSION)
		return
	}

	if *helpFlag || flag.NArg() == 0 {
		fmt.Print(helpText)
		flag.PrintDefaults()
		return
	}

	paths, err := core.DefaultPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rawdog: %v\n", err)
		os.Exit(1)
	}

	logger, err := initializeLogger(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rawdog: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("-------- new rawdog session --------", zap.Any("args", os.Args))

	ctx, stop := interruptContext(context.Background())

	app := &app{
		paths:  paths,
		logger: logger,
		stdout: os.Stdout,
	}

	err = app.run(ctx, flag.Arg(0), flag.Args()[1:])
	stop()
	if err != nil {
		logger.Error("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		logger.Sync() //nolint:errcheck
		fmt.Fprintf(os.Stderr, "rawdog: %v\n", err)
		os.Exit(1)
	}
	logger.Sync() //nolint:errcheck
}

// interruptContext is cancelled on Ctrl+C or SIGTERM, so a running venv or pip
// child is stopped instead of being left behind in its own process group.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func initializeLogger(paths *core.Paths) (*zap.Logger, error) {
	logLevel := zap.NewAtomicLevelAt(zap.InfoLevel)
	if BUILD_VERSION == "dev" {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if level := os.Getenv("RAWDOG_LOG_LEVEL"); level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid RAWDOG_LOG_LEVEL: %w", err)
		}
		logLevel = parsed
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	loggerConfig.OutputPaths = []string{
		paths.LogFile,
	}

	return loggerConfig.Build()
}

type app struct {
	paths  *core.Paths
	logger *zap.Logger
	stdout io.Writer
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "env":
		return a.runEnv(args)
	case "config":
		return a.runConfig(args)
	case "python":
		return a.runPython(ctx)
	case "install":
		return a.runInstall(ctx, args)
	case "history":
		return a.runHistory(args)
	default:
		return fmt.Errorf("unknown command %q (run rawdog -h for usage)", command)
	}
}

func (a *app) runEnv(args []string) error {
	flags := flag.NewFlagSet("env", flag.ContinueOnError)
	save := flags.String("save", "", "store the snapshot as an interaction example for this prompt")
	if err := flags.Parse(args); err != nil {
		return err
	}

	snapshot, err := envinfo.Capture()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, snapshot.Render())

	if *save == "" {
		return nil
	}

	historyManager, err := history.NewHistoryManager(a.paths.ExamplesFile)
	if err != nil {
		return err
	}
	defer historyManager.Close()

	entry, err := historyManager.RecordExample(*save, snapshot)
	if err != nil {
		return fmt.Errorf("failed to save example: %w", err)
	}
	a.logger.Debug("saved interaction example", zap.Uint("id", entry.ID))
	return nil
}

func (a *app) runConfig(args []string) error {
	store := config.NewStore(a.paths.ConfigFile, a.logger)

	if len(args) > 0 {
		value, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if value == nil {
			fmt.Fprintln(a.stdout, "null")
			return nil
		}
		fmt.Fprintln(a.stdout, value)
		return nil
	}

	cfg, err := store.Load()
	if err != nil {
		return err
	}
	for _, key := range sortedKeys(cfg) {
		value, err := yaml.Marshal(cfg[key])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s: %s\n", key, strings.TrimSpace(string(value)))
	}
	return nil
}

func sortedKeys(cfg config.PersistedConfig) []string {
	keys := lo.Keys(cfg)
	// Recognized keys first, in file order, then anything the user added
	known := lo.Filter(config.Keys, func(key string, _ int) bool { return lo.Contains(keys, key) })
	extra := lo.Without(keys, config.Keys...)
	slices.Sort(extra)
	return append(known, extra...)
}

func (a *app) newProvisioner() (*venv.Provisioner, error) {
	return venv.NewProvisioner(venv.Options{
		Dir:    a.paths.VenvDir,
		Runner: bash.NewRunner(a.logger),
		Out:    a.stdout,
		Logger: a.logger,
	})
}

func (a *app) runPython(ctx context.Context) error {
	provisioner, err := a.newProvisioner()
	if err != nil {
		return err
	}
	python, err := provisioner.PythonPath(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, python)
	return nil
}

func (a *app) runInstall(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("install needs at least one package name")
	}
	provisioner, err := a.newProvisioner()
	if err != nil {
		return err
	}
	return provisioner.InstallPackages(ctx, args...)
}

func (a *app) runHistory(args []string) error {
	flags := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := flags.Int("n", 10, "number of examples to show")
	search := flags.String("search", "", "only show examples whose prompt contains this text")
	deleteID := flags.String("delete", "", "delete the example with this id")
	reset := flags.Bool("reset", false, "delete all stored examples")
	if err := flags.Parse(args); err != nil {
		return err
	}

	historyManager, err := history.NewHistoryManager(a.paths.ExamplesFile)
	if err != nil {
		return err
	}
	defer historyManager.Close()

	switch {
	case *reset:
		if err := historyManager.ResetExamples(); err != nil {
			return fmt.Errorf("failed to reset examples: %w", err)
		}
		a.logger.Info("reset interaction examples")
		return nil

	case *deleteID != "":
		id, err := strconv.ParseUint(*deleteID, 10, 0)
		if err != nil {
			return fmt.Errorf("invalid example id %q", *deleteID)
		}
		return historyManager.DeleteExample(uint(id))
	}

	var entries []history.HistoryEntry
	if *search != "" {
		entries, err = historyManager.SearchExamples(*search, *limit)
	} else {
		entries, err = historyManager.RecentExamples(*limit)
	}
	if err != nil {
		return err
	}

	for i, entry := range entries {
		snapshot, err := entry.Snapshot()
		if err != nil {
			return fmt.Errorf("example %d: %w", entry.ID, err)
		}
		if i > 0 {
			fmt.Fprintln(a.stdout)
		}
		fmt.Fprintf(a.stdout, "#%d %s\n%s\n", entry.ID, entry.Prompt, snapshot.Render())
	}
	return nil
}
