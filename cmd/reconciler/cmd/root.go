package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/events"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// memoryDatabase selects the in-memory store; state is lost on exit
const memoryDatabase = "memory"

// app holds what the commands of one invocation share. The store and
// service are opened on first use.
type app struct {
	fs        afero.Fs
	v         *viper.Viper
	openStore func(path string) (storage.Repository, error)

	cfgFile string
	logger  logger.Logger
	bus     *events.Bus
	store   storage.Repository
	service *reconciler.Service
}

func newApp(fs afero.Fs) *app {
	v := viper.New()
	v.SetFs(fs)
	config.SetDefaults(v)

	return &app{
		fs:        fs,
		v:         v,
		openStore: openStore,
		logger:    logger.GetGlobalLogger(),
		bus:       events.NewBus(),
	}
}

func openStore(path string) (storage.Repository, error) {
	if path == memoryDatabase {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewSQLiteStore(path)
}

// newRootCommand builds the command tree around a
func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank statement reconciliation tool",
		Long: `Reconciler imports bank statements, matches their lines against the
general ledger and runs month-end reconciliations of the account balance.

Statements can be CSV (with configurable column mappings), OFX or QIF.
State is kept in a SQLite database (--db).

Examples:
  reconciler ledger import ledger.csv --account checking
  reconciler import january.csv --account checking --profile us_bank
  reconciler automatch <statement-id>
  reconciler reconcile start <statement-id>
  reconciler reconcile run february.ofx --account checking
  reconciler serve`,
		Version:           versionString(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initConfig,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (optional)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("db", "reconciler.db", "SQLite database path, or \"memory\"")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.StringP("output-format", "f", "console", "output format: console, json, csv")
	flags.StringP("output-file", "o", "", "output file path (default: stdout)")

	for flag, key := range map[string]string{
		"verbose":       config.KeyVerbose,
		"db":            config.KeyDatabase,
		"log-level":     config.KeyLogLevel,
		"log-format":    config.KeyLogFormat,
		"output-format": config.KeyOutputFormat,
		"output-file":   config.KeyOutputFile,
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newImportCommand(a),
		newLedgerCommand(a),
		newStatementCommand(a),
		newStatusCommand(a),
		newAutoMatchCommand(a),
		newCandidatesCommand(a),
		newMatchCommand(a),
		newExcludeCommand(a),
		newUnmatchCommand(a),
		newReconcileCommand(a),
		newOutstandingCommand(a),
		newAuditCommand(a),
		newServeCommand(a),
	)
	return root
}

// Execute runs the CLI and returns the exit code
func Execute() int {
	a := newApp(afero.NewOsFs())
	defer a.close()

	err := newRootCommand(a).ExecuteContext(context.Background())
	return NewCLIErrorHandler(os.Stderr, a.v.GetBool(config.KeyVerbose)).HandleError(err)
}

// initConfig reads .env, the config file and RECONCILER_ variables, then
// configures logging
func (a *app) initConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, ".env", nil, err)
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", a.cfgFile, err).
				WithSuggestion("check the config file path and its YAML syntax")
		}
	}
	config.BindEnv(a.v)

	logCfg, err := config.CreateLoggerConfig(a.v)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err)
	}
	logCfg.Writer = cmd.ErrOrStderr()
	if logCfg.Output == logger.FileOutput {
		logCfg.Writer = nil
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err)
	}
	logger.SetGlobalLogger(log)
	a.logger = log.WithComponent("cli")

	if a.cfgFile != "" {
		a.logger.WithField("file", a.v.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// loadService opens the store and builds the service on first use
func (a *app) loadService() (*reconciler.Service, error) {
	if a.service != nil {
		return a.service, nil
	}

	cfg, err := config.CreateReconcilerConfig(a.v, a.fs)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}

	path := a.v.GetString(config.KeyDatabase)
	store, err := a.openStore(path)
	if err != nil {
		return nil, err
	}
	a.logger.WithField("db", path).Debug("Store opened")

	service, err := reconciler.NewService(store, cfg, a.bus)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.store, a.service = store, service
	return service, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("Closing store failed")
		}
		a.store, a.service = nil, nil
	}
}

// render writes a report value to --output-file or the command's stdout
func (a *app) render(cmd *cobra.Command, result interface{}) error {
	reportCfg, err := config.CreateReportConfig(a.v)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output", nil, err)
	}
	generator, err := reporter.NewSafeReportGenerator(reportCfg, a.fs, a.logger)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if path := a.v.GetString(config.KeyOutputFile); path != "" {
		file, err := a.fs.Create(path)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		defer file.Close()
		out = file
	}
	return generator.GenerateReportSafely(result, out)
}

// openInput opens a statement or ledger file
func (a *app) openInput(path string) (afero.File, error) {
	info, err := a.fs.Stat(path)
	switch {
	case os.IsNotExist(err):
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	case err != nil:
		return nil, errors.FileError(errors.CodeFileUnreadable, path, err)
	case info.IsDir():
		return nil, errors.FileError(errors.CodeFileUnreadable, path, nil).
			WithSuggestion("expected a file, got a directory")
	}

	file, err := a.fs.Open(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileUnreadable, path, err)
	}
	return file, nil
}

// override copies a changed local flag into a config key so it beats the
// config file and environment
func (a *app) override(cmd *cobra.Command, flag, key string) {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		a.v.Set(key, f.Value.String())
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func versionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
