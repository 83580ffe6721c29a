package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"golang-bank-reconciliation/internal/api"
	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/logger"
)

// EnvPrefix prefixes every environment variable read by the CLI, so that
// matching.auto_match_threshold is RECONCILER_MATCHING_AUTO_MATCH_THRESHOLD.
const EnvPrefix = "RECONCILER"

// Setting keys
const (
	KeyDatabase     = "db"
	KeyVerbose      = "verbose"
	KeyOutputFormat = "output.format"
	KeyOutputFile   = "output.file"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"

	KeyImportProfile     = "import.profile"
	KeyImportMappingFile = "import.mapping_file"
	KeyImportLenient     = "import.lenient"

	KeyLedgerMappingFile    = "ledger.mapping_file"
	KeyLedgerDefaultAccount = "ledger.default_account"

	KeyMatchingProfile     = "matching.profile"
	KeyAutoMatchThreshold  = "matching.auto_match_threshold"
	KeyExactMatchThreshold = "matching.exact_match_threshold"
	KeyCandidateFloor      = "matching.candidate_floor"
	KeyCandidateWindowDays = "matching.candidate_window_days"
	KeyDateToleranceDays   = "matching.date_tolerance_days"
	KeyAmountTolerance     = "matching.amount_tolerance"
	KeyMaxCandidates       = "matching.max_candidates"
	KeyWorkers             = "matching.workers"

	KeyStaleAfterDays       = "outstanding.stale_after_days"
	KeyMaxDescriptionLength = "preprocessing.max_description_length"
	KeyReportMaxItems       = "report.max_list_items"
	KeyReportMatched        = "report.include_matched"

	KeyServerAddr           = "server.addr"
	KeyServerAllowedOrigins = "server.allowed_origins"
	KeyServerMode           = "server.mode"
	KeyServerMaxUpload      = "server.max_upload_bytes"
	KeyServerShutdownGrace  = "server.shutdown_grace"
)

// SetDefaults registers the default value of every setting on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabase, "reconciler.db")
	v.SetDefault(KeyOutputFormat, string(reporter.FormatConsole))

	logCfg := logger.DefaultConfig()
	v.SetDefault(KeyLogLevel, string(logCfg.Level))
	v.SetDefault(KeyLogFormat, string(logCfg.Format))

	v.SetDefault(KeyImportProfile, "standard")
	v.SetDefault(KeyImportLenient, false)

	v.SetDefault(KeyMatchingProfile, "default")
	v.SetDefault(KeyStaleAfterDays, reconciler.DefaultConfig().StaleAfterDays)

	serverCfg := api.DefaultConfig()
	v.SetDefault(KeyServerAddr, serverCfg.Addr)
	v.SetDefault(KeyServerAllowedOrigins, serverCfg.AllowedOrigins)
	v.SetDefault(KeyServerMode, serverCfg.Mode)
	v.SetDefault(KeyServerMaxUpload, serverCfg.MaxUploadBytes)
	v.SetDefault(KeyServerShutdownGrace, serverCfg.ShutdownGrace)
}

// BindEnv makes every setting readable from RECONCILER_ environment variables
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// CreateLoggerConfig creates the logger configuration. Verbose forces debug level.
func CreateLoggerConfig(v *viper.Viper) (*logger.Config, error) {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.Level(strings.ToLower(v.GetString(KeyLogLevel)))
	cfg.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))
	if v.GetBool(KeyVerbose) {
		cfg.Level = logger.DebugLevel
	}
	if file := v.GetString(KeyLogFile); file != "" {
		cfg.Output = logger.FileOutput
		cfg.File = file
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateImportConfig resolves the statement column mapping: a YAML mapping
// file wins over a named built-in profile.
func CreateImportConfig(v *viper.Viper, fs afero.Fs) (*parsers.ImportConfig, error) {
	if path := v.GetString(KeyImportMappingFile); path != "" {
		return parsers.LoadImportConfigFile(fs, path)
	}

	name := v.GetString(KeyImportProfile)
	profile := parsers.GetImportProfile(name)
	if profile == nil {
		return nil, fmt.Errorf("unknown import profile %q, available: %s",
			name, strings.Join(parsers.ImportProfileNames(), ", "))
	}
	return profile, nil
}

// CreateLedgerConfig creates the ledger export mapping. A YAML mapping file
// overrides the keys it sets.
func CreateLedgerConfig(v *viper.Viper, fs afero.Fs) (*parsers.LedgerParserConfig, error) {
	cfg := parsers.DefaultLedgerParserConfig()

	if path := v.GetString(KeyLedgerMappingFile); path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("read ledger mapping: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode ledger mapping %s: %w", path, err)
		}
	}
	if account := v.GetString(KeyLedgerDefaultAccount); account != "" {
		cfg.DefaultAccountID = account
	}
	return cfg, nil
}

// CreateMatchingConfig starts from the named matching profile and applies
// every threshold set explicitly
func CreateMatchingConfig(v *viper.Viper) (*matcher.MatchingConfig, error) {
	name := v.GetString(KeyMatchingProfile)
	cfg := matcher.GetMatchingProfile(name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown matching profile %q, available: default, strict, relaxed", name)
	}

	ints := map[string]*int{
		KeyAutoMatchThreshold:  &cfg.AutoMatchThreshold,
		KeyExactMatchThreshold: &cfg.ExactMatchThreshold,
		KeyCandidateFloor:      &cfg.CandidateFloor,
		KeyCandidateWindowDays: &cfg.CandidateWindowDays,
		KeyDateToleranceDays:   &cfg.DateToleranceDays,
		KeyMaxCandidates:       &cfg.MaxCandidates,
		KeyWorkers:             &cfg.Workers,
	}
	for key, field := range ints {
		if v.IsSet(key) {
			*field = v.GetInt(key)
		}
	}

	if v.IsSet(KeyAmountTolerance) {
		tolerance, err := decimal.NewFromString(v.GetString(KeyAmountTolerance))
		if err != nil {
			return nil, fmt.Errorf("invalid amount tolerance %q: %w", v.GetString(KeyAmountTolerance), err)
		}
		cfg.AmountTolerance = tolerance
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateReconcilerConfig assembles the service configuration
func CreateReconcilerConfig(v *viper.Viper, fs afero.Fs) (*reconciler.Config, error) {
	cfg := reconciler.DefaultConfig()

	var err error
	if cfg.Import, err = CreateImportConfig(v, fs); err != nil {
		return nil, err
	}
	if cfg.Matching, err = CreateMatchingConfig(v); err != nil {
		return nil, err
	}

	cfg.Lenient = v.GetBool(KeyImportLenient)
	cfg.StaleAfterDays = v.GetInt(KeyStaleAfterDays)
	cfg.Preprocessing.MaxDescriptionLength = v.GetInt(KeyMaxDescriptionLength)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateReportConfig creates a report configuration for the configured output format
func CreateReportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(strings.ToLower(v.GetString(KeyOutputFormat)))
	cfg.StaleAfterDays = v.GetInt(KeyStaleAfterDays)
	cfg.MaxListItems = v.GetInt(KeyReportMaxItems)

	switch cfg.Format {
	case reporter.FormatConsole:
		cfg.IncludeMatchedItems = v.GetBool(KeyReportMatched)
	case reporter.FormatJSON:
		cfg.IncludeMatchedItems = true
	case reporter.FormatCSV:
		// CSV is for item data
		cfg.IncludeMatchedItems = true
		cfg.IncludeScoreBreakdown = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateServerConfig creates the HTTP API configuration
func CreateServerConfig(v *viper.Viper) api.Config {
	cfg := api.DefaultConfig()
	cfg.Addr = v.GetString(KeyServerAddr)
	cfg.AllowedOrigins = v.GetStringSlice(KeyServerAllowedOrigins)
	cfg.Mode = v.GetString(KeyServerMode)
	cfg.MaxUploadBytes = v.GetInt64(KeyServerMaxUpload)
	if grace := v.GetDuration(KeyServerShutdownGrace); grace > 0 {
		cfg.ShutdownGrace = grace
	}
	return cfg
}
