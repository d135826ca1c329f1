package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"imgdash/internal/cli"
	"imgdash/internal/config"
	"imgdash/internal/logging"
	"imgdash/internal/otel"
	"imgdash/internal/version"
	"imgdash/internal/watcher"
)

const envPrefix = "IMGDASH"

type Config struct {
	Root                   string
	Host                   string
	Port                   int
	Debounce               time.Duration
	MaxWatches             int
	AllowedOrigins         []string
	SelectRate             float64
	LogLevel               logging.Level
	Verbose                bool
	Quiet                  bool
	OTelEndpoint           string
	OTelResourceAttributes map[string]string
	ConfigPath             string
	UnknownConfigKeys      []string
	ShowVersion            bool
	Sources                map[string]cli.Source
}

type configDefaults struct {
	Root       string
	Host       string
	Port       int
	Debounce   time.Duration
	MaxWatches int
	SelectRate float64
}

// layeredKeys are the flags that may also come from the environment or the
// config file, in the order they are logged.
var layeredKeys = []string{
	"root",
	"host",
	"port",
	"debounce",
	"max-watches",
	"allowed-origins",
	"select-rate",
	"log-level",
	"verbose",
	"quiet",
	"otel-endpoint",
	"otel-resource-attributes",
}

type flagValues struct {
	Root                   string
	Host                   string
	Port                   int
	Debounce               millisDuration
	MaxWatches             int
	AllowedOrigins         listValue
	SelectRate             float64
	LogLevel               string
	Verbose                bool
	Quiet                  bool
	OTelEndpoint           string
	OTelResourceAttributes string
	ConfigPath             string
	HelpVersion            *cli.HelpVersionFlags
}

type helpOption struct {
	Name string
	Desc string
}

func defaultConfigValues() configDefaults {
	return configDefaults{
		Root:       "files",
		Host:       "127.0.0.1",
		Port:       5000,
		Debounce:   watcher.DefaultWindow,
		MaxWatches: 4096,
		SelectRate: 10,
	}
}

// loadConfig resolves settings from defaults, the optional TOML file, the
// environment and the command line, in increasing precedence.
func loadConfig(args []string, getenv func(string) string) (Config, error) {
	defaults := defaultConfigValues()
	fs, flags := newFlagSet(defaults)
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if flags.HelpVersion.Help {
		return Config{}, flag.ErrHelp
	}

	env := cli.EnvLayer(envPrefix, getenv)
	configPath := strings.TrimSpace(flags.ConfigPath)
	if configPath == "" {
		configPath, _, _ = env.Lookup("config")
	}

	layers := []cli.Layer{env}
	var unknown []string
	if configPath != "" {
		file, err := config.LoadFile(configPath)
		if err != nil {
			return Config{}, err
		}
		unknown = file.Unknown(layeredKeys)
		layers = append(layers, cli.Layer{Source: cli.SourceFile, Lookup: file.Lookup})
	}

	sources, err := cli.ApplyLayers(fs, layeredKeys, layers...)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Root:                   strings.TrimSpace(flags.Root),
		Host:                   strings.TrimSpace(flags.Host),
		Port:                   flags.Port,
		Debounce:               time.Duration(flags.Debounce),
		MaxWatches:             flags.MaxWatches,
		AllowedOrigins:         []string(flags.AllowedOrigins),
		SelectRate:             flags.SelectRate,
		Verbose:                flags.Verbose,
		Quiet:                  flags.Quiet,
		OTelEndpoint:           strings.TrimSpace(flags.OTelEndpoint),
		OTelResourceAttributes: otel.ParseResourceAttributes(flags.OTelResourceAttributes),
		ConfigPath:             configPath,
		UnknownConfigKeys:      unknown,
		ShowVersion:            flags.HelpVersion.Version,
		Sources:                sources,
	}
	if err := resolveLogLevel(&cfg, flags.LogLevel); err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newFlagSet(defaults configDefaults) (*flag.FlagSet, *flagValues) {
	fs := flag.NewFlagSet("imgdash", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := &flagValues{Debounce: millisDuration(defaults.Debounce)}
	fs.StringVar(&flags.Root, "root", defaults.Root, "Directory holding one subdirectory per project")
	fs.StringVar(&flags.Host, "host", defaults.Host, "HTTP listen host")
	fs.IntVar(&flags.Port, "port", defaults.Port, "HTTP listen port")
	fs.Var(&flags.Debounce, "debounce", "Quiet period before an update is emitted")
	fs.IntVar(&flags.MaxWatches, "max-watches", defaults.MaxWatches, "Max watched directories per project")
	fs.Var(&flags.AllowedOrigins, "allowed-origins", "Comma-separated websocket origins")
	fs.Float64Var(&flags.SelectRate, "select-rate", defaults.SelectRate, "Project selections per second (0 disables the limit)")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Minimum log level")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.Quiet, "quiet", false, "Reduce logging to warnings")
	fs.StringVar(&flags.OTelEndpoint, "otel-endpoint", "", "OTLP/HTTP trace endpoint")
	fs.StringVar(&flags.OTelResourceAttributes, "otel-resource-attributes", "", "Extra trace resource attributes (key=value,...)")
	fs.StringVar(&flags.ConfigPath, "config", "", "TOML config file")
	flags.HelpVersion = cli.AddHelpVersionFlags(fs, "Show help", "Print version and exit")
	fs.Usage = func() {
		printHelp(fs.Output(), defaults)
	}
	return fs, flags
}

// resolveLogLevel applies --log-level when given, otherwise --verbose and
// --quiet, with verbose taking precedence.
func resolveLogLevel(cfg *Config, raw string) error {
	cfg.LogLevel = logging.LevelInfo
	if strings.TrimSpace(raw) != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			return fmt.Errorf("invalid log-level %q: want debug, info, warning or error", raw)
		}
		cfg.LogLevel = level
		return nil
	}
	if cfg.Verbose {
		cfg.LogLevel = logging.LevelDebug
	} else if cfg.Quiet {
		cfg.LogLevel = logging.LevelWarning
	}
	return nil
}

func validateConfig(cfg Config) error {
	var problems []error
	if cfg.Root == "" {
		problems = append(problems, errors.New("invalid root: value cannot be empty"))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		problems = append(problems, fmt.Errorf("invalid port %d: must be between 0 and 65535", cfg.Port))
	}
	if cfg.Debounce <= 0 {
		problems = append(problems, fmt.Errorf("invalid debounce %s: must be > 0", cfg.Debounce))
	}
	if cfg.MaxWatches <= 0 {
		problems = append(problems, fmt.Errorf("invalid max-watches %d: must be > 0", cfg.MaxWatches))
	}
	if cfg.SelectRate < 0 {
		problems = append(problems, fmt.Errorf("invalid select-rate %g: must be >= 0", cfg.SelectRate))
	}
	return errors.Join(problems...)
}

// millisDuration parses Go durations and also bare integers as milliseconds,
// which is how TOML files usually spell them.
type millisDuration time.Duration

func (d *millisDuration) String() string {
	return time.Duration(*d).String()
}

func (d *millisDuration) Set(value string) error {
	value = strings.TrimSpace(value)
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
		*d = millisDuration(time.Duration(millis) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = millisDuration(parsed)
	return nil
}

type listValue []string

func (l *listValue) String() string {
	return strings.Join(*l, ",")
}

func (l *listValue) Set(value string) error {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	*l = items
	return nil
}

func printHelp(out io.Writer, defaults configDefaults) {
	fmt.Fprintln(out, "Usage: imgdash [options]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Image dashboard with live project updates")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	writeOptionGroup(out, "Server", []helpOption{
		{
			Name: "--root DIR",
			Desc: fmt.Sprintf("Project root directory (env: IMGDASH_ROOT, default: %s)", defaults.Root),
		},
		{
			Name: "--host HOST",
			Desc: fmt.Sprintf("HTTP listen host (env: IMGDASH_HOST, default: %s)", defaults.Host),
		},
		{
			Name: "--port PORT",
			Desc: fmt.Sprintf("HTTP listen port (env: IMGDASH_PORT, default: %d)", defaults.Port),
		},
		{
			Name: "--allowed-origins LIST",
			Desc: "Extra websocket origins (env: IMGDASH_ALLOWED_ORIGINS, default: same host)",
		},
		{
			Name: "--select-rate N",
			Desc: fmt.Sprintf("Project selections per second (env: IMGDASH_SELECT_RATE, default: %g)", defaults.SelectRate),
		},
	})

	writeOptionGroup(out, "Watching", []helpOption{
		{
			Name: "--debounce DURATION",
			Desc: fmt.Sprintf("Quiet period before an update (env: IMGDASH_DEBOUNCE, default: %s)", defaults.Debounce),
		},
		{
			Name: "--max-watches N",
			Desc: fmt.Sprintf("Max watched directories per project (env: IMGDASH_MAX_WATCHES, default: %d)", defaults.MaxWatches),
		},
	})

	writeOptionGroup(out, "Logging", []helpOption{
		{Name: "--log-level LEVEL", Desc: "debug, info, warning or error (env: IMGDASH_LOG_LEVEL)"},
		{Name: "--verbose", Desc: "Enable verbose logging (env: IMGDASH_VERBOSE)"},
		{Name: "--quiet", Desc: "Reduce logging to warnings (env: IMGDASH_QUIET)"},
		{Name: "--otel-endpoint HOST:PORT", Desc: "Export traces over OTLP/HTTP (env: IMGDASH_OTEL_ENDPOINT)"},
		{Name: "--otel-resource-attributes KV", Desc: "Extra trace attributes (env: IMGDASH_OTEL_RESOURCE_ATTRIBUTES)"},
	})

	writeOptionGroup(out, "General", []helpOption{
		{Name: "--config PATH", Desc: "TOML config file (env: IMGDASH_CONFIG)"},
		{Name: "--help", Desc: "Show this help"},
		{Name: "--version", Desc: "Print version and exit"},
	})
}

func writeOptionGroup(out io.Writer, title string, options []helpOption) {
	if len(options) == 0 {
		return
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, title+":")
	for _, option := range options {
		fmt.Fprintf(out, "  %-30s %s\n", option.Name, option.Desc)
	}
}

// logStartupConfig records every resolved setting with the layer it came from.
func logStartupConfig(logger *logging.Logger, cfg Config) {
	if logger == nil {
		return
	}
	values := map[string]string{
		"root":                     cfg.Root,
		"host":                     cfg.Host,
		"port":                     strconv.Itoa(cfg.Port),
		"debounce":                 cfg.Debounce.String(),
		"max-watches":              strconv.Itoa(cfg.MaxWatches),
		"allowed-origins":          strings.Join(cfg.AllowedOrigins, ","),
		"select-rate":              strconv.FormatFloat(cfg.SelectRate, 'g', -1, 64),
		"log-level":                string(cfg.LogLevel),
		"verbose":                  strconv.FormatBool(cfg.Verbose),
		"quiet":                    strconv.FormatBool(cfg.Quiet),
		"otel-endpoint":            cfg.OTelEndpoint,
		"otel-resource-attributes": formatAttributes(cfg.OTelResourceAttributes),
	}
	fields := make(map[string]string, len(layeredKeys)+1)
	for _, key := range layeredKeys {
		source := cfg.Sources[key]
		if source == "" {
			source = cli.SourceDefault
		}
		fields[key] = fmt.Sprintf("%s (%s)", values[key], source)
	}
	if cfg.ConfigPath != "" {
		fields["config"] = cfg.ConfigPath
	}
	logger.Debug("startup config", fields)
}

func formatAttributes(attributes map[string]string) string {
	if len(attributes) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(attributes))
	for key, value := range attributes {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func logVersionInfo(logger *logging.Logger) {
	if logger == nil {
		return
	}
	info := version.GetVersionInfo()
	fields := map[string]string{
		"version": info.Version,
	}
	if info.GitCommit != "" {
		fields["git_commit"] = info.GitCommit
	}
	logger.Info(info.String(), fields)
}
