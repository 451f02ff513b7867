package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 50 * 1024 * 1024 // 50MB
	DefaultFontName    = "Helvetica"
	DefaultFontSize    = 10.0
	DefaultDotEnv      = ".env"
	DefaultDBName      = "registry.db"

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "SUBSIDY_PDF"
)

// Config holds all configuration for the form filler
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Registry configuration
	TemplateDirectory string
	DatabasePath      string // sqlite file, ":memory:" or empty for <dir>/registry.db
	MappingsFile      string // optional seed file of templates

	// Drawing configuration
	FontName   string
	FontFiles  []string
	FontSize   float64
	LineHeight float64 // 0 means 1.5 × font size

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum template size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:              ModeStdio, // Default to stdio mode for MCP compatibility
		Host:              DefaultHost,
		Port:              DefaultPort,
		TemplateDirectory: filepath.Join(currentDir, "templates"),
		FontName:          DefaultFontName,
		FontSize:          DefaultFontSize,
		Version:           "1.0.0",
		ServerName:        "subsidy-form-filler",
		LogLevel:          DefaultLogLevel,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// LoadFromFlags reads .env, the environment and command line flags, in
// increasing order of precedence, and returns a validated configuration
func LoadFromFlags() (*Config, error) {
	if err := loadDotEnv(DefaultDotEnv); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	if cfg.TemplateDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.TemplateDirectory); err == nil {
			cfg.TemplateDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv exports the variables of a .env file that are not already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.TemplateDirectory)
	viper.SetDefault("db", cfg.DatabasePath)
	viper.SetDefault("mappings", cfg.MappingsFile)
	viper.SetDefault("font", cfg.FontName)
	viper.SetDefault("fontfiles", cfg.FontFiles)
	viper.SetDefault("fontsize", cfg.FontSize)
	viper.SetDefault("lineheight", cfg.LineHeight)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.TemplateDirectory, "Directory holding template PDFs and filled output")
	pflag.String("db", cfg.DatabasePath, "Registry sqlite database (default <dir>/registry.db, ':memory:' for none)")
	pflag.String("mappings", cfg.MappingsFile, "YAML or JSON file of templates to register at startup")
	pflag.String("font", cfg.FontName, "Font used for coordinate drawing")
	pflag.StringSlice("fontfiles", cfg.FontFiles, "TrueType fonts to install for coordinate drawing")
	pflag.Float64("fontsize", cfg.FontSize, "Default font size in points for coordinate drawing")
	pflag.Float64("lineheight", cfg.LineHeight, "Default line advance in points (0 = 1.5 × font size)")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum template file size in bytes")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range []string{
		"mode", "host", "port", "dir", "db", "mappings",
		"font", "fontfiles", "fontsize", "lineheight", "loglevel", "maxfilesize",
	} {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nSubsidy Form Filler - fills government subsidy application PDFs\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                            "+
			"# MCP over stdio, ./templates (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/srv/forms --mappings=forms.yaml     "+
			"# seed the registry at startup\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --port=8081                  # HTTP API\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --fontfiles=/fonts/ipaexg.ttf --font=IPAexGothic # Japanese text\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_MODE        Server mode\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_HOST        Server host\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_PORT        Server port\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_DIR         Template directory\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_DB          Registry database\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_MAPPINGS    Template seed file\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_FONT        Drawing font\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_FONTSIZE    Drawing font size\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_LOGLEVEL    Log level\n")
		fmt.Fprintf(os.Stderr, "  SUBSIDY_PDF_MAXFILESIZE Maximum file size\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.TemplateDirectory = viper.GetString("dir")
	cfg.DatabasePath = viper.GetString("db")
	cfg.MappingsFile = viper.GetString("mappings")
	cfg.FontName = viper.GetString("font")
	cfg.FontFiles = viper.GetStringSlice("fontfiles")
	cfg.FontSize = viper.GetFloat64("fontsize")
	cfg.LineHeight = viper.GetFloat64("lineheight")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
}

// Validate checks if the configuration is valid. A missing template
// directory is created.
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port only matters for server mode
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.TemplateDirectory == "" {
		return errors.New("template directory cannot be empty")
	}

	if _, err := os.Stat(c.TemplateDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.TemplateDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create template directory %s: %w", c.TemplateDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access template directory %s: %w", c.TemplateDirectory, err)
	}

	if c.MappingsFile != "" {
		if _, err := os.Stat(c.MappingsFile); err != nil {
			return fmt.Errorf("cannot read mappings file %s: %w", c.MappingsFile, err)
		}
	}

	for _, f := range c.FontFiles {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("cannot read font file %s: %w", f, err)
		}
	}

	if c.FontName == "" {
		return errors.New("font name cannot be empty")
	}

	if c.FontSize <= 0 {
		return errors.New("font size must be positive")
	}

	if c.LineHeight < 0 {
		return errors.New("line height cannot be negative")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// RegistryPath returns the sqlite database the registry opens
func (c *Config) RegistryPath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.TemplateDirectory, DefaultDBName)
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, TemplateDirectory: %s, DB: %s, Font: %s %.1fpt, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Host, c.Port, c.TemplateDirectory, c.RegistryPath(), c.FontName, c.FontSize, c.LogLevel, c.MaxFileSize)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
