// Package config provides functionality for managing configuration options
// for the application using command-line flags, a config file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Identity provider backends.
const (
	ProviderPostgres = "postgres"
	ProviderHTTP     = "http"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address" yaml:"address"`

	// DatabaseDSN holds the database connection string for the postgres provider.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`

	// Config is the path to the Config file.
	Config string `json:"-" yaml:"-"`

	// Provider selects the identity provider backend: "postgres" or "http".
	Provider          string   `json:"provider" yaml:"provider"`
	ProviderURL       string   `json:"provider_url" yaml:"provider_url"`
	ProviderSecretKey string   `json:"provider_secret_key" yaml:"provider_secret_key"`
	ProviderTimeout   Duration `json:"provider_timeout" yaml:"provider_timeout"`

	// SessionSecret signs and verifies bearer session tokens.
	SessionSecret string `json:"session_secret" yaml:"session_secret"`
	SessionIssuer string `json:"session_issuer" yaml:"session_issuer"`

	// DataKey is an age X25519 identity used to seal secret record fields.
	DataKey string `json:"data_key" yaml:"data_key"`

	TLSCert  string `json:"tls_cert" yaml:"tls_cert"`
	TLSKey   string `json:"tls_key" yaml:"tls_key"`
	ClientCA string `json:"client_ca" yaml:"client_ca"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Duration is a time.Duration that reads as "10s" from flags and config files.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// Set implements flag.Value.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.Set(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.Set(s)
}

// Load builds Options from args, the config file and getenv, in that order
// of precedence from lowest to highest.
func Load(args []string, getenv func(string) string) (*Options, error) {
	options := &Options{ProviderTimeout: Duration(10 * time.Second)}

	fs := flag.NewFlagSet("nopass", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	fs.StringVar(&options.Provider, "provider", ProviderPostgres, "identity provider: postgres | http")
	fs.StringVar(&options.ProviderURL, "provider-url", "", "identity provider base URL")
	fs.Var(&options.ProviderTimeout, "provider-timeout", "identity provider request timeout")
	fs.StringVar(&options.SessionIssuer, "issuer", "nopass", "expected session token issuer")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "server TLS certificate")
	fs.StringVar(&options.TLSKey, "tls-key", "", "server TLS key")
	fs.StringVar(&options.ClientCA, "client-ca", "", "CA used to verify client certificates")
	fs.StringVar(&options.LogLevel, "l", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if err := loadFile(options.Config, options); err != nil {
			return nil, err
		}
	}

	for env, dst := range map[string]*string{
		"SERVER_ADDRESS":      &options.Port,
		"DATABASE_DSN":        &options.DatabaseDSN,
		"PROVIDER":            &options.Provider,
		"PROVIDER_URL":        &options.ProviderURL,
		"PROVIDER_SECRET_KEY": &options.ProviderSecretKey,
		"SESSION_SECRET":      &options.SessionSecret,
		"DATA_KEY":            &options.DataKey,
		"LOG_LEVEL":           &options.LogLevel,
	} {
		if v := getenv(env); v != "" {
			*dst = v
		}
	}

	return options, nil
}

// loadFile reads path into options. A missing file is not an error.
func loadFile(path string, options *Options) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, options)
	default:
		err = json.Unmarshal(data, options)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

// Validate reports every inconsistent option at once.
func (o *Options) Validate() error {
	var err error
	switch o.Provider {
	case ProviderPostgres:
		if o.DatabaseDSN == "" {
			err = multierr.Append(err, errors.New("postgres provider requires a database DSN"))
		}
	case ProviderHTTP:
		if o.ProviderURL == "" {
			err = multierr.Append(err, errors.New("http provider requires a provider URL"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown provider %q", o.Provider))
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		err = multierr.Append(err, errors.New("tls cert and key must be set together"))
	}
	if o.ClientCA != "" && o.TLSCert == "" {
		err = multierr.Append(err, errors.New("client CA requires TLS"))
	}
	if o.ProviderTimeout <= 0 {
		err = multierr.Append(err, errors.New("provider timeout must be positive"))
	}
	return err
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It exits the process on invalid configuration.
func Parse() *Options {
	options, err := Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := options.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return options
}
