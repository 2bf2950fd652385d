package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is read from an optional YAML file; flags given on the command line
// win over the file.
type Config struct {
	Listen         string        `yaml:"listen"`
	DataDir        string        `yaml:"data_dir"`
	Store          string        `yaml:"store"`
	Cols           int           `yaml:"cols"`
	Rows           int           `yaml:"rows"`
	APIURL         string        `yaml:"api_url,omitempty"`
	CORSOrigin     string        `yaml:"cors_origin,omitempty"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// terminal client
	Connect string `yaml:"connect,omitempty"`
	LogFile string `yaml:"log_file,omitempty"`
}

// the session reaper ticks at half the ttl
const minSessionTTL = time.Second

func defaultConfig() Config {
	return Config{
		Listen:         ":7878",
		DataDir:        "data",
		Store:          "sqlite",
		Cols:           20,
		Rows:           20,
		SessionTTL:     30 * time.Minute,
		RequestTimeout: 10 * time.Second,
	}
}

func bindFlags(fs *flag.FlagSet, cfg *Config, configPath *string) {
	fs.StringVar(configPath, "config", *configPath, "path to a YAML config file")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "ip and port to listen on seperated by colon, ip might be empty")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "directory for the grid store and step history")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "grid store: sqlite, bolt or memory")
	fs.IntVar(&cfg.Cols, "cols", cfg.Cols, "number of grid columns")
	fs.IntVar(&cfg.Rows, "rows", cfg.Rows, "number of grid rows")
	fs.StringVar(&cfg.APIURL, "api", cfg.APIURL, "grid server base url used by the browser sessions (default is the in-process game)")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "value for Access-Control-Allow-Origin on the grid API")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "idle time after which a browser session is dropped")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "timeout for requests to the grid server")
	fs.StringVar(&cfg.Connect, "connect", cfg.Connect, "run the terminal client against the grid server at this url")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "terminal client: write logs to this file")
}

// loadConfig parses args twice: once to find the config file, then again on
// top of the file's values so explicit flags override it.
func loadConfig(args []string, stderr io.Writer) (Config, error) {
	var configPath string
	scratch := defaultConfig()
	probe := flag.NewFlagSet("toggle-grid", flag.ContinueOnError)
	probe.SetOutput(io.Discard)
	bindFlags(probe, &scratch, &configPath)
	if err := probe.Parse(args); err != nil {
		// reparse below to print usage to stderr
		configPath = ""
	}

	cfg := defaultConfig()
	if configPath != "" {
		if err := readConfigFile(configPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	fs := flag.NewFlagSet("toggle-grid", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg, &configPath)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func readConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.Cols <= 0 || c.Rows <= 0 {
		return fmt.Errorf("invalid grid size %dx%d", c.Cols, c.Rows)
	}
	switch c.Store {
	case "sqlite", "bolt", "memory":
	default:
		return fmt.Errorf("unknown store %q (want sqlite, bolt or memory)", c.Store)
	}
	if c.SessionTTL < minSessionTTL {
		return fmt.Errorf("session ttl must be at least %s, got %s", minSessionTTL, c.SessionTTL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.RequestTimeout)
	}
	return nil
}
