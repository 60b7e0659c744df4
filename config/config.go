// Package config provides the command line and config file surface of
// the gatekeeper daemon.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/mtc-jordan/gatekeeper"
	"github.com/mtc-jordan/gatekeeper/gate"
	"github.com/mtc-jordan/gatekeeper/metrics"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	Address         string `yaml:"address"`
	UpstreamURL     string `yaml:"upstream_url"`
	SupportListener string `yaml:"support_listener"`

	// rate limiting:
	AuthenticatedLimit   int       `yaml:"authenticated_limit"`
	UnauthenticatedLimit int       `yaml:"unauthenticated_limit"`
	LoginLimit           int       `yaml:"login_limit"`
	WindowSeconds        int       `yaml:"window_seconds"`
	CleanIntervalSeconds int       `yaml:"clean_interval_seconds"`
	LoginPaths           *listFlag `yaml:"login_paths"`

	// blocking:
	MaxFailedAttempts    int    `yaml:"max_failed_attempts"`
	FailureResetSeconds  int    `yaml:"failure_reset_seconds"`
	BlockDurationSeconds int    `yaml:"block_duration_seconds"`
	AuthFailureHeader    string `yaml:"auth_failure_header"`

	// logging, metrics:
	ApplicationLogPrefix      string    `yaml:"application_log_prefix"`
	ApplicationLogLevelString string    `yaml:"application_log_level"`
	ApplicationLogLevel       log.Level `yaml:"-"`
	MetricsFlavour            string    `yaml:"metrics_flavour"`
	MetricsPrefix             string    `yaml:"metrics_prefix"`
	DebugGcMetrics            bool      `yaml:"debug_gc_metrics"`
	RuntimeMetrics            bool      `yaml:"runtime_metrics"`
}

func NewConfig() *Config {
	cfg := new(Config)
	cfg.LoginPaths = commaListFlag()

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.StringVar(&cfg.Address, "address", ":9090", "network address that the gatekeeper should listen on")
	flag.StringVar(&cfg.UpstreamURL, "upstream-url", "", "URL of the upstream service that admitted requests are forwarded to")
	flag.StringVar(&cfg.SupportListener, "support-listener", ":9911", "network address used for exposing the /metrics endpoint. An empty value disables the support endpoint.")

	// rate limiting:
	flag.IntVar(&cfg.AuthenticatedLimit, "authenticated-limit", 100, "requests per window admitted for clients with a bearer token")
	flag.IntVar(&cfg.UnauthenticatedLimit, "unauthenticated-limit", 20, "requests per window admitted for clients without credentials")
	flag.IntVar(&cfg.LoginLimit, "login-limit", 5, "requests per window admitted for login endpoints")
	flag.IntVar(&cfg.WindowSeconds, "window-seconds", 60, "length of the sliding window in seconds, shared by all tiers")
	flag.IntVar(&cfg.CleanIntervalSeconds, "clean-interval-seconds", 0, "interval of recycling idle rate limit counters in seconds, defaults to ten windows")
	flag.Var(cfg.LoginPaths, "login-paths", "comma separated path substrings classified as login endpoints, defaults to /auth/token,/auth/login")

	// blocking:
	flag.IntVar(&cfg.MaxFailedAttempts, "max-failed-attempts", 10, "failed authentication attempts within the reset window that get a client address blocked")
	flag.IntVar(&cfg.FailureResetSeconds, "failure-reset-seconds", 3600, "rolling window of failure accumulation in seconds")
	flag.IntVar(&cfg.BlockDurationSeconds, "block-duration-seconds", 3600, "how long a client address stays blocked, in seconds")
	flag.StringVar(&cfg.AuthFailureHeader, "auth-failure-header", gate.DefaultAuthFailureHeader, "response header the upstream uses to signal a failed credential check, stripped before the response reaches the client")

	// logging, metrics:
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "[APP]", "prefix for application log entries")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", "INFO", "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.StringVar(&cfg.MetricsFlavour, "metrics-flavour", "codahale", "metrics backend format, possible values: codahale, prometheus")
	flag.StringVar(&cfg.MetricsPrefix, "metrics-prefix", "gatekeeper.", "common prefix for the keys of the collected metrics")
	flag.BoolVar(&cfg.DebugGcMetrics, "debug-gc-metrics", false, "enables reporting of the Go garbage collector statistics")
	flag.BoolVar(&cfg.RuntimeMetrics, "runtime-metrics", true, "enables reporting of the Go runtime statistics")

	cfg.Flags = flag
	return cfg
}

func validate(c *Config) error {
	_, err := log.ParseLevel(c.ApplicationLogLevelString)
	if err != nil {
		return err
	}

	if c.WindowSeconds <= 0 {
		return fmt.Errorf("invalid window_seconds: %d", c.WindowSeconds)
	}

	if c.MaxFailedAttempts <= 0 {
		return fmt.Errorf("invalid max_failed_attempts: %d", c.MaxFailedAttempts)
	}

	if c.FailureResetSeconds <= 0 {
		return fmt.Errorf("invalid failure_reset_seconds: %d", c.FailureResetSeconds)
	}

	if c.BlockDurationSeconds <= 0 {
		return fmt.Errorf("invalid block_duration_seconds: %d", c.BlockDurationSeconds)
	}

	if c.UpstreamURL == "" {
		return fmt.Errorf("missing upstream-url")
	}

	if u, err := url.Parse(c.UpstreamURL); err != nil {
		return fmt.Errorf("invalid upstream-url: %w", err)
	} else if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream-url: %s", c.UpstreamURL)
	}

	if metrics.ParseKind(c.MetricsFlavour) == metrics.UnknownKind {
		return fmt.Errorf("invalid metrics-flavour: %s", c.MetricsFlavour)
	}

	return nil
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		if err := yaml.Unmarshal(yamlFile, c); err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		// command line flags win over the config file
		if err := c.Flags.Parse(args); err != nil {
			return err
		}
	}

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	return nil
}

func (c *Config) ToOptions() gatekeeper.Options {
	return gatekeeper.Options{
		Address:         c.Address,
		UpstreamURL:     c.UpstreamURL,
		SupportListener: c.SupportListener,

		AuthenticatedLimit:   c.AuthenticatedLimit,
		UnauthenticatedLimit: c.UnauthenticatedLimit,
		LoginLimit:           c.LoginLimit,
		TimeWindow:           time.Duration(c.WindowSeconds) * time.Second,
		CleanInterval:        time.Duration(c.CleanIntervalSeconds) * time.Second,
		LoginPaths:           c.LoginPaths.values,

		MaxFailedAttempts: c.MaxFailedAttempts,
		FailureReset:      time.Duration(c.FailureResetSeconds) * time.Second,
		BlockDuration:     time.Duration(c.BlockDurationSeconds) * time.Second,
		AuthFailureHeader: c.AuthFailureHeader,

		MetricsFlavour:       c.MetricsFlavour,
		MetricsPrefix:        c.MetricsPrefix,
		EnableDebugGcMetrics: c.DebugGcMetrics,
		EnableRuntimeMetrics: c.RuntimeMetrics,

		ApplicationLogPrefix: c.ApplicationLogPrefix,
		ApplicationLogLevel:  c.ApplicationLogLevel,
	}
}
