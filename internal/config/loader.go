package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VULOAD_VUS.
const EnvPrefix = "VULOAD"

// envKeys are the top-level settings that may come from the environment.
var envKeys = []string{
	"target", "vus", "duration", "sleep", "timeout", "graceful_stop",
	"iterations", "rps", "user_agent", "no_connection_reuse",
	"insecure_skip_tls_verify", "thresholds", "checks", "json_output",
	"summary_export", "history_file", "progress", "dashboard", "log_errors",
	"log_level", "log_format",
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// Loader resolves a Config from defaults, a config file, environment and flags,
// in that order of increasing precedence.
type Loader struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{LookupEnv: os.LookupEnv}
}

// Load parses args with a standalone flag set.
func (l *Loader) Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("vuload", pflag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	configureFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	return l.FromFlags(fs)
}

// FromFlags resolves a Config from an already parsed flag set that was
// prepared with RegisterFlags.
func (l *Loader) FromFlags(fs *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := fs.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	l.bindEnv(v)

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, v.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.Progress = ProgressMode(strings.ToLower(string(cfg.Progress)))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return cfg, nil
}

// bindEnv copies set VULOAD_* variables into v. Explicit Set is used instead of
// AutomaticEnv because AllSettings only reports keys viper already knows about.
func (l *Loader) bindEnv(v *viper.Viper) {
	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range envKeys {
		name := EnvPrefix + "_" + strings.ToUpper(key)
		if val, ok := lookup(name); ok {
			v.Set(key, val)
		}
	}
}

func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target", "url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, val := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = val
		}
	}

	for _, s := range []struct {
		keys []string
		dst  *string
	}{
		{[]string{"user_agent", "useragent", "user-agent"}, &cfg.UserAgent},
		{[]string{"summary_export", "summaryexport", "summary-export"}, &cfg.SummaryExport},
		{[]string{"history_file", "historyfile", "history-file"}, &cfg.HistoryFile},
		{[]string{"log_level", "loglevel", "log-level"}, &cfg.LogLevel},
		{[]string{"log_format", "logformat", "log-format"}, &cfg.LogFormat},
	} {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = strings.TrimSpace(val)
	}

	for _, s := range []struct {
		keys []string
		dst  *int
	}{
		{[]string{"vus"}, &cfg.VUs},
		{[]string{"iterations"}, &cfg.Iterations},
		{[]string{"rps"}, &cfg.RPS},
	} {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = val
	}

	for _, s := range []struct {
		keys []string
		dst  *time.Duration
	}{
		{[]string{"duration"}, &cfg.Duration},
		{[]string{"sleep"}, &cfg.Sleep},
		{[]string{"timeout"}, &cfg.Timeout},
		{[]string{"graceful_stop", "gracefulstop", "graceful-stop"}, &cfg.GracefulStop},
	} {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = val
	}

	for _, s := range []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"no_connection_reuse", "noconnectionreuse", "no-connection-reuse"}, &cfg.NoConnectionReuse},
		{[]string{"insecure_skip_tls_verify", "insecureskiptlsverify", "insecure-skip-tls-verify"}, &cfg.InsecureSkipTLSVerify},
		{[]string{"json_output", "jsonoutput", "json-output"}, &cfg.JSONOutput},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"log_errors", "logerrors", "log-errors"}, &cfg.LogErrors},
	} {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = val
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = ProgressMode(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "checks"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("checks: %w", err)
		}
		cfg.Checks = vals
	}

	if raw, ok := lookupSetting(settings, "stages"); ok {
		stages, err := parseStages(raw)
		if err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		cfg.Stages = stages
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseStages(value interface{}) ([]Stage, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		var stage Stage
		if raw, ok := lookupSetting(entry, "duration"); ok {
			if stage.Duration, err = asDuration(raw); err != nil {
				return nil, fmt.Errorf("index %d: duration: %w", idx, err)
			}
		}
		if raw, ok := lookupSetting(entry, "target"); ok {
			if stage.Target, err = asInt(raw); err != nil {
				return nil, fmt.Errorf("index %d: target: %w", idx, err)
			}
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	out := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		out.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		out.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		out.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if out.Insecure, err = asBool(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate", "sample-rate"); ok {
		if out.SampleRate, err = asFloat64(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		out.Propagate = &val
	}
	return out, nil
}
