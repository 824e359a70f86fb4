package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ringline/alertcall/internal/model"
)

// Config is the bridge's whole configuration, loaded once at startup and
// passed into the constructors. Nothing mutates it afterwards.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Ntfy    NtfyConfig    `mapstructure:"ntfy"`
	AMI     AMIConfig     `mapstructure:"ami"`
	Call    CallConfig    `mapstructure:"call"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Fanout  FanoutConfig  `mapstructure:"fanout"`
	History HistoryConfig `mapstructure:"history"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type NtfyConfig struct {
	URL   string `mapstructure:"url"`
	Topic string `mapstructure:"topic"`
	// Auth is "user:pass" for HTTP basic authentication, empty for none.
	Auth string `mapstructure:"auth"`
}

type AMIConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Secret   string `mapstructure:"secret"`
}

type CallConfig struct {
	Extension   string `mapstructure:"extension"`
	CallerID    string `mapstructure:"caller_id"`
	ChannelTech string `mapstructure:"channel_tech"`
	// DialString defaults to "{channel_tech}/{extension}" when empty.
	DialString string `mapstructure:"dial_string"`
	Context    string `mapstructure:"context"`
	Priority   int    `mapstructure:"priority"`
	TimeoutMs  int    `mapstructure:"timeout_ms"`
}

// Timeout returns the ring timeout as a duration.
func (c CallConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type BridgeConfig struct {
	DispatchThreshold int `mapstructure:"dispatch_threshold"`
}

// WebhookConfig enables JSON forwarding of dispatched alerts when URL is set.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// FanoutConfig enables NATS publishing of alerts when URL is set.
type FanoutConfig struct {
	URL string `mapstructure:"url"`
}

// HistoryConfig enables the SQLite dispatch journal when Path is set.
type HistoryConfig struct {
	Path            string        `mapstructure:"path"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads the configuration file at path (or ./config/config.yaml when
// path is empty, tolerating its absence) and applies environment
// overrides using the bridge's historical variable names (NTFY_URL,
// AMI_HOST, EXTENSION, ...).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Call.DialString == "" {
		cfg.Call.DialString = cfg.Call.ChannelTech + "/" + cfg.Call.Extension
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("ntfy.url", "https://ntfy.sh")
	v.SetDefault("ntfy.topic", "alerts")
	v.SetDefault("ntfy.auth", "")

	v.SetDefault("ami.host", "pbx")
	v.SetDefault("ami.port", 5038)
	v.SetDefault("ami.username", "ntfybridge")
	v.SetDefault("ami.secret", "secret")

	v.SetDefault("call.extension", "1000")
	v.SetDefault("call.caller_id", "NTFY Bridge <7777>")
	v.SetDefault("call.channel_tech", "PJSIP")
	v.SetDefault("call.dial_string", "")
	v.SetDefault("call.context", "from-internal")
	v.SetDefault("call.priority", 1)
	v.SetDefault("call.timeout_ms", 30000)

	v.SetDefault("bridge.dispatch_threshold", model.PriorityDispatch)

	v.SetDefault("webhook.url", "")
	v.SetDefault("fanout.url", "")

	v.SetDefault("history.path", "")
	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("history.cleanup_schedule", "0 3 * * *")

	v.SetDefault("monitor.interval", time.Minute)
}

// bindEnv keeps the environment surface of earlier deployments working.
func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"log.level":         "LOG_LEVEL",
		"ntfy.url":          "NTFY_URL",
		"ntfy.topic":        "NTFY_TOPIC",
		"ntfy.auth":         "NTFY_AUTH",
		"ami.host":          "AMI_HOST",
		"ami.port":          "AMI_PORT",
		"ami.username":      "AMI_USER",
		"ami.secret":        "AMI_PASS",
		"call.extension":    "EXTENSION",
		"call.caller_id":    "CALLERID",
		"call.channel_tech": "CHANNEL_TECH",
		"call.dial_string":  "DIAL_STRING",
		"call.context":      "CONTEXT",
		"call.priority":     "PRIORITY",
		"call.timeout_ms":   "TIMEOUT_MS",
		"webhook.url":       "WEBHOOK_URL",
		"fanout.url":        "NATS_URL",
	}
	for key, env := range bindings {
		v.BindEnv(key, env)
	}
}
