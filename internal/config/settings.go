package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// Settings is the runtime configuration. It is assembled from defaults, an
// optional YAML file, a .env file and the process environment, in that
// order of increasing precedence. Slack tokens fall back to the OS keyring.
type Settings struct {
	DataDir     string `yaml:"data_dir"`
	RosterFile  string `yaml:"roster_file"`
	LedgerFile  string `yaml:"ledger_file"`
	LedgerIndex string `yaml:"ledger_index"`
	AuthDir     string `yaml:"auth_dir"`

	BindAddr string `yaml:"bind_addr"`
	Port     string `yaml:"port"`

	ZoneOffset     int           `yaml:"tz_offset_hours"`
	ZoneLabel      string        `yaml:"tz_label"`
	ScanSchedule   string        `yaml:"scan_cron"`
	Pacing         time.Duration `yaml:"pacing"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Language       string        `yaml:"language"`
	Supervised     bool          `yaml:"supervised"`

	Slack SlackSettings `yaml:"slack"`
}

// SlackSettings holds the messaging platform credentials.
type SlackSettings struct {
	BotToken   string `yaml:"bot_token"`
	AppToken   string `yaml:"app_token"`
	InstallURL string `yaml:"install_url"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() *Settings {
	return &Settings{
		DataDir:        DefaultDataDir,
		RosterFile:     DefaultRosterFile,
		LedgerFile:     DefaultLedgerFile,
		LedgerIndex:    DefaultLedgerIndex,
		AuthDir:        DefaultAuthDir,
		Port:           DefaultPort,
		ZoneOffset:     DefaultZoneOffset,
		ZoneLabel:      DefaultZoneLabel,
		ScanSchedule:   DefaultScanSchedule,
		Pacing:         DefaultPacing,
		ReconnectDelay: DefaultReconnectDelay,
		Language:       DefaultLanguage,
	}
}

// LoadSettings assembles and validates the settings. path may be empty, in
// which case $BDAYBOT_CONFIG is consulted; no file at all is fine.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ErrConfigRead, err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("%s: %w", ErrConfigParse, err)
		}
	}

	loadDotEnv()

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	s.applyKeyring()
	s.resolvePaths()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadDotEnv reads .env from the working directory. It never overrides
// variables already set in the process.
func loadDotEnv() {
	if os.Getenv(EnvRailway) != "" {
		return
	}
	if err := godotenv.Load(EnvFileName); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug(MsgEnvMissing, LogKeyComponent, CompConfig)
			return
		}
		slog.Warn(ErrConfigParse, LogKeyComponent, CompConfig, LogKeyFile, EnvFileName, LogKeyError, err)
	}
}

func (s *Settings) applyEnv() error {
	str := map[string]*string{
		EnvDataDir:       &s.DataDir,
		EnvRosterFile:    &s.RosterFile,
		EnvLedgerFile:    &s.LedgerFile,
		EnvLedgerIndex:   &s.LedgerIndex,
		EnvAuthDir:       &s.AuthDir,
		EnvBindAddr:      &s.BindAddr,
		EnvPort:          &s.Port,
		EnvZoneLabel:     &s.ZoneLabel,
		EnvScanSchedule:  &s.ScanSchedule,
		EnvLanguage:      &s.Language,
		EnvSlackBotToken: &s.Slack.BotToken,
		EnvSlackAppToken: &s.Slack.AppToken,
		EnvSlackInstall:  &s.Slack.InstallURL,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvZoneOffset); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %s=%q", ErrZoneOffset, EnvZoneOffset, v)
		}
		s.ZoneOffset = n
	}

	durations := map[string]*time.Duration{
		EnvPacing:         &s.Pacing,
		EnvReconnectDelay: &s.ReconnectDelay,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %s=%q: %w", ErrDuration, key, v, err)
			}
			*dst = d
		}
	}

	if os.Getenv(EnvRailway) != "" {
		s.Supervised = true
	}
	if v := os.Getenv(EnvSupervised); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %s=%q: %w", ErrConfigInvalid, EnvSupervised, v, err)
		}
		s.Supervised = b
	}
	return nil
}

func (s *Settings) applyKeyring() {
	lookup := func(account string, dst *string) {
		if *dst != "" {
			return
		}
		v, err := keyring.Get(KeyringService, account)
		if err != nil {
			slog.Debug(MsgKeyringMiss,
				LogKeyComponent, CompConfig,
				LogKeyName, account,
				LogKeyError, err,
			)
			return
		}
		*dst = v
	}
	lookup(KeyringBotToken, &s.Slack.BotToken)
	lookup(KeyringAppToken, &s.Slack.AppToken)
}

func (s *Settings) resolvePaths() {
	for _, p := range []*string{&s.RosterFile, &s.LedgerFile, &s.LedgerIndex, &s.AuthDir} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(s.DataDir, *p)
		}
	}
}

// Validate rejects settings the bot cannot run with.
func (s *Settings) Validate() error {
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < MinPort || port > MaxPort {
		return fmt.Errorf("%s: %s", ErrConfigInvalid, ErrPortRange)
	}
	if s.ZoneOffset < MinZoneOffset || s.ZoneOffset > MaxZoneOffset {
		return fmt.Errorf("%s: %s", ErrConfigInvalid, ErrZoneOffset)
	}
	if s.Pacing <= 0 || s.ReconnectDelay <= 0 {
		return fmt.Errorf("%s: %s", ErrConfigInvalid, ErrDuration)
	}
	if !slices.Contains(SupportedLanguages, s.Language) {
		return fmt.Errorf("%s: %s %q", ErrConfigInvalid, ErrLanguage, s.Language)
	}
	return nil
}

// Location is the fixed civil timezone all day-keys are computed in.
func (s *Settings) Location() *time.Location {
	return time.FixedZone(s.ZoneLabel, s.ZoneOffset*3600)
}

// Addr is the dashboard listen address.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.BindAddr, s.Port)
}

// VCardPassword returns the HTTP password for a remote vCard source, from
// the environment or the keyring entry of user.
func VCardPassword(user string) string {
	if v := os.Getenv(EnvVCardPassword); v != "" {
		return v
	}
	if user == "" {
		return ""
	}
	v, err := keyring.Get(KeyringService, user)
	if err != nil {
		slog.Debug(MsgKeyringMiss, LogKeyComponent, CompConfig, LogKeyName, user)
		return ""
	}
	return v
}
