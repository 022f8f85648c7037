// Package settings holds the timing and network tunables of the tool.
//
// Values come from struct defaults, are optionally overridden by a YAML file
// and finally by REMOTE_* environment variables.
package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
	"github.com/rglonek/envconfig"
	"gopkg.in/yaml.v3"
)

const FileName = "settings.yaml"

type Settings struct {
	SSH struct {
		Port              int           `yaml:"port" default:"22" envconfig:"REMOTE_SSH_PORT"`
		ConnectTimeout    time.Duration `yaml:"connectTimeout" default:"10s" envconfig:"REMOTE_SSH_CONNECT_TIMEOUT"`
		OperationTimeout  time.Duration `yaml:"operationTimeout" default:"30s" envconfig:"REMOTE_SSH_OPERATION_TIMEOUT"`
		KeepAliveInterval int           `yaml:"keepAliveInterval" default:"60"`
		KeepAliveCountMax int           `yaml:"keepAliveCountMax" default:"3"`
		ReadyWait         time.Duration `yaml:"readyWait" default:"10s" envconfig:"REMOTE_SSH_READY_WAIT"`
	} `yaml:"ssh"`
	Startup struct {
		MaxAttempts int           `yaml:"maxAttempts" default:"12" envconfig:"REMOTE_STARTUP_ATTEMPTS"`
		Interval    time.Duration `yaml:"interval" default:"5s" envconfig:"REMOTE_STARTUP_INTERVAL"`
		// used by connect when it has to start a stopped instance first
		StartRetries    int           `yaml:"startRetries" default:"5"`
		StartRetrySleep time.Duration `yaml:"startRetrySleep" default:"10s"`
		SettleTime      time.Duration `yaml:"settleTime" default:"20s"`
	} `yaml:"startup"`
	TypeChange struct {
		MaxAttempts int           `yaml:"maxAttempts" default:"5"`
		Interval    time.Duration `yaml:"interval" default:"5s"`
	} `yaml:"typeChange"`
	Exec struct {
		Timeout         time.Duration `yaml:"timeout" default:"30s" envconfig:"REMOTE_EXEC_TIMEOUT"`
		SSMPollInterval time.Duration `yaml:"ssmPollInterval" default:"2s"`
	} `yaml:"exec"`
	Scheduler struct {
		RoleRetries    int           `yaml:"roleRetries" default:"4"`
		RoleRetrySleep time.Duration `yaml:"roleRetrySleep" default:"5s"`
	} `yaml:"scheduler"`
	Pricing struct {
		CacheTTL time.Duration `yaml:"cacheTTL" default:"24h" envconfig:"REMOTE_PRICE_CACHE_TTL"`
	} `yaml:"pricing"`
	PublicIP struct {
		URL     string        `yaml:"url" default:"https://checkip.amazonaws.com" envconfig:"REMOTE_PUBLIC_IP_URL"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"publicIP"`
}

func MakeReader(setDefaults bool, configYaml io.Reader, parseEnv bool) (*Settings, error) {
	s := new(Settings)
	if setDefaults {
		if err := defaults.Set(s); err != nil {
			return nil, fmt.Errorf("could not set defaults: %s", err)
		}
	}
	if configYaml != nil {
		err := yaml.NewDecoder(configYaml).Decode(s)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to unmarshal settings: %s", err)
		}
	}
	if parseEnv {
		err := envconfig.Process("REMOTE_", s)
		if err != nil {
			return nil, fmt.Errorf("could not process environment variables: %s", err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads settings from file if it exists. A missing file is not an error.
func Load(file string) (*Settings, error) {
	var r io.Reader
	if file != "" {
		f, err := os.Open(file)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("could not open settings file: %s", err)
		}
		if err == nil {
			defer f.Close()
			r = f
		}
	}
	return MakeReader(true, r, true)
}

func (s *Settings) Validate() error {
	if s.SSH.Port < 1 || s.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 1 and 65535, got %d", s.SSH.Port)
	}
	if s.Startup.MaxAttempts < 1 || s.TypeChange.MaxAttempts < 1 || s.Startup.StartRetries < 1 || s.Scheduler.RoleRetries < 1 {
		return errors.New("attempt counts must be at least 1")
	}
	if s.Exec.Timeout <= 0 {
		return errors.New("exec.timeout must be positive")
	}
	return nil
}

func (s *Settings) StartupPoll() poll.Config {
	return poll.Config{MaxAttempts: s.Startup.MaxAttempts, Interval: s.Startup.Interval}
}

func (s *Settings) StartRetryPoll() poll.Config {
	return poll.Config{MaxAttempts: s.Startup.StartRetries, Interval: s.Startup.StartRetrySleep}
}

func (s *Settings) TypeChangePoll() poll.Config {
	return poll.Config{MaxAttempts: s.TypeChange.MaxAttempts, Interval: s.TypeChange.Interval}
}

func (s *Settings) RolePropagationPoll() poll.Config {
	return poll.Config{MaxAttempts: s.Scheduler.RoleRetries, Interval: s.Scheduler.RoleRetrySleep}
}

// SSMPoll covers an exec timeout: polls every SSMPollInterval, at most 60 times.
func (s *Settings) SSMPoll(timeout time.Duration) poll.Config {
	if timeout <= 0 {
		timeout = s.Exec.Timeout
	}
	cfg := poll.FromWait(timeout, s.Exec.SSMPollInterval)
	if cfg.MaxAttempts > 60 {
		cfg.MaxAttempts = 60
	}
	return cfg
}
