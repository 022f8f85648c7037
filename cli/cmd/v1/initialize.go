package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/settings"
	"github.com/ivyleavedtoadflax/remote.py/pkg/tracking"
	flags "github.com/rglonek/go-flags"
	"github.com/rglonek/logger"
)

var ErrExecuteError = errors.New("execute error")

type ExecuteError struct {
	Err    error
	Logger *logger.Logger
}

func (e *ExecuteError) Error() string {
	return e.Err.Error()
}

func (e *ExecuteError) Unwrap() error {
	return ErrExecuteError
}

// Error logs err through the command logger and marks it as already reported.
func Error(err error, system *System, command []string, params interface{}, args []string) error {
	if err == nil {
		return nil
	}
	if system == nil || system.Logger == nil {
		return err
	}
	system.Logger.Error("%s", err.Error())
	return &ExecuteError{
		Err:    err,
		Logger: system.Logger,
	}
}

type System struct {
	// Logger is set as part of the Initialize function call, after-init functions can use it to log messages
	Logger *logger.Logger
	// all available commands, with preferences loaded from the config file
	Opts *Commands
	// flag parser
	Parser *flags.Parser
	// config file parser
	IniParser *flags.IniParser
	// tail arguments
	Tail []string
	// AWS access, set when Init.InitBackend is true
	Backend *backend.Backend
	// timing and network tunables
	Settings *settings.Settings
	// local usage tracking
	Tracking *tracking.Manager
	// directory holding config, settings, tracking and the price cache
	RootDir string
	// internal: log level
	logLevel logger.LogLevel
	// init options are saved here
	InitOptions *Init
	// init time
	InitTime time.Time
}

type Init struct {
	InitBackend        bool // initialize the AWS backend as part of startup
	RunExecuteFunction bool // only set to true if you are initializing the application for the first time
}

// newBackend is replaced in tests to inject fake AWS clients.
var newBackend = backend.New

// newLogger is replaced in tests to capture command output.
var newLogger = logger.NewLogger

func logLevelFromEnv() logger.LogLevel {
	switch strings.ToUpper(os.Getenv("REMOTE_LOG_LEVEL")) {
	case "DEBUG":
		return logger.DEBUG
	case "DETAIL":
		return logger.DETAIL
	case "ERROR":
		return logger.ERROR
	case "CRITICAL":
		return logger.CRITICAL
	case "WARNING":
		return logger.WARNING
	}
	return logger.INFO
}

func Initialize(i *Init, command []string, params interface{}, args ...string) (*System, error) {
	s := &System{
		Logger:      newLogger(),
		Opts:        &Commands{},
		Parser:      &flags.Parser{},
		IniParser:   &flags.IniParser{},
		InitOptions: i,
		InitTime:    time.Now(),
	}
	s.logLevel = logLevelFromEnv()
	s.Logger.SetLogLevel(s.logLevel)
	if command != nil {
		s.Logger = s.Logger.WithPrefix(fmt.Sprintf("[%s] ", strings.Join(command, ".")))
	}

	if len(args) == 0 {
		args = os.Args[1:]
	}

	s.Parser = flags.NewParser(s.Opts, flags.HelpFlag|flags.PassDoubleDash|flags.IniIncludeDefaults|flags.IniIncludeComments|flags.IniCommentDefaults)
	s.IniParser = flags.NewIniParser(s.Parser)

	rootDir, err := RootDir()
	if err != nil {
		return s, fmt.Errorf("could not determine user's home directory: %w", err)
	}
	s.RootDir = rootDir

	cfgFile, err := ConfigFileName()
	if err != nil {
		return s, err
	}
	dir := filepath.Dir(cfgFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return s, err
		}
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		err = os.WriteFile(cfgFile, []byte(""), 0644)
		if err != nil {
			return s, err
		}
	}
	err = s.IniParser.ParseFile(cfgFile)
	if err != nil {
		return s, fmt.Errorf("could not parse %s: %w", cfgFile, err)
	}

	if !i.RunExecuteFunction {
		// called from within an execute function, only parse the options
		s.Parser.CommandHandler = func(command flags.Commander, args []string) error {
			return nil
		}
	}

	s.Settings, err = settings.Load(filepath.Join(rootDir, settings.FileName))
	if err != nil {
		return s, err
	}
	s.Tracking = tracking.New(rootDir)

	s.Tail, err = s.Parser.ParseArgs(args)
	if err != nil {
		return s, err
	}

	if i.InitBackend {
		s.Logger.Debug("Initializing backend")
		return s, s.GetBackend()
	}
	return s, nil
}

// GetBackend (re)creates the AWS backend from the profile preferences.
func (s *System) GetBackend() error {
	p := &s.Opts.Config.Profile
	b, err := newBackend(&backend.Config{
		Region:          p.AWSRegion,
		Profile:         p.AWSProfile,
		WorkDir:         s.RootDir,
		PriceCacheTTL:   s.Settings.Pricing.CacheTTL,
		PublicIPURL:     s.Settings.PublicIP.URL,
		PublicIPTimeout: s.Settings.PublicIP.Timeout,
		Log:             s.Logger.WithPrefix("BACKEND: "),
	})
	if err != nil {
		return fmt.Errorf("could not initialize backend: %w", err)
	}
	s.Backend = b
	return nil
}

func (s *System) WriteConfigFile() error {
	cfgFile, err := ConfigFileName()
	if err != nil {
		return err
	}
	opts := flags.IniOptions(flags.IniIncludeComments | flags.IniIncludeDefaults | flags.IniCommentDefaults)
	return s.IniParser.WriteFile(cfgFile, opts)
}
