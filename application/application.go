package application

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/lk2023060901/danmu-chat-go/internal/config"
	zlog "github.com/lk2023060901/danmu-chat-go/pkg/log"
	zviper "github.com/lk2023060901/danmu-chat-go/pkg/util/viper"
)

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = config.EnvPrefix + "_CONFIG_FILE_PATH"

const defaultConfigPath = "./config.yaml"

// Option configures an Application.
type Option func(*Application)

// WithEnvFiles sets the dotenv files loaded before configuration.
func WithEnvFiles(paths ...string) Option {
	return func(a *Application) {
		a.envFiles = paths
	}
}

// Application is the runtime container shared by the broker and chat binaries.
// It owns configuration and logging.
type Application struct {
	name     string
	args     []string
	envFiles []string

	viper   *zviper.Config
	cfg     *config.Config
	rest    []string
	loggers map[string]*zlog.MLogger
}

// New creates an Application that will parse args (without the program name).
func New(name string, args []string, opts ...Option) *Application {
	a := &Application{
		name:     name,
		args:     args,
		envFiles: []string{".env"},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run loads dotenv files and configuration, then sets up logging.
//
// The config file path is resolved with increasing priority:
//  1. Default: ./config.yaml (skipped when missing)
//  2. Env: DANMU_CHAT_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// Values are layered defaults < file < environment.
func (a *Application) Run() error {
	if err := a.loadEnvFiles(); err != nil {
		return err
	}
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.initLogging(); err != nil {
		return err
	}
	zlog.Info("application started", zlog.FieldModule(a.name))
	return nil
}

// Config returns the validated configuration.
func (a *Application) Config() *config.Config {
	return a.cfg
}

// Viper returns the layered configuration source.
func (a *Application) Viper() *zviper.Config {
	return a.viper
}

// Args returns the positional arguments left after flag parsing.
func (a *Application) Args() []string {
	return a.rest
}

// Context returns a context cancelled on SIGINT or SIGTERM.
func (a *Application) Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L().With(zlog.FieldModule(name))}
}

func (a *Application) loadEnvFiles() error {
	for _, path := range a.envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return nil
}

// loadConfig resolves the config file path and layers it over the defaults.
func (a *Application) loadConfig() error {
	configPath := defaultConfigPath
	explicit := false

	if envPath := strings.TrimSpace(os.Getenv(EnvConfigFile)); envPath != "" {
		configPath = envPath
		explicit = true
	}

	var rest []string
	for i := 0; i < len(a.args); i++ {
		arg := a.args[i]
		if arg == "--config" {
			if i+1 >= len(a.args) {
				return fmt.Errorf("missing value after --config")
			}
			configPath = a.args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
		rest = append(rest, arg)
	}
	a.rest = rest

	v := zviper.New()
	v.SetDefaults(config.Defaults())
	v.AutomaticEnv(config.EnvPrefix)

	if _, err := os.Stat(configPath); err == nil || explicit {
		if err := v.LoadFile(configPath); err != nil {
			return fmt.Errorf("failed to load config file %q: %w", configPath, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.viper = v
	a.cfg = cfg
	return nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	logger, props, err := zlog.InitLogger(&a.cfg.Log)
	if err != nil {
		return fmt.Errorf("init global logger: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return a.initModuleLoggersFromConfig()
}

// initModuleLoggersFromConfig creates named loggers from the "logging" key.
//
// Example:
//
//	logging:
//	  fanout:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: fanout.log
func (a *Application) initModuleLoggersFromConfig() error {
	raw := make(map[string]zlog.Config)
	if err := a.viper.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}
