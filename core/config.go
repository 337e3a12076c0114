package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

type (
	Config struct {
		AppName      string
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server struct {
			Host               string
			Address            string
			DebugAddress       string
			ShutdownTimeout    time.Duration
			JWTExpirationDelta time.Duration
			DisableReqLogs     bool
		}

		Storage struct {
			Backend  string
			FilePath string
			Watch    bool
		}

		Database struct {
			Engine     string
			Name       string // file path for sqlite
			Host       string
			Port       string
			User       string
			Password   string
			DisableTLS bool
		}

		Catalog struct {
			Path string // empty: embedded default catalog
		}

		Email struct {
			Backend        string // console (default) or sendgrid
			FromName       string
			FromAddress    string
			SendgridAPIKey string
			Notify         []string // coordinators told about module completions; empty disables notifications
		}
	}
)

// Email backends
const (
	EmailConsole  = "console"
	EmailSendgrid = "sendgrid"
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.Email.FromName, Address: c.Email.FromAddress}
}

// NotifyAddresses returns the parsed coordinator addresses.
// Entries may hold comma separated lists; invalid addresses are skipped with a warning.
func (c *Config) NotifyAddresses(logger Logger) []mail.Address {
	addrs := make([]mail.Address, 0, len(c.Email.Notify))
	for _, entry := range c.Email.Notify {
		for _, raw := range strings.Split(entry, ",") {
			if raw = strings.TrimSpace(raw); raw == "" {
				continue
			}
			addr, err := mail.ParseAddress(raw)
			if err != nil {
				logger.Warn("ignoring invalid notification address", errors.Wrap(err, raw))
				continue
			}
			addrs = append(addrs, *addr)
		}
	}
	return addrs
}

func (c *Config) IsSQL() bool {
	return c.Storage.Backend == BackendSQLite || c.Storage.Backend == BackendPostgres
}

func (c *Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, c.Database.Port)
}

// NewConfig reads the configuration from the environment (prefixed by the environment name, eg. DEV_DEBUG)
// and from config/.env.<env> when that file exists.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Beet")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("secretKey", "x2w!d8k#q0v&9t*l@m4r$z7e+p1u(6y)b3n%c5j")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.filePath", filepath.Join("var", "progress.json"))
	v.SetDefault("storage.watch", true)
	v.SetDefault("database.engine", BackendSQLite)
	v.SetDefault("database.name", filepath.Join("var", "progress.db"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")
	v.SetDefault("catalog.path", "")
	v.SetDefault("email.backend", EmailConsole)
	v.SetDefault("email.fromName", "Beet Training")
	v.SetDefault("email.fromAddress", "no-reply@beet.local")
	v.SetDefault("email.sendgridAPIKey", "")
	v.SetDefault("email.notify", []string{})

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(ProjectRoot(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
	}
	conf.Server.Host = v.GetString("server.host")
	conf.Server.Address = v.GetString("server.address")
	conf.Server.DebugAddress = v.GetString("server.debugAddress")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.DisableReqLogs = v.GetBool("server.disableReqLogs")
	conf.Storage.Backend = CleanString(v.GetString("storage.backend"), true /* lower */)
	conf.Storage.FilePath = v.GetString("storage.filePath")
	conf.Storage.Watch = v.GetBool("storage.watch")
	conf.Database.Engine = CleanString(v.GetString("database.engine"), true /* lower */)
	conf.Database.Name = v.GetString("database.name")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")
	conf.Catalog.Path = v.GetString("catalog.path")
	conf.Email.Backend = CleanString(v.GetString("email.backend"), true /* lower */)
	conf.Email.FromName = v.GetString("email.fromName")
	conf.Email.FromAddress = v.GetString("email.fromAddress")
	conf.Email.SendgridAPIKey = v.GetString("email.sendgridAPIKey")
	conf.Email.Notify = v.GetStringSlice("email.notify")

	// the sql backends pick their engine from the storage backend
	if conf.IsSQL() {
		conf.Database.Engine = conf.Storage.Backend
	}
	return conf
}

// NewTestConfig returns an in-memory configuration suited for tests.
func NewTestConfig() *Config {
	conf := &Config{
		AppName:   "Beet",
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		SecretKey: "test-secret",
	}
	conf.Server.Host = "localhost"
	conf.Server.ShutdownTimeout = time.Second
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.DisableReqLogs = true
	conf.Storage.Backend = BackendMemory
	conf.Email.Backend = EmailConsole
	conf.Email.FromName = "Beet Training"
	conf.Email.FromAddress = "no-reply@beet.local"
	return conf
}
