package diol

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Config describes how to open a named connection. It is loaded from
// environment variables by LoadConfig.
type Config struct {
	// Driver is the database/sql driver name
	Driver string `koanf:"driver" validate:"required,oneof=mysql pgx postgres"`
	// URL is either a driver DSN or a mysql:// or postgres:// URL
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"min=0"`
	LogLevel        string        `koanf:"log_level" validate:"required,oneof=trace debug info warn error disabled"`
}

// EnvPrefix returns the prefix of the environment variables configuring
// the named connection: "DATABASE_" for the default connection and
// "DATABASE_<NAME>_" for the others.
func EnvPrefix(name string) string {
	if name == "" || name == DefaultConnection {
		return "DATABASE_"
	}
	return "DATABASE_" + strings.ToUpper(name) + "_"
}

// LoadConfig loads the configuration of the named connection from the
// environment, after loading a .env file from the working directory if
// one exists. For the default connection the variables are:
//
//	DATABASE_URL               (required)
//	DATABASE_DRIVER            mysql (default), pgx or postgres
//	DATABASE_MAX_OPEN_CONNS
//	DATABASE_MAX_IDLE_CONNS
//	DATABASE_CONN_MAX_LIFETIME e.g. "5m"
//	DATABASE_LOG_LEVEL         info (default)
func LoadConfig(name string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed loading .env file: %w", err)
	}

	prefix := EnvPrefix(name)

	k := koanf.New(".")
	err := k.Load(env.Provider(prefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, prefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed loading %s* variables: %w", prefix, err)
	}

	conf := &Config{
		Driver:   "mysql",
		LogLevel: "info",
	}
	if err := k.Unmarshal("", conf); err != nil {
		return nil, fmt.Errorf("failed parsing %s* variables: %w", prefix, err)
	}

	if err := validator.New().Struct(conf); err != nil {
		return nil, fmt.Errorf("invalid configuration for connection %q: %w", name, err)
	}

	return conf, nil
}

// DriverName returns the database/sql driver to open
func (conf *Config) DriverName() string {
	if conf.Driver == "postgres" {
		return "pgx"
	}
	return conf.Driver
}

// DSN returns the data source name handed to the driver. A mysql:// URL
// is converted to the DSN format of the MySQL driver, other values are
// returned as is.
func (conf *Config) DSN() (string, error) {
	if conf.DriverName() != "mysql" || !strings.HasPrefix(conf.URL, "mysql://") {
		return conf.URL, nil
	}

	u, err := url.Parse(conf.URL)
	if err != nil {
		return "", fmt.Errorf("invalid database URL: %w", err)
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = u.Host
	if u.Port() == "" {
		mc.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	mc.DBName = strings.TrimPrefix(u.Path, "/")
	mc.ParseTime = true
	if u.User != nil {
		mc.User = u.User.Username()
		mc.Passwd, _ = u.User.Password()
	}
	for key, vals := range u.Query() {
		if len(vals) > 0 {
			if mc.Params == nil {
				mc.Params = make(map[string]string)
			}
			mc.Params[key] = vals[0]
		}
	}

	return mc.FormatDSN(), nil
}

// Logger creates the logger of a connection, writing to standard error
func (conf *Config) Logger(name string) zerolog.Logger {
	level, err := zerolog.ParseLevel(conf.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Str("connection", name).
		Logger()
}

// Connect opens a database handle from the configuration. The handle is
// not pinged, so no connection is made until the first statement.
func Connect(name string, conf *Config, opts ...DBOption) (*DB, error) {
	dsn, err := conf.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(conf.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection %q: %w", name, err)
	}

	db.SetMaxOpenConns(conf.MaxOpenConns)
	db.SetMaxIdleConns(conf.MaxIdleConns)
	db.SetConnMaxLifetime(conf.ConnMaxLifetime)

	return Newx(db, append([]DBOption{WithLogger(conf.Logger(name))}, opts...)...), nil
}
