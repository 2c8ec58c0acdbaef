package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	_ "github.com/lib/pq"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"

	"fpdataset/internal/grid"
	"fpdataset/internal/monitoring"
)

// ErrUnsupportedDriver is returned for a driver name this package does not know,
// or for an operation the selected driver does not support.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// oracleDSN builds a properly encoded connection string for Oracle, using the
// wallet for mTLS when one is configured.
func oracleDSN(username, password, host, port, service string, walletLocation string) string {
	if walletLocation != "" {
		return fmt.Sprintf(
			"oracle://%s:%s@%s:%s/%s?ssl=true&wallet_location=%s",
			url.PathEscape(username), url.PathEscape(password), host, port, service, url.PathEscape(walletLocation))
	}

	return (&url.URL{
		Scheme: "oracle",
		User:   url.UserPassword(username, password), // escapes automatically
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + service,
	}).String()
}

func postgresDSN(config DBConfig) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.Username, config.Password),
		Host:     net.JoinHostPort(config.Host, config.Port),
		Path:     "/" + config.Service,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}).String()
}

func mysqlDSN(config DBConfig) string {
	c := mysql.NewConfig()
	c.User = config.Username
	c.Passwd = config.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(config.Host, config.Port)
	c.DBName = config.Service
	c.MultiStatements = true
	return c.FormatDSN()
}

// dsn returns the database/sql driver name and connection string for config.
func dsn(config DBConfig) (string, string, error) {
	d, ok := dialects[config.Driver]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, config.Driver)
	}
	switch config.Driver {
	case "oracle":
		return d.driverName, oracleDSN(config.Username, config.Password, config.Host, config.Port, config.Service, config.WalletLocation), nil
	case "postgres":
		return d.driverName, postgresDSN(config), nil
	case "mysql":
		return d.driverName, mysqlDSN(config), nil
	default:
		return d.driverName, config.Path, nil
	}
}

// DBConfig holds database connection configuration
type DBConfig struct {
	Driver         string `yaml:"driver"` // mysql, postgres, oracle or sqlite
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	Service        string `yaml:"database"`
	Username       string `yaml:"user"`
	Password       string `yaml:"password"`
	WalletLocation string `yaml:"wallet_location"`
	SSLMode        string `yaml:"sslmode"`
	Path           string `yaml:"path"` // sqlite only
}

// Validate checks that the driver is known and its required fields are set.
func (c DBConfig) Validate() error {
	if _, ok := dialects[c.Driver]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}
	if c.Driver == "sqlite" {
		if c.Path == "" {
			return fmt.Errorf("sqlite driver requires a path")
		}
		return nil
	}
	if c.Host == "" || c.Service == "" {
		return fmt.Errorf("%s driver requires host and database", c.Driver)
	}
	return nil
}

// Database is the collectxy/building data source backed by database/sql.
type Database struct {
	db      *sql.DB
	config  DBConfig
	dialect dialect
	grid    grid.Spec
}

// NewDatabase opens and pings a connection for config. spec is the grid
// transform used to compute each row's cell in the store.
func NewDatabase(config DBConfig, spec grid.Spec) (*Database, error) {
	driverName, connStr, err := dsn(config)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("Connecting to %s database...", config.Driver)

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		db:      db,
		config:  config,
		dialect: dialects[config.Driver],
		grid:    spec,
	}, nil
}

// NewFromDB wraps an already open handle. driver selects the SQL dialect.
func NewFromDB(db *sql.DB, driver string, spec grid.Spec) (*Database, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	return &Database{
		db:      db,
		config:  DBConfig{Driver: driver},
		dialect: d,
		grid:    spec,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// DB exposes the underlying handle, mainly for seeding tests and tooling.
func (d *Database) DB() *sql.DB {
	return d.db
}

// LoadDatabaseConfig applies environment overrides on top of base. A .env
// file in the working directory is loaded first; variables already set in
// the environment win over it.
func LoadDatabaseConfig(base DBConfig) DBConfig {
	// A missing .env file is fine.
	_ = godotenv.Load()

	driver := getEnvOrDefault("DB_DRIVER", orDefault(base.Driver, "mysql"))

	return DBConfig{
		Driver:         driver,
		Host:           getEnvOrDefault("DB_HOST", orDefault(base.Host, "localhost")),
		Port:           getEnvOrDefault("DB_PORT", orDefault(base.Port, defaultPort(driver))),
		Service:        getEnvOrDefault("DB_NAME", getEnvOrDefault("DB_SERVICE", base.Service)),
		Username:       getEnvOrDefault("DB_USERNAME", base.Username),
		Password:       getEnvOrDefault("DB_PASSWORD", base.Password),
		WalletLocation: getEnvOrDefault("DB_WALLET_LOCATION", base.WalletLocation),
		SSLMode:        getEnvOrDefault("DB_SSLMODE", base.SSLMode),
		Path:           getEnvOrDefault("DB_PATH", base.Path),
	}
}

func defaultPort(driver string) string {
	switch driver {
	case "oracle":
		return "1521"
	case "postgres":
		return "5432"
	case "mysql":
		return "3306"
	}
	return ""
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
