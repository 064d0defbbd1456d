package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "github.com/sijms/go-ora/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverOracle = "oracle"
)

// dsn builds a properly encoded connection string for Oracle Autonomous Database
func dsn(username, password, host, port, service string, walletLocation string) string {
	if walletLocation != "" {
		// Use wallet-based mTLS connection
		return fmt.Sprintf(
			"oracle://%s:%s@%s:%s/%s?ssl=true&wallet_location=%s",
			url.PathEscape(username), url.PathEscape(password), host, port, service, url.PathEscape(walletLocation))
	}

	return (&url.URL{
		Scheme:   "oracle",
		User:     url.UserPassword(username, password), // escapes automatically
		Host:     host + ":" + port,
		Path:     "/" + service, // keep full service name
		RawQuery: "ssl=true",    // ADB requires TCPS on 1522
	}).String()
}

// DBConfig holds database connection configuration
type DBConfig struct {
	Driver         string `mapstructure:"driver"`
	Path           string `mapstructure:"path"`
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	Service        string `mapstructure:"service"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	WalletLocation string `mapstructure:"wallet_location"`
}

// Database stores evaluated runs and their parcels.
type Database struct {
	db     *sql.DB
	config DBConfig
}

// NewDatabase opens and pings the configured backend.
func NewDatabase(ctx context.Context, config DBConfig) (*Database, error) {
	var (
		db  *sql.DB
		err error
	)

	switch config.Driver {
	case DriverSQLite, "":
		config.Driver = DriverSQLite
		db, err = openSQLite(config.Path)
	case DriverOracle:
		zap.L().Info("database: connecting to oracle", zap.String("host", config.Host), zap.String("service", config.Service))
		db, err = sql.Open("oracle", dsn(config.Username, config.Password, config.Host, config.Port, config.Service, config.WalletLocation))
		err = eris.Wrap(err, "database: open oracle")
	default:
		return nil, eris.Errorf("database: unknown driver %q", config.Driver)
	}
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "database: ping %s", config.Driver)
	}

	return &Database{db: db, config: config}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, eris.New("database: sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "database: open sqlite")
	}
	// One writer keeps WAL writes and :memory: databases consistent.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "database: exec %s", pragma)
		}
	}
	return db, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Driver returns the backend in use.
func (d *Database) Driver() string {
	return d.config.Driver
}

// rebind rewrites ? placeholders into Oracle's positional :n form.
func (d *Database) rebind(query string) string {
	if d.config.Driver != DriverOracle {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(":" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
