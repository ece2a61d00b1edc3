// Package warehouse connects to the SQL warehouse and appends datasets to
// tables.
package warehouse

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/secure"
)

// Source records where a Connector came from
type Source string

const (
	// SourceBlock marks a connector loaded from a registered block
	SourceBlock Source = "block"
	// SourceSecrets marks a connector built from resolved secrets. It is
	// never persisted.
	SourceSecrets Source = "secrets"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Connector holds everything needed to open a warehouse connection
type Connector struct {
	Driver string
	// Account is host[:port]
	Account   string
	User      string
	Password  *secure.SecureBuffer
	Warehouse string
	Database  string
	Schema    string
	Role      string
	SSLMode   string

	Source Source
	// BlockName is set when Source is SourceBlock
	BlockName string
}

// FromBlock builds a connector from a registered warehouse block
func FromBlock(b *blocks.Warehouse) *Connector {
	return &Connector{
		Driver:    b.Driver,
		Account:   b.Account,
		User:      b.User,
		Password:  secure.FromString(b.Password),
		Warehouse: b.Warehouse,
		Database:  b.Database,
		Schema:    b.Schema,
		Role:      b.Role,
		SSLMode:   b.SSLMode,
		Source:    SourceBlock,
		BlockName: b.Name,
	}
}

// String describes the connector without the password
func (c *Connector) String() string {
	return fmt.Sprintf("%s://%s@%s/%s (schema %s, source %s)", c.driver(), c.User, c.Account, c.Database, c.Schema, c.Source)
}

// Close wipes the password
func (c *Connector) Close() {
	if c.Password != nil {
		c.Password.Destroy()
	}
}

func (c *Connector) driver() string {
	if c.Driver == "" {
		return DriverPostgres
	}
	return c.Driver
}

// Validate checks the fields every driver needs
func (c *Connector) Validate() error {
	var missing []string
	if c.Account == "" {
		missing = append(missing, "account")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return fmt.Errorf("warehouse connector is missing %s", strings.Join(missing, ", "))
	}
	switch c.driver() {
	case DriverPostgres, DriverMySQL:
		return nil
	default:
		return fmt.Errorf("unsupported warehouse driver: %s", c.Driver)
	}
}

// DSN renders the driver connection string. The result contains the
// password and must not be logged.
func (c *Connector) DSN(timeout time.Duration) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	password := ""
	if c.Password != nil {
		var err error
		if password, err = c.Password.Reveal(); err != nil {
			return "", fmt.Errorf("failed to read warehouse password: %w", err)
		}
	}

	switch c.driver() {
	case DriverMySQL:
		return c.mysqlDSN(password, timeout), nil
	default:
		return c.postgresDSN(password, timeout), nil
	}
}

func (c *Connector) postgresDSN(password string, timeout time.Duration) string {
	host, port := splitAccount(c.Account, "5432")
	parts := []string{
		"host=" + pqValue(host),
		"port=" + pqValue(port),
		"dbname=" + pqValue(c.Database),
		"user=" + pqValue(c.User),
	}
	if password != "" {
		parts = append(parts, "password="+pqValue(password))
	}

	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}
	parts = append(parts, "sslmode="+pqValue(sslmode))

	if c.Warehouse != "" {
		parts = append(parts, "application_name="+pqValue(c.Warehouse))
	}
	if timeout > 0 {
		secs := int(timeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, "connect_timeout="+strconv.Itoa(secs))
	}
	return strings.Join(parts, " ")
}

func (c *Connector) mysqlDSN(password string, timeout time.Duration) string {
	host, port := splitAccount(c.Account, "3306")

	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if c.SSLMode != "" && c.SSLMode != "disable" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}

// splitAccount splits host[:port], tolerating a bare host
func splitAccount(account, defaultPort string) (string, string) {
	host, port, err := net.SplitHostPort(account)
	if err != nil {
		return account, defaultPort
	}
	return host, port
}

// pqValue quotes a libpq keyword/value connection parameter
func pqValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
