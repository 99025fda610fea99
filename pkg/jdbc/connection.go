package jdbc

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/datazip-inc/pipes/utils"
)

// PostgresConnection is shared by the postgres sink and checkpoint store.
// URL, when set, wins over the individual fields.
type PostgresConnection struct {
	URL      string `json:"url,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

func (c *PostgresConnection) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}
	if c.URL == "" && (c.Host == "" || c.Database == "") {
		return fmt.Errorf("either url or host and database must be set")
	}
	return nil
}

func (c *PostgresConnection) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	dsn := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(utils.Ternary(c.Port == 0, 5432, c.Port))),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {utils.Ternary(c.SSLMode == "", "disable", c.SSLMode)}}.Encode(),
	}
	if c.Username != "" {
		dsn.User = url.UserPassword(c.Username, c.Password)
	}
	return dsn.String()
}

// ClickHouseConnection is shared by the clickhouse sink and checkpoint store
type ClickHouseConnection struct {
	Addr          []string `json:"addr" validate:"required,min=1"`
	Database      string   `json:"database,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	DialTimeoutMs int64    `json:"dial_timeout_ms,omitempty" validate:"gte=0"`
}

func (c *ClickHouseConnection) Validate() error {
	return utils.Validate(c)
}

// Open connects and pings the server
func (c *ClickHouseConnection) Open(ctx context.Context) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: c.Addr,
		Auth: clickhouse.Auth{
			Database: utils.Ternary(c.Database == "", "default", c.Database),
			Username: utils.Ternary(c.Username == "", "default", c.Username),
			Password: c.Password,
		},
		DialTimeout: utils.Ternary(c.DialTimeoutMs == 0, 10*time.Second, time.Duration(c.DialTimeoutMs)*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %s", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %s", err)
	}
	return conn, nil
}
