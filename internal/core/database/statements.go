// Package database renders the administrative statements and client command
// lines run against the stack's MySQL server. All functions are pure; the
// shell executes the returned commands inside the database container.
package database

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCredential is returned when a required account name or password is blank.
var ErrEmptyCredential = errors.New("credential must not be empty")

// =============================================================================
// Monitoring Account
// =============================================================================

// MonitorAccount is the least-privilege account used by the metrics exporter.
type MonitorAccount struct {
	User           string
	Host           string // defaults to "%"
	Password       string
	MaxConnections int // defaults to 3
}

// MonitorAccountBatch renders the statements creating the monitoring account.
// The batch is idempotent: re-running it refreshes the password and grants.
func MonitorAccountBatch(acct MonitorAccount) (string, error) {
	if strings.TrimSpace(acct.User) == "" || acct.Password == "" {
		return "", ErrEmptyCredential
	}
	host := acct.Host
	if host == "" {
		host = "%"
	}
	maxConn := acct.MaxConnections
	if maxConn <= 0 {
		maxConn = 3
	}

	principal := fmt.Sprintf("%s@%s", Quote(acct.User), Quote(host))
	password := Quote(acct.Password)

	stmts := []string{
		fmt.Sprintf("CREATE USER IF NOT EXISTS %s IDENTIFIED BY %s WITH MAX_USER_CONNECTIONS %d", principal, password, maxConn),
		fmt.Sprintf("ALTER USER %s IDENTIFIED BY %s", principal, password),
		fmt.Sprintf("GRANT PROCESS, REPLICATION CLIENT, SELECT ON *.* TO %s", principal),
		"FLUSH PRIVILEGES",
	}
	return join(stmts), nil
}

// =============================================================================
// Runtime Tuning
// =============================================================================

// Tuning holds the global server variables applied after startup.
type Tuning struct {
	MaxConnections        int
	InnoDBBufferPoolBytes int64
	SlowQueryLog          bool
	LongQuerySeconds      float64
}

// DefaultTuning returns the tuning applied when nothing is configured.
func DefaultTuning() Tuning {
	return Tuning{
		MaxConnections:        200,
		InnoDBBufferPoolBytes: 256 * 1024 * 1024,
		SlowQueryLog:          true,
		LongQuerySeconds:      2,
	}
}

// TuningBatch renders SET GLOBAL statements for the non-zero fields of t.
func TuningBatch(t Tuning) string {
	var stmts []string
	if t.MaxConnections > 0 {
		stmts = append(stmts, fmt.Sprintf("SET GLOBAL max_connections = %d", t.MaxConnections))
	}
	if t.InnoDBBufferPoolBytes > 0 {
		stmts = append(stmts, fmt.Sprintf("SET GLOBAL innodb_buffer_pool_size = %d", t.InnoDBBufferPoolBytes))
	}
	if t.SlowQueryLog {
		stmts = append(stmts, "SET GLOBAL slow_query_log = 'ON'")
	} else {
		stmts = append(stmts, "SET GLOBAL slow_query_log = 'OFF'")
	}
	if t.LongQuerySeconds > 0 {
		stmts = append(stmts, fmt.Sprintf("SET GLOBAL long_query_time = %g", t.LongQuerySeconds))
	}
	return join(stmts)
}

// =============================================================================
// Client Commands
// =============================================================================

// Command is a command line plus environment to run inside the database container.
// Passwords travel in Env (MYSQL_PWD) so they never appear in the argument list.
type Command struct {
	Cmd []string
	Env []string
}

// PingCommand returns the mysqladmin liveness check for the given account.
func PingCommand(user, password string) Command {
	return Command{
		Cmd: []string{"mysqladmin", "ping", "-h", "localhost", "-u", user, "--silent"},
		Env: []string{"MYSQL_PWD=" + password},
	}
}

// BatchCommand returns a mysql client invocation executing sql.
func BatchCommand(user, password, sql string) Command {
	return Command{
		Cmd: []string{"mysql", "-h", "localhost", "-u", user, "--batch", "-e", sql},
		Env: []string{"MYSQL_PWD=" + password},
	}
}

// =============================================================================
// Helpers
// =============================================================================

var quoter = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

// Quote renders s as a single-quoted MySQL string literal.
func Quote(s string) string {
	return "'" + quoter.Replace(s) + "'"
}

func join(stmts []string) string {
	return strings.Join(stmts, ";\n") + ";"
}
