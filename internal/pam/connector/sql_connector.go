package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/lib/pq"

	apperrors "github.com/allisson/usp/internal/errors"
	pamService "github.com/allisson/usp/internal/pam/service"
)

// identifierPattern is the only shape of username accepted into a DDL
// statement. Anything else is rejected before a statement is built.
var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]{0,62}$`)

// SQLConnector rotates database account passwords. ALTER USER statements
// cannot carry bind parameters, so identifiers are validated against a
// strict pattern and values are quoted with the platform's quoting rules.
type SQLConnector struct {
	driver      string
	defaultPort uint
	generator   *pamService.PasswordGenerator
	dsn         func(target Target, password string) string
	alter       func(target Target, next string) (string, []any, error)
}

// NewPostgresConnector rotates PostgreSQL roles via lib/pq.
func NewPostgresConnector(generator *pamService.PasswordGenerator) *SQLConnector {
	return &SQLConnector{
		driver:      "postgres",
		defaultPort: 5432,
		generator:   generator,
		dsn: func(target Target, password string) string {
			return fmt.Sprintf(
				"host=%s port=%d user=%s password=%s dbname=%s sslmode=prefer",
				pqValue(target.Host), portOr(target.Port, 5432),
				pqValue(target.Username), pqValue(password), pqValue(databaseOr(target.Database, "postgres")),
			)
		},
		alter: func(target Target, next string) (string, []any, error) {
			stmt := "ALTER USER " + pq.QuoteIdentifier(target.Username) +
				" WITH PASSWORD " + pq.QuoteLiteral(next)
			return stmt, nil, nil
		},
	}
}

// NewMySQLConnector rotates MySQL accounts via go-sql-driver/mysql.
func NewMySQLConnector(generator *pamService.PasswordGenerator) *SQLConnector {
	return &SQLConnector{
		driver:      "mysql",
		defaultPort: 3306,
		generator:   generator,
		dsn: func(target Target, password string) string {
			return fmt.Sprintf(
				"%s:%s@tcp(%s:%d)/%s",
				target.Username, password, target.Host, portOr(target.Port, 3306), target.Database,
			)
		},
		alter: func(target Target, next string) (string, []any, error) {
			stmt := fmt.Sprintf(
				"ALTER USER '%s'@'%%' IDENTIFIED BY '%s'",
				mysqlEscape(target.Username), mysqlEscape(next),
			)
			return stmt, nil, nil
		},
	}
}

// NewMSSQLConnector rotates SQL Server logins. The ALTER LOGIN statement is
// built server-side with sp_executesql and QUOTENAME, so both the login and
// the password travel as parameters. The driver (for example
// microsoft/go-mssqldb) must be registered by the embedding binary.
func NewMSSQLConnector(driver string, generator *pamService.PasswordGenerator) *SQLConnector {
	return &SQLConnector{
		driver:      driver,
		defaultPort: 1433,
		generator:   generator,
		dsn: func(target Target, password string) string {
			u := url.URL{
				Scheme: "sqlserver",
				User:   url.UserPassword(target.Username, password),
				Host:   fmt.Sprintf("%s:%d", target.Host, portOr(target.Port, 1433)),
			}
			if target.Database != "" {
				u.RawQuery = url.Values{"database": []string{target.Database}}.Encode()
			}
			return u.String()
		},
		alter: func(target Target, next string) (string, []any, error) {
			stmt := `DECLARE @stmt nvarchar(max) =
				N'ALTER LOGIN ' + QUOTENAME(@login) + N' WITH PASSWORD = ' + QUOTENAME(@password, '''');
				EXEC sp_executesql @stmt`
			args := []any{sql.Named("login", target.Username), sql.Named("password", next)}
			return stmt, args, nil
		},
	}
}

// NewOracleConnector rotates Oracle users. The driver must be registered by
// the embedding binary.
func NewOracleConnector(driver string, generator *pamService.PasswordGenerator) *SQLConnector {
	return &SQLConnector{
		driver:      driver,
		defaultPort: 1521,
		generator:   generator,
		dsn: func(target Target, password string) string {
			u := url.URL{
				Scheme: "oracle",
				User:   url.UserPassword(target.Username, password),
				Host:   fmt.Sprintf("%s:%d", target.Host, portOr(target.Port, 1521)),
				Path:   "/" + target.Database,
			}
			return u.String()
		},
		alter: func(target Target, next string) (string, []any, error) {
			if strings.Contains(next, `"`) {
				return "", nil, apperrors.Wrap(apperrors.ErrInvalidInput, "oracle passwords cannot contain double quotes")
			}
			stmt := fmt.Sprintf(`ALTER USER "%s" IDENTIFIED BY "%s"`, target.Username, next)
			return stmt, nil, nil
		},
	}
}

func (c *SQLConnector) Verify(ctx context.Context, target Target, password string) error {
	if err := validateTarget(target); err != nil {
		return err
	}

	db, err := sql.Open(c.driver, c.dsn(target, password))
	if err != nil {
		return classifyExternal(err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := db.PingContext(ctx); err != nil {
		return classifyExternal(err)
	}
	return nil
}

func (c *SQLConnector) Rotate(ctx context.Context, target Target, current, next string) error {
	if err := validateTarget(target); err != nil {
		return err
	}

	stmt, args, err := c.alter(target, next)
	if err != nil {
		return err
	}

	db, err := sql.Open(c.driver, c.dsn(target, current))
	if err != nil {
		return classifyExternal(err)
	}
	defer func() {
		_ = db.Close()
	}()

	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return classifyExternal(err)
	}
	return nil
}

func (c *SQLConnector) Generate() (string, error) {
	return c.generator.Generate()
}

func validateTarget(target Target) error {
	if !identifierPattern.MatchString(target.Username) {
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid username %q", target.Username)
	}
	if target.Host == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "target host is required")
	}
	return nil
}

func portOr(port, fallback uint) uint {
	if port == 0 {
		return fallback
	}
	return port
}

func databaseOr(database, fallback string) string {
	if database == "" {
		return fallback
	}
	return database
}

// pqValue quotes one value of a keyword/value libpq DSN.
func pqValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// mysqlEscape escapes a value for inclusion in a single-quoted MySQL string.
func mysqlEscape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
