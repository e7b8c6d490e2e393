package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// 対応するドライバ名
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc.org/sqlite のドライバ名はsqlxの既定のバインド表に無い
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// ParseURL は接続URLのスキームからドライバ名とDSNを判定する。
// postgres:// と postgresql:// はPostgreSQL、sqlite:// はSQLite（パス部分がDSN）として扱う。
func ParseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DriverPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		dsn = strings.TrimPrefix(databaseURL, "sqlite://")
		if dsn == "" {
			return "", "", fmt.Errorf("SQLiteのパスが指定されていません: %s", databaseURL)
		}
		return DriverSQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("未対応のデータベースURLです: %s", databaseURL)
	}
}

// Open はデータベース接続を開く。
// sqlx.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(databaseURL string) (*sqlx.DB, error) {
	driver, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLiteは書き込みを1接続に直列化する
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	return db, nil
}
