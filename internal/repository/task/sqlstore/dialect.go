package sqlstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

const mysqlDuplicateEntry = 1062

// Dialect описывает различия между движками, которые обслуживает Storage
type Dialect struct {
	Name       string
	DriverName string
	Schema     []string
	// MaxOpenConns = 0 значит без ограничения
	MaxOpenConns int
	// BatchRows ограничивает количество строк в одном INSERT, чтобы не упереться в лимит параметров
	BatchRows  int
	PrepareDSN func(dsn string) (string, error)
	// IsDuplicate распознаёт нарушение первичного ключа в ошибке драйвера
	IsDuplicate func(err error) bool
}

var SQLite = Dialect{
	Name:       "sqlite",
	DriverName: "sqlite3",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT,
			description TEXT,
			completed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	},
	// одно соединение: иначе у каждого соединения с :memory: своя база
	MaxOpenConns: 1,
	BatchRows:    500,
	PrepareDSN: func(dsn string) (string, error) {
		if dsn == "" {
			return "", fmt.Errorf("пустой путь к базе sqlite")
		}
		return dsn, nil
	},
	IsDuplicate: func(err error) bool {
		var sqliteErr sqlite3.Error
		return errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique)
	},
}

var MySQL = Dialect{
	Name:       "mysql",
	DriverName: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			title TEXT NULL,
			description TEXT NULL,
			completed_at DATETIME(3) NULL,
			created_at DATETIME(3) NOT NULL,
			updated_at DATETIME(3) NOT NULL
		)`,
	},
	BatchRows: 1000,
	PrepareDSN: func(dsn string) (string, error) {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("разбор mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		// RowsAffected должен считать найденные строки, а не изменённые
		cfg.ClientFoundRows = true
		return cfg.FormatDSN(), nil
	},
	IsDuplicate: func(err error) bool {
		var mysqlErr *mysql.MySQLError
		return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
	},
}

func DialectByName(name string) (Dialect, error) {
	switch name {
	case SQLite.Name:
		return SQLite, nil
	case MySQL.Name:
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("неизвестный SQL диалект %q", name)
	}
}
