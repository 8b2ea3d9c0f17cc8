package ledger

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/GuiaBolso/darwin"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// migrate applies the embedded schema scripts. Files are named
// <version>_<description>.sql.
func migrate(db *sql.DB) error {
	migrations, err := loadMigrations(sqlFiles, "sql")
	if err != nil {
		return err
	}
	driver := darwin.NewGenericDriver(db, darwin.SqliteDialect{})
	return darwin.New(driver, migrations, nil).Migrate()
}

func loadMigrations(fsys fs.FS, dir string) ([]darwin.Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var out []darwin.Migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		version, desc, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: expected <version>_<description>.sql", name)
		}
		v, err := strconv.ParseFloat(version, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		script, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, darwin.Migration{
			Version:     v,
			Description: strings.ReplaceAll(desc, "_", " "),
			Script:      string(script),
		})
	}
	return out, nil
}
