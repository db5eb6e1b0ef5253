package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate executes every <name>.<direction>.sql file in dir, in name order
// for Up and reverse order for Down. It returns the files applied.
func Migrate(ctx context.Context, db *sql.DB, dir string, direction Direction) ([]string, error) {
	if direction != Up && direction != Down {
		return nil, fmt.Errorf("unknown migration direction %q", direction)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	suffix := fmt.Sprintf(".%s.sql", direction)
	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), suffix) {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)
	if direction == Down {
		for i, j := 0, len(migrationFiles)-1; i < j; i, j = i+1, j-1 {
			migrationFiles[i], migrationFiles[j] = migrationFiles[j], migrationFiles[i]
		}
	}

	for _, filename := range migrationFiles {
		content, err := os.ReadFile(filepath.Join(dir, filename))
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return nil, fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return migrationFiles, nil
}
