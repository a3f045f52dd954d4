package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Migrate applies every .sql file in fsys in lexical order. The scripts are
// idempotent, so running it on every start is safe.
func Migrate(ctx context.Context, db *gorm.DB, fsys fs.FS) ([]string, error) {
	if db == nil {
		return nil, errDBUnavailable
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(raw)) == "" {
			continue
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return nil, fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return files, nil
}
