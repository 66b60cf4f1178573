package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where migration files live in the source tree. The same
// files are compiled into the binary, see Embedded.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source picks the migration set: the embedded files when dir is empty,
// otherwise the files on disk under dir.
func Source(dir string) fs.FS {
	if dir == "" {
		return Embedded()
	}
	return os.DirFS(dir)
}

// Run applies command against db. Supported commands are up, down, redo and
// status. The returned lines describe what happened, one per migration.
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, command string) ([]string, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		return describeResults(results...), wrapGoose(command, err)
	case "down":
		result, err := provider.Down(ctx)
		return describeResults(result), wrapGoose(command, err)
	case "redo":
		down, err := provider.Down(ctx)
		if err != nil {
			return describeResults(down), wrapGoose(command, err)
		}
		up, err := provider.UpByOne(ctx)
		return describeResults(down, up), wrapGoose(command, err)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return nil, wrapGoose(command, err)
		}
		lines := make([]string, 0, len(statuses))
		for _, st := range statuses {
			line := fmt.Sprintf("%d %s %s", st.Source.Version, st.State, st.Source.Path)
			if !st.AppliedAt.IsZero() {
				line += " applied_at=" + st.AppliedAt.UTC().Format("2006-01-02T15:04:05Z")
			}
			lines = append(lines, line)
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("unsupported migrate command %q", command)
	}
}

// MigrateToVersion moves the schema up or down until target (a
// YYYYMMDDHHMMSS version) is the latest applied migration.
func MigrateToVersion(ctx context.Context, db *sql.DB, fsys fs.FS, target string) ([]string, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version <= 0 {
		return nil, fmt.Errorf("invalid target version %q, expected YYYYMMDDHHMMSS", target)
	}
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case current < version:
		results, err := provider.UpTo(ctx, version)
		return describeResults(results...), wrapGoose("up-to", err)
	case current > version:
		results, err := provider.DownTo(ctx, version)
		return describeResults(results...), wrapGoose("down-to", err)
	default:
		return nil, nil
	}
}

// newProvider does not take ownership of db; callers close it themselves.
func newProvider(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("migrate: db required")
	}
	if fsys == nil {
		return nil, errors.New("migrate: migration source required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

func describeResults(results ...*goose.MigrationResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %d %s (%s)", r.Direction, r.Source.Version, r.Source.Path, r.Duration))
	}
	return lines
}

func wrapGoose(command string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
