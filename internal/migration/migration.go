package migration

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/storage"
)

// LoadEnv loads envFile if given, then .env.<env>, then .env. It reports which file was used,
// or "" when the process environment is all there is.
func LoadEnv(env, envFile string) string {
	if envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			return envFile
		}
	}

	envSpecificFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envSpecificFile); err == nil {
		return envSpecificFile
	}

	if err := godotenv.Load(); err == nil {
		return ".env"
	}
	return ""
}

// Run opens the configured SQL store, which applies the built-in schema, then executes the
// statements in extraFile if one is given.
func Run(ctx context.Context, cfg config.DatabaseConfig, extraFile string, log *logger.Logger) error {
	var (
		store *storage.SQLStore
		err   error
	)
	switch cfg.Driver {
	case "mysql":
		store, err = storage.NewMySQLStore(cfg, log)
	case "sqlite":
		store, err = storage.NewSQLiteStore(cfg, log)
	default:
		return fmt.Errorf("driver %q has no schema to migrate", cfg.Driver)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	if extraFile == "" {
		log.LogDatabase("MIGRATE", cfg.Driver, "Schema is up to date")
		return nil
	}

	migrationSQL, err := os.ReadFile(extraFile)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	statements := SplitStatements(string(migrationSQL))
	log.LogDatabase("MIGRATE", cfg.Driver, fmt.Sprintf("Executing %d statements from %s", len(statements), extraFile))
	for i, stmt := range statements {
		if _, err := store.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d of %s failed: %w", i+1, extraFile, err)
		}
	}

	log.LogDatabase("MIGRATE", cfg.Driver, "Migration completed successfully")
	return nil
}

// SplitStatements breaks a SQL script on semicolons that end a line. Lines starting with
// "--" are dropped. Semicolons inside string literals at end of line are not supported.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
			if strings.TrimSpace(stmt) != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}
