package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/kryos/kryos-api/internal/config"
	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/kryos/kryos-api/internal/services"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/pg"
)

// main.go --env=.env --dir=./migrations
// main.go --env=.env --promote=<uid>
// main.go --env=.env --demote=<uid>
func main() {
	defer logger.Sync()

	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()

	pgConf := pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	}

	if uid, ok := argValue("promote"); ok {
		setRole(pgConf, uid, model.RoleAdmin)
		return
	}
	if uid, ok := argValue("demote"); ok {
		setRole(pgConf, uid, model.RoleUser)
		return
	}

	if err = pg.Migrate(pgConf, getMigrationPath(cfg.MigrationsDir)); err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

// setRole is the only way to grant admin rights; the api never accepts a
// role from callers.
func setRole(conf pg.Config, uid string, role model.Role) {
	db, err := pg.Create(conf, false)
	if err != nil {
		logger.Error("users: failed to connect", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := services.NewUserService(repository.NewUserRepository(pg.Wrap(db, db)))
	user, err := users.SetRole(ctx, uid, string(role))
	if err != nil {
		logger.Error("users: failed to set role", "uid", uid, "role", string(role), "error", err)
		os.Exit(1)
	}
	logger.Info("users: role set", "uid", user.ID, "role", string(user.Role))
}

func argValue(name string) (string, bool) {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--"+name+"=") {
			return strings.TrimPrefix(v, "--"+name+"="), true
		}
	}
	return "", false
}

func getEnvPath() string {
	path, ok := argValue("env")
	if !ok {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if ok {
			logger.Error("failed to open the passed env file", "path", path, "error", err)
		}
		return ""
	}
	return path
}

func getMigrationPath(fallback string) string {
	dir, ok := argValue("dir")
	if !ok {
		dir = fallback
	}
	if _, err := os.Stat(dir); err != nil {
		logger.Error("failed to open the migrations dir", "dir", dir, "error", err)
	}
	return dir
}
