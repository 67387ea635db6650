package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/directory"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	appName string = "alias-cleaner"
)

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	log.Debug("begin clean aliases")

	retentionDays, err := strconv.Atoi(env.GetVariableOrDefault(ctx, "ALIAS_RETENTION_DAYS", "30"))
	if err != nil || retentionDays < 1 {
		log.Error("invalid alias retention configuration")
		os.Exit(1)
	}

	p, err := directory.Connect(ctx, directory.LoadConfiguration(ctx))
	if err != nil {
		log.Error("failed to connect to database", "err", err.Error())
		os.Exit(1)
	}
	defer p.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	removed, err := deleteReleasedAliases(ctx, p, cutoff)
	if err != nil {
		log.Error("failed to delete released aliases", "err", err.Error())
		os.Exit(1)
	}

	log.Debug("released aliases removed", "count", removed)

	err = vacuum(ctx, p)
	if err != nil {
		log.Error("failed to vacuum table", "err", err.Error())
		os.Exit(1)
	}

	log.Info("done cleaning", "total", removed)
}

// deleteReleasedAliases removes aliases that were released before the cutoff.
// Aliases still in use are never touched.
func deleteReleasedAliases(ctx context.Context, p *pgxpool.Pool, cutoff time.Time) (int64, error) {
	sql := `DELETE FROM aliases WHERE released_at IS NOT NULL AND released_at < $1;`

	tag, err := p.Exec(ctx, sql, cutoff)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func vacuum(ctx context.Context, p *pgxpool.Pool) error {
	_, err := p.Exec(ctx, `VACUUM aliases;`)
	return err
}
