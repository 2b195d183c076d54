package repomanager

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/mnistlab/internal/dbx"
	"github.com/dmitrijs2005/mnistlab/internal/web/migrations"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/inferencelogs"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/samples"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/users"
)

var gooseUpContext = goose.UpContext

type PostgresRepositoryManager struct {
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) InferenceLogs(db dbx.DBTX) inferencelogs.Repository {
	return inferencelogs.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Samples(db dbx.DBTX) samples.Repository {
	return samples.NewPostgresRepository(db)
}

// RunMigrations applies every embedded migration not yet recorded.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}

	return nil
}
