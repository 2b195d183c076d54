package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/mnistlab/internal/dbx"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/inferencelogs"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/samples"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/users"
)

// RepositoryManager hands out repositories bound to a pool or a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	InferenceLogs(db dbx.DBTX) inferencelogs.Repository
	Samples(db dbx.DBTX) samples.Repository
}
