package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/orgdesk/internal/dbx"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/orders"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/organizations"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Organizations(db dbx.DBTX) organizations.Repository
	Orders(db dbx.DBTX) orders.Repository
}
