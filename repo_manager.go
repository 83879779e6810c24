package content

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories behind a single handle.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Articles() Articles
	Orders() Orders
}

type mngr struct {
	db       *bun.DB
	users    Users
	articles Articles
	orders   Orders
}

// NewRepositoryManager builds the repository set over a bun database.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:       db,
		users:    NewUsersRepository(db),
		articles: NewArticlesRepository(db),
		orders:   NewOrdersRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.articles == nil {
		return errors.New("repository articles should be initialized")
	}

	if m.orders == nil {
		return errors.New("repository orders should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Articles() Articles {
	return m.articles
}

func (m mngr) Orders() Orders {
	return m.orders
}
