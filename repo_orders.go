package content

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Orders is the purchase repository.
type Orders interface {
	repository.Repository[*Order]

	ListByUser(ctx context.Context, userID uuid.UUID, page, perPage int) ([]*Order, int, error)
	ListAll(ctx context.Context, page, perPage int) ([]*Order, int, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*Order, error)
	HasPaidOrder(ctx context.Context, userID, articleID uuid.UUID) (bool, error)

	OwnerResolver
}

type orders struct {
	repository.Repository[*Order]
	db *bun.DB
}

var (
	_ Orders        = (*orders)(nil)
	_ OwnerResolver = (*orders)(nil)
)

// NewOrdersRepository builds the purchase repository over a bun database.
func NewOrdersRepository(db *bun.DB) Orders {
	repo := repository.NewRepository[*Order](db, repository.ModelHandlers[*Order]{
		NewRecord: func() *Order { return &Order{} },
		GetID: func(o *Order) uuid.UUID {
			if o == nil {
				return uuid.Nil
			}
			return o.ID
		},
		SetID: func(o *Order, id uuid.UUID) {
			if o != nil {
				o.ID = id
			}
		},
	})

	return &orders{
		Repository: repo,
		db:         db,
	}
}

func (o *orders) ListByUser(ctx context.Context, userID uuid.UUID, page, perPage int) ([]*Order, int, error) {
	return o.list(ctx, &userID, page, perPage)
}

func (o *orders) ListAll(ctx context.Context, page, perPage int) ([]*Order, int, error) {
	return o.list(ctx, nil, page, perPage)
}

func (o *orders) list(ctx context.Context, userID *uuid.UUID, page, perPage int) ([]*Order, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var records []*Order
	q := o.db.NewSelect().
		Model(&records).
		Relation("Article")

	if userID != nil {
		q = q.Where("?TableAlias.user_id = ?", *userID)
	}

	total, err := q.
		OrderExpr("?TableAlias.created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// MarkPaid transitions a pending order to paid. Raw SQL so the transition is
// atomic against concurrent payment attempts.
func (o *orders) MarkPaid(ctx context.Context, id uuid.UUID) (*Order, error) {
	paidAt := time.Now()
	res, err := o.db.NewUpdate().
		Model((*Order)(nil)).
		Set("status = ?", OrderStatusPaid).
		Set("paid_at = ?", paidAt).
		Set("updated_at = ?", paidAt).
		Where("id = ?", id).
		Where("status = ?", OrderStatusPending).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, NewBusinessError("order is not payable")
	}

	return o.Repository.GetByID(ctx, id.String())
}

func (o *orders) HasPaidOrder(ctx context.Context, userID, articleID uuid.UUID) (bool, error) {
	count, err := o.db.NewSelect().
		Model((*Order)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.article_id = ?", articleID).
		Where("?TableAlias.status = ?", OrderStatusPaid).
		Count(ctx)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// ResolveOwner reports the buyer on the order addressed by id. Used by the
// ownership guard.
func (o *orders) ResolveOwner(ctx context.Context, resourceID string) (string, error) {
	id, err := uuid.Parse(resourceID)
	if err != nil {
		return "", repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": resourceID})
	}

	record := &Order{}
	err = o.db.NewSelect().
		Model(record).
		Column("user_id").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": resourceID})
		}
		return "", err
	}

	return record.UserID.String(), nil
}
