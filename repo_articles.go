package content

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ArticleFilter narrows article listings.
type ArticleFilter struct {
	AuthorID      string
	PublishedOnly bool
	Premium       *bool
}

// Articles is the content repository.
type Articles interface {
	repository.Repository[*Article]

	GetBySlug(ctx context.Context, slug string) (*Article, error)
	ListPage(ctx context.Context, filter ArticleFilter, page, perPage int) ([]*Article, int, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error

	OwnerResolver
}

type articles struct {
	repository.Repository[*Article]
	db *bun.DB
}

var (
	_ Articles      = (*articles)(nil)
	_ OwnerResolver = (*articles)(nil)
)

// NewArticlesRepository builds the content repository over a bun database.
func NewArticlesRepository(db *bun.DB) Articles {
	repo := repository.NewRepository[*Article](db, repository.ModelHandlers[*Article]{
		NewRecord: func() *Article { return &Article{} },
		GetID: func(a *Article) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Article, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "slug"
		},
	})

	return &articles{
		Repository: repo,
		db:         db,
	}
}

func (a *articles) GetBySlug(ctx context.Context, slug string) (*Article, error) {
	slug = strings.TrimSpace(slug)

	record := &Article{}
	err := a.db.NewSelect().
		Model(record).
		Relation("Author").
		Where("?TableAlias.slug = ?", slug).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"slug": slug})
		}
		return nil, err
	}

	return record, nil
}

// ListPage returns one page of articles plus the unpaged total.
func (a *articles) ListPage(ctx context.Context, filter ArticleFilter, page, perPage int) ([]*Article, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var records []*Article
	q := a.db.NewSelect().
		Model(&records).
		Relation("Author")

	if filter.AuthorID != "" {
		q = q.Where("?TableAlias.author_id = ?", filter.AuthorID)
	}
	if filter.PublishedOnly {
		q = q.Where("?TableAlias.is_published = ?", true)
	}
	if filter.Premium != nil {
		q = q.Where("?TableAlias.is_premium = ?", *filter.Premium)
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

func (a *articles) DeleteByID(ctx context.Context, id uuid.UUID) error {
	record := &Article{ID: id}
	return a.Repository.Delete(ctx, record)
}

// ResolveOwner reports the author of the article addressed by id. Used by the
// ownership guard.
func (a *articles) ResolveOwner(ctx context.Context, resourceID string) (string, error) {
	id, err := uuid.Parse(resourceID)
	if err != nil {
		return "", repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": resourceID})
	}

	record := &Article{}
	err = a.db.NewSelect().
		Model(record).
		Column("author_id").
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

	return record.AuthorID.String(), nil
}
