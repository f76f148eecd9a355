package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Tomlord1122/kanban-backend/internal/domain"
)

// Repository is the durable key-addressed store for cards and lists.
// Errors are domain.ErrNotFound, domain.ErrConflict, domain.ErrDuplicateReference
// or wrap domain.ErrStore.
type Repository interface {
	CreateCard(ctx context.Context, title string) (*domain.Card, error)
	GetCards(ctx context.Context, ids []string) (map[string]domain.Card, error)
	DeleteCard(ctx context.Context, id string) error

	CreateList(ctx context.Context, title, ownerID string) (*domain.List, error)
	GetList(ctx context.Context, id string) (*domain.List, error)
	ListsByOwner(ctx context.Context, ownerID string) ([]domain.List, error)
	// SaveList writes l.CardIDs only if the stored version still equals
	// l.Version, then bumps the version in the store and on l.
	SaveList(ctx context.Context, l *domain.List) error
}

// gormRepository implements Repository using GORM
type gormRepository struct {
	db    *gorm.DB
	retry RetryPolicy
}

// NewGormRepository creates a repository over db. Transient driver errors
// are retried according to policy.
func NewGormRepository(db *gorm.DB, policy RetryPolicy) Repository {
	return &gormRepository{db: db, retry: policy}
}

func (r *gormRepository) CreateCard(ctx context.Context, title string) (*domain.Card, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: generate card id: %v", domain.ErrStore, err)
	}
	card := &domain.Card{ID: id.String(), Title: title}
	err = r.do(ctx, "create card", func() error {
		return r.db.WithContext(ctx).Create(card).Error
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// cardLookupBatch caps the ids bound into one IN clause, well below the
// Postgres and SQLite bind parameter limits.
var cardLookupBatch = 1000

// GetCards resolves ids in batches of cardLookupBatch. Unknown ids are
// absent from the map.
func (r *gormRepository) GetCards(ctx context.Context, ids []string) (map[string]domain.Card, error) {
	out := make(map[string]domain.Card, len(ids))
	for batch := range slices.Chunk(ids, cardLookupBatch) {
		var cards []domain.Card
		err := r.do(ctx, "get cards", func() error {
			cards = cards[:0]
			return r.db.WithContext(ctx).Where("id IN ?", batch).Find(&cards).Error
		})
		if err != nil {
			return nil, err
		}
		for _, c := range cards {
			out[c.ID] = c
		}
	}
	return out, nil
}

func (r *gormRepository) DeleteCard(ctx context.Context, id string) error {
	var affected int64
	err := r.do(ctx, "delete card", func() error {
		res := r.db.WithContext(ctx).Delete(&domain.Card{}, "id = ?", id)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateList appends a list with an empty sequence after the owner's last
// list. Two writers racing for the same position, or an owner reusing a
// title, hit a unique index and get domain.ErrConflict.
func (r *gormRepository) CreateList(ctx context.Context, title, ownerID string) (*domain.List, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: generate list id: %v", domain.ErrStore, err)
	}
	list := &domain.List{
		ID:      id.String(),
		Title:   title,
		OwnerID: ownerID,
		CardIDs: domain.CardIDs{},
		Version: 1,
	}
	err = r.do(ctx, "create list", func() error {
		var next int
		row := r.db.WithContext(ctx).Model(&domain.List{}).
			Where("owner_id = ?", ownerID).
			Select("COALESCE(MAX(position), -1) + 1").Row()
		if err := row.Scan(&next); err != nil {
			return err
		}
		list.Position = next
		return r.db.WithContext(ctx).Create(list).Error
	})
	if isUniqueViolation(err) {
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *gormRepository) GetList(ctx context.Context, id string) (*domain.List, error) {
	var list domain.List
	err := r.do(ctx, "get list", func() error {
		return r.db.WithContext(ctx).First(&list, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (r *gormRepository) ListsByOwner(ctx context.Context, ownerID string) ([]domain.List, error) {
	var lists []domain.List
	err := r.do(ctx, "lists by owner", func() error {
		lists = lists[:0]
		return r.db.WithContext(ctx).
			Where("owner_id = ?", ownerID).
			Order("position ASC").Order("id ASC").
			Find(&lists).Error
	})
	if err != nil {
		return nil, err
	}
	return lists, nil
}

func (r *gormRepository) SaveList(ctx context.Context, l *domain.List) error {
	now := time.Now().UTC()
	ids := domain.CardIDs(slices.Clone(l.CardIDs))
	var affected int64
	err := r.do(ctx, "save list", func() error {
		res := r.db.WithContext(ctx).Model(&domain.List{}).
			Where("id = ? AND version = ?", l.ID, l.Version).
			Updates(map[string]any{
				"card_ids":   ids,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if affected == 1 {
		l.Version++
		l.UpdatedAt = now
		return nil
	}

	// Zero rows: either the version moved or the row is gone.
	var count int64
	err = r.do(ctx, "save list", func() error {
		return r.db.WithContext(ctx).Model(&domain.List{}).Where("id = ?", l.ID).Count(&count).Error
	})
	if err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// do runs op with transient-error retries and translates the final error.
func (r *gormRepository) do(ctx context.Context, name string, op func() error) error {
	err := r.retry.Run(ctx, op)
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStore, name, err)
}
