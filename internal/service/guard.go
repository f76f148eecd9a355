package service

import (
	"context"
	"errors"

	"github.com/Tomlord1122/kanban-backend/internal/domain"
	"github.com/Tomlord1122/kanban-backend/internal/ordering"
	"github.com/Tomlord1122/kanban-backend/internal/repository"
)

// ownedList proves that ownerID owned list when it was read. It is only
// built by guard.authorize, and writeSequence is the only caller of
// Repository.SaveList, so no sequence is written without the check.
type ownedList struct {
	ownerID string
	list    *domain.List
}

type guard struct {
	repo repository.Repository
}

// authorize fetches listID and checks it belongs to ownerID. A missing
// list and somebody else's list are both reported as domain.ErrNotFound.
func (g guard) authorize(ctx context.Context, ownerID, listID string) (*ownedList, error) {
	if ownerID == "" || listID == "" {
		return nil, domain.ErrNotFound
	}
	list, err := g.repo.GetList(ctx, listID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if list.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return &ownedList{ownerID: ownerID, list: list}, nil
}

// sequenceEdit computes the next sequence from the current one. changed
// false means there is nothing to write.
type sequenceEdit func(seq []string) (next []string, changed bool, err error)

// writeSequence applies edit to the list and saves it with compare-and-swap.
// On a version conflict the list is re-read through the guard and edit is
// applied again to the fresh sequence, so indices are re-clamped against
// what other writers left behind. It returns the capability for the
// version it wrote (or read, when nothing changed).
func (s *boardService) writeSequence(ctx context.Context, o *ownedList, edit sequenceEdit) (*ownedList, error) {
	cur := o
	err := s.retryConflicts(ctx, func() error {
		if cur == nil {
			fresh, err := s.guard.authorize(ctx, o.ownerID, o.list.ID)
			if err != nil {
				return err
			}
			cur = fresh
		}
		next, changed, err := edit(cur.list.CardIDs)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := ordering.Validate(next); err != nil {
			return err
		}
		candidate := cur.list.Clone()
		candidate.CardIDs = next
		if err := s.repo.SaveList(ctx, candidate); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				cur = nil
			}
			return err
		}
		cur = &ownedList{ownerID: o.ownerID, list: candidate}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cur, nil
}
