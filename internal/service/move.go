package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/Tomlord1122/kanban-backend/internal/domain"
	"github.com/Tomlord1122/kanban-backend/internal/ordering"
)

// restoreTimeout bounds the rollback of a half-applied move. Rollback runs
// even when the request context is already cancelled.
const restoreTimeout = 5 * time.Second

func (r MoveCardRequest) validate() error {
	switch {
	case strings.TrimSpace(r.CardID) == "":
		return domain.Validationf("cardId is required")
	case strings.TrimSpace(r.SourceListID) == "":
		return domain.Validationf("sourceListId is required")
	case strings.TrimSpace(r.DestListID) == "":
		return domain.Validationf("destListId is required")
	case r.NewIndex == nil:
		return domain.Validationf("newIndex is required")
	}
	return nil
}

// MoveCard implements the composite move. Both endpoints are authorized
// before anything is written; a same-list move is a single reorder write,
// a cross-list move is remove-then-insert with rollback.
func (s *boardService) MoveCard(ctx context.Context, ownerID string, req MoveCardRequest) error {
	if err := req.validate(); err != nil {
		return err
	}

	src, err := s.guard.authorize(ctx, ownerID, req.SourceListID)
	if err != nil {
		return err
	}
	dst := src
	if req.DestListID != req.SourceListID {
		dst, err = s.guard.authorize(ctx, ownerID, req.DestListID)
		if err != nil {
			return err
		}
	}

	if src.list.ID == dst.list.ID {
		err = s.reorder(ctx, src, req.CardID, int(*req.NewIndex))
		if err == nil {
			s.invalidate(ctx, ownerID)
		}
		return err
	}

	err = s.transfer(ctx, src, dst, req.CardID, int(*req.NewIndex))
	s.invalidate(ctx, ownerID)
	return err
}

// reorder moves cardID inside one list. The index is read against the
// list without the card, and re-clamped on every conflict retry.
func (s *boardService) reorder(ctx context.Context, list *ownedList, cardID string, index int) error {
	_, err := s.writeSequence(ctx, list, func(seq []string) ([]string, bool, error) {
		return ordering.Reorder(seq, cardID, index)
	})
	return err
}

// transfer moves cardID from src to dst in two compare-and-swap writes.
// If the destination write cannot be applied the card is put back where
// it was in the source.
func (s *boardService) transfer(ctx context.Context, src, dst *ownedList, cardID string, index int) error {
	if ordering.IndexOf(dst.list.CardIDs, cardID) >= 0 {
		return domain.ErrDuplicateReference
	}

	from := -1
	removed, err := s.writeSequence(ctx, src, func(seq []string) ([]string, bool, error) {
		next, at, err := ordering.Remove(seq, cardID)
		if err != nil {
			return nil, false, err
		}
		from = at
		return next, true, nil
	})
	if err != nil {
		// Nothing was written.
		return err
	}

	_, err = s.writeSequence(ctx, dst, func(seq []string) ([]string, bool, error) {
		next, err := ordering.Insert(seq, cardID, index)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err == nil {
		return nil
	}
	return s.restore(ctx, removed, cardID, from, dst.list.ID, err)
}

// restore re-inserts cardID into the source at its old index. It returns
// the destination failure when the rollback succeeds and a
// *domain.MoveFailedError when it does not.
func (s *boardService) restore(ctx context.Context, src *ownedList, cardID string, from int, destListID string, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	_, err := s.writeSequence(rctx, src, func(seq []string) ([]string, bool, error) {
		next, err := ordering.Insert(seq, cardID, from)
		if errors.Is(err, domain.ErrDuplicateReference) {
			return seq, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err == nil {
		log.Printf("Move of card %s from list %s to list %s rolled back: %v", cardID, src.list.ID, destListID, cause)
		return cause
	}

	failed := &domain.MoveFailedError{
		CardID:       cardID,
		SourceListID: src.list.ID,
		DestListID:   destListID,
		Cause:        errors.Join(cause, err),
	}
	log.Printf("MANUAL RECONCILIATION REQUIRED: %v", failed)
	return failed
}
