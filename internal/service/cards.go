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

// CreateCard checks list ownership first, then creates the card record and
// appends it to the list. If the append cannot be written the record is
// deleted again so no unreferenced card is left behind.
func (s *boardService) CreateCard(ctx context.Context, ownerID string, req CreateCardRequest) (*CardResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.Validationf("title is required")
	}
	if strings.TrimSpace(req.ListID) == "" {
		return nil, domain.Validationf("listId is required")
	}

	list, err := s.guard.authorize(ctx, ownerID, req.ListID)
	if err != nil {
		return nil, err
	}

	card, err := s.repo.CreateCard(ctx, title)
	if err != nil {
		return nil, err
	}

	_, err = s.writeSequence(ctx, list, func(seq []string) ([]string, bool, error) {
		next, err := ordering.Insert(seq, card.ID, len(seq))
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err != nil {
		if derr := s.repo.DeleteCard(context.WithoutCancel(ctx), card.ID); derr != nil {
			log.Printf("Error deleting card %s after failed append to list %s: %v", card.ID, req.ListID, derr)
		}
		return nil, err
	}

	s.invalidate(ctx, ownerID)
	return toCardResponse(*card), nil
}

// DeleteCard unlinks the card from the owner's list before deleting the
// record, so a failure in between leaves an unreferenced card rather than
// a dangling reference.
func (s *boardService) DeleteCard(ctx context.Context, ownerID, listID, cardID string) error {
	if strings.TrimSpace(cardID) == "" {
		return domain.Validationf("card id is required")
	}
	list, err := s.guard.authorize(ctx, ownerID, listID)
	if err != nil {
		return err
	}

	_, err = s.writeSequence(ctx, list, func(seq []string) ([]string, bool, error) {
		next, _, err := ordering.Remove(seq, cardID)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)

	if err := s.repo.DeleteCard(ctx, cardID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Printf("Card %s unlinked from list %s but its record was not deleted: %v", cardID, listID, err)
	}
	return nil
}

func toCardResponse(c domain.Card) *CardResponse {
	return &CardResponse{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}
