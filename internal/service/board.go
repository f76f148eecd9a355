package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Tomlord1122/kanban-backend/internal/domain"
	"github.com/Tomlord1122/kanban-backend/internal/ordering"
)

// boardBuildTimeout bounds a shared board build, which runs detached from
// the request that started it.
const boardBuildTimeout = 10 * time.Second

// StarterLists is the fixed set every owner starts with, in board order.
var StarterLists = []string{"Inbox", "To Do", "In Progress", "Done"}

func (s *boardService) GetBoard(ctx context.Context, ownerID string) (*BoardResponse, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.Validationf("owner id is required")
	}
	board, err := s.loadBoard(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return toBoardResponse(board), nil
}

// Onboard is idempotent: it only creates starter titles the owner lacks.
// Two concurrent calls collide on the (owner, position) or (owner, title)
// index and the loser re-reads.
func (s *boardService) Onboard(ctx context.Context, ownerID string) (*BoardResponse, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.Validationf("owner id is required")
	}
	created := false
	err := s.retryConflicts(ctx, func() error {
		lists, err := s.repo.ListsByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(lists))
		for _, l := range lists {
			have[l.Title] = true
		}
		for _, title := range StarterLists {
			if have[title] {
				continue
			}
			if _, err := s.repo.CreateList(ctx, title, ownerID); err != nil {
				return err
			}
			created = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.invalidate(ctx, ownerID)
	}
	return s.GetBoard(ctx, ownerID)
}

// loadBoard serves from the cache when one is configured. Concurrent
// misses for the same owner and generation share one assembly; a write
// bumps the generation before it is acknowledged, so a re-read after it
// never joins a build that started earlier.
func (s *boardService) loadBoard(ctx context.Context, ownerID string) (*domain.Board, error) {
	if !s.cacheable(ownerID) {
		return s.assemble(ctx, ownerID)
	}

	gen, err := s.cache.Generation(ctx, ownerID)
	if err != nil {
		log.Printf("Error reading board cache generation for owner %s: %v", ownerID, err)
		return s.assemble(ctx, ownerID)
	}

	key := fmt.Sprintf("%s:%d", ownerID, gen)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		// Joined callers must not fail because the first one went away.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), boardBuildTimeout)
		defer cancel()

		if board, err := s.cache.Get(ctx, ownerID, gen); err != nil {
			log.Printf("Error reading cached board for owner %s: %v", ownerID, err)
		} else if board != nil {
			return board, nil
		}
		board, err := s.assemble(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, ownerID, gen, board); err != nil {
			log.Printf("Error caching board for owner %s: %v", ownerID, err)
		}
		return board, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Board), nil
}

// assemble joins the owner's lists with their cards. Cards are emitted in
// each list's sequence order; ids with no card record are skipped.
func (s *boardService) assemble(ctx context.Context, ownerID string) (*domain.Board, error) {
	lists, err := s.repo.ListsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var ids []string
	seqs := make(map[string][]string, len(lists))
	for _, l := range lists {
		ids = append(ids, l.CardIDs...)
		seqs[l.ID] = l.CardIDs
	}
	if err := ordering.CheckDisjoint(seqs); err != nil {
		log.Printf("Board of owner %s breaks reference invariants: %v", ownerID, err)
	}
	cards, err := s.repo.GetCards(ctx, ids)
	if err != nil {
		return nil, err
	}

	board := &domain.Board{OwnerID: ownerID, Lists: make([]domain.BoardList, 0, len(lists))}
	for _, l := range lists {
		bl := domain.BoardList{
			ID:       l.ID,
			Title:    l.Title,
			Position: l.Position,
			Version:  l.Version,
			Cards:    make([]domain.Card, 0, len(l.CardIDs)),
		}
		for _, id := range l.CardIDs {
			card, ok := cards[id]
			if !ok {
				log.Printf("List %s references missing card %s", l.ID, id)
				continue
			}
			bl.Cards = append(bl.Cards, card)
		}
		board.Lists = append(board.Lists, bl)
	}
	return board, nil
}

func toBoardResponse(b *domain.Board) *BoardResponse {
	resp := &BoardResponse{OwnerID: b.OwnerID, Lists: make([]ListResponse, 0, len(b.Lists))}
	for _, l := range b.Lists {
		lr := ListResponse{
			ID:       l.ID,
			Title:    l.Title,
			Position: l.Position,
			Version:  l.Version,
			Cards:    make([]CardResponse, 0, len(l.Cards)),
		}
		for _, c := range l.Cards {
			lr.Cards = append(lr.Cards, *toCardResponse(c))
		}
		resp.Lists = append(resp.Lists, lr)
	}
	return resp
}
