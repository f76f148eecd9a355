package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/Tomlord1122/kanban-backend/internal/domain"
	"github.com/Tomlord1122/kanban-backend/internal/repository"
)

// Input/Output structs. Field names follow the board client's camelCase contract.

// CreateCardRequest holds the data needed to create a card at the end of a list.
type CreateCardRequest struct {
	Title  string `json:"title"`
	ListID string `json:"listId"`
}

// MoveCardRequest relocates a card. NewIndex is a pointer so that an
// omitted index can be told apart from index 0.
type MoveCardRequest struct {
	CardID       string `json:"cardId"`
	SourceListID string `json:"sourceListId"`
	DestListID   string `json:"destListId"`
	NewIndex     *Index `json:"newIndex"`
}

// Index is a target position. Integers beyond the int range decode to
// math.MaxInt or math.MinInt so they are clamped like any other
// out-of-range index instead of failing the request.
type Index int

func (i *Index) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 0); err == nil {
		*i = Index(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if (err != nil && !errors.Is(err, strconv.ErrRange)) || f != math.Trunc(f) {
		return &json.UnmarshalTypeError{Value: "number " + s, Type: reflect.TypeOf(0)}
	}
	switch {
	case f >= math.MaxInt:
		*i = Index(math.MaxInt)
	case f <= math.MinInt:
		*i = Index(math.MinInt)
	default:
		*i = Index(f)
	}
	return nil
}

type CardResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
}

type ListResponse struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Position int            `json:"position"`
	Version  int64          `json:"version"`
	Cards    []CardResponse `json:"cards"`
}

type BoardResponse struct {
	OwnerID string         `json:"ownerId"`
	Lists   []ListResponse `json:"lists"`
}

// --- Service Interface ---

// BoardService is the only entry point to list sequences. Every method
// takes the already authenticated owner id.
type BoardService interface {
	// GetBoard returns every list the owner holds with resolved cards.
	GetBoard(ctx context.Context, ownerID string) (*BoardResponse, error)

	// Onboard creates whichever starter lists the owner is missing.
	Onboard(ctx context.Context, ownerID string) (*BoardResponse, error)

	// CreateCard creates a card and appends it to one of the owner's lists.
	CreateCard(ctx context.Context, ownerID string, req CreateCardRequest) (*CardResponse, error)

	// DeleteCard unlinks a card from the owner's list and deletes it.
	DeleteCard(ctx context.Context, ownerID, listID, cardID string) error

	// MoveCard relocates a card within a list or between two of the owner's lists.
	MoveCard(ctx context.Context, ownerID string, req MoveCardRequest) error
}

// BoardCache stores assembled boards per owner under a generation number.
// Invalidate moves the owner to a new generation; Delete drops one entry.
type BoardCache interface {
	Generation(ctx context.Context, ownerID string) (int64, error)
	Get(ctx context.Context, ownerID string, generation int64) (*domain.Board, error)
	Set(ctx context.Context, ownerID string, generation int64, board *domain.Board) error
	Delete(ctx context.Context, ownerID string, generation int64) error
	Invalidate(ctx context.Context, ownerID string) error
}

// Options tunes conflict retries. A nil Cache disables board caching.
type Options struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Cache           BoardCache
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:      5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

// --- Service Implementation ---

type boardService struct {
	repo  repository.Repository
	guard guard
	opts  Options
	cache BoardCache
	sf    singleflight.Group

	// uncached holds owners whose last invalidation failed. Their boards
	// are assembled from the store until an invalidation succeeds.
	uncached sync.Map
}

// NewBoardService wires the ownership guard and the reference store over repo.
func NewBoardService(repo repository.Repository, opts Options) BoardService {
	return &boardService{
		repo:  repo,
		guard: guard{repo: repo},
		opts:  opts,
		cache: opts.Cache,
	}
}

// retryConflicts reruns op while it fails with domain.ErrConflict, up to
// opts.MaxRetries extra attempts. Any other error stops immediately.
func (s *boardService) retryConflicts(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, domain.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, s.opts.MaxRetries), ctx))
}

// invalidate moves the owner's cached board to a new generation after a
// write. If that fails the current entry is deleted and the owner bypasses
// the cache until a later invalidation goes through, since a build that
// was in flight may still store the pre-write board.
func (s *boardService) invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := s.cache.Invalidate(ctx, ownerID)
	if err == nil {
		s.uncached.Delete(ownerID)
		return
	}
	log.Printf("Error invalidating board cache for owner %s: %v", ownerID, err)
	s.uncached.Store(ownerID, struct{}{})

	gen, err := s.cache.Generation(ctx, ownerID)
	if err == nil {
		err = s.cache.Delete(ctx, ownerID, gen)
	}
	if err != nil {
		log.Printf("Error dropping cached board for owner %s: %v", ownerID, err)
	}
}

func (s *boardService) cacheable(ownerID string) bool {
	if s.cache == nil {
		return false
	}
	_, skip := s.uncached.Load(ownerID)
	return !skip
}
