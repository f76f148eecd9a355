package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/kanban-backend/internal/config"
	"github.com/Tomlord1122/kanban-backend/internal/database"
	"github.com/Tomlord1122/kanban-backend/internal/domain"
	"github.com/Tomlord1122/kanban-backend/internal/ordering"
	"github.com/Tomlord1122/kanban-backend/internal/repository"
)

func testOptions() Options {
	return Options{MaxRetries: 5, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func newRepo(t *testing.T) repository.Repository {
	t.Helper()
	db, err := database.New(config.DBConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "service.db"),
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return repository.NewGormRepository(db.GetDB(), repository.DefaultRetryPolicy())
}

// saveScript decides the outcome of successive SaveList calls on one list.
// Entries in outcomes are consumed first (nil means "really save"), then
// every further call gets then.
type saveScript struct {
	outcomes []error
	then     error
}

// faultyRepo wraps a real repository and injects SaveList failures.
type faultyRepo struct {
	repository.Repository

	mu      sync.Mutex
	scripts map[string]*saveScript
	saves   map[string]int
	created []string
}

func newFaultyRepo(inner repository.Repository) *faultyRepo {
	return &faultyRepo{Repository: inner, scripts: map[string]*saveScript{}, saves: map[string]int{}}
}

func (f *faultyRepo) script(listID string, s saveScript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[listID] = &s
}

func (f *faultyRepo) SaveList(ctx context.Context, l *domain.List) error {
	f.mu.Lock()
	f.saves[l.ID]++
	var injected error
	if s, ok := f.scripts[l.ID]; ok {
		if len(s.outcomes) > 0 {
			injected = s.outcomes[0]
			s.outcomes = s.outcomes[1:]
		} else {
			injected = s.then
		}
	}
	f.mu.Unlock()
	if injected != nil {
		return injected
	}
	return f.Repository.SaveList(ctx, l)
}

func (f *faultyRepo) CreateCard(ctx context.Context, title string) (*domain.Card, error) {
	card, err := f.Repository.CreateCard(ctx, title)
	if err == nil {
		f.mu.Lock()
		f.created = append(f.created, card.ID)
		f.mu.Unlock()
	}
	return card, err
}

func (f *faultyRepo) saveCount(listID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[listID]
}

// fixture is an onboarded owner with handles on the first lists.
type fixture struct {
	svc   BoardService
	repo  repository.Repository
	owner string
	lists []ListResponse
}

func newFixture(t *testing.T, repo repository.Repository, opts Options) *fixture {
	t.Helper()
	svc := NewBoardService(repo, opts)
	board, err := svc.Onboard(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, board.Lists, len(StarterLists))
	return &fixture{svc: svc, repo: repo, owner: "alice", lists: board.Lists}
}

// addCards creates cards with the given titles at the end of listID and
// returns their ids in order.
func (f *fixture) addCards(t *testing.T, listID string, titles ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		card, err := f.svc.CreateCard(context.Background(), f.owner, CreateCardRequest{Title: title, ListID: listID})
		require.NoError(t, err)
		ids = append(ids, card.ID)
	}
	return ids
}

func (f *fixture) sequence(t *testing.T, listID string) []string {
	t.Helper()
	l, err := f.repo.GetList(context.Background(), listID)
	require.NoError(t, err)
	return []string(l.CardIDs)
}

func (f *fixture) snapshot(t *testing.T, listID string) domain.List {
	t.Helper()
	l, err := f.repo.GetList(context.Background(), listID)
	require.NoError(t, err)
	return *l
}

// requireInvariants checks that no card appears twice in a list or in two lists.
func requireInvariants(t *testing.T, repo repository.Repository, owners ...string) {
	t.Helper()
	seqs := map[string][]string{}
	for _, owner := range owners {
		lists, err := repo.ListsByOwner(context.Background(), owner)
		require.NoError(t, err)
		for _, l := range lists {
			seqs[l.ID] = l.CardIDs
		}
	}
	require.NoError(t, ordering.CheckDisjoint(seqs))
}

func index(i int) *Index {
	v := Index(i)
	return &v
}
