package hub

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irampton/Lembas/internal/domain"
	domainerrors "github.com/irampton/Lembas/internal/errors"
	"github.com/irampton/Lembas/internal/importer"
	"github.com/irampton/Lembas/internal/logger"
	"github.com/irampton/Lembas/internal/store"
	"github.com/irampton/Lembas/internal/store/sqlite"
	"github.com/irampton/Lembas/internal/wire"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "hub.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return New(st, logger.Discard().Logger)
}

// drain returns every frame currently queued for sess.
func drain(sess *Session) []wire.Frame {
	var frames []wire.Frame
	for {
		select {
		case f, ok := <-sess.Outbox():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func listingOf(t *testing.T, f wire.Frame) []domain.Recipe {
	t.Helper()
	require.Equal(t, wire.EventRecipesUpdated, f.Event)
	listing, ok := f.Payload.([]domain.Recipe)
	require.True(t, ok, "payload is %T", f.Payload)
	return listing
}

func titles(recipes []domain.Recipe) []string {
	out := make([]string, len(recipes))
	for i, r := range recipes {
		out[i] = r.Title
	}
	return out
}

func TestConnect_PushesInitialListing(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	_, err := h.Save(ctx, map[string]any{"title": "Bread"})
	require.NoError(t, err)

	sess, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)

	frames := drain(sess)
	require.Len(t, frames, 1)
	assert.Equal(t, []string{"Bread"}, titles(listingOf(t, frames[0])))
	assert.Equal(t, 1, h.SessionCount())
}

func TestConnect_EmptyStorePushesEmptyListing(t *testing.T) {
	h := newTestHub(t)

	sess, err := h.Connect(context.Background(), KindLocal)
	require.NoError(t, err)

	frames := drain(sess)
	require.Len(t, frames, 1)
	listing := listingOf(t, frames[0])
	assert.NotNil(t, listing)
	assert.Empty(t, listing)
}

func TestSave_BroadcastsSortedListingToEverySession(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	a, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	b, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	drain(a)
	drain(b)

	_, err = h.Save(ctx, map[string]any{"title": "zucchini fritters"})
	require.NoError(t, err)
	saved, err := h.Save(ctx, map[string]any{"title": "Apple Pie"})
	require.NoError(t, err)
	assert.Equal(t, "Apple Pie", saved.Title)

	for _, sess := range []*Session{a, b} {
		frames := drain(sess)
		require.Len(t, frames, 2, "one broadcast per accepted mutation")
		assert.Equal(t, []string{"zucchini fritters"}, titles(listingOf(t, frames[0])))
		assert.Equal(t, []string{"Apple Pie", "zucchini fritters"}, titles(listingOf(t, frames[1])))
	}
}

func TestSave_BlankTitleRejectedWithoutMutation(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	sess, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	drain(sess)

	_, err = h.Save(ctx, map[string]any{"title": "   ", "steps": []any{"x"}})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
	assert.Equal(t, "Title is required.", domainerrors.Message(err, ""))

	assert.Empty(t, drain(sess), "no broadcast for rejected save")
	listing, err := h.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listing)
}

func TestSave_RoundTripMatchesNormalizedForm(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	saved, err := h.Save(ctx, map[string]any{
		"title":       " Soup ",
		"tags":        []any{" dinner ", ""},
		"ingredients": []any{map[string]any{"name": " Water ", "quantity": 2.0}},
		"ownerID":     "legacy-owner",
		"isPublic":    1.0,
	})
	require.NoError(t, err)

	got, err := h.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, "Soup", got.Title)
	assert.Equal(t, []string{"dinner"}, got.Tags)
	assert.Equal(t, "legacy-owner", got.OwnerID)
	assert.True(t, got.IsPublic)
	assert.NotEmpty(t, got.Ingredients[0].ID)
}

func TestDelete_Errors(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	sess, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	drain(sess)

	err = h.Delete(ctx, "")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
	assert.Equal(t, "Missing recipe id.", domainerrors.Message(err, ""))

	err = h.Delete(ctx, "does-not-exist")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
	assert.Equal(t, "Recipe not found.", domainerrors.Message(err, ""))

	assert.Empty(t, drain(sess), "failed deletes do not broadcast")
}

func TestGet_NotFound(t *testing.T) {
	h := newTestHub(t)

	_, err := h.Get(context.Background(), "missing")
	assert.Equal(t, "Recipe not found.", domainerrors.Message(err, ""))
}

func TestDispatch_Scenario(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	sess, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	observer, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	drain(sess)
	drain(observer)

	// Blank title is rejected and only the originator hears about it.
	h.Dispatch(ctx, sess, wire.Request("1", wire.EventRecipeSave, map[string]any{"title": "  "}))
	frames := drain(sess)
	require.Len(t, frames, 1)
	assert.Equal(t, wire.Nack("1", "Title is required."), frames[0])
	assert.Empty(t, drain(observer))

	// Save: broadcast first, then the ack.
	h.Dispatch(ctx, sess, wire.Request("2", wire.EventRecipeSave, map[string]any{
		"title": "Soup",
		"steps": []any{"", "Boil water", "  "},
	}))
	frames = drain(sess)
	require.Len(t, frames, 2)
	assert.Equal(t, wire.EventRecipesUpdated, frames[0].Event)
	require.Equal(t, wire.EventAck, frames[1].Event)
	require.True(t, frames[1].Reply.Success)
	saved, ok := frames[1].Reply.Data.(*domain.Recipe)
	require.True(t, ok)
	assert.Equal(t, []string{"Boil water"}, saved.Steps)
	require.Len(t, drain(observer), 1)

	// Delete succeeds and the listing no longer holds the recipe.
	h.Dispatch(ctx, sess, wire.Request("3", wire.EventRecipeDelete, saved.ID))
	frames = drain(sess)
	require.Len(t, frames, 2)
	assert.Empty(t, listingOf(t, frames[0]))
	assert.Equal(t, wire.Ack("3", nil), frames[1])

	h.Dispatch(ctx, sess, wire.Request("4", wire.EventRecipesList, nil))
	frames = drain(sess)
	require.Len(t, frames, 1)
	assert.Equal(t, []domain.Recipe{}, frames[0].Reply.Data)

	// Deleting again fails without a broadcast.
	h.Dispatch(ctx, sess, wire.Request("5", wire.EventRecipeDelete, saved.ID))
	frames = drain(sess)
	require.Len(t, frames, 1)
	assert.Equal(t, wire.Nack("5", "Recipe not found."), frames[0])
	assert.Len(t, drain(observer), 1, "observer saw only the delete broadcast")
}

// gatedStore pauses the first List call made after arm until release closes.
type gatedStore struct {
	store.Store

	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedStore) List(ctx context.Context) ([]domain.Recipe, error) {
	g.mu.Lock()
	armed := g.armed
	g.armed = false
	entered, release := g.entered, g.release
	g.mu.Unlock()

	recipes, err := g.Store.List(ctx)
	if armed {
		close(entered)
		<-release
	}
	return recipes, err
}

func TestDispatch_ListAckOrderedWithBroadcasts(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "hub.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	gate := &gatedStore{Store: st}
	h := New(gate, logger.Discard().Logger)
	ctx := context.Background()

	sess, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	drain(sess)

	gate.arm()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.Dispatch(ctx, sess, wire.Request("1", wire.EventRecipesList, nil))
	}()

	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("list request never reached the store")
	}

	// The save commits while the list read is still in flight.
	go func() {
		defer wg.Done()
		_, saveErr := h.Save(ctx, map[string]any{"title": "Soup"})
		assert.NoError(t, saveErr)
	}()
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	frames := drain(sess)
	require.Len(t, frames, 2)

	// The ack carries the listing as it was read, and the newer broadcast
	// follows it, so the session ends on the committed state.
	require.Equal(t, wire.EventAck, frames[0].Event)
	assert.Equal(t, "1", frames[0].ID)
	assert.Equal(t, []domain.Recipe{}, frames[0].Reply.Data)
	assert.Equal(t, []string{"Soup"}, titles(listingOf(t, frames[1])))
}

func TestDispatch_UnknownEventAndMissingID(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	sess, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	drain(sess)

	h.Dispatch(ctx, sess, wire.Request("9", "recipe:explode", nil))
	assert.Equal(t, []wire.Frame{wire.Nack("9", wire.ErrUnknownEvent)}, drain(sess))

	// Requests without an id still mutate but are not acknowledged.
	h.Dispatch(ctx, sess, wire.Request("", wire.EventRecipeSave, map[string]any{"title": "Quiet"}))
	frames := drain(sess)
	require.Len(t, frames, 1)
	assert.Equal(t, wire.EventRecipesUpdated, frames[0].Event)
}

func TestPayloadID(t *testing.T) {
	assert.Equal(t, "abc", payloadID("abc"))
	assert.Equal(t, "12", payloadID(12.0))
	assert.Equal(t, "7", payloadID(uint64(7)))
	assert.Equal(t, "abc", payloadID(map[string]any{"id": "abc"}))
	assert.Equal(t, "", payloadID(nil))
	assert.Equal(t, "", payloadID([]any{"abc"}))
}

func TestSave_ConcurrentDistinctRecordsAllPersist(t *testing.T) {
	h := newTestHub(t)
	h.SetOutboxSize(256)
	ctx := context.Background()

	sess, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	drain(sess)

	const n = 10
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Save(ctx, map[string]any{"title": fmt.Sprintf("Recipe %d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	listing, err := h.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listing, n)

	frames := drain(sess)
	require.Len(t, frames, n)
	// Broadcasts are queued in commit order, so listings only grow.
	for i, f := range frames {
		assert.Len(t, listingOf(t, f), i+1)
	}
}

func TestBroadcast_DropsSlowSession(t *testing.T) {
	h := newTestHub(t)
	h.SetOutboxSize(2)
	ctx := context.Background()

	slow, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	fast, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)
	drain(fast)

	// slow already holds the initial listing; two more broadcasts overflow it.
	for i := range 2 {
		_, err := h.Save(ctx, map[string]any{"title": fmt.Sprintf("r%d", i)})
		require.NoError(t, err)
		drain(fast)
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow session should have been dropped")
	}
	assert.Equal(t, 1, h.SessionCount())
}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
	fail    bool
}

func (r *recordingIndexer) IndexRecipe(_ context.Context, recipe *domain.Recipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, recipe.ID)
	if r.fail {
		return errors.New("index unavailable")
	}
	return nil
}

func (r *recordingIndexer) DeleteRecipe(_ context.Context, recipeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, recipeID)
	if r.fail {
		return errors.New("index unavailable")
	}
	return nil
}

func TestIndexer_FailuresDoNotFailMutations(t *testing.T) {
	h := newTestHub(t)
	idx := &recordingIndexer{fail: true}
	h.SetIndexer(idx)
	ctx := context.Background()

	saved, err := h.Save(ctx, map[string]any{"id": "r1", "title": "Indexed"})
	require.NoError(t, err)
	require.NoError(t, h.Delete(ctx, saved.ID))

	assert.Equal(t, []string{"r1"}, idx.indexed)
	assert.Equal(t, []string{"r1"}, idx.deleted)
}

type staticSearcher []string

func (s staticSearcher) Search(context.Context, string, int) ([]string, error) {
	return s, nil
}

func TestSearch(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	_, err := h.Search(ctx, "soup", 10)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnavailable))

	_, err = h.Save(ctx, map[string]any{"id": "r1", "title": "Soup"})
	require.NoError(t, err)

	// Stale ids from the index are skipped.
	h.SetSearcher(staticSearcher{"gone", "r1"})
	results, err := h.Search(ctx, "soup", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Soup"}, titles(results))
}

func TestImport(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	_, err := h.Import(ctx, "   ")
	assert.Equal(t, "Please provide some text to import.", domainerrors.Message(err, ""))

	_, err = h.Import(ctx, "some text")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnavailable), "disabled importer")

	h.SetImporter(importer.Func(func(context.Context, string) (*domain.Draft, error) {
		return nil, errors.New("upstream 500")
	}))
	_, err = h.Import(ctx, "some text")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrCollaborator))
	assert.Equal(t, "Unable to import recipe right now.", domainerrors.Message(err, ""))

	h.SetImporter(importer.Func(func(_ context.Context, text string) (*domain.Draft, error) {
		return &domain.Draft{Title: text}, nil
	}))
	draft, err := h.Import(ctx, "Pesto")
	require.NoError(t, err)
	assert.Equal(t, "Pesto", draft.Title)
}

func TestShutdown_ClosesSessionsAndRejectsNewOnes(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	sess, err := h.Connect(ctx, KindLocal)
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(shutdownCtx))

	select {
	case <-sess.Done():
	default:
		t.Fatal("session should be closed")
	}

	_, err = h.Connect(ctx, KindLocal)
	assert.ErrorIs(t, err, ErrShuttingDown)

	// Mutations still commit; there is simply nobody to tell.
	_, err = h.Save(ctx, map[string]any{"title": "After"})
	assert.NoError(t, err)
}

func TestDisconnect_UnknownIsNoop(t *testing.T) {
	h := newTestHub(t)
	h.Disconnect("sess-unknown")

	sess, err := h.Connect(context.Background(), KindLocal)
	require.NoError(t, err)
	h.Disconnect(sess.ID)
	h.Disconnect(sess.ID)
	assert.Equal(t, 0, h.SessionCount())
}
