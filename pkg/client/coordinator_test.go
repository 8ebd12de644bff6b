package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshline/syncd/pkg/types"
)

// fakeTransport is an in-memory server: it assigns seq on push and serves
// the accumulated log on pull.
type fakeTransport struct {
	mu        sync.Mutex
	nextSeq   int64
	log       []*types.Event
	pushCalls int
	pullCalls int
	pushErr   error
	rejectIDs map[string]bool
}

func (t *fakeTransport) Push(_ context.Context, events []*types.Event) ([]*types.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pushCalls++
	if t.pushErr != nil {
		return nil, t.pushErr
	}
	for _, ev := range events {
		if t.rejectIDs[ev.ID] {
			return nil, &StatusError{Code: http.StatusBadRequest, Message: "rejected"}
		}
	}
	out := make([]*types.Event, 0, len(events))
	for _, ev := range events {
		t.nextSeq++
		stored := ev.Clone()
		stored.Seq = t.nextSeq
		t.log = append(t.log, stored)
		out = append(out, stored)
	}
	return out, nil
}

func (t *fakeTransport) Pull(_ context.Context, since int64, limit int) ([]*types.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pullCalls++
	var out []*types.Event
	for _, ev := range t.log {
		if ev.Seq > since {
			out = append(out, ev.Clone())
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (t *fakeTransport) Watch(ctx context.Context, _ func([]*types.Event)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (t *fakeTransport) setPushErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pushErr = err
}

func (t *fakeTransport) counts() (pushes, pulls int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pushCalls, t.pullCalls
}

// fakeClock drives debounce timers deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires due timers outside the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeTransport, *fakeClock) {
	t.Helper()
	tr := &fakeTransport{}
	clk := newFakeClock()
	c := New(tr, NewCache(), Options{
		ClientID:  "device-1",
		Clock:     clk,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		PullLimit: 100,
	})
	return c, tr, clk
}

func netErr() error {
	return fmt.Errorf("%w: connection refused", types.ErrNetwork)
}

func TestCreateItemOptimistic(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: "buy milk"})
	require.NoError(t, err)

	// Visible immediately, before any network round trip.
	it := c.Item(id)
	require.NotNil(t, it)
	assert.Equal(t, "buy milk", it.Text)
	assert.Equal(t, types.ItemTypeTodo, it.Type)
	assert.Equal(t, 1, c.Pending())
}

func TestCreateItemAppendsAtTail(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	a, err := c.CreateItem(types.CreateAttrs{Text: "first"})
	require.NoError(t, err)
	b, err := c.CreateItem(types.CreateAttrs{Text: "second"})
	require.NoError(t, err)

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, a, items[0].ID)
	assert.Equal(t, b, items[1].ID)
	assert.Less(t, items[0].Position, items[1].Position)
}

func TestSyncPushesAndAcks(t *testing.T) {
	c, tr, _ := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: "x"})
	require.NoError(t, err)
	c.SetImportant(id, true)
	require.Equal(t, 2, c.Pending())

	c.Sync(context.Background())

	assert.Equal(t, 0, c.Pending())
	assert.Len(t, tr.log, 2, "both mutations reached the server in one batch")
	assert.Equal(t, int64(2), c.LastSeq(), "self-echo pull advanced the cursor")
	assert.Len(t, c.cache.Events(), 2, "echoed events deduplicated, not re-applied")
}

func TestSyncRetryAfterNetworkFailure(t *testing.T) {
	c, tr, _ := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: "x"})
	require.NoError(t, err)

	tr.setPushErr(netErr())
	c.Sync(context.Background())
	assert.Equal(t, 1, c.Pending(), "network failure keeps the mutation queued")
	require.NotNil(t, c.Item(id), "optimistic state survives the failure")

	tr.setPushErr(nil)
	c.Sync(context.Background())
	assert.Equal(t, 0, c.Pending())
	assert.Len(t, tr.log, 1)
}

func TestSyncDropsTerminallyRejected(t *testing.T) {
	c, tr, _ := newTestCoordinator(t)

	good, err := c.CreateItem(types.CreateAttrs{Text: "good"})
	require.NoError(t, err)
	bad, err := c.CreateItem(types.CreateAttrs{Text: "bad"})
	require.NoError(t, err)

	badEventID := c.cache.Events()[1].ID
	tr.mu.Lock()
	tr.rejectIDs = map[string]bool{badEventID: true}
	tr.mu.Unlock()

	c.Sync(context.Background())

	// The rejected event is dropped, the rest of the batch still lands.
	assert.Equal(t, 0, c.Pending())
	require.Len(t, tr.log, 1)
	assert.Equal(t, good, tr.log[0].ItemID)

	c.Sync(context.Background())
	pushes, _ := tr.counts()
	assert.Equal(t, 3, pushes, "no retry of the dropped event")
	assert.NotNil(t, c.Item(bad), "optimistic state is not rolled back on rejection")
}

func TestOfflineQueuesWithoutPushing(t *testing.T) {
	c, tr, _ := newTestCoordinator(t)

	c.SetOnline(false)
	_, err := c.CreateItem(types.CreateAttrs{Text: "offline edit"})
	require.NoError(t, err)

	c.Sync(context.Background())
	pushes, pulls := tr.counts()
	assert.Zero(t, pushes)
	assert.Zero(t, pulls)
	assert.Equal(t, 1, c.Pending())
}

func TestReconnectKicksImmediateSync(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	c.SetOnline(false)
	_, err := c.CreateItem(types.CreateAttrs{Text: "x"})
	require.NoError(t, err)

	// Drain the kick the create itself produced.
	select {
	case <-c.kick:
	default:
	}

	c.SetOnline(true)
	select {
	case <-c.kick:
	default:
		t.Fatal("offline-to-online transition did not request a sync")
	}

	c.SetOnline(true)
	select {
	case <-c.kick:
		t.Fatal("online-to-online must not request a sync")
	default:
	}
}

func TestDebounceCoalescesEdits(t *testing.T) {
	c, _, clk := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: ""})
	require.NoError(t, err)
	before := len(c.cache.Events())

	c.SetText(id, "h")
	c.SetText(id, "he")
	c.SetText(id, "hello")
	assert.Len(t, c.cache.Events(), before, "nothing emitted inside the idle window")

	clk.Advance(defaultDebounceWindow)

	events := c.cache.Events()
	require.Len(t, events, before+1, "exactly one coalesced event")
	assert.Equal(t, "hello", *events[before].Change.Str)
	assert.Equal(t, "hello", c.Item(id).Text)
}

func TestFlushSupersedesDebounce(t *testing.T) {
	c, _, clk := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: ""})
	require.NoError(t, err)

	c.SetText(id, "draft")
	c.Flush(id, types.FieldText)
	assert.Equal(t, "draft", c.Item(id).Text, "flush emits without waiting")

	before := len(c.cache.Events())
	clk.Advance(defaultDebounceWindow * 2)
	assert.Len(t, c.cache.Events(), before, "the elapsed timer must not emit a duplicate")

	// Flushing with nothing pending is a no-op.
	c.Flush(id, types.FieldText)
	assert.Len(t, c.cache.Events(), before)
}

func TestSetCancelsPendingDebounce(t *testing.T) {
	c, _, clk := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: ""})
	require.NoError(t, err)

	c.SetText(id, "typed")
	c.Set(id, types.StringChange(types.FieldText, "pasted"))
	assert.Equal(t, "pasted", c.Item(id).Text)

	before := len(c.cache.Events())
	clk.Advance(defaultDebounceWindow * 2)
	assert.Len(t, c.cache.Events(), before, "cancelled debounce must stay silent")
	assert.Equal(t, "pasted", c.Item(id).Text)
}

func TestEditGuardBuffersRemoteUpdates(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: "local"})
	require.NoError(t, err)

	c.BeginEdit(id, types.FieldText)

	remoteText := &types.Event{
		ID: "remote-1", ItemID: id, Type: types.EventFieldChanged,
		Timestamp: 2_000_000, ClientID: "other-device",
		Seq: 7, Change: types.StringChange(types.FieldText, "remote"),
	}
	remoteFlag := &types.Event{
		ID: "remote-2", ItemID: id, Type: types.EventFieldChanged,
		Timestamp: 2_000_000, ClientID: "other-device",
		Seq: 8, Change: types.FlagChange(types.FieldImportant, true),
	}
	c.ApplyRemote([]*types.Event{remoteText, remoteFlag})

	// The guarded field holds its local value; other fields update freely.
	assert.Equal(t, "local", c.Item(id).Text)
	assert.True(t, c.Item(id).Important)
	assert.Equal(t, int64(8), c.LastSeq(), "buffered events still advance the cursor")

	c.EndEdit(id, types.FieldText)
	assert.Equal(t, "remote", c.Item(id).Text, "buffered update applied after the edit")
}

func TestApplyRemoteSelfEchoIsIdempotent(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: "x"})
	require.NoError(t, err)
	local := c.cache.Events()[0]

	echo := local.Clone()
	echo.Seq = 1
	c.ApplyRemote([]*types.Event{echo})

	assert.Len(t, c.cache.Events(), 1, "echo must not duplicate the local event")
	assert.Equal(t, int64(1), c.LastSeq())
	assert.NotNil(t, c.Item(id))
}

func TestPullPaginates(t *testing.T) {
	tr := &fakeTransport{}
	for i := 1; i <= 5; i++ {
		tr.log = append(tr.log, &types.Event{
			ID: fmt.Sprintf("e%d", i), ItemID: fmt.Sprintf("item%d", i),
			Type: types.EventItemCreated, Timestamp: int64(i), ClientID: "other",
			Seq: int64(i), Create: &types.CreateAttrs{Position: "n"},
		})
	}
	tr.nextSeq = 5

	c := New(tr, NewCache(), Options{
		ClientID:  "device-1",
		Clock:     newFakeClock(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		PullLimit: 2,
	})

	c.Sync(context.Background())

	assert.Equal(t, int64(5), c.LastSeq())
	assert.Equal(t, 5, c.cache.Len())
	_, pulls := tr.counts()
	assert.Equal(t, 3, pulls, "two full pages plus the short final page")
}

func TestPullLimitCappedAtServerPage(t *testing.T) {
	c := New(&fakeTransport{}, NewCache(), Options{
		ClientID:  "device-1",
		Clock:     newFakeClock(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		PullLimit: 100_000,
	})
	assert.Equal(t, maxPullLimit, c.pullLimit,
		"a limit beyond the server page cap would misread clamped pages as the tail")
}

func TestLocalTimestampsMonotonic(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	// The clock is frozen; the logical timestamp must still advance so the
	// later edit supersedes the earlier one.
	id, err := c.CreateItem(types.CreateAttrs{Text: ""})
	require.NoError(t, err)
	c.Set(id, types.StringChange(types.FieldText, "first"))
	c.Set(id, types.StringChange(types.FieldText, "second"))

	events := c.cache.Events()
	require.Len(t, events, 3)
	assert.Less(t, events[1].Timestamp, events[2].Timestamp)
	assert.Equal(t, "second", c.Item(id).Text)
}

func TestMoveBetweenSiblings(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	a, err := c.CreateItem(types.CreateAttrs{Text: "a"})
	require.NoError(t, err)
	b, err := c.CreateItem(types.CreateAttrs{Text: "b"})
	require.NoError(t, err)

	// Move b to the head of the list.
	require.NoError(t, c.Move(b, "", a))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, b, items[0].ID)
	assert.Equal(t, a, items[1].ID)
}

func TestDeleteItem(t *testing.T) {
	c, tr, _ := newTestCoordinator(t)

	id, err := c.CreateItem(types.CreateAttrs{Text: "doomed"})
	require.NoError(t, err)
	c.DeleteItem(id)

	assert.Nil(t, c.Item(id), "deletion applies optimistically")

	c.Sync(context.Background())
	assert.Equal(t, 0, c.Pending())
	assert.Len(t, tr.log, 2)
}
