package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshline/syncd/pkg/position"
	"github.com/meshline/syncd/pkg/types"
)

// Mutation lifecycle. Every local edit is applied optimistically, queued,
// sent, and finally acknowledged or failed. Failed mutations stay queued
// and are retried with a fixed delay, or immediately when connectivity
// returns. Terminal rejections (4xx) are dropped, never retried.
type MutationState int

const (
	MutationQueued MutationState = iota
	MutationSent
	MutationAcked
	MutationFailed
)

type mutation struct {
	event    *types.Event
	state    MutationState
	attempts int
}

// Options configures a Coordinator. Zero values take the defaults below.
type Options struct {
	ClientID       string
	Clock          Clock
	Logger         *slog.Logger
	RetryDelay     time.Duration // fixed backoff between push retries
	PullInterval   time.Duration // polling cadence of the pull loop
	DebounceWindow time.Duration // idle window coalescing rapid edits
	PullLimit      int           // page size for pulls
}

const (
	defaultRetryDelay     = 5 * time.Second
	defaultPullInterval   = 3 * time.Second
	defaultDebounceWindow = 300 * time.Millisecond
	defaultPullLimit      = 500

	// maxPullLimit matches the server's page clamp. A larger configured limit
	// would make a server-clamped full page look like a short final page and
	// stop the pull loop with events still pending.
	maxPullLimit = 1000
)

// editKey addresses one field of one item for debouncing and the
// edit-in-progress guard.
type editKey struct {
	itemID string
	field  types.Field
}

// pendingEdit is a coalesced local edit waiting out its idle window.
type pendingEdit struct {
	timer  Timer
	change *types.FieldChange
	ts     int64
}

// Coordinator orchestrates the sync lifecycle for one device: optimistic
// local apply, the push queue, the pull cursor, offline retry, debounced
// edits, and the editing guard. All sync work is asynchronous; local edits
// never block on the network.
type Coordinator struct {
	transport Transport
	cache     *Cache
	clock     Clock
	log       *slog.Logger

	clientID       string
	retryDelay     time.Duration
	pullInterval   time.Duration
	debounceWindow time.Duration
	pullLimit      int

	mu        sync.Mutex
	queue     []*mutation
	lastSeq   int64
	lastTS    int64
	online    bool
	debounced map[editKey]*pendingEdit
	editing   map[editKey]bool
	buffered  []*types.Event

	// syncMu serializes sync cycles: an in-flight cycle is never cancelled
	// by a new local edit, the edit just waits for the next cycle.
	syncMu sync.Mutex
	kick   chan struct{}
}

// New creates a Coordinator over the given transport and local cache.
func New(transport Transport, cache *Cache, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.New().String()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.PullInterval <= 0 {
		opts.PullInterval = defaultPullInterval
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = defaultDebounceWindow
	}
	if opts.PullLimit <= 0 {
		opts.PullLimit = defaultPullLimit
	}
	if opts.PullLimit > maxPullLimit {
		opts.PullLimit = maxPullLimit
	}
	return &Coordinator{
		transport:      transport,
		cache:          cache,
		clock:          opts.Clock,
		log:            opts.Logger,
		clientID:       opts.ClientID,
		retryDelay:     opts.RetryDelay,
		pullInterval:   opts.PullInterval,
		debounceWindow: opts.DebounceWindow,
		pullLimit:      opts.PullLimit,
		online:         true,
		debounced:      make(map[editKey]*pendingEdit),
		editing:        make(map[editKey]bool),
		kick:           make(chan struct{}, 1),
	}
}

// Items returns the current optimistic projection.
func (c *Coordinator) Items() []*types.Item { return c.cache.Items() }

// Item returns the current optimistic projection of one item, or nil.
func (c *Coordinator) Item(id string) *types.Item { return c.cache.Get(id) }

// LastSeq returns the pull cursor.
func (c *Coordinator) LastSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// Pending returns the number of mutations not yet acknowledged.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// timestamp returns the next logical clock value in milliseconds. It never
// goes backwards, so successive local edits always supersede each other.
func (c *Coordinator) timestampLocked() int64 {
	ts := c.clock.Now().UnixMilli()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

// newEventID generates a UUID v7 event id, falling back to v4.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// emit applies a local event optimistically and queues it for push.
func (c *Coordinator) emit(ev *types.Event) {
	c.cache.Append(ev)
	c.mu.Lock()
	c.queue = append(c.queue, &mutation{event: ev, state: MutationQueued})
	c.mu.Unlock()
	c.kickSync()
}

// CreateItem emits an item_created event and returns the new item id. When
// attrs.Position is empty the item is placed after the current tail of the
// list.
func (c *Coordinator) CreateItem(attrs types.CreateAttrs) (string, error) {
	if attrs.Position == "" {
		last := ""
		if items := c.cache.Items(); len(items) > 0 {
			last = items[len(items)-1].Position
		}
		pos, err := position.Between(last, "")
		if err != nil {
			return "", err
		}
		attrs.Position = pos
	}
	if attrs.Type == "" {
		attrs.Type = types.ItemTypeTodo
	}

	itemID := newEventID()
	c.mu.Lock()
	ev := &types.Event{
		ID:        newEventID(),
		ItemID:    itemID,
		Type:      types.EventItemCreated,
		Timestamp: c.timestampLocked(),
		ClientID:  c.clientID,
		Create:    &attrs,
	}
	c.mu.Unlock()
	c.emit(ev)
	return itemID, nil
}

// DeleteItem emits an item_deleted event. Deletion is permanent: stale
// field changes arriving afterwards will not resurrect the item.
func (c *Coordinator) DeleteItem(itemID string) {
	c.mu.Lock()
	ev := &types.Event{
		ID:        newEventID(),
		ItemID:    itemID,
		Type:      types.EventItemDeleted,
		Timestamp: c.timestampLocked(),
		ClientID:  c.clientID,
	}
	c.mu.Unlock()
	c.emit(ev)
}

// Set emits a field_changed event immediately. Any pending debounced edit
// for the same field is superseded and cancelled.
func (c *Coordinator) Set(itemID string, change *types.FieldChange) {
	key := editKey{itemID: itemID, field: change.Field}

	c.mu.Lock()
	if pending, ok := c.debounced[key]; ok {
		pending.timer.Stop()
		delete(c.debounced, key)
	}
	ev := &types.Event{
		ID:        newEventID(),
		ItemID:    itemID,
		Type:      types.EventFieldChanged,
		Timestamp: c.timestampLocked(),
		ClientID:  c.clientID,
		Change:    change,
	}
	c.mu.Unlock()
	c.emit(ev)
}

// Edit coalesces rapid edits to the same field: only the last change within
// the idle window is emitted. Flush emits it early.
func (c *Coordinator) Edit(itemID string, change *types.FieldChange) {
	key := editKey{itemID: itemID, field: change.Field}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pending, ok := c.debounced[key]; ok {
		pending.timer.Stop()
	}
	pending := &pendingEdit{
		change: change,
		ts:     c.timestampLocked(),
	}
	pending.timer = c.clock.AfterFunc(c.debounceWindow, func() {
		c.fireDebounced(key, pending)
	})
	c.debounced[key] = pending
}

// fireDebounced emits a coalesced edit when its idle window elapses.
func (c *Coordinator) fireDebounced(key editKey, pending *pendingEdit) {
	c.mu.Lock()
	if c.debounced[key] != pending {
		// Superseded by a later edit or an explicit flush.
		c.mu.Unlock()
		return
	}
	delete(c.debounced, key)
	ev := c.eventForPendingLocked(key, pending)
	c.mu.Unlock()
	c.emit(ev)
}

// Flush emits a pending debounced edit immediately, superseding its timer.
// Flushing a field with nothing pending is a no-op.
func (c *Coordinator) Flush(itemID string, field types.Field) {
	key := editKey{itemID: itemID, field: field}

	c.mu.Lock()
	pending, ok := c.debounced[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	pending.timer.Stop()
	delete(c.debounced, key)
	ev := c.eventForPendingLocked(key, pending)
	c.mu.Unlock()
	c.emit(ev)
}

func (c *Coordinator) eventForPendingLocked(key editKey, pending *pendingEdit) *types.Event {
	return &types.Event{
		ID:        newEventID(),
		ItemID:    key.itemID,
		Type:      types.EventFieldChanged,
		Timestamp: pending.ts,
		ClientID:  c.clientID,
		Change:    pending.change,
	}
}

// Convenience edit helpers.

// SetText coalesces keystrokes into one text change per idle window.
func (c *Coordinator) SetText(itemID, text string) {
	c.Edit(itemID, types.StringChange(types.FieldText, text))
}

// SetImportant toggles the important flag.
func (c *Coordinator) SetImportant(itemID string, v bool) {
	c.Set(itemID, types.FlagChange(types.FieldImportant, v))
}

// SetCompleted toggles completion.
func (c *Coordinator) SetCompleted(itemID string, v bool) {
	c.Set(itemID, types.FlagChange(types.FieldCompleted, v))
}

// SetIndented toggles indentation.
func (c *Coordinator) SetIndented(itemID string, v bool) {
	c.Set(itemID, types.FlagChange(types.FieldIndented, v))
}

// SetArchived toggles archival.
func (c *Coordinator) SetArchived(itemID string, v bool) {
	c.Set(itemID, types.FlagChange(types.FieldArchived, v))
}

// SetLevel changes a section's level.
func (c *Coordinator) SetLevel(itemID string, level int) {
	c.Set(itemID, types.NumberChange(types.FieldLevel, level))
}

// SetParent reparents an item.
func (c *Coordinator) SetParent(itemID, parentID string) {
	c.Set(itemID, types.StringChange(types.FieldParent, parentID))
}

// Move places an item between two sibling items, allocating a fresh
// position key. Empty neighbor ids mean the corresponding end of the list.
func (c *Coordinator) Move(itemID, beforeID, afterID string) error {
	before, after := "", ""
	if beforeID != "" {
		if it := c.cache.Get(beforeID); it != nil {
			before = it.Position
		}
	}
	if afterID != "" {
		if it := c.cache.Get(afterID); it != nil {
			after = it.Position
		}
	}
	pos, err := position.Between(before, after)
	if err != nil {
		return err
	}
	c.Set(itemID, types.StringChange(types.FieldPosition, pos))
	return nil
}

// Editing guard. While a field is actively being edited, remote updates to
// it are buffered instead of applied, so the remote write cannot clobber
// the text under the caret. EndEdit flushes the buffer in received order.

// BeginEdit marks a field as actively edited.
func (c *Coordinator) BeginEdit(itemID string, field types.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing[editKey{itemID: itemID, field: field}] = true
}

// EndEdit clears the guard, flushes any pending debounced local edit for
// the field, and applies the buffered remote updates in the order they were
// received.
func (c *Coordinator) EndEdit(itemID string, field types.Field) {
	key := editKey{itemID: itemID, field: field}

	c.Flush(itemID, field)

	c.mu.Lock()
	delete(c.editing, key)
	var flush, keep []*types.Event
	for _, ev := range c.buffered {
		if ev.ItemID == key.itemID && ev.Change != nil && ev.Change.Field == key.field {
			flush = append(flush, ev)
		} else {
			keep = append(keep, ev)
		}
	}
	c.buffered = keep
	c.mu.Unlock()

	for _, ev := range flush {
		c.cache.Append(ev)
	}
}

// ApplyRemote routes server events into the local cache, advancing the pull
// cursor. Events targeting an actively edited field are buffered until the
// edit ends. Self-echoed events are deduplicated by the cache; receiving
// them back is redundant work, not an error.
func (c *Coordinator) ApplyRemote(events []*types.Event) {
	for _, ev := range events {
		c.mu.Lock()
		if ev.Seq > c.lastSeq {
			c.lastSeq = ev.Seq
		}
		guard := ev.Type == types.EventFieldChanged && ev.Change != nil &&
			c.editing[editKey{itemID: ev.ItemID, field: ev.Change.Field}]
		if guard {
			c.buffered = append(c.buffered, ev)
			c.mu.Unlock()
			continue
		}
		c.mu.Unlock()
		c.cache.Append(ev)
	}
}

// SetOnline records connectivity. The offline-to-online transition triggers
// an immediate sync instead of waiting for the next timer.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	wasOnline := c.online
	c.online = online
	c.mu.Unlock()

	if online && !wasOnline {
		c.kickSync()
	}
}

// Online reports the recorded connectivity state.
func (c *Coordinator) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// kickSync requests an immediate sync cycle without blocking.
func (c *Coordinator) kickSync() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Sync runs one push+pull cycle. Network failures are non-fatal: mutations
// stay queued for the next cycle and the cache keeps serving the local
// optimistic state.
func (c *Coordinator) Sync(ctx context.Context) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	if !c.Online() {
		return
	}
	c.push(ctx)
	c.pull(ctx)
}

// push sends queued and previously-failed mutations as one batch. On a
// terminal rejection the batch is replayed one event at a time so only the
// rejected events are dropped.
func (c *Coordinator) push(ctx context.Context) {
	c.mu.Lock()
	pending := make([]*mutation, 0, len(c.queue))
	events := make([]*types.Event, 0, len(c.queue))
	for _, m := range c.queue {
		if m.state == MutationQueued || m.state == MutationFailed {
			m.state = MutationSent
			m.attempts++
			pending = append(pending, m)
			events = append(events, m.event)
		}
	}
	c.mu.Unlock()

	if len(events) == 0 {
		return
	}

	if _, err := c.transport.Push(ctx, events); err != nil {
		if IsTerminal(err) {
			c.pushIndividually(ctx, pending)
			return
		}
		c.log.Warn("push failed, will retry", "events", len(events), "err", err)
		c.markFailed(pending)
		return
	}
	c.ack(pending)
}

// pushIndividually isolates terminal rejections inside a failed batch.
func (c *Coordinator) pushIndividually(ctx context.Context, pending []*mutation) {
	for _, m := range pending {
		if _, err := c.transport.Push(ctx, []*types.Event{m.event}); err != nil {
			if IsTerminal(err) {
				c.log.Error("event rejected, dropping", "event", m.event.ID, "err", err)
				c.drop(m)
				continue
			}
			c.log.Warn("push failed, will retry", "event", m.event.ID, "err", err)
			c.markFailed([]*mutation{m})
			continue
		}
		c.ack([]*mutation{m})
	}
}

// ack marks mutations acknowledged and removes them from the queue.
func (c *Coordinator) ack(pending []*mutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range pending {
		m.state = MutationAcked
	}
	c.compactQueueLocked()
}

// drop removes a terminally-rejected mutation from the queue.
func (c *Coordinator) drop(m *mutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.state = MutationAcked // leaves the queue; the event itself was refused
	c.compactQueueLocked()
}

func (c *Coordinator) markFailed(pending []*mutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range pending {
		m.state = MutationFailed
	}
}

func (c *Coordinator) compactQueueLocked() {
	kept := c.queue[:0]
	for _, m := range c.queue {
		if m.state != MutationAcked {
			kept = append(kept, m)
		}
	}
	c.queue = kept
}

// pull pages remote events into the cache until a short page.
func (c *Coordinator) pull(ctx context.Context) {
	for {
		since := c.LastSeq()
		events, err := c.transport.Pull(ctx, since, c.pullLimit)
		if err != nil {
			c.log.Warn("pull failed, will retry", "since", since, "err", err)
			return
		}
		c.ApplyRemote(events)
		if len(events) < c.pullLimit {
			return
		}
	}
}

// Run drives periodic sync until ctx is cancelled: a pull-interval ticker,
// a retry ticker for failed pushes, and immediate cycles on new mutations
// and reconnects.
func (c *Coordinator) Run(ctx context.Context) {
	pullTicker := time.NewTicker(c.pullInterval)
	defer pullTicker.Stop()
	retryTicker := time.NewTicker(c.retryDelay)
	defer retryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.Sync(ctx)
		case <-pullTicker.C:
			c.Sync(ctx)
		case <-retryTicker.C:
			if c.Pending() > 0 {
				c.Sync(ctx)
			}
		}
	}
}

// RunWatch keeps a realtime subscription alive alongside the polling loop,
// reconnecting with the retry delay after failures. Frames feed the same
// ApplyRemote path as pulls; duplicate delivery is tolerated by
// construction.
func (c *Coordinator) RunWatch(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if c.Online() {
			if err := c.transport.Watch(ctx, c.ApplyRemote); err != nil && ctx.Err() == nil {
				c.log.Warn("watch disconnected", "err", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}
