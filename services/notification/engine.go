package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	notificationRepo "xquests/database/repository/notification"
	"xquests/models"
	"xquests/services/cache"
	"xquests/services/identity"
	"xquests/services/realtime"

	"go.uber.org/zap"
)

const (
	DefaultFetchLimit = 50
	DefaultMaxEntries = 100
)

// RemoteStore is the part of the notifications table the engine uses.
type RemoteStore interface {
	List(ctx context.Context, filter notificationRepo.ListFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
}

// Realtime is the fan-in channel as seen by the engine.
type Realtime interface {
	Connect(ctx context.Context) (bool, error)
	AddMessageHandler(h realtime.MessageHandler) func()
	SubscribeToTable(ctx context.Context, opts realtime.TableOptions, h realtime.MessageHandler) (func(), error)
	GetConnectionStatus() bool
}

// SyncRetrier queues a remote mutation that failed so it is retried later.
type SyncRetrier interface {
	EnqueueSync(ctx context.Context, p models.SyncPayload) error
}

// Observer is called with the full list, newest first, after every change.
type Observer func([]models.Notification)

type EngineConfig struct {
	CacheKey   string
	FetchLimit int
	MaxEntries int
	// Table enables the row-insert fallback subscription when set.
	Table string
}

// Engine owns one identity's view of its notifications. It reconciles the
// list against the local cache and the remote store, merges realtime
// events and notifies observers.
//
// Mutations are optimistic: local state changes and observers fire before
// the remote call, and a failed remote call is not rolled back. Failed
// calls are handed to the SyncRetrier when one is configured.
type Engine struct {
	store    RemoteStore
	cache    cache.LocalCache
	channel  Realtime
	identity identity.Provider
	retrier  SyncRetrier
	logger   *zap.Logger
	cfg      EngineConfig
	now      func() time.Time

	// notifyMu keeps cache writes and observer calls in mutation order.
	notifyMu sync.Mutex

	mu            sync.Mutex
	initDone      chan struct{}
	notifications []models.Notification
	observers     map[uint64]Observer
	nextObserver  uint64
	sessionUser   string
	teardown      []func()
	closed        bool
}

type EngineOption func(*Engine)

func WithSyncRetrier(r SyncRetrier) EngineOption {
	return func(e *Engine) { e.retrier = r }
}

func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func withClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store RemoteStore, c cache.LocalCache, channel Realtime, ident identity.Provider, cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	e := &Engine{
		store:     store,
		cache:     c,
		channel:   channel,
		identity:  ident,
		cfg:       cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
		observers: make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("notification-engine").With(zap.String("cacheKey", cfg.CacheKey))
	return e
}

// Initialize loads the cache, reconciles with the remote store and joins
// the realtime channel. Concurrent calls share one run, which continues
// after ctx ends. A run that fails is cleared so the next call retries it.
// Failures are logged, never returned.
func (e *Engine) Initialize(ctx context.Context) {
	e.mu.Lock()
	done := e.initDone
	if done == nil {
		done = make(chan struct{})
		e.initDone = done
		go e.runInit(context.WithoutCancel(ctx), done)
	}
	e.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *Engine) runInit(ctx context.Context, done chan struct{}) {
	defer close(done)

	if cached, err := cache.LoadNotifications(ctx, e.cache, e.cfg.CacheKey); err != nil {
		e.logger.Warn("failed to load cached notifications", zap.Error(err))
	} else if len(cached) > 0 {
		e.replace(ctx, cached)
	}

	var reconcileErr, subscribeErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if reconcileErr = e.reconcile(ctx); reconcileErr != nil {
			e.logger.Error("initial reconciliation failed", zap.Error(reconcileErr))
		}
	}()
	go func() {
		defer wg.Done()
		if subscribeErr = e.subscribe(ctx); subscribeErr != nil {
			e.logger.Error("realtime subscription failed", zap.Error(subscribeErr))
		}
	}()
	wg.Wait()

	if reconcileErr != nil || subscribeErr != nil {
		e.resetInit()
	}
}

// resetInit undoes a partial subscription and lets the next Initialize
// start over. The list loaded so far is kept.
func (e *Engine) resetInit() {
	e.mu.Lock()
	teardown := e.teardown
	e.teardown = nil
	e.sessionUser = ""
	e.initDone = nil
	e.mu.Unlock()

	for _, fn := range teardown {
		fn()
	}
}

func (e *Engine) currentUser(ctx context.Context) string {
	if e.identity == nil {
		return ""
	}
	id, ok := e.identity.Current(ctx)
	if !ok {
		return ""
	}
	return id.UserID
}

func (e *Engine) subscribe(ctx context.Context) error {
	userID := e.currentUser(ctx)
	if userID == "" {
		e.logger.Debug("no identity, skipping realtime subscription")
		return nil
	}
	if e.channel == nil {
		return nil
	}

	e.mu.Lock()
	e.sessionUser = userID
	e.mu.Unlock()

	remove := e.channel.AddMessageHandler(e.handleMessage)
	e.addTeardown(remove)

	if _, err := e.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime channel: %w", err)
	}

	if e.cfg.Table != "" {
		// The subscription outlives ctx; it ends through unsubscribe.
		unsubscribe, err := e.channel.SubscribeToTable(context.WithoutCancel(ctx), realtime.TableOptions{
			Table:  e.cfg.Table,
			Event:  realtime.EventInsert,
			Filter: "userId=eq." + userID,
		}, e.handleMessage)
		if err != nil {
			e.logger.Warn("row-insert fallback unavailable", zap.Error(err))
			return nil
		}
		e.addTeardown(unsubscribe)
	}
	return nil
}

// addTeardown records fn for Close. On a closed engine fn runs at once.
func (e *Engine) addTeardown(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		fn()
		return
	}
	e.teardown = append(e.teardown, fn)
	e.mu.Unlock()
}

// handleMessage merges inbound events addressed to this session.
func (e *Engine) handleMessage(m realtime.Message) {
	e.mu.Lock()
	userID := e.sessionUser
	e.mu.Unlock()

	switch msg := m.(type) {
	case realtime.NotificationMessage:
		if msg.Notification.VisibleTo(userID) {
			e.merge(msg.Notification)
		}
	case realtime.UserNotificationMessage:
		if msg.UserID == userID {
			e.merge(msg.Notification)
		}
	case realtime.RowChangeMessage:
		if msg.Event == realtime.EventInsert && msg.Record.VisibleTo(userID) {
			e.merge(msg.Record)
		}
	}
}

// merge prepends n, or updates it in place when its id is already listed.
// Read state never reverts to false.
func (e *Engine) merge(n models.Notification) {
	now := e.now()
	n = models.Normalize(n, now)
	if n.ID == "" || n.Expired(now) {
		return
	}

	e.mu.Lock()
	if i := e.indexLocked(n.ID); i >= 0 {
		n.Read = n.Read || e.notifications[i].Read
		e.notifications[i] = n
	} else {
		list := make([]models.Notification, 0, len(e.notifications)+1)
		list = append(list, n)
		list = append(list, e.notifications...)
		if len(list) > e.cfg.MaxEntries {
			list = list[:e.cfg.MaxEntries]
		}
		e.notifications = list
	}
	e.commitLocked(context.Background())
}

func (e *Engine) indexLocked(id string) int {
	for i, n := range e.notifications {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// commitLocked must be called with e.mu held; it releases it, then writes
// the cache and notifies observers. Entries that expired in memory are
// dropped first.
func (e *Engine) commitLocked(ctx context.Context) {
	e.notifications = liveEntries(e.notifications, e.now())
	snapshot := append([]models.Notification(nil), e.notifications...)
	observers := make([]Observer, 0, len(e.observers))
	for _, o := range e.observers {
		observers = append(observers, o)
	}
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	if e.cache != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := cache.SaveNotifications(cctx, e.cache, e.cfg.CacheKey, snapshot); err != nil {
			e.logger.Warn("failed to persist notification cache", zap.Error(err))
		}
		cancel()
	}
	for _, o := range observers {
		o(append([]models.Notification(nil), snapshot...))
	}
}

// replace swaps the whole list for rows, dropping expired entries.
func (e *Engine) replace(ctx context.Context, rows []models.Notification) {
	now := e.now()
	list := make([]models.Notification, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, n := range rows {
		n = models.Normalize(n, now)
		if n.Expired(now) {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		list = append(list, n)
		if len(list) == e.cfg.MaxEntries {
			break
		}
	}

	e.mu.Lock()
	e.notifications = list
	e.commitLocked(ctx)
}

func (e *Engine) reconcile(ctx context.Context) error {
	rows, err := e.store.List(ctx, notificationRepo.ListFilter{
		UserID: e.currentUser(ctx),
		Limit:  int64(e.cfg.FetchLimit),
	})
	if err != nil {
		return fmt.Errorf("reconcile notifications: %w", err)
	}
	e.replace(ctx, rows)
	return nil
}

// Subscribe registers o and returns a function that removes it.
func (e *Engine) Subscribe(o Observer) func() {
	e.mu.Lock()
	id := e.nextObserver
	e.nextObserver++
	e.observers[id] = o
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.observers, id)
			e.mu.Unlock()
		})
	}
}

// liveEntries returns the entries of list not yet expired at now.
func liveEntries(list []models.Notification, now time.Time) []models.Notification {
	live := make([]models.Notification, 0, len(list))
	for _, n := range list {
		if !n.Expired(now) {
			live = append(live, n)
		}
	}
	return live
}

// GetNotifications returns a copy of the unexpired list, newest first.
func (e *Engine) GetNotifications() []models.Notification {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	return liveEntries(e.notifications, now)
}

func (e *Engine) GetStats() models.NotificationStats {
	return models.ComputeStats(e.GetNotifications())
}

func (e *Engine) UnreadCount() int {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	unread := 0
	for _, n := range e.notifications {
		if !n.Read && !n.Expired(now) {
			unread++
		}
	}
	return unread
}

// ConnectionStatus reports whether the realtime channel is joined.
func (e *Engine) ConnectionStatus() bool {
	return e.channel != nil && e.channel.GetConnectionStatus()
}

// notListed reports an id outside this identity's list. Such ids never
// reach the remote store.
func notListed(id string) error {
	return fmt.Errorf("notification %s: %w", id, models.ErrNotificationNotFound)
}

// MarkAsRead marks id read locally, then in the remote store. A remote
// failure is returned but the local change stays.
func (e *Engine) MarkAsRead(ctx context.Context, id string) error {
	userID := e.currentUser(ctx)

	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return notListed(id)
	}
	e.notifications[i].Read = true
	e.commitLocked(ctx)

	if err := e.store.MarkRead(ctx, userID, id); err != nil {
		e.remoteFailed(ctx, err, models.SyncPayload{Op: models.SyncOpRead, IDs: []string{id}, UserID: userID})
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllAsRead marks every listed notification read. The list only holds
// the identity's own and global notifications.
func (e *Engine) MarkAllAsRead(ctx context.Context) error {
	userID := e.currentUser(ctx)

	e.mu.Lock()
	for i := range e.notifications {
		e.notifications[i].Read = true
	}
	e.commitLocked(ctx)

	if _, err := e.store.MarkAllRead(ctx, userID); err != nil {
		e.remoteFailed(ctx, err, models.SyncPayload{Op: models.SyncOpReadAll, UserID: userID})
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// DeleteNotification removes id locally, then from the remote store.
func (e *Engine) DeleteNotification(ctx context.Context, id string) error {
	userID := e.currentUser(ctx)

	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return notListed(id)
	}
	e.notifications = append(e.notifications[:i:i], e.notifications[i+1:]...)
	e.commitLocked(ctx)

	if err := e.store.Delete(ctx, userID, id); err != nil {
		e.remoteFailed(ctx, err, models.SyncPayload{Op: models.SyncOpDelete, IDs: []string{id}, UserID: userID})
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	return nil
}

// RefreshNotifications replaces the list with the remote store's view.
func (e *Engine) RefreshNotifications(ctx context.Context) error {
	if err := e.reconcile(ctx); err != nil {
		e.logger.Error("refresh failed", zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) remoteFailed(ctx context.Context, err error, p models.SyncPayload) {
	e.logger.Error("remote notification update failed",
		zap.String("op", p.Op),
		zap.Strings("ids", p.IDs),
		zap.Error(err),
	)
	if e.retrier == nil || errors.Is(err, models.ErrNotificationNotFound) {
		return
	}
	if qerr := e.retrier.EnqueueSync(context.WithoutCancel(ctx), p); qerr != nil {
		e.logger.Warn("failed to queue notification sync retry", zap.Error(qerr))
	}
}

// Close detaches the engine from the realtime channel and drops observers.
// The shared channel itself stays connected.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	teardown := e.teardown
	e.teardown = nil
	e.observers = make(map[uint64]Observer)
	e.mu.Unlock()

	for _, fn := range teardown {
		fn()
	}
}
