// Package syncmgr drains the offline action queue against the remote
// endpoint. Actions are processed in fixed-size batches, strictly one
// batch at a time, with a bounded per-action retry budget and a
// configurable conflict resolution strategy for updates.
package syncmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/config"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/dmitrijs2005/datakeeper/internal/remote"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/actions"
	"github.com/google/uuid"
)

// Conflict resolution strategies for updates whose remote counterpart
// changed after the action was queued.
const (
	StrategyClient = "client"
	StrategyServer = "server"
	StrategyLatest = "latest"
)

// SyncResult aggregates the outcome of one sync run.
type SyncResult struct {
	Synced    int      `json:"synced"`
	Failed    int      `json:"failed"`
	Conflicts int      `json:"conflicts"`
	Errors    []string `json:"errors,omitempty"`
}

// Manager owns the offline action queue lifecycle. A single sync runs at
// a time; a second PerformSync while one is active is rejected, not
// queued.
type Manager struct {
	cfg    config.SyncConfig
	repo   actions.Repository
	client remote.Client
	log    logging.Logger

	mu         sync.Mutex
	online     bool
	syncing    bool
	lastSync   time.Time
	syncErrors []string
	listeners  []func(models.SyncStatus)

	tickerStop chan struct{}
	wg         sync.WaitGroup
}

// NewManager returns a sync manager over the given queue and endpoint.
func NewManager(cfg config.SyncConfig, repo actions.Repository, client remote.Client, log logging.Logger) *Manager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ConflictStrategy == "" {
		cfg.ConflictStrategy = StrategyLatest
	}
	return &Manager{cfg: cfg, repo: repo, client: client, log: log}
}

// Initialize starts the periodic sync timer when an interval is configured.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.cfg.Interval > 0 {
		m.scheduleTicker(m.cfg.Interval)
	}
	return nil
}

// QueueAction persists a mutation as a pending action. When online and
// idle, an immediate sync attempt is kicked off in the background.
func (m *Manager) QueueAction(ctx context.Context, typ models.ActionType, store string, payload json.RawMessage) (*models.OfflineAction, error) {
	a := &models.OfflineAction{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Store:     store,
		Payload:   payload,
		Status:    models.ActionPending,
	}
	if err := m.repo.Insert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to queue action: %w", err)
	}
	m.log.Info(ctx, "action queued", "id", a.ID, "type", typ, "store", store)

	m.mu.Lock()
	kick := m.online && !m.syncing
	m.mu.Unlock()
	if kick {
		m.syncAsync()
	}
	m.notify(ctx)
	return a, nil
}

// PerformSync drains all pending actions in sequential batches. It
// refuses to run while another sync is active or while offline.
func (m *Manager) PerformSync(ctx context.Context) (*SyncResult, error) {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		return nil, common.ErrSyncInProgress
	}
	if !m.online {
		m.mu.Unlock()
		return nil, common.ErrOffline
	}
	m.syncing = true
	m.mu.Unlock()

	result := &SyncResult{}

	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.lastSync = time.Now().UTC()
		m.syncErrors = result.Errors
		m.mu.Unlock()
		m.notify(ctx)
	}()

	m.notify(ctx)

	pending, err := m.repo.GetByStatus(ctx, models.ActionPending)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, err
	}

	for start := 0; start < len(pending); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		for _, a := range pending[start:end] {
			m.processAction(ctx, a, result)
		}
	}

	m.log.Info(ctx, "sync finished",
		"synced", result.Synced, "failed", result.Failed, "conflicts", result.Conflicts)
	return result, nil
}

// processAction runs one action through processing and either consumes
// it, requeues it with an incremented retry counter, or marks it failed
// once the budget is exhausted.
func (m *Manager) processAction(ctx context.Context, a *models.OfflineAction, result *SyncResult) {
	if err := m.repo.UpdateStatus(ctx, a.ID, models.ActionProcessing); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, err.Error())
		return
	}

	dropped, err := m.dispatch(ctx, a)
	if dropped {
		result.Conflicts++
		if delErr := m.repo.DeleteByID(ctx, a.ID); delErr != nil {
			result.Errors = append(result.Errors, delErr.Error())
		}
		return
	}
	if err == nil {
		result.Synced++
		if delErr := m.repo.DeleteByID(ctx, a.ID); delErr != nil {
			result.Errors = append(result.Errors, delErr.Error())
		}
		return
	}

	result.Failed++
	result.Errors = append(result.Errors, fmt.Sprintf("action %s: %v", a.ID, err))

	next := models.ActionPending
	if a.RetryCount+1 >= m.cfg.MaxRetries {
		next = models.ActionFailed
		m.log.Warn(ctx, "action failed terminally", "id", a.ID, "retries", a.RetryCount+1)
	}
	if markErr := m.repo.MarkRetry(ctx, a.ID, next); markErr != nil {
		result.Errors = append(result.Errors, markErr.Error())
	}
}

// dispatch sends the action to the remote endpoint. dropped is true when
// a conflict was resolved in the server's favor; such actions are not
// retried.
func (m *Manager) dispatch(ctx context.Context, a *models.OfflineAction) (dropped bool, err error) {
	id, err := payloadID(a.Payload)
	if err != nil {
		return false, err
	}

	switch a.Type {
	case models.ActionCreate:
		return false, m.client.Create(ctx, a.Store, id, a.Payload)
	case models.ActionDelete:
		return false, m.client.Delete(ctx, a.Store, id)
	case models.ActionUpdate:
		drop, err := m.resolveConflict(ctx, a, id)
		if err != nil || drop {
			return drop, err
		}
		return false, m.client.Update(ctx, a.Store, id, a.Payload)
	default:
		return false, fmt.Errorf("unknown action type %q", a.Type)
	}
}

// resolveConflict probes the remote record's update time before an update
// is applied. No remote record or no change since queueing means no
// conflict.
func (m *Manager) resolveConflict(ctx context.Context, a *models.OfflineAction, id string) (drop bool, err error) {
	remoteUpdated, err := m.client.Head(ctx, a.Store, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("conflict probe: %w", err)
	}
	if !remoteUpdated.After(a.Timestamp) {
		return false, nil
	}

	switch m.cfg.ConflictStrategy {
	case StrategyClient:
		return false, nil
	case StrategyServer:
		m.log.Info(ctx, "conflict resolved for server, dropping action", "id", a.ID)
		return true, nil
	default: // latest
		if payloadUpdatedAt(a.Payload, a.Timestamp).After(remoteUpdated) {
			return false, nil
		}
		m.log.Info(ctx, "conflict resolved for newer remote, dropping action", "id", a.ID)
		return true, nil
	}
}

// SetOnline feeds the platform connectivity signal. The offline→online
// transition triggers an automatic sync.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online && !wasOnline {
		m.syncAsync()
	}
	m.notify(context.Background())
}

// SetInterval cancels the current periodic timer and schedules a new one.
// A non-positive interval disables periodic sync.
func (m *Manager) SetInterval(d time.Duration) {
	m.stopTicker()
	m.cfg.Interval = d
	if d > 0 {
		m.scheduleTicker(d)
	}
}

// RetryFailedActions resets all terminally failed actions to pending with
// a fresh retry budget, then syncs.
func (m *Manager) RetryFailedActions(ctx context.Context) (*SyncResult, error) {
	n, err := m.repo.ResetFailed(ctx)
	if err != nil {
		return nil, err
	}
	m.log.Info(ctx, "failed actions reset", "count", n)
	return m.PerformSync(ctx)
}

// ClearFailedActions deletes all terminally failed actions outright.
func (m *Manager) ClearFailedActions(ctx context.Context) (int, error) {
	n, err := m.repo.DeleteFailed(ctx)
	if err != nil {
		return 0, err
	}
	m.notify(ctx)
	return n, nil
}

// Status derives the current sync status from the queue and connectivity.
func (m *Manager) Status(ctx context.Context) (models.SyncStatus, error) {
	counts, err := m.repo.CountByStatus(ctx)
	if err != nil {
		return models.SyncStatus{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return models.SyncStatus{
		IsOnline:       m.online,
		IsSyncing:      m.syncing,
		LastSync:       m.lastSync,
		PendingActions: counts[models.ActionPending] + counts[models.ActionProcessing],
		FailedActions:  counts[models.ActionFailed],
		SyncErrors:     m.syncErrors,
	}, nil
}

// OnStatusChange registers a callback invoked after every status-changing
// operation.
func (m *Manager) OnStatusChange(fn func(models.SyncStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Destroy stops the periodic timer and waits for background work.
func (m *Manager) Destroy() {
	m.stopTicker()
	m.wg.Wait()
}

func (m *Manager) syncAsync() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.PerformSync(context.Background()); err != nil &&
			!errors.Is(err, common.ErrSyncInProgress) && !errors.Is(err, common.ErrOffline) {
			m.log.Error(context.Background(), "background sync failed", "error", err)
		}
	}()
}

func (m *Manager) scheduleTicker(d time.Duration) {
	stop := make(chan struct{})
	m.mu.Lock()
	m.tickerStop = stop
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.mu.Lock()
				ready := m.online && !m.syncing
				m.mu.Unlock()
				if ready {
					if _, err := m.PerformSync(context.Background()); err != nil &&
						!errors.Is(err, common.ErrSyncInProgress) {
						m.log.Warn(context.Background(), "periodic sync failed", "error", err)
					}
				}
			case <-stop:
				return
			}
		}
	}()
}

func (m *Manager) stopTicker() {
	m.mu.Lock()
	stop := m.tickerStop
	m.tickerStop = nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (m *Manager) notify(ctx context.Context) {
	status, err := m.Status(ctx)
	if err != nil {
		return
	}
	m.mu.Lock()
	listeners := make([]func(models.SyncStatus), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(status)
	}
}

// payloadID extracts the record id every queued payload must carry.
func payloadID(payload json.RawMessage) (string, error) {
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", fmt.Errorf("malformed payload: %w", err)
	}
	if v.ID == "" {
		return "", errors.New("payload missing id")
	}
	return v.ID, nil
}

// payloadUpdatedAt prefers the payload's own update time for the "latest"
// strategy, falling back to the queue time.
func payloadUpdatedAt(payload json.RawMessage, fallback time.Time) time.Time {
	var v struct {
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.Unmarshal(payload, &v); err != nil || v.UpdatedAt.IsZero() {
		return fallback
	}
	return v.UpdatedAt
}
