package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terrawatch/landsat-tracker/common"
	"github.com/terrawatch/landsat-tracker/interface/provider"
	"github.com/terrawatch/landsat-tracker/service"
	"github.com/terrawatch/landsat-tracker/service/log"
)

// Config collects the knobs of one Tracker.
type Config struct {
	Criteria        common.SearchCriteria
	Email           string
	SearchInterval  time.Duration
	RecheckInterval time.Duration
}

// Tracker drives scenes through the provider's publish pipeline. Each tracked
// scene gets one polling chain: a goroutine that re-checks the provider every
// RecheckInterval until the scene is ready or the tracker shuts down. At most
// one chain runs per scene identifier; tracking an identifier that is already
// being polled joins the existing chain instead of spawning a second one.
type Tracker struct {
	ctx      context.Context // parent of every polling chain
	provider provider.ImageryProvider
	store    *LatestStore
	cfg      Config

	mu     sync.Mutex
	chains map[string]*chain
	wg     sync.WaitGroup
}

type chain struct {
	id        string // correlation id for logs
	sceneID   string
	status    common.Status
	checks    int
	startedAt time.Time
	lastCheck time.Time
}

// ChainState is a point-in-time snapshot of one polling chain.
type ChainState struct {
	ID        string        `json:"id"`
	SceneID   string        `json:"scene_id"`
	Status    common.Status `json:"status"`
	Checks    int           `json:"checks"`
	StartedAt time.Time     `json:"started_at"`
	LastCheck time.Time     `json:"last_check"`
}

// New returns a Tracker writing ready maps to store. ctx bounds the lifetime
// of every polling chain the tracker ever starts.
func New(ctx context.Context, p provider.ImageryProvider, store *LatestStore, cfg Config) *Tracker {
	return &Tracker{
		ctx:      ctx,
		provider: p,
		store:    store,
		cfg:      cfg,
		chains:   map[string]*chain{},
	}
}

// RunSearchLoop runs one search cycle immediately, then one every
// SearchInterval, until ctx is cancelled. Cycles are independent and
// unsynchronized: a new cycle starts on schedule even while chains from
// previous cycles are still polling.
func (t *Tracker) RunSearchLoop(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.SearchInterval)
	defer ticker.Stop()
	for {
		t.searchCycle(ctx)
		select {
		case <-ctx.Done():
			t.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// searchCycle resolves one scene for the configured criteria and starts (or
// joins) its polling chain. Errors end the cycle; the next one starts fresh
// and the store is left untouched.
func (t *Tracker) searchCycle(ctx context.Context) {
	lg := log.Logger(ctx).Sugar()
	sceneID, err := t.provider.SearchScenes(ctx, t.cfg.Criteria)
	if err != nil {
		var noMatch provider.NoMatchError
		if errors.As(err, &noMatch) {
			lg.Warnf("search cycle: %v", err)
		} else {
			lg.Errorf("search cycle: %v", err)
		}
		return
	}
	if t.Track(ctx, sceneID) {
		lg.Infof("tracking scene %s", sceneID)
	}
}

// Track starts a polling chain for sceneID and returns true. If a chain for
// this identifier is already running, Track joins it: nothing is spawned, the
// existing chain keeps its schedule, and Track returns false.
func (t *Tracker) Track(ctx context.Context, sceneID string) bool {
	t.mu.Lock()
	if _, ok := t.chains[sceneID]; ok {
		t.mu.Unlock()
		log.Logger(ctx).Sugar().Debugf("scene %s already tracked, joining existing chain", sceneID)
		return false
	}
	ch := &chain{id: uuid.NewString(), sceneID: sceneID, startedAt: time.Now()}
	t.chains[sceneID] = ch
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.remove(sceneID)
		t.poll(log.With(t.ctx, "chain", ch.id, "scene", sceneID), ch)
	}()
	return true
}

// poll is the chain body: one immediate status check, then one re-check per
// RecheckInterval while the provider reports the scene as new or pending.
// Only the READY branch touches the store. Chains are never expired: a scene
// that never becomes ready is re-checked forever, since completion may arrive
// through provider-side channels at any time.
func (t *Tracker) poll(ctx context.Context, ch *chain) {
	lg := log.Logger(ctx).Sugar()
	for {
		status, m, err := t.provider.SceneStatus(ctx, ch.sceneID, t.cfg.Criteria.Process)
		t.observe(ch, status, err == nil)
		switch {
		case err != nil:
			var unknown provider.UnknownStatusError
			if errors.As(err, &unknown) {
				lg.Errorf("chain stopped: %v", err)
				return
			}
			if !service.Temporary(err) {
				lg.Errorf("chain stopped: status check: %v", err)
				return
			}
			// transient failure: keep the chain, re-check on the normal cadence
			lg.Warnf("status check: %v", err)
		case status == common.StatusREADY:
			generation := t.store.Set(*m)
			lg.Infof("scene ready: map %s (generation %d)", m.MapID, generation)
			return
		case status == common.StatusNEW:
			lg.Infof("requesting publication of scene %s (%s)", ch.sceneID, t.cfg.Criteria.Process)
			t.provider.Publish(ctx, ch.sceneID, t.cfg.Criteria.Process, t.cfg.Email)
		case status == common.StatusPENDING:
			// publish in flight, nothing to do until the next check
		default:
			lg.Errorf("chain stopped: unhandled status %s", status)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.cfg.RecheckInterval):
		}
	}
}

func (t *Tracker) observe(ch *chain, status common.Status, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch.checks++
	ch.lastCheck = time.Now()
	if ok {
		ch.status = status
	}
}

func (t *Tracker) remove(sceneID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.chains, sceneID)
}

// Chains returns snapshots of the active polling chains, ordered by scene.
func (t *Tracker) Chains() []ChainState {
	t.mu.Lock()
	defer t.mu.Unlock()
	states := make([]ChainState, 0, len(t.chains))
	for _, ch := range t.chains {
		states = append(states, snapshot(ch))
	}
	sort.Slice(states, func(i, j int) bool { return states[i].SceneID < states[j].SceneID })
	return states
}

// Chain returns the snapshot of the chain polling sceneID, if any.
func (t *Tracker) Chain(sceneID string) (ChainState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.chains[sceneID]
	if !ok {
		return ChainState{}, false
	}
	return snapshot(ch), true
}

func snapshot(ch *chain) ChainState {
	return ChainState{
		ID:        ch.id,
		SceneID:   ch.sceneID,
		Status:    ch.status,
		Checks:    ch.checks,
		StartedAt: ch.startedAt,
		LastCheck: ch.lastCheck,
	}
}
