// Package telemetry runs the fixed-tick collection loop that pulls
// counters from Brain, Engineer, and the Traffic Manager for every
// subscribed mission, normalizes the result defensively, and pushes a
// sample to each subscribed client.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cpravetz/stage7-sub007/internal/client"
	"github.com/cpravetz/stage7-sub007/internal/common/appctx"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
	"github.com/cpravetz/stage7-sub007/internal/mission/registry"
)

var errAlreadyReflecting = errors.New("mission is already reflecting or cannot enter reflection from its current status")

// ReflectionTrigger is invoked once a mission is observed quiescent
// (Completed or Error with no RUNNING agents). Defined here rather than
// imported from the reflection package to avoid a cycle: reflection needs
// the aggregator's latest sample, the aggregator only needs to fire it.
type ReflectionTrigger interface {
	Trigger(ctx context.Context, missionID string, sample *model.TelemetrySample)
}

// Aggregator runs the telemetry tick loop.
type Aggregator struct {
	reg        *registry.Registry
	tm         *client.TrafficManagerClient
	brain      *client.BrainClient
	engineer   *client.EngineerClient
	postOffice *client.PostOfficeClient
	reflection ReflectionTrigger
	log        *logger.Logger

	tickInterval   time.Duration
	collectTimeout time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	inFlight sync.Map // missionID -> struct{}, overlap guard
}

// New builds an Aggregator. reflection may be nil if reflection is wired
// in a later call to SetReflectionTrigger (useful for breaking an
// initialization-order dependency at wiring time).
func New(reg *registry.Registry, tm *client.TrafficManagerClient, brain *client.BrainClient, engineer *client.EngineerClient, postOffice *client.PostOfficeClient, tickInterval, collectTimeout time.Duration, log *logger.Logger) *Aggregator {
	return &Aggregator{
		reg:            reg,
		tm:             tm,
		brain:          brain,
		engineer:       engineer,
		postOffice:     postOffice,
		log:            log,
		tickInterval:   tickInterval,
		collectTimeout: collectTimeout,
	}
}

// SetReflectionTrigger wires the reflection coordinator after construction.
func (a *Aggregator) SetReflectionTrigger(r ReflectionTrigger) {
	a.reflection = r
}

// Start begins the tick loop in a background goroutine. Stop must be
// called to release it.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	a.wg.Add(1)
	go a.loop(ctx)
}

// Stop signals the tick loop to exit and waits for it to drain.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Aggregator) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick runs one collection round. Ticks do not overlap for the same
// mission: if a mission's previous tick is still outstanding, it is
// skipped for this round.
func (a *Aggregator) tick(parent context.Context) {
	if a.reg.IsEmpty() {
		return
	}

	pairs := a.reg.Subscriptions()
	byMission := make(map[string][]string)
	for _, p := range pairs {
		byMission[p.MissionID] = append(byMission[p.MissionID], p.ClientID)
	}

	var g errgroup.Group
	for missionID, clients := range byMission {
		missionID := missionID
		clients := clients

		if _, alreadyRunning := a.inFlight.LoadOrStore(missionID, struct{}{}); alreadyRunning {
			a.log.Debug("skipping overlapping tick for mission", zap.String("mission_id", missionID))
			continue
		}

		g.Go(func() error {
			defer a.inFlight.Delete(missionID)
			ctx, cancel := appctx.Detached(parent, a.stopCh, a.collectTimeout)
			defer cancel()
			a.collectAndPublish(ctx, missionID, clients)
			return nil
		})
	}
	_ = g.Wait()
}

// PushNow triggers an out-of-band collect-and-publish for missionID outside
// the regular tick cadence, for callers reacting to an event (an
// agentStatisticsUpdate webhook) rather than polling. Runs detached from
// the caller so the HTTP handler that triggered it can return immediately.
func (a *Aggregator) PushNow(missionID string) {
	clients := a.reg.ClientsFor(missionID)
	if len(clients) == 0 {
		return
	}
	go func() {
		ctx, cancel := appctx.Detached(context.Background(), a.stopCh, a.collectTimeout)
		defer cancel()
		a.collectAndPublish(ctx, missionID, clients)
	}()
}

// collectAndPublish handles one mission's share of a tick: gather, publish,
// and (if quiescent) trigger reflection.
func (a *Aggregator) collectAndPublish(ctx context.Context, missionID string, clients []string) {
	m, err := a.reg.Get(missionID)
	if err != nil {
		return
	}
	if m.Status != model.StatusRunning && m.Status != model.StatusCompleted && m.Status != model.StatusError {
		return
	}

	sample := a.collect(ctx, missionID)

	for _, clientID := range clients {
		env := client.Envelope{
			Type:      "STATISTICS",
			Sender:    "missioncontrol",
			ClientID:  clientID,
			MissionID: missionID,
			Content:   sample,
		}
		if err := a.postOffice.Message(ctx, env); err != nil {
			a.log.Warn("failed to publish telemetry sample",
				zap.String("mission_id", missionID), zap.String("client_id", clientID), zap.Error(err))
		}
	}

	if (m.Status == model.StatusCompleted || m.Status == model.StatusError) && sample.RunningCount() == 0 {
		if a.enterReflecting(missionID) && a.reflection != nil {
			a.reflection.Trigger(ctx, missionID, sample)
		}
	}
}

// enterReflecting transitions a quiescent mission into Reflecting. The
// Reflecting status itself is the re-entrancy guard: a mission already
// Reflecting is not retriggered, so this reports false for it.
func (a *Aggregator) enterReflecting(missionID string) bool {
	_, err := a.reg.Mutate(missionID, func(m *model.Mission) error {
		if m.Status == model.StatusReflecting {
			return errAlreadyReflecting
		}
		if !model.IsValidTransition(m.Status, model.StatusReflecting) {
			return errAlreadyReflecting
		}
		m.Status = model.StatusReflecting
		return nil
	})
	return err == nil
}

// collect fans out to Brain, Engineer, and the Traffic Manager
// concurrently. Each collaborator's failure contributes a zero/empty
// substructure and a warning log rather than failing the whole sample.
func (a *Aggregator) collect(ctx context.Context, missionID string) *model.TelemetrySample {
	sample := model.NewEmptyTelemetrySample()

	var g errgroup.Group

	g.Go(func() error {
		stats, err := a.brain.GetLLMCalls(ctx, missionID)
		if err != nil {
			a.log.Warn("brain getLLMCalls failed", zap.String("mission_id", missionID), zap.Error(err))
			return nil
		}
		sample.LLMCalls = stats.LLMCalls
		sample.ActiveLLMCalls = stats.ActiveLLMCalls
		return nil
	})

	g.Go(func() error {
		stats, err := a.engineer.Statistics(ctx, missionID)
		if err != nil {
			a.log.Warn("engineer statistics failed", zap.String("mission_id", missionID), zap.Error(err))
			return nil
		}
		sample.EngineerStats = stats
		return nil
	})

	g.Go(func() error {
		stats, err := a.tm.GetAgentStatistics(ctx, missionID)
		if err != nil {
			a.log.Warn("traffic manager getAgentStatistics failed", zap.String("mission_id", missionID), zap.Error(err))
			return nil
		}
		warn := func(msg string) {
			a.log.Warn(msg, zap.String("mission_id", missionID))
		}
		sample.AgentCountByStatus = normalizeAgentCountByStatus(stats.AgentCountByStatus)
		sample.PerAgentStats = normalizePerAgentStats(stats.PerAgentStats, warn)
		return nil
	})

	_ = g.Wait()
	return sample
}
