// -----------------------------------------------------------------------
// Status Reconciliation Engine - Visual-stage state machine for jobs
// -----------------------------------------------------------------------

package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Schedule holds the visual-stage transition delays. The values are design
// parameters, not contracts with the backend: they pace the progress UI while
// the authoritative completion flag arrives on its own clock.
type Schedule struct {
	AnalyzingDelay  time.Duration // analyzing -> generating
	GeneratingDelay time.Duration // generating -> finalizing
	FinalizingDelay time.Duration // finalizing -> complete, gated on the backend flag
}

// DefaultSchedule is the standard ladder pacing (9s / 3s / 1s)
func DefaultSchedule() Schedule {
	return Schedule{
		AnalyzingDelay:  9 * time.Second,
		GeneratingDelay: 3 * time.Second,
		FinalizingDelay: 1 * time.Second,
	}
}

type msgKind int

const (
	msgObserve msgKind = iota
	msgCompleted
	msgTimerFired
	msgForget
)

type message struct {
	kind   msgKind
	job    *models.AnalysisJob // observe only
	jobID  string
	target models.VisualStage // timerFired only
	gen    uint64             // timerFired only
}

// track is the per-job state owned by the engine loop. Exactly one timer
// handle exists per job; reschedule cancels the prior handle and bumps the
// generation counter so a cancelled timer that already fired is dropped.
type track struct {
	clientID        string
	stage           models.VisualStage
	backendComplete bool
	awaiting        bool // finalizing timer fired while the flag was still false
	timer           *time.Timer
	gen             uint64
}

// Engine drives the per-job visual stage ladder. All job state is mutated by
// a single owner goroutine fed through a bounded inbox; timer callbacks and
// push-channel updates only ever enqueue messages, so no locking discipline
// is needed beyond the read snapshot handed to HTTP handlers.
type Engine struct {
	schedule Schedule
	events   interfaces.EventService
	logger   arbor.ILogger

	inbox chan message
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	// jobs is owned by the loop goroutine exclusively
	jobs map[string]*track

	// stages is the reader snapshot, written only by the loop
	mu     sync.RWMutex
	stages map[string]models.VisualStage
}

// NewEngine creates a reconciliation engine. inboxSize bounds the message
// queue feeding the loop; zero selects a sensible default.
func NewEngine(schedule Schedule, events interfaces.EventService, logger arbor.ILogger, inboxSize int) *Engine {
	if inboxSize <= 0 {
		inboxSize = 256
	}
	return &Engine{
		schedule: schedule,
		events:   events,
		logger:   logger,
		inbox:    make(chan message, inboxSize),
		done:     make(chan struct{}),
		jobs:     make(map[string]*track),
		stages:   make(map[string]models.VisualStage),
	}
}

// Start launches the engine loop and subscribes to authoritative job updates
func (e *Engine) Start() error {
	if err := e.events.Subscribe(interfaces.EventJobUpdated, e.onJobUpdated); err != nil {
		return err
	}
	if err := e.events.Subscribe(interfaces.EventJobRemoved, e.onJobRemoved); err != nil {
		return err
	}

	e.wg.Add(1)
	go e.loop()

	e.logger.Info().
		Dur("analyzing_delay", e.schedule.AnalyzingDelay).
		Dur("generating_delay", e.schedule.GeneratingDelay).
		Dur("finalizing_delay", e.schedule.FinalizingDelay).
		Msg("Status reconciliation engine started")

	return nil
}

// Stop cancels all outstanding timers and shuts the loop down. No timer
// fires into engine state after Stop returns.
func (e *Engine) Stop() {
	e.once.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}

// Observe registers a job with the engine (idempotent). Jobs already marked
// complete by the backend show StageComplete immediately, with no animation.
func (e *Engine) Observe(job *models.AnalysisJob) {
	if job == nil || job.ID == "" {
		return
	}
	e.enqueue(message{kind: msgObserve, job: job, jobID: job.ID})
}

// Forget drops a job from the engine and cancels its outstanding timer.
// Used when a job leaves view or is deleted; after Forget no state mutation
// for that job id is observable.
func (e *Engine) Forget(jobID string) {
	e.enqueue(message{kind: msgForget, jobID: jobID})
}

// StageOf returns the current visual stage for a tracked job
func (e *Engine) StageOf(jobID string) (models.VisualStage, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stage, ok := e.stages[jobID]
	return stage, ok
}

// Stages returns a copy of all tracked stages
func (e *Engine) Stages() map[string]models.VisualStage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]models.VisualStage, len(e.stages))
	for id, stage := range e.stages {
		out[id] = stage
	}
	return out
}

// onJobUpdated consumes push-channel updates. The flag set is idempotent and
// never forces a visual jump by itself; it only unlocks a withheld
// finalizing -> complete transition.
func (e *Engine) onJobUpdated(ctx context.Context, event interfaces.Event) error {
	update, ok := event.Payload.(*models.JobUpdateEvent)
	if !ok || update.Record == nil {
		return nil
	}
	if !update.Record.BackendComplete {
		return nil
	}
	e.enqueue(message{kind: msgCompleted, jobID: update.Record.ID})
	return nil
}

func (e *Engine) onJobRemoved(ctx context.Context, event interfaces.Event) error {
	if jobID, ok := event.Payload.(string); ok {
		e.enqueue(message{kind: msgForget, jobID: jobID})
	}
	return nil
}

// enqueue posts a message to the loop, giving up if the engine is stopped.
// Timer callbacks go through here so a late fire after disposal is inert.
func (e *Engine) enqueue(m message) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.inbox <- m:
	case <-e.done:
	}
}

func (e *Engine) loop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			e.teardown()
			return
		case m := <-e.inbox:
			switch m.kind {
			case msgObserve:
				e.handleObserve(m.job)
			case msgCompleted:
				e.handleCompleted(m.jobID)
			case msgTimerFired:
				e.handleTimerFired(m.jobID, m.target, m.gen)
			case msgForget:
				e.handleForget(m.jobID)
			}
		}
	}
}

func (e *Engine) handleObserve(job *models.AnalysisJob) {
	t, known := e.jobs[job.ID]
	if known {
		// Re-observation only ever carries new authoritative state forward
		if job.BackendComplete && !t.backendComplete {
			e.handleCompleted(job.ID)
		}
		return
	}

	t = &track{clientID: job.ClientID}
	e.jobs[job.ID] = t

	if job.BackendComplete {
		t.backendComplete = true
		e.setStage(job.ID, t, models.StageComplete)
		return
	}

	e.setStage(job.ID, t, models.StageAnalyzing)
	e.reschedule(job.ID, t, models.StageGenerating, e.schedule.AnalyzingDelay)
}

func (e *Engine) handleCompleted(jobID string) {
	t, ok := e.jobs[jobID]
	if !ok {
		e.logger.Debug().Str("job_id", jobID).Msg("Completion update for untracked job ignored")
		return
	}

	t.backendComplete = true

	// A withheld finalizing -> complete transition is re-attempted here;
	// this is the only consumer of the flag.
	if t.awaiting {
		t.awaiting = false
		e.setStage(jobID, t, models.StageComplete)
	}
}

func (e *Engine) handleTimerFired(jobID string, target models.VisualStage, gen uint64) {
	t, ok := e.jobs[jobID]
	if !ok {
		return
	}
	if gen != t.gen {
		// Stale fire from a cancelled schedule
		return
	}
	t.timer = nil

	if !t.stage.Before(target) {
		return
	}

	switch target {
	case models.StageGenerating:
		e.setStage(jobID, t, models.StageGenerating)
		e.reschedule(jobID, t, models.StageFinalizing, e.schedule.GeneratingDelay)
	case models.StageFinalizing:
		e.setStage(jobID, t, models.StageFinalizing)
		e.reschedule(jobID, t, models.StageComplete, e.schedule.FinalizingDelay)
	case models.StageComplete:
		if t.backendComplete {
			e.setStage(jobID, t, models.StageComplete)
		} else {
			// Withheld: never show complete before the backend says so.
			// The job sits in finalizing until an authoritative update
			// arrives; that is the accepted degraded-but-safe state.
			t.awaiting = true
		}
	}
}

func (e *Engine) handleForget(jobID string) {
	t, ok := e.jobs[jobID]
	if !ok {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++ // invalidate any fire already in flight
	delete(e.jobs, jobID)

	e.mu.Lock()
	delete(e.stages, jobID)
	e.mu.Unlock()
}

// reschedule installs the single outstanding timer for a job, cancelling any
// prior handle first. The generation counter makes a cancelled-but-fired
// timer harmless.
func (e *Engine) reschedule(jobID string, t *track, target models.VisualStage, delay time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(delay, func() {
		e.enqueue(message{kind: msgTimerFired, jobID: jobID, target: target, gen: gen})
	})
}

// setStage commits a stage transition, updates the reader snapshot, and
// announces the change. Transitions are monotonic by construction.
func (e *Engine) setStage(jobID string, t *track, stage models.VisualStage) {
	if !t.stage.Before(stage) && t.stage != "" {
		return
	}
	t.stage = stage

	e.mu.Lock()
	e.stages[jobID] = stage
	e.mu.Unlock()

	if e.events != nil {
		_ = e.events.Publish(context.Background(), interfaces.Event{
			Type: interfaces.EventStageChanged,
			Payload: &models.StageChangeEvent{
				JobID:    jobID,
				ClientID: t.clientID,
				Stage:    stage,
			},
		})
	}
}

func (e *Engine) teardown() {
	for id, t := range e.jobs {
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.gen++
		delete(e.jobs, id)
	}

	e.mu.Lock()
	e.stages = make(map[string]models.VisualStage)
	e.mu.Unlock()

	e.logger.Info().Msg("Status reconciliation engine stopped")
}
