package promoter

import (
	"context"
	"sync"
	"time"

	"github.com/user/poe/internal/logger"
	"github.com/user/poe/pkg/release"
)

const defaultReconcileInterval = 5 * time.Minute

// Reconciler periodically re-evaluates pending releases.
type Reconciler struct {
	promoter *Promoter
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReconciler(p *Promoter, interval time.Duration) *Reconciler {
	if interval == 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{
		promoter: p,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop ends the loop and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Reconciler) run() {
	defer r.wg.Done()
	log := logger.Get()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("Reconciler started")

	for {
		select {
		case <-r.stopCh:
			log.Info().Msg("Reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

func (r *Reconciler) reconcile() {
	log := logger.Get()

	tasks, err := r.promoter.Reconcile(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending releases")
		return
	}

	published := 0
	for _, task := range tasks {
		state, err := task.Wait()
		if err != nil {
			log.Error().Err(err).Msg("Release re-evaluation failed")
			continue
		}
		if state == release.StatePublished {
			published++
		}
	}

	if len(tasks) > 0 {
		log.Debug().Int("pending", len(tasks)).Int("published", published).Msg("Reconciled releases")
	}
}
