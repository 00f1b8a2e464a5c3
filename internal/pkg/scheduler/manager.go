package scheduler

import (
	"strconv"
	"sync"
	"time"

	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	metrics "github.com/ManuelReschke/CreditFox/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
)

const dailyCycleLock = "credits:daily-cycle"

// Engines bundles the background jobs the scheduler drives.
type Engines struct {
	Distribution *credits.DistributionEngine
	Expiration   *credits.ExpirationJob
}

// Manager runs the daily credit cycle and periodic counter flushes.
type Manager struct {
	engines            Engines
	dailyTicker        *time.Ticker
	counterFlushTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global scheduler manager (singleton)
func GetManager(engines Engines) *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			engines: engines,
			stopCh:  make(chan struct{}),
		}
	})
	return globalManager
}

// Start starts the background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting background tasks")

	// Daily cycle check interval - configurable, defaults to hourly
	checkInterval := time.Hour
	if v, err := strconv.Atoi(env.GetEnv("SCHEDULER_CHECK_INTERVAL_MINUTES", "60")); err == nil && v > 0 {
		checkInterval = time.Duration(v) * time.Minute
	}

	m.dailyTicker = time.NewTicker(checkInterval)
	m.wg.Add(1)
	go m.dailyCycleWorker()

	// Start counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	log.Info("[Scheduler] Started successfully")
}

// Stop stops the background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping background tasks...")

	if m.dailyTicker != nil {
		m.dailyTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	// Signal workers to stop. The channel is left closed so a worker that
	// re-enters its select still sees the shutdown; Start replaces it.
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	log.Info("[Scheduler] Stopped successfully")
}

// dailyCycleWorker periodically runs expiration and distribution for the current day
func (m *Manager) dailyCycleWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Daily cycle worker stopping")
			return
		case <-m.dailyTicker.C:
			if err := m.runDailyCycleOnce(); err != nil {
				log.Errorf("[Scheduler] Daily cycle error: %v", err)
			}
		}
	}
}

// counterFlushWorker periodically flushes pending counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := metrics.FlushAll(); err != nil {
				log.Errorf("[Scheduler] Counter flush error: %v", err)
			}
		}
	}
}

// runDailyCycleOnce runs expiration then distribution under a shared run lock.
// The Redis lock keeps multiple app instances from running the cycle in
// parallel; the day marker keeps a single instance from running it twice.
// Expiration runs first so freshly granted credits cannot expire in the
// same cycle that granted them.
func (m *Manager) runDailyCycleOnce() error {
	today := time.Now().UTC().Format("2006-01-02")
	markerKey := "credits:daily-cycle:last-run"

	if last, err := cache.Get(markerKey); err == nil && last == today {
		return nil
	}

	ok, err := cache.AcquireLock(dailyCycleLock, 30*time.Minute)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("[Scheduler] Daily cycle lock held elsewhere, skipping")
		return nil
	}
	defer cache.ReleaseLock(dailyCycleLock)

	log.Infof("[Scheduler] Running daily credit cycle for %s", today)

	expResult, err := m.engines.Expiration.Run()
	if err != nil {
		return err
	}
	log.Infof("[Scheduler] Expiration done: %d users, %d expired credits, %d errors",
		expResult.UsersCount, expResult.ExpiredCredits, expResult.ErrorCount)

	distResult, err := m.engines.Distribution.DistributeCreditsToAllUsers(time.Now().UTC())
	if err != nil {
		return err
	}
	log.Infof("[Scheduler] Distribution done: %d users, %d granted, %d skipped, %d errors",
		distResult.UsersCount, distResult.Total, distResult.Skipped, distResult.ErrorCount)

	return cache.Set(markerKey, today, 48*time.Hour)
}

// RunDailyCycleOnce exposes a manual trigger for a single daily cycle (admin use).
func (m *Manager) RunDailyCycleOnce() error {
	return m.runDailyCycleOnce()
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
