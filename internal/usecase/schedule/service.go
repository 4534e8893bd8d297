// Package schedule крутит цикл опроса по интервалу и по внешнему запросу.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CycleFunc выполняет один цикл опроса.
type CycleFunc func(ctx context.Context)

// Status описывает состояние планировщика для админских команд.
type Status struct {
	Cycles    int
	LastStart time.Time
	LastTook  time.Duration
	Running   bool
}

// Scheduler запускает цикл сразу, затем раз в interval и по Trigger.
// Циклы никогда не пересекаются.
type Scheduler struct {
	interval time.Duration
	cycle    CycleFunc
	log      zerolog.Logger
	trigger  chan struct{}

	mu     sync.Mutex
	status Status
}

// NewScheduler создаёт планировщик.
func NewScheduler(interval time.Duration, cycle CycleFunc, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{interval: interval, cycle: cycle, log: logger, trigger: make(chan struct{}, 1)}
}

// Trigger ставит внеочередной цикл. Возвращает false, если он уже поставлен.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status возвращает снимок состояния.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run блокируется до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("schedule: планировщик запущен")
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("schedule: планировщик остановлен")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.trigger:
			s.log.Info().Msg("schedule: внеочередной цикл")
			s.runOnce(ctx)
			ticker.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	id := uuid.NewString()
	log := s.log.With().Str("cycle", id).Logger()
	start := time.Now()
	s.mu.Lock()
	s.status.Running = true
	s.status.LastStart = start
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("schedule: цикл аварийно завершён")
		}
		took := time.Since(start)
		s.mu.Lock()
		s.status.Running = false
		s.status.Cycles++
		s.status.LastTook = took
		s.mu.Unlock()
		log.Debug().Dur("took", took).Msg("schedule: цикл завершён")
	}()

	log.Debug().Msg("schedule: цикл начат")
	s.cycle(log.WithContext(ctx))
}
