package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RoomSweeper удаляет комнаты видеосервиса, не привязанные к идущим занятиям
type RoomSweeper interface {
	SweepOrphanRooms(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	sweeper  RoomSweeper
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(sweeper RoomSweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("sweep_interval", s.interval))

	s.wg.Add(1)
	go s.runRoomSweepTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// runRoomSweepTask периодически чистит осиротевшие комнаты
func (s *Scheduler) runRoomSweepTask(ctx context.Context) {
	defer s.wg.Done()

	// Первый запуск сразу при старте
	s.sweepRooms(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepRooms(ctx)
		case <-s.stopChan:
			s.logger.Info("Room sweep task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Room sweep task cancelled")
			return
		}
	}
}

func (s *Scheduler) sweepRooms(ctx context.Context) {
	deleted, err := s.sweeper.SweepOrphanRooms(ctx)
	if err != nil {
		s.logger.Error("Failed to sweep orphan rooms", zap.Error(err))
		return
	}

	if deleted > 0 {
		s.logger.Info("Orphan rooms swept", zap.Int("deleted", deleted))
	}
}
