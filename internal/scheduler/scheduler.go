package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/finsight/backend/internal/service"
	"github.com/finsight/backend/internal/store"
)

// Scheduler runs the background generation jobs: the hourly insights sweep
// over active users and the daily benchmark refresh.
type Scheduler struct {
	cron     *cron.Cron
	store    store.Store
	insights *service.InsightsGenerator
	peers    *service.PeerComparisonService
	log      *logrus.Logger
	ctx      context.Context
}

// New creates a Scheduler wired to the given services.
func New(ctx context.Context, st store.Store, insights *service.InsightsGenerator, peers *service.PeerComparisonService, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		store:    st,
		insights: insights,
		peers:    peers,
		log:      log,
		ctx:      ctx,
	}
}

// Register adds the insight and benchmark jobs under the given cron specs.
func (s *Scheduler) Register(insightsCron, benchmarkCron string) error {
	if _, err := s.cron.AddFunc(insightsCron, s.insightsSweep); err != nil {
		return fmt.Errorf("register insights job: %w", err)
	}
	if _, err := s.cron.AddFunc(benchmarkCron, s.benchmarkRefresh); err != nil {
		return fmt.Errorf("register benchmark job: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("scheduler stopped")
}

// RunInsightsNow executes the insights sweep immediately.
func (s *Scheduler) RunInsightsNow() {
	s.insightsSweep()
}

// insightsSweep regenerates insights for every active user. Per-user
// failures are logged and do not abort the sweep.
func (s *Scheduler) insightsSweep() {
	s.log.Info("running insights sweep")

	users, err := s.store.ListActiveUserIDs(s.ctx)
	if err != nil {
		s.log.WithError(err).Error("list active users")
		return
	}

	for _, userID := range users {
		prefs, err := s.store.GetUserPreferences(s.ctx, userID)
		if err != nil {
			s.log.WithError(err).WithField("user", userID).Error("load preferences")
			continue
		}
		if !prefs.InsightsEnabled {
			continue
		}
		if err := s.insights.GenerateAndStore(s.ctx, userID); err != nil {
			s.log.WithError(err).WithField("user", userID).Error("generate insights")
		}
	}
}

// benchmarkRefresh rebuilds the anonymized peer benchmarks.
func (s *Scheduler) benchmarkRefresh() {
	s.log.Info("running benchmark refresh")
	if err := s.peers.UpdateBenchmarks(s.ctx, service.DefaultDemographic); err != nil {
		s.log.WithError(err).Error("update benchmarks")
	}
}
