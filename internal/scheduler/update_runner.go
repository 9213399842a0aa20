package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TheGojiOG/athena/internal/config"
	"github.com/TheGojiOG/athena/internal/models"
	"github.com/TheGojiOG/athena/internal/server"
	"github.com/robfig/cron/v3"
)

// ServerLister supplies the records to update.
type ServerLister interface {
	List() ([]*models.ServerInstance, error)
}

// UpdateDispatcher is the part of the lifecycle manager the runner drives.
type UpdateDispatcher interface {
	DispatchInstallUpdate(srv *models.ServerInstance, creds server.SteamCredentials) string
	Busy(serverID string) bool
}

// UpdateRunner dispatches an install/update for every idle server whenever
// the configured cron schedule comes due.
type UpdateRunner struct {
	schedule   cron.Schedule
	servers    ServerLister
	dispatcher UpdateDispatcher
	creds      server.SteamCredentials
	interval   time.Duration

	mu      sync.Mutex
	nextRun time.Time
}

// NewUpdateRunner returns nil when steam.update_schedule is empty.
func NewUpdateRunner(steam config.SteamConfig, servers ServerLister, dispatcher UpdateDispatcher) (*UpdateRunner, error) {
	if steam.UpdateSchedule == "" {
		return nil, nil
	}

	schedule, err := config.ParseSchedule(steam.UpdateSchedule)
	if err != nil {
		return nil, fmt.Errorf("invalid update schedule: %w", err)
	}

	return &UpdateRunner{
		schedule:   schedule,
		servers:    servers,
		dispatcher: dispatcher,
		creds:      server.SteamCredentials{Username: steam.Username, Password: steam.Password},
		interval:   30 * time.Second,
	}, nil
}

func (ur *UpdateRunner) Start(ctx context.Context) {
	ur.mu.Lock()
	ur.nextRun = ur.schedule.Next(time.Now())
	ur.mu.Unlock()
	log.Printf("[UpdateSchedule] Next scheduled update at %s", ur.NextRun().Format(time.RFC3339))

	ticker := time.NewTicker(ur.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[UpdateSchedule] Stopping update runner")
				return
			case now := <-ticker.C:
				ur.runIfDue(now)
			}
		}
	}()
}

// NextRun is the time of the next scheduled update.
func (ur *UpdateRunner) NextRun() time.Time {
	ur.mu.Lock()
	defer ur.mu.Unlock()
	return ur.nextRun
}

// runIfDue dispatches updates when now has reached the next run time and
// returns the ids of the dispatched operations.
func (ur *UpdateRunner) runIfDue(now time.Time) []string {
	ur.mu.Lock()
	if ur.nextRun.IsZero() || now.Before(ur.nextRun) {
		ur.mu.Unlock()
		return nil
	}
	ur.nextRun = ur.schedule.Next(now)
	ur.mu.Unlock()

	return ur.RunNow()
}

// RunNow dispatches an install/update for every server that has no
// operation in progress.
func (ur *UpdateRunner) RunNow() []string {
	servers, err := ur.servers.List()
	if err != nil {
		log.Printf("[UpdateSchedule] Failed to list servers: %v", err)
		return nil
	}

	dispatched := make([]string, 0, len(servers))
	for _, srv := range servers {
		if ur.dispatcher.Busy(srv.ID) {
			log.Printf("[UpdateSchedule] Skipping server %s: operation in progress", srv.ID)
			continue
		}
		opID := ur.dispatcher.DispatchInstallUpdate(srv, ur.creds)
		log.Printf("[UpdateSchedule] Dispatched update %s for server %s", opID, srv.ID)
		dispatched = append(dispatched, opID)
	}
	return dispatched
}
