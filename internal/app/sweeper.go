/**
 * @description
 * Background sweeper that expires stale pending verifications on a schedule.
 * A pending verification whose provider callback never arrived would
 * otherwise block the user from retrying until their next submission attempt
 * happens to trip the staleness check.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Cron scheduling with panic recovery.
 * - internal/store: Batch expiry query.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/azeezabass2005/soolution-be/internal/store"
)

// Sweeper runs periodic maintenance jobs.
type Sweeper struct {
	repo store.Repository
	cron *cron.Cron
}

// NewSweeper creates a sweeper with panic recovery on every job.
func NewSweeper(repo store.Repository) *Sweeper {
	return &Sweeper{
		repo: repo,
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the jobs and begins the schedule.
func (s *Sweeper) Start() error {
	// Hourly is frequent enough: the staleness cutoff is 24 hours, so an
	// extra hour of latency on expiry is invisible to users.
	if _, err := s.cron.AddFunc("@hourly", s.expireStaleVerifications); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("level=info component=sweeper msg=\"scheduled jobs started\"")
	return nil
}

// Stop halts the schedule and waits for any running job to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("level=info component=sweeper msg=\"scheduled jobs stopped\"")
}

func (s *Sweeper) expireStaleVerifications() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-pendingVerificationTTL)
	expired, err := s.repo.ExpireStaleVerifications(ctx, cutoff, "expired - please retry")
	if err != nil {
		log.Printf("level=error component=sweeper job=expire_stale_verifications err=%v", err)
		return
	}
	if expired > 0 {
		log.Printf("level=info component=sweeper job=expire_stale_verifications expired=%d", expired)
	}
}
