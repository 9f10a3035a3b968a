// services/results_scheduler.go
package services

import (
	"log"
	"time"

	"prize-allocation-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartResultsPublishScheduler moves finalized tournaments whose publish time
// has passed into the public published state.
func (s *TournamentService) StartResultsPublishScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: publish finalized tournaments past their publish time
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var tournaments []models.Tournament
			now := time.Now()
			err := s.DB.Where("status = ? AND results_publish_at IS NOT NULL AND results_publish_at <= ?",
				models.TournamentStatusFinalized, now).
				Find(&tournaments).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, t := range tournaments {
				t.Status = models.TournamentStatusPublished
				t.ResultsPublishAt = nil
				if err := s.DB.Save(&t).Error; err != nil {
					log.Printf("[Scheduler] Failed to publish results for %s: %v", t.ID, err)
				} else {
					log.Printf("✅ Auto-published results: %s", t.Name)
				}
			}
		}),
	)
}
