package job

import (
	"mediaqueue/logger"
	"mediaqueue/models"
	"mediaqueue/records"
)

// Synchronizer writes lifecycle transitions to the record store. Store
// failures are logged and never returned; the success path is four
// independent updates with no rollback.
type Synchronizer struct {
	store   records.Store
	tracker *Tracker
}

func NewSynchronizer(store records.Store, tracker *Tracker) *Synchronizer {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Synchronizer{store: store, tracker: tracker}
}

// Processing marks id as started. It reports whether the transition was legal.
func (s *Synchronizer) Processing(id string) bool {
	if !s.transition(id, models.StatusProcessing) {
		return false
	}
	if !s.store.UpdateStatus(id, models.StatusProcessing) {
		logger.Errorf("Could not update table mediafiles, id: %s, status: processing", id)
	}
	return true
}

// Completed publishes outputPath: visibility, hash, identifier, then status.
func (s *Synchronizer) Completed(id, outputPath string) bool {
	if !s.transition(id, models.StatusCompleted) {
		return false
	}
	if !s.store.UpdateVisibility(id, true) {
		logger.Errorf("Could not update table mediafiles, id: %s, visibility: true", id)
	}
	if !s.store.UpdateHash(id, outputPath) {
		logger.Errorf("Could not update table mediafiles, id: %s, hash for file: %s", id, outputPath)
	}
	if !s.store.UpdateDistributionID(id, outputPath) {
		logger.Errorf("Could not update table mediafiles, id: %s, magnet for file: %s", id, outputPath)
	}
	if !s.store.UpdateStatus(id, models.StatusCompleted) {
		logger.Errorf("Could not update table mediafiles, id: %s, status: completed", id)
	}
	return true
}

func (s *Synchronizer) Failed(id string) bool {
	if !s.transition(id, models.StatusFailed) {
		return false
	}
	if !s.store.UpdateStatus(id, models.StatusFailed) {
		logger.Errorf("Could not update table mediafiles, id: %s, status: failed", id)
	}
	return true
}

func (s *Synchronizer) transition(id string, next models.Status) bool {
	if err := s.tracker.Transition(id, next); err != nil {
		logger.Warnf("Skipping status update: %v", err)
		return false
	}
	return true
}
