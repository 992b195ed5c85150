package status

import "time"

// SyncPhase represents the outcome of the most recent synchronization
type SyncPhase string

const (
	// SyncPhaseNever means no run has finished for this profile yet
	SyncPhaseNever SyncPhase = ""

	// SyncPhaseComplete means the last run crawled the listing to its end
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last run ended with an error
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncStatus represents the last known state of a sync profile
type SyncStatus struct {
	// Phase is the outcome of the last finished run
	Phase SyncPhase `json:"phase"`

	// RunID identifies the last finished run
	RunID string `json:"run_id,omitempty"`

	// Message provides additional information, such as the error of a failed run
	Message string `json:"message,omitempty"`

	// LastAttempt is when the last finished run ended
	LastAttempt *time.Time `json:"last_attempt,omitempty"`

	// AttemptCount is the number of failed runs since the last success
	AttemptCount int `json:"attempt_count"`

	// LastSyncTime is when the last successful run ended
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`

	// Pages, Synced and Failed are the counters of the last successful run
	Pages  int `json:"pages"`
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}
