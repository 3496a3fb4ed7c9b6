// Package progress implements the in-memory pub/sub feed of scrape-job
// lifecycle events: typed channels per (job type, audience) key, last-event
// replay for late joiners, and a grace window on terminal events.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage names one lifecycle milestone in the push feed.
type Stage string

// Stages emitted by the orchestrator.
const (
	StageJobStarted         Stage = "job_started"
	StageSourceStarted      Stage = "source_started"
	StageStructureDetection Stage = "structure_detection"
	StageBotBypass          Stage = "bot_bypass"
	StageArticleProcessing  Stage = "article_processing"
	StageArticleAdded       Stage = "article_added"
	StageArticleSkipped     Stage = "article_skipped"
	StageSourceCompleted    Stage = "source_completed"
	StageJobCompleted       Stage = "job_completed"
	StageError              Stage = "error"
)

var knownStages = map[Stage]struct{}{
	StageJobStarted: {}, StageSourceStarted: {}, StageStructureDetection: {},
	StageBotBypass: {}, StageArticleProcessing: {}, StageArticleAdded: {},
	StageArticleSkipped: {}, StageSourceCompleted: {}, StageJobCompleted: {},
	StageError: {},
}

// Key scopes a feed to one job type and audience.
type Key struct {
	JobType  string `json:"jobType"`
	Audience string `json:"audience"`
}

// String renders the key for logs.
func (k Key) String() string {
	return k.JobType + "/" + k.Audience
}

// Event is one progress message pushed to subscribers.
type Event struct {
	JobID string         `json:"jobId"`
	Type  string         `json:"type"`
	Event Stage          `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
	TS    time.Time      `json:"ts"`
}

// Terminal reports whether the event ends a job's lifecycle.
func (e Event) Terminal() bool {
	return e.Event == StageJobCompleted || e.Event == StageError
}

// Validate performs coarse validation on event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if _, ok := knownStages[e.Event]; !ok {
		return fmt.Errorf("unknown stage %q", e.Event)
	}
	return nil
}
