package store

import "queueless/scheduling-service/internal/models"

const (
	ItemStart    = "start"
	ItemComplete = "complete"
	ItemSkip     = "skip"
	ItemCancel   = "cancel"

	QueuePause  = "pause"
	QueueResume = "resume"
	QueueClose  = "close"
)

var itemTransitions = map[string][]string{
	ItemStart:    {models.StatusWaiting},
	ItemComplete: {models.StatusInProgress},
	ItemSkip:     {models.StatusWaiting},
	ItemCancel:   {models.StatusWaiting},
}

var itemTargets = map[string]string{
	ItemStart:    models.StatusInProgress,
	ItemComplete: models.StatusCompleted,
	ItemSkip:     models.StatusSkipped,
	ItemCancel:   models.StatusCancelled,
}

var queueTransitions = map[string][]string{
	QueuePause:  {models.QueueActive},
	QueueResume: {models.QueuePaused},
	QueueClose:  {models.QueueActive, models.QueuePaused},
}

var queueTargets = map[string]string{
	QueuePause:  models.QueuePaused,
	QueueResume: models.QueueActive,
	QueueClose:  models.QueueClosed,
}

func ValidItemTransition(action, fromStatus string) bool {
	return allowed(itemTransitions, action, fromStatus)
}

func ValidQueueTransition(action, fromStatus string) bool {
	return allowed(queueTransitions, action, fromStatus)
}

// ItemTarget is the status an item ends in after action.
func ItemTarget(action string) (string, bool) {
	status, ok := itemTargets[action]
	return status, ok
}

func QueueTarget(action string) (string, bool) {
	status, ok := queueTargets[action]
	return status, ok
}

func allowed(table map[string][]string, action, fromStatus string) bool {
	statuses, ok := table[action]
	if !ok {
		return false
	}
	for _, status := range statuses {
		if status == fromStatus {
			return true
		}
	}
	return false
}
