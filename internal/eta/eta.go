// Package eta projects queue position and estimated start time from a
// queue's open items. It does no I/O and never mutates its input.
package eta

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"queueless/scheduling-service/internal/models"
)

const (
	ReasonNone         = ""
	ReasonNotActive    = "not_active"
	ReasonPastClosing  = "past_closing"
	ReasonClosedDay    = "closed_day"
	messageCanJoin     = "You can join the queue"
	messagePastClosing = "Estimated service time exceeds today's working hours. Please book an appointment for another day"
)

type Input struct {
	Items             []models.QueueItem
	QueueStatus       string
	EffectiveDuration time.Duration
	Now               time.Time
	// Closing is the end of the queue day; zero disables the cutoff.
	Closing time.Time
	// SubjectToken orders an enrolled customer against the rest of the
	// queue. Zero means a hypothetical entrant behind everyone.
	SubjectToken int
}

type Result struct {
	Available          bool          `json:"available"`
	Position           int           `json:"position"`
	Ahead              int           `json:"ahead"`
	EstimatedStartTime time.Time     `json:"estimated_start_time"`
	Remaining          time.Duration `json:"-"`
	Reason             string        `json:"-"`
	Message            string        `json:"message"`
}

func Estimate(in Input) Result {
	open := OpenItems(in.Items)
	remaining := RemainingForInProgress(open, in.EffectiveDuration, in.Now)

	if in.SubjectToken > 0 {
		for _, item := range open {
			if item.TokenNumber == in.SubjectToken && item.Status == models.StatusInProgress {
				start := in.Now
				if item.ActualStartTime != nil {
					start = *item.ActualStartTime
				}
				return finish(in, Result{Position: 0, EstimatedStartTime: start, Remaining: remaining})
			}
		}
	}

	ahead := 0
	for _, item := range open {
		if item.Status != models.StatusWaiting {
			continue
		}
		if in.SubjectToken > 0 && item.TokenNumber >= in.SubjectToken {
			break
		}
		ahead++
	}

	wait := remaining + time.Duration(ahead)*in.EffectiveDuration
	return finish(in, Result{
		Position:           ahead + 1,
		Ahead:              ahead,
		EstimatedStartTime: in.Now.Add(wait),
		Remaining:          remaining,
	})
}

func finish(in Input, result Result) Result {
	switch {
	case in.QueueStatus != models.QueueActive:
		result.Reason = ReasonNotActive
		result.Message = fmt.Sprintf("Queue is %s", strings.ToLower(in.QueueStatus))
	case !in.Closing.IsZero() && result.EstimatedStartTime.After(in.Closing):
		result.Reason = ReasonPastClosing
		result.Message = messagePastClosing
	default:
		result.Available = true
		result.Message = messageCanJoin
	}
	return result
}

// RemainingForInProgress is the part of the effective duration the item in
// service has not used yet, measured from its actual start.
func RemainingForInProgress(items []models.QueueItem, effective time.Duration, now time.Time) time.Duration {
	for _, item := range items {
		if item.Status != models.StatusInProgress || item.ActualStartTime == nil {
			continue
		}
		elapsed := now.Sub(*item.ActualStartTime)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed >= effective {
			return 0
		}
		return effective - elapsed
	}
	return 0
}

// OpenItems returns the WAITING and IN_PROGRESS items ordered by token.
func OpenItems(items []models.QueueItem) []models.QueueItem {
	open := make([]models.QueueItem, 0, len(items))
	for _, item := range items {
		if item.Open() {
			open = append(open, item)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].TokenNumber < open[j].TokenNumber })
	return open
}
