package slots

import (
	"time"

	"queueless/scheduling-service/internal/models"
)

type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// Availability lists the candidate slots of one service day, each flagged
// unavailable when it overlaps any of the given appointments. A closed day
// yields no slots and no error.
func Availability(service models.Service, day models.DaySchedule, date time.Time, appointments []models.Appointment) ([]Slot, error) {
	opening, closing, ok, err := DayWindow(date, day, service.Location())
	if err != nil || !ok {
		return []Slot{}, err
	}

	busy := make([]Interval, 0, len(appointments))
	for _, appt := range appointments {
		busy = append(busy, Interval{Start: appt.SlotStart, End: appt.SlotEnd})
	}

	result := []Slot{}
	for candidate := range Generate(opening, closing, service.EffectiveDuration()) {
		result = append(result, Slot{
			Start:     candidate.Start,
			End:       candidate.End,
			Available: !overlapsAny(candidate, busy),
		})
	}
	return result, nil
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
