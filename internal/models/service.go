package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Service struct {
	ServiceID          string        `json:"service_id"`
	BusinessID         string        `json:"business_id"`
	Name               string        `json:"name"`
	IsActive           bool          `json:"is_active"`
	AvgDurationMinutes int           `json:"avg_duration_minutes"`
	BufferMinutes      int           `json:"buffer_minutes"`
	Timezone           string        `json:"timezone,omitempty"`
	WeeklySchedule     []DaySchedule `json:"weekly_schedule"`
}

// DaySchedule is one weekday entry of a service's opening hours. OpensAt and
// ClosesAt are wall-clock "HH:MM" values in the service timezone.
type DaySchedule struct {
	Day      string `json:"day"`
	OpensAt  string `json:"opens_at"`
	ClosesAt string `json:"closes_at"`
	IsOpen   bool   `json:"is_open"`
}

type Business struct {
	BusinessID string `json:"business_id"`
	OwnerID    string `json:"owner_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
}

// EffectiveDuration is the capacity consumed by one served customer.
func (s Service) EffectiveDuration() time.Duration {
	return time.Duration(s.AvgDurationMinutes+s.BufferMinutes) * time.Minute
}

func (s Service) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s Service) ScheduleFor(day time.Weekday) (DaySchedule, bool) {
	name := strings.ToLower(day.String())
	for _, entry := range s.WeeklySchedule {
		if strings.ToLower(entry.Day) == name {
			return entry, true
		}
	}
	return DaySchedule{}, false
}

// ParseWeeklySchedule decodes the stored hours document and rejects unknown
// weekdays and duplicate entries.
func ParseWeeklySchedule(raw []byte) ([]DaySchedule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var entries []DaySchedule
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode weekly schedule: %w", err)
	}
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		day := strings.ToLower(strings.TrimSpace(entry.Day))
		if !validWeekday(day) {
			return nil, fmt.Errorf("weekly schedule: unknown day %q", entry.Day)
		}
		if seen[day] {
			return nil, fmt.Errorf("weekly schedule: duplicate entry for %s", day)
		}
		seen[day] = true
		entries[i].Day = day
	}
	return entries, nil
}

func validWeekday(day string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == day {
			return true
		}
	}
	return false
}
