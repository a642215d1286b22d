package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"queueless/scheduling-service/internal/models"
)

// Seed is the document accepted by LoadSeed.
type Seed struct {
	Businesses   []models.Business    `json:"businesses"`
	Services     []models.Service     `json:"services"`
	Appointments []models.Appointment `json:"appointments"`
}

// LoadSeed decodes a Seed from r and stores every entry. Services must name
// a business present in the same document or already stored.
func (s *Store) LoadSeed(r io.Reader) error {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, business := range seed.Businesses {
		s.PutBusiness(business)
	}
	for _, service := range seed.Services {
		raw, err := json.Marshal(service.WeeklySchedule)
		if err != nil {
			return err
		}
		if _, err := models.ParseWeeklySchedule(raw); err != nil {
			return fmt.Errorf("service %s: %w", service.ServiceID, err)
		}
		if _, err := s.GetBusiness(context.Background(), service.BusinessID); err != nil {
			return fmt.Errorf("service %s: %w", service.ServiceID, err)
		}
		s.PutService(service)
	}
	for _, appt := range seed.Appointments {
		s.PutAppointment(appt)
	}
	return nil
}
