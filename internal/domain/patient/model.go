// Package patient is the write-once patient registry: profiles are
// created and read, never updated or deleted.
package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PatientProfile struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Age           int       `json:"age"`
	Gender        string    `json:"gender"`
	Phone         string    `json:"phone"`
	BloodPressure string    `json:"bloodPressure"`
	CreatedBy     *string   `json:"createdBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (p *PatientProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.Age < 0 {
		return fmt.Errorf("age must be non-negative, got %d", p.Age)
	}
	return nil
}
