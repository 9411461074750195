package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alert-engine/internal/directory"
	"alert-engine/internal/models"
)

// Message is one outbound send request: one alert to one recipient over one
// channel.
type Message struct {
	Alert     models.Alert
	Recipient directory.Recipient
	Channel   models.Channel
	Attempt   int
}

// Sender delivers a Message over one channel. Implementations return a
// PermanentError for structurally fatal conditions (missing or invalid
// contact data); any other error is treated as retryable.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Channel() models.Channel
}

// PermanentError marks a delivery failure that must not be retried.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return "permanent delivery failure: " + e.Reason
}

// Permanentf builds a PermanentError.
func Permanentf(format string, args ...interface{}) error {
	return &PermanentError{Reason: fmt.Sprintf(format, args...)}
}

// IsPermanent reports whether err is a structurally fatal delivery error.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Body renders the alert content for text channels: title, message and a
// short detail block depending on the alert type.
func Body(a models.Alert) string {
	var b strings.Builder
	b.WriteString(a.Title)
	b.WriteString("\n")
	b.WriteString(a.Message)

	switch {
	case a.Detail.HealthEmergency != nil:
		d := a.Detail.HealthEmergency
		fmt.Fprintf(&b, "\nEmergency: %s (%s)", d.EmergencyType, d.Severity)
		if len(d.ImmediateActions) > 0 {
			fmt.Fprintf(&b, "\nDo now: %s", strings.Join(d.ImmediateActions, "; "))
		}
	case a.Detail.DiseaseOutbreak != nil:
		d := a.Detail.DiseaseOutbreak
		fmt.Fprintf(&b, "\nDisease: %s, cases: %d", d.DiseaseType, d.CaseCount)
		fmt.Fprintf(&b, "\nAffected: %s", strings.Join(d.AffectedAreas, ", "))
		if len(d.PreventiveMeasures) > 0 {
			fmt.Fprintf(&b, "\nPrevention: %s", strings.Join(d.PreventiveMeasures, "; "))
		}
	case a.Detail.Vaccination != nil:
		d := a.Detail.Vaccination
		fmt.Fprintf(&b, "\nVaccine: %s for %s", d.VaccineType, d.TargetAgeGroup)
		fmt.Fprintf(&b, "\nWhen: %s %s, venue: %s", d.ScheduledDate.Format("02 Jan 2006"), d.Timings, d.Venue)
	case a.Detail.Appointment != nil:
		d := a.Detail.Appointment
		fmt.Fprintf(&b, "\nAppointment: %s with %s", d.AppointmentType, d.Provider)
		fmt.Fprintf(&b, "\nWhen: %s, where: %s", d.AppointmentDate.Format("02 Jan 2006 15:04"), d.Location)
	}
	return b.String()
}
