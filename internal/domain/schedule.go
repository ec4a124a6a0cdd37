package domain

import "time"

// ReminderSchedule is a ministry function a person serves in. A reminder is
// due once StartsAt is within the lead time and no reminder was sent yet.
type ReminderSchedule struct {
	ID             string
	PersonID       string
	FunctionName   string
	Channel        Channel
	StartsAt       time.Time
	ReminderSentAt *time.Time
}

// ReminderTemplate is the catalog id used for ministry function reminders.
const ReminderTemplate = "ministry_function_reminder"

// ReminderEvent builds the notification published for a due schedule.
func (s ReminderSchedule) ReminderEvent(now time.Time) NotificationEvent {
	return NotificationEvent{
		PersonID:  s.PersonID,
		Channel:   s.Channel,
		Priority:  PriorityMedium,
		Type:      TypeMinistryFunctionReminder,
		CreatedAt: now,
		Subject:   "Reminder: " + s.FunctionName,
		Template:  ReminderTemplate,
		Variables: map[string]string{
			"function": s.FunctionName,
			"date":     s.StartsAt.Format("Mon 02 Jan 15:04"),
		},
		ReferenceID: s.ID,
	}
}
