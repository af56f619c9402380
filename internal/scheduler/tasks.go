package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskAppointmentReminder = "appointments.reminder"

const TaskWebhookEventsPurge = "webhook.events.purge"

type AppointmentReminderPayload struct {
	AppointmentID string    `json:"appointmentId"`
	TenantID      string    `json:"tenantId"`
	RunAt         time.Time `json:"runAt"`
}

func NewAppointmentReminderTask(payload AppointmentReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAppointmentReminder, data), nil
}

func ParseAppointmentReminderPayload(task *asynq.Task) (AppointmentReminderPayload, error) {
	var payload AppointmentReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AppointmentReminderPayload{}, err
	}
	return payload, nil
}

func NewWebhookEventsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskWebhookEventsPurge, nil)
}
