package notify

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Task is one queued email. Producers write recipient, subject and message;
// the email key is still read from payloads queued by the legacy producer.
type Task struct {
	ID            string    `json:"id"`
	Recipient     string    `json:"recipient"`
	Email         string    `json:"email,omitempty"`
	Subject       string    `json:"subject"`
	Message       string    `json:"message"`
	ApplicationID string    `json:"application_id,omitempty"`
	Stage         string    `json:"stage,omitempty"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// NewTask builds a task with a fresh id
func NewTask(recipient, subject, message string) *Task {
	return &Task{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Subject:    subject,
		Message:    message,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Encode serializes the task for the queue
func (t *Task) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", errors.Wrap(err, "encode task")
	}
	return string(raw), nil
}

// DecodeTask parses a queued payload. The recipient key wins over the legacy
// email key. A payload that is not JSON or has neither fails with
// ErrMalformedTask.
func DecodeTask(raw string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode task"), ErrMalformedTask)
	}
	if strings.TrimSpace(t.Recipient) == "" {
		t.Recipient = t.Email
	}
	t.Email = ""
	if strings.TrimSpace(t.Recipient) == "" {
		return nil, errors.Wrap(ErrMalformedTask, "missing recipient")
	}
	if t.Subject == "" {
		t.Subject = "No Subject"
	}
	if t.Message == "" {
		t.Message = "No Message"
	}
	return &t, nil
}

// Delivery is a task handed to one consumer. Raw identifies the entry in the
// pending set and must be passed back unchanged to Ack, Retry or DeadLetter.
type Delivery struct {
	Raw        string
	Task       *Task
	DecodeErr  error
	ReceivedAt time.Time
}

func newDelivery(raw string, receivedAt time.Time) *Delivery {
	task, err := DecodeTask(raw)
	return &Delivery{Raw: raw, Task: task, DecodeErr: err, ReceivedAt: receivedAt}
}

// DeadLetter is a task that will not be retried automatically
type DeadLetter struct {
	Payload  string    `json:"payload,omitempty"` // what a requeue pushes; empty when malformed
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
	Task     *Task     `json:"task,omitempty"`
	Raw      string    `json:"raw"`
}

// NewDeadLetter records why a delivery was given up on. task is the final
// state (attempts and last error); it may be nil for malformed payloads.
func NewDeadLetter(d *Delivery, task *Task, reason string) *DeadLetter {
	letter := &DeadLetter{
		Task:     task,
		Raw:      d.Raw,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	}
	if task != nil {
		letter.Attempts = task.Attempts
		fresh := *task
		fresh.Attempts = 0
		fresh.LastError = ""
		if payload, err := fresh.Encode(); err == nil {
			letter.Payload = payload
		}
	}
	return letter
}

func (l *DeadLetter) encode() (string, error) {
	raw, err := json.Marshal(l)
	if err != nil {
		return "", errors.Wrap(err, "encode dead letter")
	}
	return string(raw), nil
}

func decodeDeadLetter(raw string) (*DeadLetter, error) {
	var l DeadLetter
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode dead letter"), ErrMalformedTask)
	}
	return &l, nil
}
