package escrow

import (
	"strconv"

	"jobescrow/events"
)

const (
	EventTypeJobCreated   = "escrow.created"
	EventTypeJobAccepted  = "escrow.accepted"
	EventTypeJobSubmitted = "escrow.submitted"
	EventTypeJobWithdrawn = "escrow.withdrawn"
	EventTypeJobEvaluated = "escrow.evaluated"
	EventTypeJobCompleted = "escrow.completed"
	EventTypeJobRefunded  = "escrow.refunded"
)

// Refund reasons carried in the "reason" attribute of escrow.refunded.
const (
	RefundReasonCancelled       = "cancelled"
	RefundReasonDeadline        = "deadline"
	RefundReasonVerdictRejected = "verdict_rejected"
	RefundReasonFetchFailed     = "fetch_failed"
)

// NewCreatedEvent returns the canonical payload for a newly created job.
func NewCreatedEvent(j *Job) *events.Event { return newJobEvent(EventTypeJobCreated, j, nil) }

// NewAcceptedEvent returns the payload emitted when a freelancer accepts.
func NewAcceptedEvent(j *Job) *events.Event { return newJobEvent(EventTypeJobAccepted, j, nil) }

// NewSubmittedEvent returns the payload emitted when work is submitted.
func NewSubmittedEvent(j *Job) *events.Event {
	extra := map[string]string{}
	if j != nil {
		extra["submissionUrl"] = j.SubmissionURL
	}
	return newJobEvent(EventTypeJobSubmitted, j, extra)
}

// NewWithdrawnEvent returns the payload emitted when the assigned freelancer
// withdraws and the job reopens.
func NewWithdrawnEvent(j *Job, freelancer Address) *events.Event {
	return newJobEvent(EventTypeJobWithdrawn, j, map[string]string{"freelancer": freelancer.Hex()})
}

// NewEvaluatedEvent returns the payload emitted once per evaluation attempt,
// regardless of verdict.
func NewEvaluatedEvent(j *Job, verdict Verdict) *events.Event {
	return newJobEvent(EventTypeJobEvaluated, j, map[string]string{"verdict": string(verdict)})
}

// NewCompletedEvent returns the payload emitted when the escrowed amount is
// disbursed to the freelancer.
func NewCompletedEvent(j *Job) *events.Event { return newJobEvent(EventTypeJobCompleted, j, nil) }

// NewRefundedEvent returns the payload emitted when the escrowed amount is
// disbursed back to the client.
func NewRefundedEvent(j *Job, reason string) *events.Event {
	return newJobEvent(EventTypeJobRefunded, j, map[string]string{"reason": reason})
}

func newJobEvent(eventType string, j *Job, extra map[string]string) *events.Event {
	attrs := make(map[string]string)
	evt := &events.Event{Type: eventType, Attributes: attrs}
	if j == nil {
		return evt
	}
	attrs["id"] = j.ID.String()
	attrs["client"] = j.Client.Hex()
	if j.Freelancer != nil {
		attrs["freelancer"] = j.Freelancer.Hex()
	}
	if j.Amount != nil {
		attrs["amount"] = j.Amount.String()
	}
	attrs["status"] = j.Status.String()
	attrs["createdAt"] = strconv.FormatInt(j.CreatedAt, 10)
	attrs["deadline"] = strconv.FormatInt(j.Deadline, 10)
	for k, v := range extra {
		attrs[k] = v
	}
	return evt
}
