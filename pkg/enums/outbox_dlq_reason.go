package enums

// OutboxDLQReason explains why the publisher parked an outbox row.
type OutboxDLQReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQReason = "max_attempts"
)

func (r OutboxDLQReason) String() string {
	return string(r)
}
