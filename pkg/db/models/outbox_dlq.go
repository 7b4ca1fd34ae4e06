package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// OutboxDLQ stores outbox rows the publisher gave up on, preserving the
// payload for manual replay.
type OutboxDLQ struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OutboxEventID uuid.UUID             `gorm:"column:outbox_event_id;type:uuid;not null"`
	EventType     enums.OutboxEventType `gorm:"column:event_type;type:event_type_enum;not null"`
	Reason        enums.OutboxDLQReason `gorm:"column:reason;type:text;not null"`
	Payload       json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	LastError     *string               `gorm:"column:last_error"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides GORM's pluralization.
func (OutboxDLQ) TableName() string {
	return "outbox_dlq"
}
