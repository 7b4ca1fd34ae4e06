package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/trailmarks/gamification-backend/pkg/db/types"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// PointTransaction is the immutable append-only record of one award. Rows are
// never mutated or deleted by this service; retention is an external policy.
type PointTransaction struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Category       enums.PointCategory `gorm:"column:category;type:point_category_enum;not null"`
	RawPoints      int64               `gorm:"column:raw_points;not null"`
	Multiplier     decimal.Decimal     `gorm:"column:multiplier;type:numeric(8,4);not null"`
	FinalPoints    int64               `gorm:"column:final_points;not null"`
	Description    *string             `gorm:"column:description"`
	RelatedIDs     dbtypes.UUIDArray   `gorm:"column:related_ids;type:uuid[]"`
	Metadata       json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	QualityRating  *float64            `gorm:"column:quality_rating"`
	GeoLat         *float64            `gorm:"column:geo_lat"`
	GeoLng         *float64            `gorm:"column:geo_lng"`
	IdempotencyKey string              `gorm:"column:idempotency_key;not null;uniqueIndex:ux_point_transactions_idempotency_key"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}
