package models

// Region is one configurable bounding box used for regional ranking buckets.
type Region struct {
	Code   string  `gorm:"column:code;primaryKey"`
	Name   string  `gorm:"column:name;not null"`
	MinLat float64 `gorm:"column:min_lat;not null"`
	MaxLat float64 `gorm:"column:max_lat;not null"`
	MinLng float64 `gorm:"column:min_lng;not null"`
	MaxLng float64 `gorm:"column:max_lng;not null"`
}
