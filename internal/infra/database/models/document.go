package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is one record of a named collection.
type Document struct {
	Collection string            `json:"collection" gorm:"type:text;primaryKey"`
	Key        string            `json:"key" gorm:"type:text;primaryKey"`
	Body       datatypes.JSONMap `json:"body" gorm:"type:jsonb;not null;default:'{}'"`
	CDate      time.Time         `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate      time.Time         `json:"mdate" gorm:"autoUpdateTime;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
