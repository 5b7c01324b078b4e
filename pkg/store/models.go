package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type SummaryJobModel struct {
	ID              string         `gorm:"primaryKey"`
	OwnerID         string         `gorm:"not null;index:idx_summary_jobs_owner_created,priority:1"`
	SourceReference string         `gorm:"type:text;not null"`
	VideoID         string         `gorm:"index"`
	Format          string         `gorm:"not null"`
	Language        string         `gorm:"not null"`
	Status          string         `gorm:"not null;index"`
	Content         string         `gorm:"type:text"`
	ErrorMessage    string         `gorm:"type:text"`
	Metadata        datatypes.JSON `gorm:"type:jsonb"`
	ExportKey       string
	CreatedAt       time.Time `gorm:"not null;index:idx_summary_jobs_owner_created,priority:2"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (SummaryJobModel) TableName() string { return "summary_jobs" }

type CreditsModel struct {
	OwnerID            string `gorm:"primaryKey"`
	Plan               string `gorm:"not null"`
	SummariesLeft      int    `gorm:"not null"`
	SubscriptionStatus string `gorm:"not null"`
	CustomerID         string `gorm:"index"`
	SubscriptionID     string
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (CreditsModel) TableName() string { return "credits" }
