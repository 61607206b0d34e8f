package store

import (
	"time"

	"gorm.io/datatypes"
)

// AuditRun is one persisted audit. Report holds the full JSON report; the
// scalar columns exist for listing and filtering without decoding it.
type AuditRun struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	Source      string    `gorm:"type:varchar(1024)"`
	GeneratedAt time.Time `gorm:"index"`
	Schema      string    `gorm:"type:varchar(32)"`
	Rows        int

	FlaggedShipments    int
	EstimatedLeakageUSD float64
	TotalInvoices       int
	TotalRecoverableUSD float64
	AnomalyStatus       string `gorm:"type:varchar(16)"`

	Report   datatypes.JSON
	Findings []LeakageFinding `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
}

// LeakageFinding is one flagged shipment of a run
type LeakageFinding struct {
	ID                uint   `gorm:"primaryKey"`
	RunID             string `gorm:"type:varchar(36);index"`
	ShipmentID        string `gorm:"type:varchar(128);index"`
	CustomerID        string `gorm:"type:varchar(128);index"`
	FlagReason        string `gorm:"type:varchar(255)"`
	UnderbilledAmount float64
	ExpectedTotal     float64
	BilledTotal       float64
}
