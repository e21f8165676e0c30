package database

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// APIKey represents the api_keys table
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"key"`
	Name       string     `gorm:"not null" json:"name"`
	KeyPreview string     `json:"key_preview"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// APIUsage represents the api_usage table
type APIUsage struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	KeyID          uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date           string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount   int    `gorm:"default:0" json:"request_count"`
	OffersSent     int    `gorm:"default:0" json:"offers_sent"`
	OffersResolved int    `gorm:"default:0" json:"offers_resolved"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// ShiftRow represents the shifts table
type ShiftRow struct {
	ID             string    `gorm:"primaryKey"`
	Department     string    `gorm:"index;not null"`
	Start          time.Time `gorm:"not null"`
	End            time.Time `gorm:"not null"`
	RequiredStaff  int       `gorm:"not null"`
	RemainingSlots int       `gorm:"not null"`
	Status         string    `gorm:"index;not null"`
	UpdatedAt      time.Time
}

// StaffRow represents the staff_members table
type StaffRow struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Department     string `gorm:"index;not null"`
	OnLeave        bool
	MaxHours       float64
	AssignedHours  float64
	SeniorityYears float64
	AcceptedCount  int
	DistanceKM     float64
	// AssignedShifts is a JSON array of accepted shift intervals.
	AssignedShifts string `gorm:"type:text"`
	PushToken      string
	Email          string
	Phone          string
	UpdatedAt      time.Time
}

// OfferRow represents the offers table
type OfferRow struct {
	ID            string `gorm:"primaryKey"`
	ShiftID       string `gorm:"index;not null"`
	CandidateID   string `gorm:"index;not null"`
	Cycle         int    `gorm:"not null"`
	Position      int    `gorm:"not null"`
	Status        string `gorm:"index;not null"`
	SentAt        time.Time
	ResponseDueAt time.Time `gorm:"index"`
	RespondedAt   *time.Time
}

// NotificationJobRow represents the notification_jobs table
type NotificationJobRow struct {
	ID          string `gorm:"primaryKey"`
	OfferID     string `gorm:"index;not null"`
	Event       string `gorm:"not null"`
	Channel     string `gorm:"not null"`
	Recipient   string
	Payload     string `gorm:"type:text"`
	Attempts    int    `gorm:"default:0"`
	Status      string `gorm:"index;not null"`
	LastError   string
	NextRetryAt time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// OfferEventRow represents the offer_events table
type OfferEventRow struct {
	ID      uint   `gorm:"primaryKey"`
	ShiftID string `gorm:"index;not null"`
	OfferID string
	Type    string `gorm:"not null"`
	Detail  string
	At      time.Time
}

// TableName keeps the staff table name readable.
func (StaffRow) TableName() string { return "staff_members" }

func (ShiftRow) TableName() string           { return "shifts" }
func (OfferRow) TableName() string           { return "offers" }
func (NotificationJobRow) TableName() string { return "notification_jobs" }
func (OfferEventRow) TableName() string      { return "offer_events" }

// InitDB initializes the database connection and migrates the schema
func InitDB() *gorm.DB {
	var db *gorm.DB
	var err error

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	} else {
		dbPath := os.Getenv("DATA_PATH")
		if dbPath == "" {
			dbPath = "shift_offers.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	}

	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	// Auto Migration
	db.AutoMigrate(
		&APIKey{}, &APIUsage{}, &MasterUser{},
		&ShiftRow{}, &StaffRow{}, &OfferRow{},
		&NotificationJobRow{}, &OfferEventRow{},
	)

	return db
}
