package postgres

import (
	"time"

	"github.com/google/uuid"
)

type profileModel struct {
	ProfileID string    `gorm:"column:profile_id;primaryKey"`
	Name      string    `gorm:"column:name"`
	Email     string    `gorm:"column:email"`
	IsAdmin   bool      `gorm:"column:is_admin"`
	AvatarURL *string   `gorm:"column:avatar_url"`
	Bio       *string   `gorm:"column:bio"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (profileModel) TableName() string { return "profiles" }

type localIdentityModel struct {
	SubjectID    string    `gorm:"column:subject_id;primaryKey"`
	Email        string    `gorm:"column:email"`
	DisplayName  string    `gorm:"column:display_name"`
	PasswordHash string    `gorm:"column:password_hash"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (localIdentityModel) TableName() string { return "local_identities" }

type identityOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (identityOutboxModel) TableName() string { return "identity_outbox" }
