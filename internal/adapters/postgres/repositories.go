package postgres

import (
	"github.com/viralforge/storefront-identity/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Profiles   ports.ProfileRepository
	Identities ports.IdentityRecordRepository
	Outbox     ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Profiles:   &profileRepository{db: db},
		Identities: &identityRepository{db: db},
		Outbox:     &outboxRepository{db: db},
	}
}
