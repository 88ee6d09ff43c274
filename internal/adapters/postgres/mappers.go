package postgres

import (
	"errors"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
	"gorm.io/gorm"
)

func toDomainProfile(m profileModel) domain.Profile {
	return domain.Profile{
		ID:        m.ProfileID,
		Name:      m.Name,
		Email:     m.Email,
		IsAdmin:   m.IsAdmin,
		AvatarURL: m.AvatarURL,
		Bio:       m.Bio,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toIdentityCredentials(m localIdentityModel) ports.IdentityCredentials {
	return ports.IdentityCredentials{
		Identity: domain.Identity{
			SubjectID:   m.SubjectID,
			Email:       m.Email,
			DisplayName: m.DisplayName,
		},
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func toOutboxRecord(m identityOutboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       m.OutboxID,
		EventType:      m.EventType,
		PartitionKey:   m.PartitionKey,
		Payload:        []byte(m.Payload),
		RetryCount:     m.RetryCount,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		PublishedAt:    m.PublishedAt,
		DeadLetteredAt: m.DeadLetteredAt,
	}
}

func toOutboxModel(event ports.OutboxEvent) identityOutboxModel {
	return identityOutboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(event.Payload),
		CreatedAt:    event.OccurredAt,
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
