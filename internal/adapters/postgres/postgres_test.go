package postgres

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/storefront-identity/internal/ports"
	"gorm.io/gorm"
)

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_identity_core.sql", names[0])

	raw, err := migrationFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	for _, table := range []string{profileModel{}.TableName(), localIdentityModel{}.TableName(), identityOutboxModel{}.TableName()} {
		require.Contains(t, string(raw), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestOutboxMappingKeepsPayload(t *testing.T) {
	event := ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "identity.deleted",
		PartitionKey: "u2",
		Payload:      []byte(`{"data":{"subject_id":"u2"}}`),
		OccurredAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	model := toOutboxModel(event)
	record := toOutboxRecord(model)

	require.Equal(t, event.EventID, record.OutboxID)
	require.Equal(t, event.EventType, record.EventType)
	require.Equal(t, event.PartitionKey, record.PartitionKey)
	require.Equal(t, event.Payload, record.Payload)
	require.Equal(t, event.OccurredAt, record.CreatedAt)
	require.Nil(t, record.PublishedAt)
}

func TestProfileMappingCarriesOptionalFields(t *testing.T) {
	bio := "collector"
	profile := toDomainProfile(profileModel{ProfileID: "u1", Name: "Ada", IsAdmin: true, Bio: &bio})
	require.Equal(t, "u1", profile.ID)
	require.True(t, profile.IsAdmin)
	require.Nil(t, profile.AvatarURL)
	require.Equal(t, "collector", *profile.Bio)
}

func TestErrorTranslation(t *testing.T) {
	require.True(t, isUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	require.False(t, isUniqueViolation(gorm.ErrRecordNotFound))
	require.True(t, isNotFound(fmt.Errorf("take: %w", gorm.ErrRecordNotFound)))
	require.False(t, isNotFound(nil))
}
