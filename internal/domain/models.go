package domain

import "time"

// Identity is the provider-owned record for a signed-in subject.
// This service never mutates it except through the provider's delete operation.
type Identity struct {
	SubjectID   string
	Email       string
	DisplayName string
}

// Profile is the application-owned document keyed by the identity subject id.
type Profile struct {
	ID        string
	Name      string
	Email     string
	IsAdmin   bool
	AvatarURL *string
	Bio       *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DeletionOutcome string

const (
	// DeletionOutcomeDeleted means the identity was removed by this call.
	DeletionOutcomeDeleted DeletionOutcome = "deleted"
	// DeletionOutcomeOrphanCleaned means the identity was already gone and only the profile was removed.
	DeletionOutcomeOrphanCleaned DeletionOutcome = "orphan_cleaned"
	// DeletionOutcomeAlreadyDeleted means neither record existed; a retried delete lands here.
	DeletionOutcomeAlreadyDeleted DeletionOutcome = "already_deleted"
)

type DeletionReceipt struct {
	TargetID        string
	Outcome         DeletionOutcome
	IdentityDeleted bool
	ProfileDeleted  bool
	CompletedAt     time.Time
}
