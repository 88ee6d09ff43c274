package application

import (
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
)

type Config struct {
	ServiceName string

	// ResolveTimeout bounds how long a session may stay unresolved before it
	// turns into a recoverable failure.
	ResolveTimeout     time.Duration
	LookupRetryInitial time.Duration
	LookupRetryMax     time.Duration

	CleanupRetryAttempts int
	CleanupRetryDelay    time.Duration

	SessionCacheTTL time.Duration
	RevocationTTL   time.Duration

	FirstUserAdmin       bool
	BootstrapAdminEmails []string
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type RegisterResponse struct {
	SubjectID   string `json:"subject_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SubjectID string    `json:"subject_id"`
}

type ProfileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DeletionResponse struct {
	TargetID        string    `json:"target_id"`
	Outcome         string    `json:"outcome"`
	IdentityDeleted bool      `json:"identity_deleted"`
	ProfileDeleted  bool      `json:"profile_deleted"`
	CompletedAt     time.Time `json:"completed_at"`
}

// IdentityStatus describes the identity backend for readiness checks.
type IdentityStatus struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

func ToProfileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		IsAdmin:   p.IsAdmin,
		AvatarURL: p.AvatarURL,
		Bio:       p.Bio,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func ToDeletionResponse(r domain.DeletionReceipt) DeletionResponse {
	return DeletionResponse{
		TargetID:        r.TargetID,
		Outcome:         string(r.Outcome),
		IdentityDeleted: r.IdentityDeleted,
		ProfileDeleted:  r.ProfileDeleted,
		CompletedAt:     r.CompletedAt,
	}
}
