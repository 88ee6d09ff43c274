package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// Register creates the identity and its profile. When the profile cannot be
// written the identity is deleted again so no signed-in subject is left without
// a profile.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return RegisterResponse{}, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return RegisterResponse{}, err
	}
	displayName, err := domain.NormalizeDisplayName(req.DisplayName)
	if err != nil {
		return RegisterResponse{}, err
	}
	registrar, err := s.identity.Registrar()
	if err != nil {
		return RegisterResponse{}, err
	}

	identity, err := registrar.SignUp(ctx, ports.SignUpParams{
		Email:       email,
		Password:    req.Password,
		DisplayName: displayName,
	})
	if err != nil {
		return RegisterResponse{}, err
	}

	profile, _, err := s.provisionProfile(ctx, identity)
	if err != nil {
		s.compensateRegistration(ctx, identity.SubjectID, err)
		return RegisterResponse{}, fmt.Errorf("create profile: %w", err)
	}

	s.enqueueBestEffort(ctx, EventTypeIdentityRegistered, identity.SubjectID, identityRegisteredData{
		SubjectID:   identity.SubjectID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	})
	slog.Default().InfoContext(ctx, "identity registered",
		"module", "application.registration",
		"layer", "application",
		"operation", "register",
		"outcome", "success",
		"subject_id", identity.SubjectID,
		"is_admin", profile.IsAdmin,
	)
	return RegisterResponse{
		SubjectID:   identity.SubjectID,
		Email:       identity.Email,
		DisplayName: profile.Name,
		IsAdmin:     profile.IsAdmin,
	}, nil
}

// Login exchanges credentials for a bearer token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return LoginResponse{}, err
	}
	if req.Password == "" {
		return LoginResponse{}, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	registrar, err := s.identity.Registrar()
	if err != nil {
		return LoginResponse{}, err
	}
	issued, err := registrar.SignIn(ctx, email, req.Password)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		SubjectID: issued.Identity.SubjectID,
	}, nil
}

// provisionProfile creates the profile for identity unless one already
// exists. created is false when an existing profile was returned.
func (s *Service) provisionProfile(ctx context.Context, identity domain.Identity) (domain.Profile, bool, error) {
	isAdmin := s.isBootstrapAdmin(identity.Email)
	if !isAdmin && s.cfg.FirstUserAdmin {
		admins, err := s.profiles.CountAdmins(ctx)
		if err != nil {
			return domain.Profile{}, false, fmt.Errorf("count administrators: %w", err)
		}
		isAdmin = admins == 0
	}
	name := identity.DisplayName
	if name == "" {
		name = strings.SplitN(identity.Email, "@", 2)[0]
	}

	profile, err := s.profiles.Create(ctx, ports.CreateProfileParams{
		ID:        identity.SubjectID,
		Name:      name,
		Email:     identity.Email,
		IsAdmin:   isAdmin,
		CreatedAt: s.nowFn(),
	})
	if errors.Is(err, domain.ErrConflict) {
		existing, getErr := s.profiles.GetByID(ctx, identity.SubjectID)
		if getErr != nil {
			return domain.Profile{}, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.Profile{}, false, err
	}
	return profile, true, nil
}

func (s *Service) isBootstrapAdmin(email string) bool {
	return email != "" && slices.ContainsFunc(s.cfg.BootstrapAdminEmails, func(candidate string) bool {
		return strings.EqualFold(strings.TrimSpace(candidate), email)
	})
}

func (s *Service) compensateRegistration(ctx context.Context, subjectID string, cause error) {
	provider, err := s.identity.Provider()
	if err == nil {
		err = provider.DeleteIdentity(ctx, subjectID)
	}
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		slog.Default().WarnContext(ctx, "registration rolled back",
			"module", "application.registration",
			"layer", "application",
			"operation", "register",
			"outcome", "compensated",
			"subject_id", subjectID,
			"error", cause,
		)
		return
	}
	s.raiseAlert(ctx, ports.AlertKindOrphanIdentity, subjectID,
		fmt.Errorf("profile creation failed (%v) and identity rollback failed: %w", cause, err))
}
