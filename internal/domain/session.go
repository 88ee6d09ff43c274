package domain

// Lifecycle is the resolution state of a SessionView.
type Lifecycle string

const (
	// LifecycleUnresolved means a profile lookup is in flight. Deny privileged work
	// but do not assume the caller is anonymous.
	LifecycleUnresolved Lifecycle = "unresolved"
	LifecycleAnonymous  Lifecycle = "resolved_anonymous"
	// LifecycleAuthenticated implies a matching profile was found for the identity.
	LifecycleAuthenticated Lifecycle = "resolved_authenticated"
	// LifecycleFailed means resolution timed out. It is recoverable by retrying or by
	// the next identity change.
	LifecycleFailed Lifecycle = "resolution_failed"
)

const defaultDisplayName = "User"

// SessionView is the merged identity + profile view of the current caller.
type SessionView struct {
	ID            string    `json:"id,omitempty"`
	Email         string    `json:"email,omitempty"`
	Name          string    `json:"name,omitempty"`
	IsAdmin       bool      `json:"is_admin"`
	Lifecycle     Lifecycle `json:"lifecycle"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

func UnresolvedSession() SessionView {
	return SessionView{Lifecycle: LifecycleUnresolved}
}

func AnonymousSession() SessionView {
	return SessionView{Lifecycle: LifecycleAnonymous}
}

func FailedSession(reason string) SessionView {
	return SessionView{Lifecycle: LifecycleFailed, FailureReason: reason}
}

// AuthenticatedSession merges the identity with its profile. The display name
// falls back from the profile to the identity and finally to "User".
func AuthenticatedSession(identity Identity, profile Profile) SessionView {
	name := profile.Name
	if name == "" {
		name = identity.DisplayName
	}
	if name == "" {
		name = defaultDisplayName
	}
	return SessionView{
		ID:        identity.SubjectID,
		Email:     identity.Email,
		Name:      name,
		IsAdmin:   profile.IsAdmin,
		Lifecycle: LifecycleAuthenticated,
	}
}

// Settled reports whether the view is past the unresolved state.
func (v SessionView) Settled() bool {
	return v.Lifecycle != LifecycleUnresolved
}
