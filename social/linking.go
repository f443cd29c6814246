package social

import (
	"context"

	auth "github.com/goliatone/go-sessionauth"
)

// LinkingStrategy maps a provider profile to a local user.
type LinkingStrategy interface {
	ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error)
}

// LinkingPolicy decides the linking flags for a single callback.
type LinkingPolicy func(ctx context.Context, lc LinkingContext) (LinkDecision, error)

// LinkDecision controls resolution for one flow.
type LinkDecision struct {
	Mode                 string
	AllowSignup          bool
	AllowLinking         bool
	RequireEmailVerified bool
}

// PolicyLinkingStrategy applies a LinkingPolicy, then resolves with the
// default strategy.
type PolicyLinkingStrategy struct {
	Policy LinkingPolicy
}

// ResolveUser implements LinkingStrategy.
func (s *PolicyLinkingStrategy) ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	if s == nil || s.Policy == nil {
		return nil, ErrLinkingNotAllowed
	}

	decision, err := s.Policy(ctx, lc)
	if err != nil {
		return nil, err
	}

	resolver := &DefaultLinkingStrategy{
		AllowSignup:          decision.AllowSignup,
		AllowLinking:         decision.AllowLinking,
		RequireEmailVerified: decision.RequireEmailVerified,
	}
	if decision.Mode != "" {
		lc.Mode = decision.Mode
	}

	return resolver.ResolveUser(ctx, lc)
}

// LinkingContext carries the profile and the repositories, already bound to
// the callback transaction.
type LinkingContext struct {
	Profile *SocialProfile
	Mode    string
	Store   *auth.Store
	Users   auth.UserRepository
}

// LinkingResult is the resolved user.
type LinkingResult struct {
	User *auth.User
	// Account is set when the provider identity was already linked
	Account   *auth.Account
	IsNewUser bool
	Linked    bool
}

// DefaultLinkingStrategy resolves in order: an account already linked to
// the provider identity, a user with the same email, a new user.
type DefaultLinkingStrategy struct {
	AllowSignup  bool
	AllowLinking bool
	// RequireEmailVerified applies when linking to an existing user by email
	RequireEmailVerified bool
	DefaultRole          auth.Role

	OnUserCreated   func(ctx context.Context, user *auth.User, profile *SocialProfile) error
	OnAccountLinked func(ctx context.Context, user *auth.User, profile *SocialProfile) error
}

// ResolveUser implements LinkingStrategy.
func (s *DefaultLinkingStrategy) ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	if lc.Profile == nil {
		return nil, ErrUserInfoFailed
	}
	if lc.Store == nil || lc.Users == nil {
		return nil, ErrLinkingNotAllowed
	}

	profile := lc.Profile

	linked, err := lc.Store.AccountWithUser(ctx, profile.Provider, profile.ProviderUserID)
	if err != nil {
		return nil, err
	}
	if linked != nil {
		return &LinkingResult{User: linked.User, Account: linked.Account}, nil
	}

	if profile.Email == "" {
		return nil, ErrEmailMissing
	}

	if lc.Mode != LinkModeRejectUnknown {
		user, err := lc.Users.FindUserByEmail(ctx, profile.Email)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return s.link(ctx, lc, user)
		}
	}

	if lc.Mode == LinkModeEmailMatch || lc.Mode == LinkModeRejectUnknown || !s.AllowSignup {
		return nil, ErrSignupNotAllowed
	}

	created, err := lc.Users.CreateUser(ctx, s.userFromProfile(profile))
	if err != nil {
		return nil, err
	}

	if s.OnUserCreated != nil {
		if err := s.OnUserCreated(ctx, created, profile); err != nil {
			return nil, err
		}
	}

	return &LinkingResult{User: created, IsNewUser: true}, nil
}

func (s *DefaultLinkingStrategy) link(ctx context.Context, lc LinkingContext, user *auth.User) (*LinkingResult, error) {
	if !s.AllowLinking {
		return nil, ErrLinkingNotAllowed
	}
	if s.RequireEmailVerified && !lc.Profile.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if lc.Profile.EmailVerified && !user.EmailVerified {
		verified, err := lc.Users.MarkEmailVerified(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if verified != nil {
			user = verified
		}
	}

	if s.OnAccountLinked != nil {
		if err := s.OnAccountLinked(ctx, user, lc.Profile); err != nil {
			return nil, err
		}
	}

	return &LinkingResult{User: user, Linked: true}, nil
}

func (s *DefaultLinkingStrategy) userFromProfile(profile *SocialProfile) *auth.User {
	role := auth.RoleVisitor
	if s.DefaultRole.IsValid() {
		role = s.DefaultRole
	}

	name := profile.Name
	if name == "" {
		name = profile.Username
	}

	return &auth.User{
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
		Name:          name,
		Image:         profile.AvatarURL,
		Role:          role,
	}
}

// Linking modes
const (
	LinkModeAutoCreate    = "auto_create"
	LinkModeEmailMatch    = "email_match"
	LinkModeRejectUnknown = "reject_unknown"
)

// PolicyAutoCreate links verified emails and creates unknown users.
func PolicyAutoCreate() LinkingPolicy {
	return func(ctx context.Context, lc LinkingContext) (LinkDecision, error) {
		return LinkDecision{
			Mode:                 LinkModeAutoCreate,
			AllowSignup:          true,
			AllowLinking:         true,
			RequireEmailVerified: true,
		}, nil
	}
}

// PolicyEmailMatch only links to existing users with the same email.
func PolicyEmailMatch() LinkingPolicy {
	return func(ctx context.Context, lc LinkingContext) (LinkDecision, error) {
		return LinkDecision{
			Mode:                 LinkModeEmailMatch,
			AllowLinking:         true,
			RequireEmailVerified: true,
		}, nil
	}
}

// PolicyRejectUnknown only accepts provider identities already linked.
func PolicyRejectUnknown() LinkingPolicy {
	return func(ctx context.Context, lc LinkingContext) (LinkDecision, error) {
		return LinkDecision{Mode: LinkModeRejectUnknown}, nil
	}
}
