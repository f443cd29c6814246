package graph

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"
)

// Access each operation asks for. Role checks reload the identity from the
// store so a cached snapshot cannot grant a revoked role.
var (
	requireMe          = auth.Public()
	requireUsers       = auth.Authenticated()
	requireLogin       = auth.Public()
	requireLogout      = auth.Public()
	requireSignup      = auth.Public()
	requireSetUserRole = auth.RequireRoles(auth.RoleAdmin)
)

// Resolver is the root resolver for queries and mutations
type Resolver struct {
	repo          auth.RepositoryManager
	sessions      *auth.SessionManager
	authenticator *auth.Authenticator
	registrar     *auth.RegisterUserHandler
	activity      auth.ActivitySink
	logger        auth.Logger
}

// NewResolver builds the root resolver. authenticator and registrar are the
// same handlers the /api/auth endpoints use.
func NewResolver(repo auth.RepositoryManager, sessions *auth.SessionManager, authenticator *auth.Authenticator, registrar *auth.RegisterUserHandler) *Resolver {
	return &Resolver{
		repo:          repo,
		sessions:      sessions,
		authenticator: authenticator,
		registrar:     registrar,
		activity:      auth.ActivitySinkFunc(nil),
		logger:        auth.NewZapLogger(nil),
	}
}

func (r *Resolver) WithLogger(logger auth.Logger) *Resolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithActivitySink records logins and role changes made through GraphQL
func (r *Resolver) WithActivitySink(sink auth.ActivitySink) *Resolver {
	if sink != nil {
		r.activity = sink
	}
	return r
}

// Me returns the caller, or null when anonymous. It never fails.
func (r *Resolver) Me(ctx context.Context) *UserResolver {
	user, err := r.authorize(ctx, requireMe)
	if err != nil || user == nil {
		return nil
	}
	return &UserResolver{user: user}
}

func (r *Resolver) Users(ctx context.Context) ([]*UserResolver, error) {
	if _, err := r.authorize(ctx, requireUsers); err != nil {
		return nil, err
	}

	users, err := r.repo.Users().ListUsers(ctx)
	if err != nil {
		return nil, r.fail("list users failed", auth.WrapStorageError(err, "failed to list users"))
	}

	out := make([]*UserResolver, 0, len(users))
	for _, u := range users {
		out = append(out, &UserResolver{user: u})
	}
	return out, nil
}

type LoginInput struct {
	Email    string
	Password string
}

// Login checks the credentials and sets the application session cookies
func (r *Resolver) Login(ctx context.Context, args struct{ Data LoginInput }) (*UserResolver, error) {
	if _, err := r.authorizeMutation(ctx, requireLogin); err != nil {
		return nil, err
	}

	c, err := fiberCtx(ctx)
	if err != nil {
		return nil, err
	}

	user, err := r.authenticator.Login(ctx, auth.LoginRequest{
		Email:    args.Data.Email,
		Password: args.Data.Password,
	})
	if err != nil {
		return nil, r.fail("graphql login rejected", err)
	}

	current, err := r.sessions.Current(ctx, auth.NewCookieJar(c))
	if err != nil {
		return nil, r.fail("graphql login session lookup failed", err)
	}

	state, err := r.sessions.SignIn(ctx, user, auth.RequestMetaFrom(c), current)
	if err != nil {
		return nil, r.fail("graphql login session failed", err)
	}
	if err := r.sessions.Write(c, state); err != nil {
		return nil, r.fail("graphql login cookie failed", err)
	}
	auth.RecordActivity(ctx, r.activity, r.logger, auth.NewActivityEvent(auth.ActivityEventLoginSuccess, state.User, time.Now(),
		map[string]any{"method": "graphql"},
	))

	return &UserResolver{user: state.User}, nil
}

// Logout deletes the presented sessions and clears the cookies. Anonymous
// callers get true as well.
func (r *Resolver) Logout(ctx context.Context) (bool, error) {
	if _, err := r.authorizeMutation(ctx, requireLogout); err != nil {
		return false, err
	}

	c, err := fiberCtx(ctx)
	if err != nil {
		return false, err
	}

	if err := r.sessions.SignOut(ctx, auth.NewCookieJar(c)); err != nil {
		return false, r.fail("graphql logout failed", err)
	}
	r.sessions.Clear(c)
	return true, nil
}

type SignupInput struct {
	Email    string
	Password string
	Name     *string
}

// Signup creates the user and sends the verification email. No session is
// opened until the email is verified.
func (r *Resolver) Signup(ctx context.Context, args struct{ Data SignupInput }) (*UserResolver, error) {
	if _, err := r.authorizeMutation(ctx, requireSignup); err != nil {
		return nil, err
	}

	msg := auth.RegisterUserMessage{
		Email:    args.Data.Email,
		Password: args.Data.Password,
	}
	if args.Data.Name != nil {
		msg.Name = *args.Data.Name
	}

	var user *auth.User
	msg.OnResponse = func(u *auth.User) { user = u }

	if err := r.registrar.Execute(ctx, msg); err != nil {
		return nil, r.fail("graphql signup rejected", err)
	}
	return &UserResolver{user: user}, nil
}

type setUserRoleArgs struct {
	UserID graphql.ID
	Role   string
}

// SetUserRole is reserved to admins
func (r *Resolver) SetUserRole(ctx context.Context, args setUserRoleArgs) (*UserResolver, error) {
	admin, err := r.authorizeMutation(ctx, requireSetUserRole)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(string(args.UserID))
	if err != nil {
		return nil, badInput("invalid user id")
	}
	role, ok := auth.ParseRole(args.Role)
	if !ok {
		return nil, badInput("invalid role")
	}

	user, err := r.repo.Users().SetRole(ctx, id, role)
	if err != nil {
		return nil, r.fail("set user role failed", auth.WrapStorageError(err, "failed to set role"))
	}
	if user == nil {
		return nil, badInput("user not found")
	}

	auth.RecordActivity(ctx, r.activity, r.logger, auth.NewActivityEvent(auth.ActivityEventRoleChanged, user, time.Now(),
		map[string]any{"role": string(role), "changed_by": admin.ID.String()},
	))
	return &UserResolver{user: user}, nil
}

// authorize checks req against the identity the session middleware stored
// in ctx
func (r *Resolver) authorize(ctx context.Context, req auth.Requirement) (*auth.User, error) {
	identity, _ := auth.IdentityFromContext(ctx)

	var user *auth.User
	if identity != nil {
		user = identity.User
	}

	if identity != nil && req.NeedsFreshIdentity() {
		res, err := r.sessions.Revalidate(ctx, &auth.Resolution{
			State:  &auth.SessionState{Session: identity.Session, User: identity.User},
			Source: identity.Source,
		})
		if err != nil {
			return nil, r.fail("identity revalidation failed", err)
		}
		user = nil
		if res.Authenticated() {
			user = res.State.User
		}
	}

	if err := auth.Authorize(user, req); err != nil {
		return nil, toError(err)
	}
	return user, nil
}

// authorizeMutation also refuses mutations sent over GET, which a cross
// site link could trigger with the user's cookies
func (r *Resolver) authorizeMutation(ctx context.Context, req auth.Requirement) (*auth.User, error) {
	if readOnly, _ := ctx.Value(readOnlyKey{}).(bool); readOnly {
		return nil, badInput("mutations must be sent with POST")
	}
	return r.authorize(ctx, req)
}

func (r *Resolver) fail(msg string, err error) error {
	gqlErr := toError(err)
	if gqlErr.Code == CodeInternal {
		auth.LogError(r.logger, msg, err)
	} else {
		r.logger.Info(msg, "error", err)
	}
	return gqlErr
}

// UserResolver exposes a user. Ids are rendered as opaque strings.
type UserResolver struct {
	user *auth.User
}

func (u *UserResolver) ID() graphql.ID {
	return graphql.ID(u.user.ID.String())
}

func (u *UserResolver) Email() string {
	return u.user.Email
}

func (u *UserResolver) Name() *string {
	if u.user.Name == "" {
		return nil
	}
	name := u.user.Name
	return &name
}

func (u *UserResolver) EmailVerified() bool {
	return u.user.EmailVerified
}

func (u *UserResolver) Image() *string {
	if u.user.Image == "" {
		return nil
	}
	image := u.user.Image
	return &image
}

func (u *UserResolver) Role() string {
	if !u.user.Role.IsValid() {
		return string(auth.RoleVisitor)
	}
	return string(u.user.Role)
}

func (u *UserResolver) CreatedAt() string {
	return u.user.CreatedAt.UTC().Format(time.RFC3339)
}

type fiberCtxKey struct{}

type readOnlyKey struct{}

func withFiberCtx(ctx context.Context, c *fiber.Ctx) context.Context {
	return context.WithValue(ctx, fiberCtxKey{}, c)
}

func fiberCtx(ctx context.Context) (*fiber.Ctx, error) {
	c, ok := ctx.Value(fiberCtxKey{}).(*fiber.Ctx)
	if !ok || c == nil {
		return nil, &Error{Code: CodeInternal, Message: "internal server error"}
	}
	return c, nil
}
