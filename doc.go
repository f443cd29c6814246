// Package auth implements cookie backed session authentication for The Good
// Corner marketplace.
//
// Sessions:
//   - SessionManager resolves the signed "{prefix}.session_token" cookie
//     against the sessions table through Store, and writes a short lived
//     "{prefix}.session_data" CookieCache so most requests skip the database.
//     The cache never outlives the session it was minted for.
//   - Middleware stores the caller Identity on the user context; read it
//     back with IdentityFromContext.
//
// Authorization:
//   - Authorize checks a Requirement built with Public, Authenticated or
//     RequireRoles. Role checks revalidate against the users table so a role change takes effect before
//     the cache window closes.
//
// Cross-origin bridge:
//   - Bridge converts the auth service provider cookie into an
//     application session (/api/auth-bridge, /api/auth-bridge-passkey) and
//     back (/api/auth-ensure-session).
//
// Commands:
//   - RegisterUserHandler, magic link, account verification and password
//     reset handlers back the /api/auth email endpoints served by
//     AuthController. Activity is reported to an ActivitySink; sink failures
//     are logged and never block authentication.
package auth
