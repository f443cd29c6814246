package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/google/uuid"
)

// webAuthnUser adapts a marketplace user and its registered passkeys to the
// relying party. The user handle is the textual user id.
type webAuthnUser struct {
	user        *auth.User
	passkeys    []*auth.Passkey
	credentials []webauthn.Credential
}

var _ webauthn.User = (*webAuthnUser)(nil)

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID.String())
}

func (u *webAuthnUser) WebAuthnName() string {
	return u.user.Email
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	return u.user.DisplayName()
}

func (u *webAuthnUser) WebAuthnIcon() string {
	return u.user.Image
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// passkey returns the stored row for a credential id
func (u *webAuthnUser) passkey(credentialID string) *auth.Passkey {
	for _, pk := range u.passkeys {
		if pk.CredentialID == credentialID {
			return pk
		}
	}
	return nil
}

func loadUser(ctx context.Context, repo auth.RepositoryManager, userID uuid.UUID) (*webAuthnUser, error) {
	user, err := repo.Users().FindUserByID(ctx, userID)
	if err != nil {
		return nil, auth.WrapStorageError(err, "failed to load passkey user")
	}
	if user == nil {
		return nil, nil
	}

	records, err := repo.Passkeys().ListUserPasskeys(ctx, user.ID)
	if err != nil {
		return nil, auth.WrapStorageError(err, "failed to list passkeys")
	}

	credentials, err := decodeCredentials(records)
	if err != nil {
		return nil, err
	}

	return &webAuthnUser{user: user, passkeys: records, credentials: credentials}, nil
}

func decodeCredentials(records []*auth.Passkey) ([]webauthn.Credential, error) {
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.Credential), &credential); err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func encodeCredentialID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

func deviceType(credential *webauthn.Credential) string {
	if credential.Flags.BackupEligible {
		return "multiDevice"
	}
	return "singleDevice"
}

func transports(credential *webauthn.Credential) string {
	out := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		out = append(out, string(t))
	}
	return strings.Join(out, ",")
}
