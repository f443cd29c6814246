package github

import (
	"strconv"

	"github.com/goliatone/go-sessionauth/social"
)

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// pickEmail prefers the primary address, then any verified one
func pickEmail(emails []githubEmail) (string, bool, bool) {
	for _, e := range emails {
		if e.Primary && e.Email != "" {
			return e.Email, e.Verified, true
		}
	}
	for _, e := range emails {
		if e.Verified && e.Email != "" {
			return e.Email, true, true
		}
	}
	return "", false, false
}

func (u *githubUser) profile(email string, emailVerified bool) *social.SocialProfile {
	name := u.Name
	if name == "" {
		name = u.Login
	}

	return &social.SocialProfile{
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Provider:       ProviderName,
		Email:          email,
		EmailVerified:  emailVerified,
		Name:           name,
		Username:       u.Login,
		AvatarURL:      u.AvatarURL,
		Raw: map[string]any{
			"login":    u.Login,
			"html_url": u.HTMLURL,
		},
	}
}
