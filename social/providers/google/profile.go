package google

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-sessionauth/social"
)

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

func (info *googleUserInfo) profile() *social.SocialProfile {
	return &social.SocialProfile{
		ProviderUserID: info.Sub,
		Provider:       ProviderName,
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		Name:           info.Name,
		AvatarURL:      info.Picture,
		Raw: map[string]any{
			"sub":    info.Sub,
			"locale": info.Locale,
		},
	}
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	HostedDomain  string `json:"hd,omitempty"`
	jwt.RegisteredClaims
}

func (c *idTokenClaims) profile() *social.SocialProfile {
	return &social.SocialProfile{
		ProviderUserID: c.Subject,
		Provider:       ProviderName,
		Email:          c.Email,
		EmailVerified:  c.EmailVerified,
		Name:           c.Name,
		AvatarURL:      c.Picture,
		Raw: map[string]any{
			"sub": c.Subject,
			"hd":  c.HostedDomain,
		},
	}
}
