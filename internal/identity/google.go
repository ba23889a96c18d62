// Package identity exchanges third-party sign-in grants for verified identities.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/quickbites/identity-service/internal/config"
	"github.com/quickbites/identity-service/internal/domain"
)

var (
	// ErrEmptyGrant is returned when neither a code nor a credential is given.
	ErrEmptyGrant = errors.New("identity grant is empty")
	// ErrUnverifiedEmail is returned unless the provider explicitly marks the email verified.
	ErrUnverifiedEmail = errors.New("identity provider email is not verified")
	// ErrProviderDisabled is returned when no client id is configured.
	ErrProviderDisabled = errors.New("identity provider is not configured")
)

// Bridge exchanges a grant for a verified identity.
type Bridge interface {
	Exchange(ctx context.Context, grant domain.IdentityGrant) (*domain.ExternalIdentity, error)
}

// Seams for tests; production code always goes to Google.
type (
	codeExchanger    func(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error)
	userInfoFetcher  func(ctx context.Context, src oauth2.TokenSource) (*oauth2api.Userinfo, error)
	idTokenValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
)

// GoogleBridge is stateless: the oauth2 config is read-only after construction
// and every exchange works on its own token.
type GoogleBridge struct {
	oauth    oauth2.Config
	exchange codeExchanger
	userInfo userInfoFetcher
	validate idTokenValidator
}

// NewGoogleBridge builds a bridge from the Google client settings.
func NewGoogleBridge(cfg config.GoogleConfig) *GoogleBridge {
	return &GoogleBridge{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
		exchange: func(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
			return cfg.Exchange(ctx, code)
		},
		userInfo: func(ctx context.Context, src oauth2.TokenSource) (*oauth2api.Userinfo, error) {
			svc, err := oauth2api.NewService(ctx, option.WithTokenSource(src))
			if err != nil {
				return nil, err
			}
			return svc.Userinfo.Get().Context(ctx).Do()
		},
		validate: idtoken.Validate,
	}
}

// Exchange resolves either an authorization code or a signed ID token.
func (b *GoogleBridge) Exchange(ctx context.Context, grant domain.IdentityGrant) (*domain.ExternalIdentity, error) {
	if b.oauth.ClientID == "" {
		return nil, ErrProviderDisabled
	}
	switch {
	case grant.Credential != "":
		return b.fromIDToken(ctx, grant.Credential)
	case grant.Code != "":
		return b.fromCode(ctx, grant.Code)
	default:
		return nil, ErrEmptyGrant
	}
}

func (b *GoogleBridge) fromCode(ctx context.Context, code string) (*domain.ExternalIdentity, error) {
	token, err := b.exchange(ctx, &b.oauth, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	info, err := b.userInfo(ctx, b.oauth.TokenSource(ctx, token))
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	if info.VerifiedEmail == nil || !*info.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}
	return newIdentity(info.Email, info.Name, info.Id, info.Picture)
}

func (b *GoogleBridge) fromIDToken(ctx context.Context, credential string) (*domain.ExternalIdentity, error) {
	payload, err := b.validate(ctx, credential, b.oauth.ClientID)
	if err != nil {
		return nil, fmt.Errorf("validate id token: %w", err)
	}

	if verified, ok := payload.Claims["email_verified"].(bool); !ok || !verified {
		return nil, ErrUnverifiedEmail
	}
	email, _ := payload.Claims["email"].(string)
	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)
	return newIdentity(email, name, payload.Subject, picture)
}

func newIdentity(email, name, subject, picture string) (*domain.ExternalIdentity, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("identity provider returned no email")
	}
	if strings.TrimSpace(name) == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	return &domain.ExternalIdentity{
		Email:   email,
		Name:    strings.TrimSpace(name),
		Subject: subject,
		Picture: picture,
	}, nil
}
