package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// EntraConfig identifies an app registration in Microsoft Entra ID.
type EntraConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Scopes defaults to "api://<ClientID>/.default".
	Scopes []string
	// TokenURL overrides the tenant token endpoint.
	TokenURL string
}

// EntraAcquirer obtains tokens with the OAuth2 client-credentials grant.
type EntraAcquirer struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
}

// NewEntraAcquirer validates cfg and builds an acquirer.
func NewEntraAcquirer(cfg EntraConfig, httpClient *http.Client) (*EntraAcquirer, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("entra client id and secret are required")
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		if strings.TrimSpace(cfg.TenantID) == "" {
			return nil, fmt.Errorf("entra tenant id is required")
		}
		tokenURL = microsoft.AzureADEndpoint(cfg.TenantID).TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"api://" + cfg.ClientID + "/.default"}
	}
	return &EntraAcquirer{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}, nil
}

// Acquire requests a fresh token from the tenant.
func (a *EntraAcquirer) Acquire(ctx context.Context) (Token, error) {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}
	tok, err := a.cfg.Token(ctx)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: tok.AccessToken, Expiry: tok.Expiry}, nil
}
