package downstream

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Token is an issued OAuth token pair.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	// ExternalStoreID is the platform's store id bound to the token.
	ExternalStoreID string
}

// TokenClient drives the OAuth lifecycle against the authorization server.
type TokenClient interface {
	// ExchangeCode trades an authorization code plus its PKCE verifier for
	// a token pair.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*Token, error)

	// Refresh renews a token pair with the refresh_token grant.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// OAuthClient implements TokenClient against the Martan authorization server
type OAuthClient struct {
	oauthURL     string
	clientID     string
	clientSecret string
	redirectURL  string
	http         *http.Client
}

// NewOAuthClient creates a new OAuthClient
func NewOAuthClient(oauthURL, clientID, clientSecret, redirectURL string, timeout time.Duration) *OAuthClient {
	return &OAuthClient{
		oauthURL:     oauthURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		http:         &http.Client{Timeout: timeout},
	}
}

// AuthorizeURL builds the authorization redirect for a store, binding the
// PKCE challenge to the flow.
func (c *OAuthClient) AuthorizeURL(state, codeChallenge string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURL)
	params.Set("state", state)
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "S256")
	return c.oauthURL + "/oauth/authorize?" + params.Encode()
}

// ExchangeCode trades an authorization code for a token pair
func (c *OAuthClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)
	form.Set("redirect_uri", c.redirectURL)
	return c.requestToken(ctx, form)
}

// Refresh renews a token pair with the refresh_token grant
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.requestToken(ctx, form)
}

func (c *OAuthClient) requestToken(ctx context.Context, form url.Values) (*Token, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Status:    resp.StatusCode,
			ErrorCode: parseErrorCode(raw),
			Body:      string(raw),
		}
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		StoreID      string `json:"store_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &Token{
		AccessToken:     body.AccessToken,
		RefreshToken:    body.RefreshToken,
		ExpiresAt:       time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
		ExternalStoreID: body.StoreID,
	}, nil
}

// Ensure OAuthClient implements TokenClient
var _ TokenClient = (*OAuthClient)(nil)

// GenerateCodeVerifier returns a fresh high-entropy PKCE code verifier.
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeChallengeS256 derives the S256 challenge of a verifier.
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
