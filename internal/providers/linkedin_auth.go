package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const linkedInOAuthScope = "openid profile w_member_social"

// AuthURL returns the member authorization URL for the given state nonce.
func (c *LinkedInClient) AuthURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURL)
	q.Set("state", state)
	q.Set("scope", linkedInOAuthScope)
	return c.authBaseURL + "/oauth/v2/authorization?" + q.Encode()
}

// Exchange trades an authorization code for an access token.
// The token endpoint is retried on transient failures.
func (c *LinkedInClient) Exchange(ctx context.Context, code string) (*AuthToken, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("redirect_uri", c.redirectURL)

	var token AuthToken
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				c.authBaseURL+"/oauth/v2/accessToken", strings.NewReader(form.Encode()))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := c.client.Do(req)
			if err != nil {
				return fmt.Errorf("token request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read token response: %w", err)
			}

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("token endpoint error (status %d)", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(
					fmt.Errorf("token exchange rejected (status %d): %s", resp.StatusCode, string(body)))
			}

			var parsed struct {
				AccessToken string `json:"access_token"`
				ExpiresIn   int    `json:"expires_in"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode token response: %w", err))
			}
			if parsed.AccessToken == "" {
				return retry.Unrecoverable(fmt.Errorf("token response carried no access token"))
			}

			token.AccessToken = parsed.AccessToken
			if parsed.ExpiresIn > 0 {
				token.ExpiresAt = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return &token, nil
}

// Profile fetches the OpenID identity for the given token.
func (c *LinkedInClient) Profile(ctx context.Context, accessToken string) (*Identity, error) {
	_, body, err := c.doRequest(ctx, accessToken, http.MethodGet, "/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}

	var info struct {
		Sub        string `json:"sub"`
		Name       string `json:"name"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Email      string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("profile response carried no member id")
	}

	name := info.Name
	if name == "" {
		name = strings.TrimSpace(info.GivenName + " " + info.FamilyName)
	}

	return &Identity{
		ID:     info.Sub,
		Name:   name,
		Handle: info.Email,
	}, nil
}
