package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestLinkedIn(serverURL string) *LinkedInClient {
	return NewLinkedInClient(LinkedInConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8480/auth/callback",
		BaseURL:      serverURL,
		AuthBaseURL:  serverURL,
		RateLimit:    6000,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
	})
}

func userinfoResponse(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]any{
		"sub":  "member-1",
		"name": "Test Member",
	})
}

func TestLinkedInClient_AuthURL(t *testing.T) {
	client := newTestLinkedIn("https://example.test")

	raw := client.AuthURL("state-nonce")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthURL parse: %v", err)
	}
	q := u.Query()
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q", q.Get("response_type"))
	}
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") != "state-nonce" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if !strings.Contains(q.Get("scope"), "w_member_social") {
		t.Errorf("scope %q missing posting permission", q.Get("scope"))
	}
}

func TestLinkedInClient_Exchange(t *testing.T) {
	t.Run("successful exchange", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/oauth/v2/accessToken" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
				t.Errorf("grant_type = %q", got)
			}
			if got := r.PostForm.Get("code"); got != "the-code" {
				t.Errorf("code = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "fresh-token",
				"expires_in":   3600,
			})
		}))
		defer server.Close()

		client := newTestLinkedIn(server.URL)
		token, err := client.Exchange(context.Background(), "the-code")
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}
		if token.AccessToken != "fresh-token" {
			t.Errorf("AccessToken = %q", token.AccessToken)
		}
		if token.ExpiresAt.Before(time.Now()) {
			t.Error("ExpiresAt not in the future")
		}
	})

	t.Run("rejected code does not retry", func(t *testing.T) {
		var calls int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer server.Close()

		client := newTestLinkedIn(server.URL)
		if _, err := client.Exchange(context.Background(), "bad-code"); err == nil {
			t.Fatal("Exchange() succeeded with rejected code")
		}
		if calls != 1 {
			t.Errorf("token endpoint called %d times, want 1", calls)
		}
	})

	t.Run("transient failure retries", func(t *testing.T) {
		var calls int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh-token"})
		}))
		defer server.Close()

		client := newTestLinkedIn(server.URL)
		token, err := client.Exchange(context.Background(), "the-code")
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}
		if token.AccessToken != "fresh-token" {
			t.Errorf("AccessToken = %q", token.AccessToken)
		}
		if calls != 2 {
			t.Errorf("token endpoint called %d times, want 2", calls)
		}
	})
}

func TestLinkedInClient_Profile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/userinfo" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("unexpected authorization: %s", auth)
		}
		userinfoResponse(w)
	}))
	defer server.Close()

	client := newTestLinkedIn(server.URL)
	identity, err := client.Profile(context.Background(), "test-token")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if identity.ID != "member-1" {
		t.Errorf("ID = %q", identity.ID)
	}
	if identity.Name != "Test Member" {
		t.Errorf("Name = %q", identity.Name)
	}
}

func TestLinkedInClient_Publish(t *testing.T) {
	t.Run("text only post", func(t *testing.T) {
		var postBody map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v2/userinfo":
				userinfoResponse(w)
			case "/v2/ugcPosts":
				json.NewDecoder(r.Body).Decode(&postBody)
				w.Header().Set("X-RestLi-Id", "urn:li:share:999")
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{}`))
			default:
				t.Errorf("unexpected path: %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		client := newTestLinkedIn(server.URL)
		receipt, err := client.Publish(context.Background(), "test-token", &PublishRequest{
			Text: "hello network",
		})
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if receipt.ExternalID != "urn:li:share:999" {
			t.Errorf("ExternalID = %q", receipt.ExternalID)
		}
		if !strings.Contains(receipt.URL, "urn:li:share:999") {
			t.Errorf("URL = %q missing post id", receipt.URL)
		}

		if got := postBody["author"]; got != "urn:li:person:member-1" {
			t.Errorf("author = %v", got)
		}
		content := postBody["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
		if got := content["shareMediaCategory"]; got != "NONE" {
			t.Errorf("shareMediaCategory = %v, want NONE", got)
		}
	})

	t.Run("post with image uploads asset first", func(t *testing.T) {
		var uploadedBytes int
		var mediaCategory any
		mux := http.NewServeMux()
		server := httptest.NewServer(mux)
		defer server.Close()

		mux.HandleFunc("/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
			userinfoResponse(w)
		})
		mux.HandleFunc("/v2/assets", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"value": map[string]any{
					"asset": "urn:li:digitalmediaAsset:abc",
					"uploadMechanism": map[string]any{
						"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]any{
							"uploadUrl": server.URL + "/upload-target",
						},
					},
				},
			})
		})
		mux.HandleFunc("/upload-target", func(w http.ResponseWriter, r *http.Request) {
			buf := make([]byte, 1024)
			n, _ := r.Body.Read(buf)
			uploadedBytes = n
			w.WriteHeader(http.StatusCreated)
		})
		mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			content := body["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
			mediaCategory = content["shareMediaCategory"]
			w.Header().Set("X-RestLi-Id", "urn:li:share:1000")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		})

		client := newTestLinkedIn(server.URL)
		image := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
		receipt, err := client.Publish(context.Background(), "test-token", &PublishRequest{
			Text:     "look at this",
			ImageB64: image,
		})
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if receipt.ExternalID != "urn:li:share:1000" {
			t.Errorf("ExternalID = %q", receipt.ExternalID)
		}
		if uploadedBytes == 0 {
			t.Error("no image bytes reached the upload target")
		}
		if mediaCategory != "IMAGE" {
			t.Errorf("shareMediaCategory = %v, want IMAGE", mediaCategory)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := newTestLinkedIn(server.URL)
		_, err := client.Publish(context.Background(), "stale-token", &PublishRequest{Text: "x"})
		if !errors.Is(err, ErrAuthExpired) {
			t.Errorf("Publish() error = %v, want ErrAuthExpired", err)
		}
	})

	t.Run("rate limited surfaces quota error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := newTestLinkedIn(server.URL)
		_, err := client.Publish(context.Background(), "test-token", &PublishRequest{Text: "x"})
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Errorf("Publish() error = %v, want ErrQuotaExceeded", err)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		client := newTestLinkedIn("http://unused.test")
		if _, err := client.Publish(context.Background(), "", &PublishRequest{Text: "x"}); err == nil {
			t.Error("Publish() succeeded with empty token")
		}
	})
}
