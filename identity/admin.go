package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"teamup/metrics"
)

const adminScope = "https://www.googleapis.com/auth/identitytoolkit"

// Member is the public part of an account.
type Member struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// Admin resolves user ids with service-account credentials.
type Admin struct {
	baseURL   string
	projectID string
	http      *http.Client
}

// NewAdmin builds an Admin from a service-account JSON key.
func NewAdmin(ctx context.Context, baseURL string, serviceAccountJSON []byte) (*Admin, error) {
	creds, err := google.CredentialsFromJSON(ctx, serviceAccountJSON, adminScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	if creds.ProjectID == "" {
		return nil, fmt.Errorf("service account has no project_id")
	}
	return NewAdminWithClient(baseURL, creds.ProjectID, oauth2.NewClient(ctx, creds.TokenSource)), nil
}

// NewAdminWithClient uses an already authorized HTTP client.
func NewAdminWithClient(baseURL, projectID string, client *http.Client) *Admin {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Admin{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		http:      client,
	}
}

// LookupUsers returns the members for uids in the same order. Unknown ids
// come back without an email.
func (a *Admin) LookupUsers(ctx context.Context, uids []string) ([]Member, error) {
	members := make([]Member, len(uids))
	for i, uid := range uids {
		members[i] = Member{UserID: uid}
	}
	if len(uids) == 0 {
		return members, nil
	}

	body, err := json.Marshal(map[string]interface{}{"localId": uids})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/v1/projects/%s/accounts:lookup", a.baseURL, a.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		metrics.IdentityCallsTotal.WithLabelValues("adminLookup", "error").Inc()
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Users []struct {
			LocalID string `json:"localId"`
			Email   string `json:"email"`
		} `json:"users"`
	}
	err = decodeResponse(resp, &out)
	metrics.IdentityCallsTotal.WithLabelValues("adminLookup", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	emails := make(map[string]string, len(out.Users))
	for _, u := range out.Users {
		emails[u.LocalID] = u.Email
	}
	for i := range members {
		members[i].Email = emails[members[i].UserID]
	}
	return members, nil
}
