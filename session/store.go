// Package session keeps logged-in users and the page each one is looking at.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

type Page string

const (
	PageHome          Page = "Home"
	PageSubmitIdea    Page = "Submit Idea"
	PageTeamChat      Page = "Team Chat"
	PageMarketplace   Page = "Marketplace"
	PageProfile       Page = "Profile"
	PageBookmarks     Page = "Bookmarks"
	PageNotifications Page = "Notifications"
	PageRules         Page = "Rules"
	PageStats         Page = "Stats"
	PageAdmin         Page = "Admin"
)

var allPages = []Page{
	PageHome, PageSubmitIdea, PageTeamChat, PageMarketplace, PageProfile,
	PageBookmarks, PageNotifications, PageRules, PageStats, PageAdmin,
}

var (
	ErrNotFound      = errors.New("session not found")
	ErrUnknownPage   = errors.New("unknown page")
	ErrPageForbidden = errors.New("page requires admin")
)

// Pages lists the pages the user may select, in menu order.
func Pages(isAdmin bool) []Page {
	out := make([]Page, 0, len(allPages))
	for _, p := range allPages {
		if p == PageAdmin && !isAdmin {
			continue
		}
		out = append(out, p)
	}
	return out
}

type Session struct {
	ID          string    `json:"-"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	IDToken     string    `json:"-"`
	IsAdmin     bool      `json:"isAdmin"`
	CurrentPage Page      `json:"currentPage"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// User is what a successful login knows about the caller.
type User struct {
	UserID  string
	Email   string
	IDToken string
	IsAdmin bool
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) Create(u User) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:          id,
		UserID:      u.UserID,
		Email:       u.Email,
		IDToken:     u.IDToken,
		IsAdmin:     u.IsAdmin,
		CurrentPage: PageHome,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	cp := *session
	return &cp, nil
}

// Get returns a copy of a live session.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || s.now().After(session.ExpiresAt) {
		return nil, false
	}
	cp := *session
	return &cp, true
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Store) SetPage(id string, page Page) (*Session, error) {
	known := false
	for _, p := range allPages {
		if p == page {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrUnknownPage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || s.now().After(session.ExpiresAt) {
		return nil, ErrNotFound
	}
	if page == PageAdmin && !session.IsAdmin {
		return nil, ErrPageForbidden
	}
	session.CurrentPage = page

	cp := *session
	return &cp, nil
}

// Len counts stored sessions, expired ones included until the next sweep.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0

	s.mu.Lock()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
