package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"teamup/blob"
	"teamup/identity"
	"teamup/middleware"
	"teamup/models"
	"teamup/session"
	"teamup/store"
)

const requestTimeout = 10 * time.Second

// IdentityProvider is the hosted account service.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*identity.Account, error)
	SignIn(ctx context.Context, email, password string) (*identity.Account, error)
	SendVerification(ctx context.Context, idToken string) error
	CheckVerified(ctx context.Context, idToken string) (bool, error)
	ResetPassword(ctx context.Context, email string) error
}

// MemberDirectory resolves user ids to public account data.
type MemberDirectory interface {
	LookupUsers(ctx context.Context, uids []string) ([]identity.Member, error)
}

type Uploader interface {
	Upload(ctx context.Context, r io.Reader, filename, declared string, kind blob.Kind) (*blob.Object, error)
}

// Broadcaster pushes chat events to live connections and revokes them
// when access ends.
type Broadcaster interface {
	BroadcastToPost(postID, event string, payload interface{})
	LeaveRoom(userID, postID string)
	DisconnectUser(userID string)
}

type Notifier interface {
	Notify(ctx context.Context, note models.Notification) error
	NotifyMany(ctx context.Context, recipients []string, sender string, note models.Notification)
}

// Deps are the collaborators of Handler. Directory, Uploader and
// Broadcaster are optional.
type Deps struct {
	Store          *store.Store
	Identity       IdentityProvider
	Directory      MemberDirectory
	Uploader       Uploader
	Sessions       *session.Store
	Notifier       Notifier
	Broadcaster    Broadcaster
	JWTSecret      []byte
	IsAdmin        func(email string) bool
	VAPIDPublicKey string
	Connections    func() int
}

type Handler struct {
	store       *store.Store
	identity    IdentityProvider
	directory   MemberDirectory
	uploader    Uploader
	sessions    *session.Store
	notifier    Notifier
	broadcaster Broadcaster
	jwtSecret   []byte
	isAdmin     func(string) bool
	vapidKey    string
	connections func() int
}

func New(d Deps) *Handler {
	h := &Handler{
		store:       d.Store,
		identity:    d.Identity,
		directory:   d.Directory,
		uploader:    d.Uploader,
		sessions:    d.Sessions,
		notifier:    d.Notifier,
		broadcaster: d.Broadcaster,
		jwtSecret:   d.JWTSecret,
		isAdmin:     d.IsAdmin,
		vapidKey:    d.VAPIDPublicKey,
		connections: d.Connections,
	}
	if h.isAdmin == nil {
		h.isAdmin = func(string) bool { return false }
	}
	if h.connections == nil {
		h.connections = func() int { return 0 }
	}
	return h
}

// ctx bounds store and provider calls made on behalf of a request.
func (h *Handler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserID)
}

func currentEmail(c *gin.Context) string {
	if s := middleware.CurrentSession(c); s != nil {
		return s.Email
	}
	return ""
}

func isAdmin(c *gin.Context) bool {
	s := middleware.CurrentSession(c)
	return s != nil && s.IsAdmin
}

func (h *Handler) broadcast(postID, event string, payload interface{}) {
	if h.broadcaster != nil {
		h.broadcaster.BroadcastToPost(postID, event, payload)
	}
}

func (h *Handler) revokeChat(userID, postID string) {
	if h.broadcaster != nil {
		h.broadcaster.LeaveRoom(userID, postID)
	}
}

func (h *Handler) disconnect(userID string) {
	if h.broadcaster != nil {
		h.broadcaster.DisconnectUser(userID)
	}
}

// displayName prefers the email of the acting user.
func displayName(c *gin.Context) string {
	if email := currentEmail(c); email != "" {
		return email
	}
	return "Someone"
}
