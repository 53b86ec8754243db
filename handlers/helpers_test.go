package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/gomega"

	"teamup/blob"
	"teamup/handlers"
	"teamup/identity"
	"teamup/notify"
	"teamup/routes"
	"teamup/session"
	"teamup/store"
)

const (
	adminEmail = "admin@teamup.test"
	password   = "secret123"
)

type fakeAccount struct {
	uid      string
	password string
	verified bool
}

type fakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount
	sent     int
	resets   []string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{accounts: map[string]*fakeAccount{}}
}

func (f *fakeIdentity) add(email string, verified bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid := fmt.Sprintf("uid-%d", len(f.accounts)+1)
	f.accounts[email] = &fakeAccount{uid: uid, password: password, verified: verified}
	return uid
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, pw string) (*identity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; ok {
		return nil, &identity.ProviderError{Status: 400, Message: "EMAIL_EXISTS"}
	}
	uid := fmt.Sprintf("uid-%d", len(f.accounts)+1)
	f.accounts[email] = &fakeAccount{uid: uid, password: pw}
	return &identity.Account{UserID: uid, Email: email, IDToken: "id-" + uid}, nil
}

func (f *fakeIdentity) SignIn(ctx context.Context, email, pw string) (*identity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[email]
	if !ok || acc.password != pw {
		return nil, &identity.ProviderError{Status: 400, Message: "INVALID_LOGIN_CREDENTIALS"}
	}
	return &identity.Account{UserID: acc.uid, Email: email, IDToken: "id-" + acc.uid}, nil
}

func (f *fakeIdentity) SendVerification(ctx context.Context, idToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return nil
}

func (f *fakeIdentity) CheckVerified(ctx context.Context, idToken string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if "id-"+acc.uid == idToken {
			return acc.verified, nil
		}
	}
	return false, &identity.ProviderError{Status: 400, Message: "INVALID_ID_TOKEN"}
}

func (f *fakeIdentity) ResetPassword(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; !ok {
		return &identity.ProviderError{Status: 400, Message: "EMAIL_NOT_FOUND"}
	}
	f.resets = append(f.resets, email)
	return nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(ctx context.Context, r io.Reader, filename, declared string, kind blob.Kind) (*blob.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, blob.ErrEmpty
	}
	return &blob.Object{
		URL:  "https://cdn.teamup.test/" + filename,
		Key:  filename,
		Name: filename,
		Size: int64(len(data)),
	}, nil
}

type event struct {
	postID string
	name   string
}

type revocation struct {
	userID string
	postID string
}

type recorder struct {
	mu           sync.Mutex
	events       []event
	left         []revocation
	disconnected []string
}

func (r *recorder) BroadcastToPost(postID, name string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{postID: postID, name: name})
}

func (r *recorder) LeaveRoom(userID, postID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, revocation{userID: userID, postID: postID})
}

func (r *recorder) DisconnectUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, userID)
}

func (r *recorder) leaves() []revocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]revocation(nil), r.left...)
}

func (r *recorder) disconnects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.disconnected...)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

type env struct {
	router   http.Handler
	store    *store.Store
	sessions *session.Store
	identity *fakeIdentity
	events   *recorder
}

func newEnv() *env {
	st := store.NewMemory()
	sessions := session.NewStore(time.Hour)
	idp := newFakeIdentity()
	events := &recorder{}
	secret := []byte("test-secret")

	h := handlers.New(handlers.Deps{
		Store:          st,
		Identity:       idp,
		Uploader:       fakeUploader{},
		Sessions:       sessions,
		Notifier:       notify.New(st.Notifications, st.PushSubscriptions, nil),
		Broadcaster:    events,
		JWTSecret:      secret,
		IsAdmin:        func(email string) bool { return email == adminEmail },
		VAPIDPublicKey: "public-key",
	})
	router := routes.SetupRouter(h, routes.Options{
		CORSOrigins: []string{"http://localhost:3000"},
		JWTSecret:   secret,
		Sessions:    sessions,
	})
	return &env{router: router, store: st, sessions: sessions, identity: idp, events: events}
}

type response struct {
	Code int
	Body map[string]interface{}
}

func (r response) errorCode() string {
	e, _ := r.Body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func (r response) object(key string) map[string]interface{} {
	obj, _ := r.Body[key].(map[string]interface{})
	return obj
}

func (e *env) serve(req *http.Request, token string) response {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	out := response{Code: rec.Code, Body: map[string]interface{}{}}
	if rec.Body.Len() > 0 {
		Expect(json.Unmarshal(rec.Body.Bytes(), &out.Body)).To(Succeed(), rec.Body.String())
	}
	return out
}

func (e *env) do(method, path, token string, body interface{}) response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).To(BeNil())
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

func (e *env) multipart(path, token string, fields map[string]string, fileField, fileName string, content []byte) response {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		Expect(w.WriteField(k, v)).To(Succeed())
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		Expect(err).To(BeNil())
		_, err = part.Write(content)
		Expect(err).To(BeNil())
	}
	Expect(w.Close()).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.serve(req, token)
}

// login registers a verified account and returns its token and user id.
func (e *env) login(email string) (string, string) {
	uid := e.identity.add(email, true)
	res := e.do(http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password})
	Expect(res.Code).To(Equal(http.StatusOK), fmt.Sprint(res.Body))
	token, _ := res.Body["token"].(string)
	Expect(token).NotTo(BeEmpty())
	return token, uid
}

func (e *env) createPost(token, title string) string {
	res := e.do(http.MethodPost, "/api/posts", token, map[string]interface{}{
		"title":       title,
		"description": "Built over a weekend",
		"tags":        []string{"hardware"},
		"milestones":  []map[string]string{{"name": "Design"}, {"name": "Prototype"}},
	})
	Expect(res.Code).To(Equal(http.StatusCreated), fmt.Sprint(res.Body))
	id, _ := res.object("post")["id"].(string)
	Expect(id).NotTo(BeEmpty())
	return id
}
