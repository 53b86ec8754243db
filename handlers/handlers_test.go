package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"teamup/models"
	"teamup/websocket"
)

var _ = Describe("Auth", func() {
	var e *env

	BeforeEach(func() {
		e = newEnv()
	})

	Describe("Signup", func() {
		It("creates the account and sends the verification email", func() {
			res := e.do(http.MethodPost, "/api/signup", "", map[string]string{"email": "ada@teamup.test", "password": password})
			Expect(res.Code).To(Equal(http.StatusCreated))
			Expect(res.Body).To(HaveKeyWithValue("verificationSent", true))
			Expect(e.identity.sent).To(Equal(1))
		})

		It("rejects a registered email", func() {
			e.identity.add("ada@teamup.test", true)
			res := e.do(http.MethodPost, "/api/signup", "", map[string]string{"email": "ada@teamup.test", "password": password})
			Expect(res.Code).To(Equal(http.StatusConflict))
			Expect(res.errorCode()).To(Equal("EMAIL_EXISTS"))
		})

		It("validates the body", func() {
			res := e.do(http.MethodPost, "/api/signup", "", map[string]string{"email": "not-an-email", "password": password})
			Expect(res.Code).To(Equal(http.StatusBadRequest))
			Expect(res.errorCode()).To(Equal("VALIDATION_FAILED"))
		})
	})

	Describe("Login", func() {
		It("refuses unverified accounts", func() {
			e.identity.add("ada@teamup.test", false)
			res := e.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ada@teamup.test", "password": password})
			Expect(res.Code).To(Equal(http.StatusForbidden))
			Expect(res.errorCode()).To(Equal("EMAIL_NOT_VERIFIED"))
			Expect(e.sessions.Len()).To(Equal(0))
		})

		It("rejects a wrong password", func() {
			e.identity.add("ada@teamup.test", true)
			res := e.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ada@teamup.test", "password": "nope"})
			Expect(res.Code).To(Equal(http.StatusUnauthorized))
			Expect(res.errorCode()).To(Equal("INVALID_CREDENTIALS"))
		})

		It("opens a session that ends on logout", func() {
			token, uid := e.login("ada@teamup.test")

			res := e.do(http.MethodGet, "/api/me", token, nil)
			Expect(res.Code).To(Equal(http.StatusOK))
			Expect(res.object("session")).To(HaveKeyWithValue("userId", uid))
			Expect(res.object("session")).NotTo(HaveKey("idToken"))

			Expect(e.do(http.MethodPost, "/api/logout", token, nil).Code).To(Equal(http.StatusOK))
			res = e.do(http.MethodGet, "/api/me", token, nil)
			Expect(res.Code).To(Equal(http.StatusUnauthorized))
			Expect(e.events.disconnects()).To(Equal([]string{uid}))
		})

		It("marks admins from the allow-list", func() {
			token, _ := e.login(adminEmail)
			res := e.do(http.MethodGet, "/api/pages", token, nil)
			Expect(res.Body["pages"]).To(ContainElement("Admin"))
		})
	})

	It("answers password resets the same way for unknown emails", func() {
		e.identity.add("ada@teamup.test", true)
		known := e.do(http.MethodPost, "/api/password-reset", "", map[string]string{"email": "ada@teamup.test"})
		unknown := e.do(http.MethodPost, "/api/password-reset", "", map[string]string{"email": "ghost@teamup.test"})
		Expect(known.Code).To(Equal(http.StatusOK))
		Expect(unknown.Code).To(Equal(http.StatusOK))
		Expect(unknown.Body["message"]).To(Equal(known.Body["message"]))
		Expect(e.identity.resets).To(Equal([]string{"ada@teamup.test"}))
	})

	It("requires a token for protected routes", func() {
		res := e.do(http.MethodGet, "/api/posts", "", nil)
		Expect(res.Code).To(Equal(http.StatusUnauthorized))
		Expect(res.errorCode()).To(Equal("UNAUTHORIZED"))
	})
})

var _ = Describe("Session pages", func() {
	var (
		e     *env
		token string
	)

	BeforeEach(func() {
		e = newEnv()
		token, _ = e.login("ada@teamup.test")
	})

	It("remembers the current page", func() {
		res := e.do(http.MethodPut, "/api/session/page", token, map[string]string{"page": "Marketplace"})
		Expect(res.Code).To(Equal(http.StatusOK))

		res = e.do(http.MethodGet, "/api/pages", token, nil)
		Expect(res.Body).To(HaveKeyWithValue("currentPage", "Marketplace"))
		Expect(res.Body["pages"]).NotTo(ContainElement("Admin"))
	})

	It("refuses the admin page to regular users", func() {
		res := e.do(http.MethodPut, "/api/session/page", token, map[string]string{"page": "Admin"})
		Expect(res.Code).To(Equal(http.StatusForbidden))
	})

	It("rejects unknown pages", func() {
		res := e.do(http.MethodPut, "/api/session/page", token, map[string]string{"page": "Casino"})
		Expect(res.Code).To(Equal(http.StatusBadRequest))
	})
})

var _ = Describe("Posts", func() {
	var (
		e        *env
		ada, bob string
		adaID    string
		postID   string
	)

	BeforeEach(func() {
		e = newEnv()
		ada, adaID = e.login("ada@teamup.test")
		bob, _ = e.login("bob@teamup.test")
		postID = e.createPost(ada, "Solar drone")
	})

	It("creates a post with the creator on the team", func() {
		res := e.do(http.MethodGet, "/api/posts/"+postID, bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		post := res.object("post")
		Expect(post["team"]).To(Equal([]interface{}{adaID}))
		Expect(post["status"]).To(Equal(string(models.StatusPlanning)))
		Expect(post["createdByEmail"]).To(Equal("ada@teamup.test"))
		Expect(post["milestones"]).To(HaveLen(2))
	})

	It("requires a title and description", func() {
		res := e.do(http.MethodPost, "/api/posts", ada, map[string]string{"title": "   ", "description": "x"})
		Expect(res.Code).To(Equal(http.StatusBadRequest))
		Expect(res.errorCode()).To(Equal("VALIDATION_FAILED"))
	})

	It("validates the deadline and status", func() {
		res := e.do(http.MethodPost, "/api/posts", ada, map[string]string{"title": "a", "description": "b", "deadline": "next week"})
		Expect(res.Code).To(Equal(http.StatusBadRequest))
		res = e.do(http.MethodPost, "/api/posts", ada, map[string]string{"title": "a", "description": "b", "status": "Abandoned"})
		Expect(res.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects malformed ids", func() {
		res := e.do(http.MethodGet, "/api/posts/not-an-id", ada, nil)
		Expect(res.Code).To(Equal(http.StatusBadRequest))
	})

	It("filters by member", func() {
		e.createPost(bob, "Bob's idea")

		res := e.do(http.MethodGet, "/api/posts", ada, nil)
		Expect(res.Body["count"]).To(BeEquivalentTo(2))

		res = e.do(http.MethodGet, "/api/posts?member=me", ada, nil)
		Expect(res.Body["count"]).To(BeEquivalentTo(1))
		Expect(res.Body["posts"].([]interface{})[0]).To(HaveKeyWithValue("id", postID))
	})

	It("lets only the creator edit", func() {
		res := e.do(http.MethodPut, "/api/posts/"+postID, bob, map[string]interface{}{"title": "Hijacked", "version": 1})
		Expect(res.Code).To(Equal(http.StatusForbidden))

		res = e.do(http.MethodPut, "/api/posts/"+postID, ada, map[string]interface{}{"title": "Solar drone v2", "status": "In Progress", "version": 1})
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("post")).To(HaveKeyWithValue("title", "Solar drone v2"))
		Expect(res.object("post")).To(HaveKeyWithValue("status", "In Progress"))
	})

	It("reports stale versions", func() {
		res := e.do(http.MethodPut, "/api/posts/"+postID, ada, map[string]interface{}{"title": "First", "version": 1})
		Expect(res.Code).To(Equal(http.StatusOK))

		res = e.do(http.MethodPut, "/api/posts/"+postID, ada, map[string]interface{}{"title": "Second", "version": 1})
		Expect(res.Code).To(Equal(http.StatusConflict))
		Expect(res.errorCode()).To(Equal("CONFLICT"))
	})

	It("requires the version being edited", func() {
		res := e.do(http.MethodPut, "/api/posts/"+postID, ada, map[string]string{"title": "Unguarded"})
		Expect(res.Code).To(Equal(http.StatusBadRequest))
		Expect(res.errorCode()).To(Equal("VALIDATION_FAILED"))

		res = e.do(http.MethodGet, "/api/posts/"+postID, ada, nil)
		Expect(res.object("post")).To(HaveKeyWithValue("title", "Solar drone"))
	})

	It("lets the creator or an admin delete", func() {
		Expect(e.do(http.MethodDelete, "/api/posts/"+postID, bob, nil).Code).To(Equal(http.StatusForbidden))

		admin, _ := e.login(adminEmail)
		Expect(e.do(http.MethodDelete, "/api/posts/"+postID, admin, nil).Code).To(Equal(http.StatusOK))
		Expect(e.do(http.MethodGet, "/api/posts/"+postID, ada, nil).Code).To(Equal(http.StatusNotFound))
	})

	It("deletes posts that have chat messages", func() {
		Expect(e.do(http.MethodPost, "/api/posts/"+postID+"/messages", ada, map[string]string{"message": "hi"}).Code).To(Equal(http.StatusCreated))
		Expect(e.do(http.MethodDelete, "/api/posts/"+postID, ada, nil).Code).To(Equal(http.StatusOK))

		res := e.do(http.MethodGet, "/api/posts", ada, nil)
		Expect(res.Body["count"]).To(BeEquivalentTo(0))
	})

	It("lists members by id without a directory", func() {
		res := e.do(http.MethodGet, "/api/posts/"+postID+"/members", bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.Body["members"]).To(HaveLen(1))
		Expect(res.Body["members"].([]interface{})[0]).To(HaveKeyWithValue("userId", adaID))
	})
})

var _ = Describe("Teams and bookmarks", func() {
	var (
		e            *env
		ada, bob     string
		adaID, bobID string
		postID       string
	)

	BeforeEach(func() {
		e = newEnv()
		ada, adaID = e.login("ada@teamup.test")
		bob, bobID = e.login("bob@teamup.test")
		postID = e.createPost(ada, "Solar drone")
	})

	It("joins idempotently and notifies the team", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/join", bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("post")["team"]).To(Equal([]interface{}{adaID, bobID}))

		res = e.do(http.MethodPost, "/api/posts/"+postID+"/join", bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("post")["team"]).To(Equal([]interface{}{adaID, bobID}))

		res = e.do(http.MethodGet, "/api/notifications", ada, nil)
		Expect(res.Body["notifications"]).To(HaveLen(1))
		Expect(res.Body["notifications"].([]interface{})[0]).To(HaveKeyWithValue("kind", "team_join"))
		Expect(res.Body["unread"]).To(BeEquivalentTo(1))
	})

	It("keeps concurrent joins", func() {
		others := make([]string, 5)
		for i := range others {
			others[i], _ = e.login(fmt.Sprintf("user%d@teamup.test", i))
		}

		var wg sync.WaitGroup
		for _, token := range others {
			wg.Add(1)
			go func(token string) {
				defer GinkgoRecover()
				defer wg.Done()
				e.do(http.MethodPost, "/api/posts/"+postID+"/join", token, nil)
			}(token)
		}
		wg.Wait()

		post, err := e.store.Posts.Get(context.Background(), postID)
		Expect(err).To(BeNil())
		Expect(post.Team).To(HaveLen(6))
	})

	It("does not let the creator leave", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/leave", ada, nil)
		Expect(res.Code).To(Equal(http.StatusConflict))
		Expect(res.errorCode()).To(Equal("CREATOR_CANNOT_LEAVE"))
	})

	It("notifies the team once when one user joins concurrently", func() {
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				res := e.do(http.MethodPost, "/api/posts/"+postID+"/join", bob, nil)
				Expect(res.Code).To(Equal(http.StatusOK))
			}()
		}
		wg.Wait()

		res := e.do(http.MethodGet, "/api/notifications", ada, nil)
		Expect(res.Body["notifications"]).To(HaveLen(1))
	})

	It("lets members leave and cuts their live chat", func() {
		e.do(http.MethodPost, "/api/posts/"+postID+"/join", bob, nil)
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/leave", bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("post")["team"]).To(Equal([]interface{}{adaID}))
		Expect(e.events.leaves()).To(Equal([]revocation{{userID: bobID, postID: postID}}))
	})

	It("toggles bookmarks", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/bookmark", bob, nil)
		Expect(res.Body).To(HaveKeyWithValue("bookmarked", true))

		res = e.do(http.MethodGet, "/api/bookmarks", bob, nil)
		Expect(res.Body["count"]).To(BeEquivalentTo(1))

		res = e.do(http.MethodPost, "/api/posts/"+postID+"/bookmark", bob, nil)
		Expect(res.Body).To(HaveKeyWithValue("bookmarked", false))

		res = e.do(http.MethodGet, "/api/bookmarks", bob, nil)
		Expect(res.Body["count"]).To(BeEquivalentTo(0))
	})

	It("summarises the profile", func() {
		e.do(http.MethodPost, "/api/posts/"+postID+"/join", bob, nil)
		e.do(http.MethodPost, "/api/posts/"+postID+"/bookmark", bob, nil)

		res := e.do(http.MethodGet, "/api/profile", bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.Body["myIdeas"]).To(BeEmpty())
		Expect(res.Body["myTeams"]).To(HaveLen(1))
		Expect(res.Body["bookmarksCount"]).To(BeEquivalentTo(1))
	})
})

var _ = Describe("Milestones and tasks", func() {
	var (
		e        *env
		ada, bob string
		bobID    string
		postID   string
	)

	BeforeEach(func() {
		e = newEnv()
		ada, _ = e.login("ada@teamup.test")
		bob, bobID = e.login("bob@teamup.test")
		postID = e.createPost(ada, "Solar drone")
	})

	It("is limited to team members", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/milestones", bob, map[string]string{"name": "Launch"})
		Expect(res.Code).To(Equal(http.StatusForbidden))

		e.do(http.MethodPost, "/api/posts/"+postID+"/join", bob, nil)
		res = e.do(http.MethodPost, "/api/posts/"+postID+"/milestones", bob, map[string]string{"name": "Launch"})
		Expect(res.Code).To(Equal(http.StatusCreated))
		Expect(res.object("post")["milestones"]).To(HaveLen(3))
	})

	It("completes a milestone by index", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/milestones/1/complete", ada, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		milestones := res.object("post")["milestones"].([]interface{})
		Expect(milestones[0]).To(HaveKeyWithValue("completed", false))
		Expect(milestones[1]).To(HaveKeyWithValue("completed", true))
	})

	It("rejects bad indexes", func() {
		Expect(e.do(http.MethodPost, "/api/posts/"+postID+"/milestones/7/complete", ada, nil).Code).To(Equal(http.StatusBadRequest))
		Expect(e.do(http.MethodPost, "/api/posts/"+postID+"/milestones/-1/complete", ada, nil).Code).To(Equal(http.StatusBadRequest))
		Expect(e.do(http.MethodPost, "/api/posts/"+postID+"/milestones/x/complete", ada, nil).Code).To(Equal(http.StatusBadRequest))
	})

	It("bounds progress", func() {
		res := e.do(http.MethodPut, "/api/posts/"+postID+"/milestones/0/progress", ada, map[string]int{"progress": 150})
		Expect(res.Code).To(Equal(http.StatusBadRequest))

		res = e.do(http.MethodPut, "/api/posts/"+postID+"/milestones/0/progress", ada, map[string]int{"progress": 40})
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("post")["milestones"].([]interface{})[0]).To(HaveKeyWithValue("progress", BeEquivalentTo(40)))
	})

	It("assigns tasks to team members only", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/tasks", ada, map[string]string{"title": "Order parts", "assignedTo": bobID})
		Expect(res.Code).To(Equal(http.StatusBadRequest))

		e.do(http.MethodPost, "/api/posts/"+postID+"/join", bob, nil)
		res = e.do(http.MethodPost, "/api/posts/"+postID+"/tasks", ada, map[string]string{"title": "Order parts", "assignedTo": bobID})
		Expect(res.Code).To(Equal(http.StatusCreated))

		res = e.do(http.MethodPost, "/api/posts/"+postID+"/tasks/0/complete", bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("post")["tasks"].([]interface{})[0]).To(HaveKeyWithValue("completed", true))
	})
})

var _ = Describe("Team chat", func() {
	var (
		e               *env
		ada, bob, carol string
		postID          string
	)

	BeforeEach(func() {
		e = newEnv()
		ada, _ = e.login("ada@teamup.test")
		bob, _ = e.login("bob@teamup.test")
		carol, _ = e.login("carol@teamup.test")
		postID = e.createPost(ada, "Solar drone")
		e.do(http.MethodPost, "/api/posts/"+postID+"/join", bob, nil)
	})

	It("is closed to non-members", func() {
		Expect(e.do(http.MethodGet, "/api/posts/"+postID+"/messages", carol, nil).Code).To(Equal(http.StatusForbidden))
		Expect(e.do(http.MethodPost, "/api/posts/"+postID+"/messages", carol, map[string]string{"message": "hi"}).Code).To(Equal(http.StatusForbidden))
	})

	It("stores, broadcasts and notifies", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/messages", bob, map[string]string{"message": "Parts ordered"})
		Expect(res.Code).To(Equal(http.StatusCreated))
		Expect(e.events.names()).To(Equal([]string{websocket.EventChatMessage}))

		res = e.do(http.MethodGet, "/api/posts/"+postID+"/messages", ada, nil)
		Expect(res.Body["count"]).To(BeEquivalentTo(1))

		res = e.do(http.MethodGet, "/api/notifications", ada, nil)
		Expect(res.Body["notifications"]).To(ContainElement(HaveKeyWithValue("kind", "chat_message")))
	})

	It("rejects empty messages", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/messages", bob, map[string]string{"message": "  "})
		Expect(res.Code).To(Equal(http.StatusBadRequest))
	})

	It("accepts attachments", func() {
		res := e.multipart("/api/posts/"+postID+"/messages", bob, map[string]string{"message": "Schematic"}, "file", "schematic.pdf", []byte("%PDF-1.4"))
		Expect(res.Code).To(Equal(http.StatusCreated))
		Expect(res.object("data")).To(HaveKeyWithValue("fileUrl", "https://cdn.teamup.test/schematic.pdf"))
		Expect(res.object("data")).To(HaveKeyWithValue("fileName", "schematic.pdf"))
	})

	It("lets only the sender delete a message", func() {
		res := e.do(http.MethodPost, "/api/posts/"+postID+"/messages", bob, map[string]string{"message": "oops"})
		msgID := res.object("data")["id"].(string)

		Expect(e.do(http.MethodDelete, "/api/posts/"+postID+"/messages/"+msgID, ada, nil).Code).To(Equal(http.StatusForbidden))
		Expect(e.do(http.MethodDelete, "/api/posts/"+postID+"/messages/"+msgID, bob, nil).Code).To(Equal(http.StatusOK))
		Expect(e.events.names()).To(ContainElement(websocket.EventChatMessageDeleted))

		res = e.do(http.MethodGet, "/api/posts/"+postID+"/messages", ada, nil)
		Expect(res.Body["count"]).To(BeEquivalentTo(0))
	})
})

var _ = Describe("Marketplace", func() {
	var (
		e               *env
		ada, bob, carol string
		postID          string
	)

	createItem := func(token, itemType string) string {
		res := e.do(http.MethodPost, "/api/items", token, map[string]interface{}{
			"teamId": postID,
			"type":   itemType,
			"title":  "Drone kit",
			"price":  49.5,
		})
		Expect(res.Code).To(Equal(http.StatusCreated), fmt.Sprint(res.Body))
		return res.object("item")["id"].(string)
	}

	BeforeEach(func() {
		e = newEnv()
		ada, _ = e.login("ada@teamup.test")
		bob, _ = e.login("bob@teamup.test")
		carol, _ = e.login("carol@teamup.test")
		postID = e.createPost(ada, "Solar drone")
	})

	It("requires team membership to list items", func() {
		res := e.do(http.MethodPost, "/api/items", bob, map[string]interface{}{"teamId": postID, "type": "product", "title": "Kit"})
		Expect(res.Code).To(Equal(http.StatusForbidden))
	})

	It("copies the team title", func() {
		id := createItem(ada, "product")
		res := e.do(http.MethodGet, "/api/items/"+id, bob, nil)
		Expect(res.object("item")).To(HaveKeyWithValue("teamTitle", "Solar drone"))
	})

	It("accepts an image upload", func() {
		res := e.multipart("/api/items", ada, map[string]string{
			"teamId": postID,
			"type":   "product",
			"title":  "Poster",
			"price":  "5",
		}, "image", "poster.png", []byte("png-bytes"))
		Expect(res.Code).To(Equal(http.StatusCreated), fmt.Sprint(res.Body))
		Expect(res.object("item")).To(HaveKeyWithValue("imageUrl", "https://cdn.teamup.test/poster.png"))
	})

	It("filters by type", func() {
		createItem(ada, "product")
		createItem(ada, "service")

		res := e.do(http.MethodGet, "/api/items?type=service", bob, nil)
		Expect(res.Body["count"]).To(BeEquivalentTo(1))
		Expect(e.do(http.MethodGet, "/api/items?type=gadget", bob, nil).Code).To(Equal(http.StatusBadRequest))
	})

	It("takes one review per user and averages ratings", func() {
		id := createItem(ada, "product")

		Expect(e.do(http.MethodPost, "/api/items/"+id+"/reviews", ada, map[string]interface{}{"rating": 5}).Code).To(Equal(http.StatusForbidden))
		Expect(e.do(http.MethodPost, "/api/items/"+id+"/reviews", bob, map[string]interface{}{"rating": 6}).Code).To(Equal(http.StatusBadRequest))

		Expect(e.do(http.MethodPost, "/api/items/"+id+"/reviews", bob, map[string]interface{}{"rating": 4}).Code).To(Equal(http.StatusCreated))
		res := e.do(http.MethodPost, "/api/items/"+id+"/reviews", carol, map[string]interface{}{"rating": 3, "comment": "ok"})
		Expect(res.Code).To(Equal(http.StatusCreated))
		Expect(res.object("item")["rating"]).To(BeNumerically("==", 3.5))

		res = e.do(http.MethodPost, "/api/items/"+id+"/reviews", bob, map[string]interface{}{"rating": 1})
		Expect(res.Code).To(Equal(http.StatusConflict))
		Expect(res.errorCode()).To(Equal("ALREADY_REVIEWED"))

		res = e.do(http.MethodGet, "/api/notifications", ada, nil)
		Expect(res.Body["notifications"]).To(HaveLen(2))
	})

	It("takes volunteers for services only", func() {
		product := createItem(ada, "product")
		service := createItem(ada, "service")

		Expect(e.do(http.MethodPost, "/api/items/"+product+"/volunteer", bob, nil).Code).To(Equal(http.StatusBadRequest))

		res := e.do(http.MethodPost, "/api/items/"+service+"/volunteer", bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("item")["volunteers"]).To(HaveLen(1))

		res = e.do(http.MethodDelete, "/api/items/"+service+"/volunteer", bob, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("item")["volunteers"]).To(BeNil())
	})

	It("lets only the creator edit a listing", func() {
		id := createItem(ada, "product")
		Expect(e.do(http.MethodPut, "/api/items/"+id, bob, map[string]interface{}{"price": 1}).Code).To(Equal(http.StatusForbidden))

		res := e.do(http.MethodPut, "/api/items/"+id, ada, map[string]interface{}{"price": 10})
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("item")["price"]).To(BeNumerically("==", 10))
	})

	It("keeps product and service fields apart on edit", func() {
		product := createItem(ada, "product")
		service := createItem(ada, "service")

		res := e.do(http.MethodPut, "/api/items/"+product, ada, map[string]interface{}{"availability": "weekends"})
		Expect(res.Code).To(Equal(http.StatusBadRequest))
		Expect(res.errorCode()).To(Equal("VALIDATION_FAILED"))
		Expect(e.do(http.MethodGet, "/api/items/"+product, ada, nil).object("item")).NotTo(HaveKey("availability"))

		res = e.do(http.MethodPut, "/api/items/"+service, ada, map[string]interface{}{"imageUrl": "https://cdn.teamup.test/x.png"})
		Expect(res.Code).To(Equal(http.StatusBadRequest))
		Expect(res.errorCode()).To(Equal("VALIDATION_FAILED"))
		Expect(e.do(http.MethodGet, "/api/items/"+service, ada, nil).object("item")).NotTo(HaveKey("imageUrl"))

		res = e.do(http.MethodPut, "/api/items/"+service, ada, map[string]interface{}{"availability": "weekends"})
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("item")).To(HaveKeyWithValue("availability", "weekends"))
	})
})

var _ = Describe("Admin and misc", func() {
	var e *env

	BeforeEach(func() {
		e = newEnv()
	})

	It("restricts the admin overview", func() {
		user, _ := e.login("ada@teamup.test")
		admin, _ := e.login(adminEmail)
		e.createPost(user, "Solar drone")

		Expect(e.do(http.MethodGet, "/api/admin/overview", user, nil).Code).To(Equal(http.StatusForbidden))

		res := e.do(http.MethodGet, "/api/admin/overview", admin, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.Body["activeSessions"]).To(BeEquivalentTo(2))
		Expect(res.object("stats")["ideas"]).To(BeEquivalentTo(1))
	})

	It("serves stats, rules and health", func() {
		token, _ := e.login("ada@teamup.test")
		e.createPost(token, "Solar drone")

		res := e.do(http.MethodGet, "/api/stats", token, nil)
		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.object("stats")["milestones"]).To(BeEquivalentTo(2))
		Expect(res.object("stats")["byStatus"]).To(HaveKeyWithValue("Planning", BeEquivalentTo(1)))

		Expect(e.do(http.MethodGet, "/api/rules", "", nil).Body["rules"]).To(HaveLen(4))
		Expect(e.do(http.MethodGet, "/health", "", nil).Body).To(HaveKeyWithValue("status", "ok"))
	})

	It("stores push subscriptions", func() {
		token, uid := e.login("ada@teamup.test")
		res := e.do(http.MethodPost, "/api/subscribe", token, map[string]interface{}{
			"endpoint": "https://push.example.com/abc",
			"keys":     map[string]string{"p256dh": "key", "auth": "secret"},
		})
		Expect(res.Code).To(Equal(http.StatusOK))

		sub, err := e.store.PushSubscriptions.Get(context.Background(), uid)
		Expect(err).To(BeNil())
		Expect(sub.Sub.Endpoint).To(Equal("https://push.example.com/abc"))

		Expect(e.do(http.MethodGet, "/api/vapid-public-key", "", nil).Body).To(HaveKeyWithValue("publicKey", "public-key"))
	})

	It("uploads files", func() {
		token, _ := e.login("ada@teamup.test")
		res := e.multipart("/api/upload", token, nil, "file", "avatar.png", []byte("png-bytes"))
		Expect(res.Code).To(Equal(http.StatusCreated))
		Expect(res.Body).To(HaveKeyWithValue("url", "https://cdn.teamup.test/avatar.png"))

		res = e.multipart("/api/upload", token, nil, "", "", nil)
		Expect(res.Code).To(Equal(http.StatusBadRequest))
	})

	It("answers unknown routes with the error shape", func() {
		res := e.do(http.MethodGet, "/api/nope", "", nil)
		Expect(res.Code).To(Equal(http.StatusNotFound))
		Expect(res.errorCode()).To(Equal("NOT_FOUND"))
	})
})
