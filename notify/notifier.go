// Package notify records in-app notifications and fans them out as Web Push
// messages to the recipient's browser.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"teamup/logging"
	"teamup/metrics"
	"teamup/models"
	"teamup/store"
)

const pushTimeout = 5 * time.Second

// Pusher delivers one payload to one browser subscription and reports the
// push service's HTTP status.
type Pusher interface {
	Push(ctx context.Context, sub *webpush.Subscription, payload []byte) (int, error)
}

type WebPusher struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

func (p *WebPusher) Push(ctx context.Context, sub *webpush.Subscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		Subscriber:      p.Subject,
		VAPIDPublicKey:  p.PublicKey,
		VAPIDPrivateKey: p.PrivateKey,
		TTL:             30,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// GenerateVAPIDKeys returns a fresh public/private key pair.
func GenerateVAPIDKeys() (public, private string, err error) {
	private, public, err = webpush.GenerateVAPIDKeys()
	return public, private, err
}

type Notifier struct {
	notes  store.Notifications
	subs   store.PushSubscriptions
	pusher Pusher
	wg     sync.WaitGroup
}

// New returns a Notifier. A nil pusher disables Web Push.
func New(notes store.Notifications, subs store.PushSubscriptions, pusher Pusher) *Notifier {
	return &Notifier{notes: notes, subs: subs, pusher: pusher}
}

// Notify stores the notification and pushes it in the background.
func (n *Notifier) Notify(ctx context.Context, note models.Notification) error {
	note.ID = primitive.NilObjectID
	note.Read = false
	if err := n.notes.Create(ctx, &note); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if n.pusher != nil {
		n.wg.Add(1)
		go n.push(note)
	}
	return nil
}

// NotifyMany sends note to every recipient except sender. Failures are
// logged and do not stop the remaining recipients.
func (n *Notifier) NotifyMany(ctx context.Context, recipients []string, sender string, note models.Notification) {
	for _, uid := range recipients {
		if uid == sender || uid == "" {
			continue
		}
		note.UserID = uid
		if err := n.Notify(ctx, note); err != nil {
			logging.Logger.WithError(err).WithField("userId", uid).Warn("notification not recorded")
		}
	}
}

// Wait blocks until in-flight pushes finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) push(note models.Notification) {
	defer n.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Errorf("panic in push notification: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	log := logging.Logger.WithField("userId", note.UserID)

	sub, err := n.subs.Get(ctx, note.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.WithError(err).Warn("push subscription lookup failed")
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title": title(note.Kind),
		"body":  note.Message,
		"data": map[string]interface{}{
			"kind":      note.Kind,
			"postId":    note.PostID,
			"itemId":    note.ItemID,
			"timestamp": note.CreatedAt.Unix(),
		},
	})
	if err != nil {
		log.WithError(err).Error("encode push payload")
		return
	}

	status, err := n.pusher.Push(ctx, &sub.Sub, payload)
	switch {
	case err != nil:
		metrics.PushNotificationsTotal.WithLabelValues("error").Inc()
		log.WithError(err).Warn("push notification failed")
	case status == http.StatusGone || status == http.StatusNotFound:
		metrics.PushNotificationsTotal.WithLabelValues("expired").Inc()
		log.Info("push subscription expired, deleting")
		if err := n.subs.Delete(ctx, note.UserID); err != nil {
			log.WithError(err).Warn("delete expired subscription")
		}
	case status >= 300:
		metrics.PushNotificationsTotal.WithLabelValues("rejected").Inc()
		log.WithField("status", status).Warn("push service rejected notification")
	default:
		metrics.PushNotificationsTotal.WithLabelValues("sent").Inc()
		log.Debug("push notification sent")
	}
}

func title(kind models.NotificationKind) string {
	switch kind {
	case models.NotifyTeamJoin:
		return "New team member"
	case models.NotifyChatMessage:
		return "New team message"
	case models.NotifyReview:
		return "New review"
	case models.NotifyVolunteer:
		return "New volunteer"
	}
	return "TeamUp"
}
