package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"teamup/metrics"
	"teamup/models"
)

const (
	CollectionPosts         = "posts"
	CollectionMessages      = "messages"
	CollectionItems         = "products_services"
	CollectionNotifications = "notifications"
	CollectionPushSubs      = "push_subscriptions"
)

// NewMongo returns a Store backed by the collections of db.
func NewMongo(db *mongo.Database) *Store {
	return &Store{
		Posts:             &mongoPosts{coll: db.Collection(CollectionPosts), now: now},
		Messages:          &mongoMessages{coll: db.Collection(CollectionMessages), now: now},
		Items:             &mongoItems{coll: db.Collection(CollectionItems), now: now},
		Notifications:     &mongoNotifications{coll: db.Collection(CollectionNotifications), now: now},
		PushSubscriptions: &mongoSubs{coll: db.Collection(CollectionPushSubs)},
	}
}

var returnAfter = options.FindOneAndUpdate().SetReturnDocument(options.After)

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// versionMatch also matches documents written before the version field existed.
func versionMatch(v int64) interface{} {
	if v == 0 {
		return bson.M{"$in": bson.A{int64(0), nil}}
	}
	return v
}

// ---- posts ----

type mongoPosts struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (s *mongoPosts) Create(ctx context.Context, post *models.Post) error {
	preparePost(post, s.now())
	if _, err := s.coll.InsertOne(ctx, post); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *mongoPosts) List(ctx context.Context) ([]*models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer cursor.Close(ctx)

	posts := []*models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	for _, p := range posts {
		p.Normalize()
	}
	return posts, nil
}

func (s *mongoPosts) Get(ctx context.Context, id string) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, oid)
}

func (s *mongoPosts) get(ctx context.Context, oid primitive.ObjectID) (*models.Post, error) {
	var p models.Post
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	p.Normalize()
	return &p, nil
}

func (s *mongoPosts) findAndUpdate(ctx context.Context, filter, update interface{}) (*models.Post, error) {
	var p models.Post
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, returnAfter).Decode(&p); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

func (s *mongoPosts) exists(ctx context.Context, oid primitive.ObjectID) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *mongoPosts) Update(ctx context.Context, id string, version int64, u PostUpdate) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updatedAt": s.now()}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Deadline != nil {
		set["deadline"] = *u.Deadline
	}
	if u.Contact != nil {
		set["contact"] = *u.Contact
	}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if u.Tags != nil {
		set["tags"] = *u.Tags
	}
	if u.SkillsNeeded != nil {
		set["skills_needed"] = *u.SkillsNeeded
	}

	filter := bson.M{"_id": oid, "version": versionMatch(version)}
	p, err := s.findAndUpdate(ctx, filter, bson.M{"$set": set, "$inc": bson.M{"version": 1}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		ok, cerr := s.exists(ctx, oid)
		if cerr != nil {
			return nil, cerr
		}
		if !ok {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	return p, err
}

func (s *mongoPosts) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoPosts) JoinTeam(ctx context.Context, id, uid string) (*models.Post, bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, false, err
	}
	filter := bson.M{"_id": oid, "team": bson.M{"$ne": uid}}
	p, err := s.findAndUpdate(ctx, filter, bson.M{"$addToSet": bson.M{"team": uid}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		// already a member, or no such post
		p, err = s.get(ctx, oid)
		return p, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *mongoPosts) LeaveTeam(ctx context.Context, id, uid string) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"_id": oid, "createdBy": bson.M{"$ne": uid}}
	p, err := s.findAndUpdate(ctx, filter, bson.M{"$pull": bson.M{"team": uid}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		ok, cerr := s.exists(ctx, oid)
		if cerr != nil {
			return nil, cerr
		}
		if !ok {
			return nil, ErrNotFound
		}
		return nil, ErrCreatorCannotLeave
	}
	return p, err
}

// ToggleBookmark flips membership of uid in bookmarks in a single pipeline update.
func (s *mongoPosts) ToggleBookmark(ctx context.Context, id, uid string) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, err
	}
	current := bson.M{"$ifNull": bson.A{"$bookmarks", bson.A{}}}
	user := bson.M{"$literal": uid}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"bookmarks": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{user, current}},
				bson.M{"$filter": bson.M{
					"input": current,
					"cond":  bson.M{"$ne": bson.A{"$$this", user}},
				}},
				bson.M{"$concatArrays": bson.A{current, bson.A{user}}},
			}},
		}}},
	}
	p, err := s.findAndUpdate(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return false, notFound(err)
	}
	return p.IsBookmarkedBy(uid), nil
}

func (s *mongoPosts) AddMilestone(ctx context.Context, id string, m models.Milestone) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$push": bson.M{"milestones": m},
		"$set":  bson.M{"updatedAt": s.now()},
	}
	p, err := s.findAndUpdate(ctx, bson.M{"_id": oid}, update)
	return p, notFound(err)
}

func (s *mongoPosts) CompleteMilestone(ctx context.Context, id string, index int) (*models.Post, error) {
	return s.casAt(ctx, "complete_milestone", id, index,
		func(p *models.Post) int { return len(p.Milestones) },
		bson.M{fmt.Sprintf("milestones.%d.completed", index): true})
}

func (s *mongoPosts) SetMilestoneProgress(ctx context.Context, id string, index, progress int) (*models.Post, error) {
	return s.casAt(ctx, "milestone_progress", id, index,
		func(p *models.Post) int { return len(p.Milestones) },
		bson.M{fmt.Sprintf("milestones.%d.progress", index): progress})
}

func (s *mongoPosts) AddTask(ctx context.Context, id string, t models.Task) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$push": bson.M{"tasks": t},
		"$set":  bson.M{"updatedAt": s.now()},
	}
	p, err := s.findAndUpdate(ctx, bson.M{"_id": oid}, update)
	return p, notFound(err)
}

func (s *mongoPosts) CompleteTask(ctx context.Context, id string, index int) (*models.Post, error) {
	return s.casAt(ctx, "complete_task", id, index,
		func(p *models.Post) int { return len(p.Tasks) },
		bson.M{fmt.Sprintf("tasks.%d.completed", index): true})
}

// casAt sets fields on element index of a list, guarded by the version read
// alongside the bounds check. A concurrent writer bumps the version and
// forces a re-read.
func (s *mongoPosts) casAt(ctx context.Context, op, id string, index int, length func(*models.Post) int, fields bson.M) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cur, err := s.get(ctx, oid)
		if err != nil {
			return nil, err
		}
		if index < 0 || index >= length(cur) {
			return nil, ErrInvalidIndex
		}

		set := bson.M{"updatedAt": s.now()}
		for k, v := range fields {
			set[k] = v
		}
		filter := bson.M{"_id": oid, "version": versionMatch(cur.Version)}
		p, err := s.findAndUpdate(ctx, filter, bson.M{"$set": set, "$inc": bson.M{"version": 1}})
		if errors.Is(err, mongo.ErrNoDocuments) {
			metrics.StoreConflictsTotal.WithLabelValues(op).Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, ErrConflict
}

// ---- messages ----

type mongoMessages struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (s *mongoMessages) Append(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *mongoMessages) ListByPost(ctx context.Context, postID string) ([]*models.ChatMessage, error) {
	oid, err := parseID(postID)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{"postId": oid}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	msgs := []*models.ChatMessage{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

func (s *mongoMessages) Get(ctx context.Context, id string) (*models.ChatMessage, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var msg models.ChatMessage
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&msg); err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (s *mongoMessages) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- items ----

type mongoItems struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (s *mongoItems) Create(ctx context.Context, item *models.Item) error {
	prepareItem(item, s.now())
	if _, err := s.coll.InsertOne(ctx, item); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *mongoItems) List(ctx context.Context, f ItemFilter) ([]*models.Item, error) {
	filter := bson.M{}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.TeamID != "" {
		oid, err := parseID(f.TeamID)
		if err != nil {
			return nil, err
		}
		filter["team_id"] = oid
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	defer cursor.Close(ctx)

	items := []*models.Item{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

func (s *mongoItems) Get(ctx context.Context, id string) (*models.Item, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, oid)
}

func (s *mongoItems) get(ctx context.Context, oid primitive.ObjectID) (*models.Item, error) {
	var it models.Item
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&it); err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func (s *mongoItems) findAndUpdate(ctx context.Context, filter, update interface{}) (*models.Item, error) {
	var it models.Item
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, returnAfter).Decode(&it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *mongoItems) Update(ctx context.Context, id string, u ItemUpdate) (*models.Item, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": s.now()}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Price != nil {
		set["price"] = *u.Price
	}
	if u.Contact != nil {
		set["contact"] = *u.Contact
	}
	if u.ImageURL != nil {
		set["image_url"] = *u.ImageURL
	}
	if u.Availability != nil {
		set["availability"] = *u.Availability
	}
	it, err := s.findAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	return it, notFound(err)
}

func (s *mongoItems) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddReview appends the review only when the user has none yet and
// recomputes the average rating in the same update.
func (s *mongoItems) AddReview(ctx context.Context, id string, r models.Review) (*models.Item, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}

	review := bson.D{
		{Key: "user", Value: bson.M{"$literal": r.User}},
		{Key: "rating", Value: r.Rating},
		{Key: "comment", Value: bson.M{"$literal": r.Comment}},
		{Key: "timestamp", Value: r.Timestamp},
	}
	filter := bson.M{"_id": oid, "type": models.ItemProduct, "reviews.user": bson.M{"$ne": r.User}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reviews": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$reviews", bson.A{}}},
				bson.A{review},
			}},
		}}},
		{{Key: "$set", Value: bson.M{
			"rating": bson.M{"$round": bson.A{bson.M{"$avg": "$reviews.rating"}, 1}},
		}}},
	}

	it, err := s.findAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		cur, gerr := s.get(ctx, oid)
		if gerr != nil {
			return nil, gerr
		}
		if cur.Type != models.ItemProduct {
			return nil, ErrWrongItemType
		}
		return nil, ErrAlreadyReviewed
	}
	return it, err
}

func (s *mongoItems) Volunteer(ctx context.Context, id, uid string) (*models.Item, error) {
	return s.serviceUpdate(ctx, id, bson.M{"$addToSet": bson.M{"volunteers": uid}})
}

func (s *mongoItems) Unvolunteer(ctx context.Context, id, uid string) (*models.Item, error) {
	return s.serviceUpdate(ctx, id, bson.M{"$pull": bson.M{"volunteers": uid}})
}

func (s *mongoItems) serviceUpdate(ctx context.Context, id string, update bson.M) (*models.Item, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	it, err := s.findAndUpdate(ctx, bson.M{"_id": oid, "type": models.ItemService}, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := s.get(ctx, oid); gerr != nil {
			return nil, gerr
		}
		return nil, ErrWrongItemType
	}
	return it, err
}

// ---- notifications ----

type mongoNotifications struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (s *mongoNotifications) Create(ctx context.Context, n *models.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *mongoNotifications) ListForUser(ctx context.Context, uid string) ([]*models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(200)
	cursor, err := s.coll.Find(ctx, bson.M{"userId": uid}, opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	out := []*models.Notification{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return out, nil
}

func (s *mongoNotifications) MarkRead(ctx context.Context, id, uid string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid, "userId": uid}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- push subscriptions ----

type mongoSubs struct {
	coll *mongo.Collection
}

func (s *mongoSubs) Save(ctx context.Context, sub *models.PushSubscription) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"userId": sub.UserID},
		bson.M{"$set": bson.M{"userId": sub.UserID, "sub": sub.Sub}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

func (s *mongoSubs) Get(ctx context.Context, uid string) (*models.PushSubscription, error) {
	var sub models.PushSubscription
	if err := s.coll.FindOne(ctx, bson.M{"userId": uid}).Decode(&sub); err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *mongoSubs) Delete(ctx context.Context, uid string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"userId": uid}); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}
