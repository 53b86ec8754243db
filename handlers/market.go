package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"teamup/blob"
	"teamup/logging"
	"teamup/models"
	"teamup/store"
)

type CreateItemRequest struct {
	TeamID       string  `json:"teamId" form:"teamId" binding:"required"`
	Type         string  `json:"type" form:"type" binding:"required,oneof=product service"`
	Title        string  `json:"title" form:"title" binding:"required"`
	Description  string  `json:"description" form:"description"`
	Price        float64 `json:"price" form:"price" binding:"gte=0"`
	Contact      string  `json:"contact" form:"contact"`
	ImageURL     string  `json:"imageUrl" form:"imageUrl"`
	Availability string  `json:"availability" form:"availability"`
}

type UpdateItemRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Price        *float64 `json:"price"`
	Contact      *string  `json:"contact"`
	ImageURL     *string  `json:"imageUrl"`
	Availability *string  `json:"availability"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

// CreateItem lists a product or service for a team the caller belongs to.
// Products may carry an image sent as the image field of a multipart form.
func (h *Handler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBind(&req); err != nil {
		validationError(c, err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		validationError(c, "Title is required")
		return
	}
	itemType := models.ItemType(req.Type)

	ctx, cancel := h.ctx(c)
	defer cancel()

	uid := currentUserID(c)
	post, err := h.store.Posts.Get(ctx, req.TeamID)
	if err != nil {
		fail(c, err)
		return
	}
	if !post.IsMember(uid) {
		forbidden(c, "Only team members can list items for this team")
		return
	}

	var image *blob.Object
	if isMultipart(c) {
		var ok bool
		if image, ok = h.formUpload(c, "image", blob.KindImage); !ok {
			return
		}
	}

	item := &models.Item{
		TeamID:      post.ID,
		TeamTitle:   post.Title,
		Type:        itemType,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Contact:     strings.TrimSpace(req.Contact),
		CreatedBy:   uid,
	}
	switch itemType {
	case models.ItemProduct:
		item.ImageURL = strings.TrimSpace(req.ImageURL)
		if image != nil {
			item.ImageURL = image.URL
		}
	case models.ItemService:
		item.Availability = strings.TrimSpace(req.Availability)
	}

	if err := h.store.Items.Create(ctx, item); err != nil {
		orphaned(image, err)
		fail(c, err)
		return
	}

	logging.Logger.WithField("itemId", item.ID.Hex()).WithField("type", item.Type).Info("item listed")
	c.JSON(http.StatusCreated, gin.H{
		"message": "Listing created",
		"item":    item,
	})
}

func (h *Handler) ListItems(c *gin.Context) {
	filter := store.ItemFilter{
		Type:   models.ItemType(c.Query("type")),
		TeamID: c.Query("teamId"),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		validationError(c, "type must be product or service")
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	items, err := h.store.Items.List(ctx, filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) GetItem(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	item, err := h.store.Items.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *Handler) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		validationError(c, "Title cannot be empty")
		return
	}
	if req.Price != nil && *req.Price < 0 {
		validationError(c, "Price cannot be negative")
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	item, err := h.store.Items.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if item.CreatedBy != currentUserID(c) {
		forbidden(c, "Only the creator can edit this listing")
		return
	}
	switch {
	case item.Type == models.ItemProduct && req.Availability != nil:
		validationError(c, "Products do not have availability")
		return
	case item.Type == models.ItemService && req.ImageURL != nil:
		validationError(c, "Services do not have an image")
		return
	}

	u := store.ItemUpdate{
		Description:  req.Description,
		Price:        req.Price,
		Contact:      req.Contact,
		ImageURL:     req.ImageURL,
		Availability: req.Availability,
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		u.Title = &t
	}

	updated, err := h.store.Items.Update(ctx, c.Param("id"), u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Listing updated", "item": updated})
}

func (h *Handler) DeleteItem(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	item, err := h.store.Items.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if item.CreatedBy != currentUserID(c) && !isAdmin(c) {
		forbidden(c, "Only the creator can delete this listing")
		return
	}

	if err := h.store.Items.Delete(ctx, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Listing deleted"})
}

// AddReview rates a product. Each user reviews a product at most once and
// the creator cannot review their own listing.
func (h *Handler) AddReview(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	uid := currentUserID(c)
	item, err := h.store.Items.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if item.CreatedBy == uid {
		forbidden(c, "You cannot review your own listing")
		return
	}

	updated, err := h.store.Items.AddReview(ctx, c.Param("id"), models.Review{
		User:    uid,
		Rating:  req.Rating,
		Comment: strings.TrimSpace(req.Comment),
	})
	if err != nil {
		fail(c, err)
		return
	}

	if err := h.notifier.Notify(ctx, models.Notification{
		UserID:  updated.CreatedBy,
		Kind:    models.NotifyReview,
		Message: fmt.Sprintf("%s rated %q %d/5", displayName(c), updated.Title, req.Rating),
		ItemID:  updated.ID.Hex(),
	}); err != nil {
		logging.Logger.WithError(err).Warn("review notification failed")
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Review added", "item": updated})
}

func (h *Handler) Volunteer(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	uid := currentUserID(c)
	before, err := h.store.Items.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	item, err := h.store.Items.Volunteer(ctx, c.Param("id"), uid)
	if err != nil {
		fail(c, err)
		return
	}

	if !before.HasVolunteer(uid) && item.CreatedBy != uid {
		if err := h.notifier.Notify(ctx, models.Notification{
			UserID:  item.CreatedBy,
			Kind:    models.NotifyVolunteer,
			Message: fmt.Sprintf("%s volunteered for %q", displayName(c), item.Title),
			ItemID:  item.ID.Hex(),
		}); err != nil {
			logging.Logger.WithError(err).Warn("volunteer notification failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Volunteered", "item": item})
}

func (h *Handler) Unvolunteer(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	item, err := h.store.Items.Unvolunteer(ctx, c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Volunteering withdrawn", "item": item})
}
