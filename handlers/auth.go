package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"teamup/logging"
	"teamup/middleware"
	"teamup/session"
)

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Signup registers the account with the identity provider and sends the
// verification email right away.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	email := strings.TrimSpace(req.Email)
	acc, err := h.identity.SignUp(ctx, email, req.Password)
	if err != nil {
		failIdentity(c, err)
		return
	}

	verificationSent := true
	if err := h.identity.SendVerification(ctx, acc.IDToken); err != nil {
		verificationSent = false
		logging.Logger.WithError(err).WithField("userId", acc.UserID).Warn("verification email not sent")
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":          "Account created. Check your inbox to verify your email before logging in.",
		"userId":           acc.UserID,
		"email":            acc.Email,
		"verificationSent": verificationSent,
	})
}

// Login signs in with the identity provider, refuses unverified accounts
// and opens a server-side session.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	acc, err := h.identity.SignIn(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		failIdentity(c, err)
		return
	}

	verified, err := h.identity.CheckVerified(ctx, acc.IDToken)
	if err != nil {
		failIdentity(c, err)
		return
	}
	if !verified {
		respondError(c, http.StatusForbidden, CodeEmailNotVerified,
			"Please verify your email before logging in. Check your inbox or request a new verification email.")
		return
	}

	email := acc.Email
	if email == "" {
		email = strings.TrimSpace(req.Email)
	}
	s, err := h.sessions.Create(session.User{
		UserID:  acc.UserID,
		Email:   email,
		IDToken: acc.IDToken,
		IsAdmin: h.isAdmin(email),
	})
	if err != nil {
		fail(c, err)
		return
	}

	token, err := middleware.IssueToken(h.jwtSecret, s)
	if err != nil {
		h.sessions.Delete(s.ID)
		fail(c, err)
		return
	}

	logging.Logger.WithField("userId", s.UserID).Info("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"message":   "Login successful",
		"token":     token,
		"expiresAt": s.ExpiresAt,
		"session":   s,
		"pages":     session.Pages(s.IsAdmin),
	})
}

// ResendVerification signs in with the given credentials and sends a new
// verification email.
func (h *Handler) ResendVerification(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	acc, err := h.identity.SignIn(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		failIdentity(c, err)
		return
	}
	if err := h.identity.SendVerification(ctx, acc.IDToken); err != nil {
		failIdentity(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

// PasswordReset always answers with the same message so it cannot be used
// to discover registered emails.
func (h *Handler) PasswordReset(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.identity.ResetPassword(ctx, strings.TrimSpace(req.Email)); err != nil {
		if !isClientRejection(err) {
			failIdentity(c, err)
			return
		}
		logging.Logger.WithError(err).Debug("password reset rejected by provider")
	}

	c.JSON(http.StatusOK, gin.H{"message": "If an account exists for this email, a password reset link has been sent"})
}
