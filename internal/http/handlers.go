/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "net/http"
    "strconv"
    "strings"

    "github.com/gin-gonic/gin"
    "github.com/google/uuid"
    "github.com/rs/zerolog"

    "github.com/example/standup-pilot/internal/adapters/jira"
    "github.com/example/standup-pilot/internal/agent"
    "github.com/example/standup-pilot/internal/domain"
)

// Store is the persistence surface the HTTP layer touches directly.
type Store interface {
    UpsertCredential(ctx context.Context, c *domain.Credential) error
    DeleteCredential(ctx context.Context, userID string) error
    ListIssueRefs(ctx context.Context, userID string, limit int) ([]domain.IssueRef, error)
}

type Handlers struct {
    Agent *agent.Agent
    OAuth *jira.OAuth
    Store Store
    Log   zerolog.Logger
}

type chatRequest struct {
    Message string `json:"message" binding:"required"`
}

func (h *Handlers) Chat(c *gin.Context) {
    userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
    if userID == "" {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
        return
    }
    var req chatRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
        return
    }
    reply, err := h.Agent.Run(c.Request.Context(), userID, req.Message)
    if err != nil {
        h.Log.Error().Err(err).Str("user_id", userID).Msg("chat turn failed")
        c.JSON(http.StatusBadGateway, gin.H{"error": "assistant is unavailable right now"})
        return
    }
    c.JSON(http.StatusOK, reply)
}

// Connect starts the OAuth dance. The state is a random nonce plus the user
// id so the callback can bind the grant to the right user.
func (h *Handlers) Connect(c *gin.Context) {
    userID := strings.TrimSpace(c.Query("user_id"))
    if userID == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
        return
    }
    state := uuid.NewString() + ":" + userID
    c.Redirect(http.StatusFound, h.OAuth.AuthCodeURL(state))
}

// parseState splits a callback state into its nonce and user id. Empty user
// id means the state is malformed or predates this format.
func parseState(state string) (nonce, userID string) {
    nonce, userID, ok := strings.Cut(state, ":")
    if !ok { return "", "" }
    return nonce, strings.TrimSpace(userID)
}

func (h *Handlers) Callback(c *gin.Context) {
    code := c.Query("code")
    nonce, userID := parseState(c.Query("state"))
    if code == "" || nonce == "" || userID == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
        return
    }
    ctx := c.Request.Context()
    tok, err := h.OAuth.Exchange(ctx, code)
    if err != nil {
        h.Log.Warn().Err(err).Msg("oauth exchange failed")
        c.JSON(http.StatusBadGateway, gin.H{"error": "could not complete Jira authorization"})
        return
    }
    resources, err := h.OAuth.AccessibleResources(ctx, tok.AccessToken)
    if err != nil {
        h.Log.Warn().Err(err).Msg("accessible resources lookup failed")
        c.JSON(http.StatusBadGateway, gin.H{"error": "could not discover your Jira site"})
        return
    }
    site, err := jira.PickSite(resources)
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": "no Jira site is accessible with this account"})
        return
    }
    cred := &domain.Credential{
        UserID:       userID,
        CloudID:      site.ID,
        SiteURL:      site.URL,
        AccessToken:  tok.AccessToken,
        RefreshToken: tok.RefreshToken,
        ExpiresAt:    tok.Expiry,
    }
    if err := h.Store.UpsertCredential(ctx, cred); err != nil {
        h.Log.Error().Err(err).Str("user_id", userID).Msg("credential persist failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save your Jira connection"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"connected": true, "site": site.URL})
}

// Disconnect drops the caller's Jira credential.
func (h *Handlers) Disconnect(c *gin.Context) {
    userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
    if userID == "" {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
        return
    }
    if err := h.Store.DeleteCredential(c.Request.Context(), userID); err != nil {
        h.Log.Error().Err(err).Str("user_id", userID).Msg("credential delete failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "could not disconnect your Jira account"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"connected": false})
}

// IssueRefs serves the cached issue references backing the chat @-mention
// picker. Cache only; the tracker stays authoritative.
func (h *Handlers) IssueRefs(c *gin.Context) {
    userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
    if userID == "" {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
        return
    }
    limit, _ := strconv.Atoi(c.Query("limit"))
    refs, err := h.Store.ListIssueRefs(c.Request.Context(), userID, limit)
    if err != nil {
        h.Log.Error().Err(err).Str("user_id", userID).Msg("issue ref list failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list issue references"})
        return
    }
    if refs == nil { refs = []domain.IssueRef{} }
    c.JSON(http.StatusOK, gin.H{"refs": refs})
}

func (h *Handlers) Health(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
