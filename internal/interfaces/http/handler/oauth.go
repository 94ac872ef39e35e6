package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/credential"
	"github.com/ordersync/backend/internal/infrastructure/downstream"
	"github.com/ordersync/backend/internal/infrastructure/logger"
)

// OAuthFlow is the slice of the token client the handler needs.
type OAuthFlow interface {
	AuthorizeURL(state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*downstream.Token, error)
}

// OAuthHandler drives the PKCE authorization flow that installs a store's
// destination credentials
type OAuthHandler struct {
	challenges  credential.ChallengeRepository
	credentials credential.Repository
	flow        OAuthFlow
	logger      *zap.Logger
}

// NewOAuthHandler creates a new OAuthHandler
func NewOAuthHandler(
	challenges credential.ChallengeRepository,
	credentials credential.Repository,
	flow OAuthFlow,
	log *zap.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		challenges:  challenges,
		credentials: credentials,
		flow:        flow,
		logger:      log.Named("oauth"),
	}
}

// RegisterRoutes registers the OAuth routes
func (h *OAuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/oauth/martan/start", h.Start)
	rg.GET("/oauth/martan/callback", h.Callback)
}

type authorizeData struct {
	AuthorizeURL string `json:"authorize_url"`
}

// Start begins the authorization flow for a store. A fresh PKCE verifier is
// stored and its challenge bound into the redirect.
func (h *OAuthHandler) Start(c *gin.Context) {
	storeID, err := strconv.ParseInt(c.Query("store_id"), 10, 64)
	if err != nil || storeID <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_STORE_ID", "store_id must be a positive integer")
		return
	}

	verifier, err := downstream.GenerateCodeVerifier()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "CHALLENGE_FAILED", "could not create authorization challenge")
		return
	}
	if err := h.challenges.Save(c.Request.Context(), &credential.AuthChallenge{
		StoreID:      storeID,
		CodeVerifier: verifier,
		CreatedAt:    time.Now(),
	}); err != nil {
		logger.GetGinLogger(c).Error("failed to save auth challenge",
			zap.Int64("store_id", storeID),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, "CHALLENGE_FAILED", "could not store authorization challenge")
		return
	}

	redirect := h.flow.AuthorizeURL(strconv.FormatInt(storeID, 10), downstream.CodeChallengeS256(verifier))
	c.Redirect(http.StatusFound, redirect)
}

type callbackData struct {
	StoreID int64 `json:"store_id"`
}

// Callback completes the flow: the single-use verifier is consumed, the
// code exchanged and the issued tokens stored for the store.
func (h *OAuthHandler) Callback(c *gin.Context) {
	storeID, err := strconv.ParseInt(c.Query("state"), 10, 64)
	if err != nil || storeID <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_STATE", "state must carry the store id")
		return
	}
	code := c.Query("code")
	if code == "" {
		respondError(c, http.StatusBadRequest, "MISSING_CODE", "authorization code is required")
		return
	}

	challenge, err := h.challenges.Take(c.Request.Context(), storeID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "UNKNOWN_CHALLENGE", "no pending authorization for this store")
		return
	}

	token, err := h.flow.ExchangeCode(c.Request.Context(), code, challenge.CodeVerifier)
	if err != nil {
		logger.GetGinLogger(c).Error("code exchange failed",
			zap.Int64("store_id", storeID),
			zap.Error(err))
		respondError(c, http.StatusBadGateway, "EXCHANGE_FAILED", "authorization server rejected the code")
		return
	}

	err = h.credentials.Upsert(c.Request.Context(), storeID, credential.PlatformMartan, credential.Fields{
		ExternalStoreID: token.ExternalStoreID,
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		ExpiresAt:       token.ExpiresAt,
		LastRefreshAt:   time.Now(),
	})
	if err != nil {
		logger.GetGinLogger(c).Error("failed to store credentials",
			zap.Int64("store_id", storeID),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, "STORE_FAILED", "could not store credentials")
		return
	}

	respondOK(c, http.StatusOK, callbackData{StoreID: storeID})
}
