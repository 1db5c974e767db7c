package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"commerce-service/internal/apperr"
	"commerce-service/internal/redisclient"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

// IdempotencyStore remembers the response of a request by key.
// GetIdempotentResponse returns redisclient.ErrRequestInProgress while the
// key is claimed but no response has been saved.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	SaveIdempotentResponse(ctx context.Context, key string, response []byte, ttl time.Duration) error
	GetIdempotentResponse(ctx context.Context, key string) ([]byte, bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

var errInProgress = apperr.New(apperr.KindDuplicated, "a request with this Idempotency-Key is in progress.")

// idempotent runs fn once per key. Replays get the stored response; a failed
// fn releases the key so the client may retry.
func (h *Handler) idempotent(c *gin.Context, key string, fn func() (interface{}, error)) {
	ctx := c.Request.Context()

	stored, found, err := h.idempotency.GetIdempotentResponse(ctx, key)
	switch {
	case errors.Is(err, redisclient.ErrRequestInProgress):
		h.respondError(c, errInProgress)
		return
	case err != nil:
		h.respondError(c, apperr.Wrap(apperr.KindService, "idempotency store unavailable.", err))
		return
	case found:
		c.Data(http.StatusOK, "application/json; charset=utf-8", stored)
		return
	}

	claimed, err := h.idempotency.ClaimIdempotencyKey(ctx, key, h.opts.IdempotencyTTL)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.KindService, "idempotency store unavailable.", err))
		return
	}
	if !claimed {
		h.respondError(c, errInProgress)
		return
	}

	resp, err := fn()
	if err != nil {
		if relErr := h.idempotency.ReleaseIdempotencyKey(ctx, key); relErr != nil {
			h.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		h.respondError(c, err)
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.idempotency.SaveIdempotentResponse(ctx, key, body, h.opts.IdempotencyTTL); err != nil {
		h.logger.Warn("Failed to save idempotent response", zap.String("key", key), zap.Error(err))
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
