package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/checkout"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

const maxWebhookBytes = 64 * 1024

type CheckoutHandler struct {
	checkout *checkout.Client
	credits  *services.CreditsService
}

func NewCheckoutHandler(client *checkout.Client, credits *services.CreditsService) *CheckoutHandler {
	return &CheckoutHandler{checkout: client, credits: credits}
}

// CreateSession godoc
// @Summary     Start a credit pack checkout
// @Tags        billing
// @Accept      json
// @Produce     json
// @Param       request body models.CheckoutRequest true "Buyer email and pack count"
// @Success     200 {object} models.CheckoutResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/create-checkout-session [post]
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	if !h.checkout.Configured() {
		respondError(c, apperror.Misconfigured("STRIPE_SECRET_KEY"))
		return
	}

	var req models.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	sess, err := h.checkout.CreateSession(req.Email, req.Packs)
	if err != nil {
		respondError(c, apperror.Wrap(err, apperror.ErrCodeUpstream, "failed to create checkout session"))
		return
	}
	c.JSON(http.StatusOK, models.CheckoutResponse{ID: sess.ID, URL: sess.URL})
}

// HandleWebhook godoc
// @Summary     Stripe webhook endpoint
// @Description Grants purchased credits on checkout.session.completed. The Stripe-Signature header is not verified yet.
// @Tags        billing
// @Accept      json
// @Produce     json
// @Success     200 {object} models.StatusResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/stripe-webhook [post]
func (h *CheckoutHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		respondError(c, apperror.Validation("failed to read webhook body"))
		return
	}

	fulfillment, err := checkout.ParseEvent(payload)
	if err != nil {
		respondError(c, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid webhook payload"))
		return
	}
	if fulfillment == nil {
		c.JSON(http.StatusOK, models.StatusResponse{Status: "ignored"})
		return
	}

	row, applied, err := h.credits.Fulfill(c.Request.Context(), fulfillment.SessionID, fulfillment.Email, fulfillment.Packs)
	if err != nil {
		respondError(c, err)
		return
	}
	if !applied {
		c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusDuplicate, ID: fulfillment.SessionID})
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"session_id": fulfillment.SessionID,
		"email":      row.Email,
	}).Info("Checkout fulfilled")
	c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusOK, ID: fulfillment.SessionID})
}
