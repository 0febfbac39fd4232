package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skalice/ledger-engine/internal/apperrors"
	portssvc "github.com/skalice/ledger-engine/internal/core/ports/services"
	"github.com/skalice/ledger-engine/internal/dto"
	"github.com/skalice/ledger-engine/internal/middleware"
)

// ledgerHandler handles HTTP requests for balance mutations and statements.
type ledgerHandler struct {
	ledgerService portssvc.LedgerSvc
	relayService  portssvc.RelaySvc // nil in direct mode
}

// newLedgerHandler creates a new ledgerHandler. relayService may be nil, in
// which case submissions are applied inline.
func newLedgerHandler(ls portssvc.LedgerSvc, rs portssvc.RelaySvc) *ledgerHandler {
	return &ledgerHandler{
		ledgerService: ls,
		relayService:  rs,
	}
}

// registerLedgerRoutes registers routes related to the balance engine.
func registerLedgerRoutes(rg *gin.RouterGroup, ls portssvc.LedgerSvc, rs portssvc.RelaySvc) {
	h := newLedgerHandler(ls, rs)

	accounts := rg.Group("/accounts")
	{
		accounts.POST("/:accountID/transactions", h.submitTransaction)
		accounts.GET("/:accountID/statement", h.getStatement)
	}
}

// submitTransaction validates the request body and either applies the
// transaction inline (direct mode) or enqueues it (relay mode). In relay
// mode the response is provisional and carries the pre-mutation balance.
func (h *ledgerHandler) submitTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	accountID := c.Param("accountID")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account ID is required"})
		return
	}

	var req dto.SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for SubmitTransaction", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger = logger.With(slog.String("account_id", accountID))

	if h.relayService != nil {
		summary, err := h.relayService.EnqueueTransaction(c.Request.Context(), accountID, req.Amount, req.DomainKind(), req.Description)
		if err != nil {
			h.respondTransactionError(c, logger, err)
			return
		}
		c.JSON(http.StatusAccepted, dto.ToTransactionResult(summary))
		return
	}

	summary, err := h.ledgerService.SubmitTransaction(c.Request.Context(), accountID, req.Amount, req.DomainKind(), req.Description)
	if err != nil {
		h.respondTransactionError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResult(summary))
}

// respondTransactionError maps the engine's closed error taxonomy to HTTP
// statuses. The match is exhaustive; anything outside the taxonomy is an
// internal failure.
func (h *ledgerHandler) respondTransactionError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		logger.Warn("Transaction rejected by validation", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
	case errors.Is(err, apperrors.ErrInsufficientLimit):
		logger.Info("Transaction rejected: insufficient limit")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Transaction would exceed the credit limit"})
	case errors.Is(err, apperrors.ErrConcurrentModification):
		// Surfaced rather than retried so latency stays bounded under
		// contention; the client re-reads and resubmits.
		logger.Info("Transaction rejected: concurrent modification")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Account was modified concurrently, please retry"})
	default:
		logger.Error("Failed to process transaction", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process transaction"})
	}
}

// getStatement returns the account snapshot: balance, credit limit and the
// recent-history window.
func (h *ledgerHandler) getStatement(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	accountID := c.Param("accountID")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account ID is required"})
		return
	}

	snapshot, err := h.ledgerService.GetSnapshot(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		logger.Error("Failed to get account statement", slog.String("error", err.Error()), slog.String("account_id", accountID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get account statement"})
		return
	}

	c.JSON(http.StatusOK, dto.ToStatementResponse(snapshot))
}
