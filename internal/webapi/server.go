package webapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/spliteth/internal/networks"
	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

// RateSource provides the fiat exchange-rate mapping for ETH.
type RateSource interface {
	Rates(ctx context.Context) (map[string]string, error)
}

// Deps aggregates the wired collaborators of the HTTP facade.
type Deps struct {
	Logger  *zap.Logger
	Service *splitbill.Service
	Rates   RateSource
	ChainID uint64
}

// Run boots the HTTP facade and blocks until ctx is cancelled or the server
// fails.
func Run(ctx context.Context, cfg Config, deps Deps) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sessions, err := NewSessionManager(cfg.SessionSigningKey, cfg.SessionIssuer, cfg.SessionTTL)
	if err != nil {
		return err
	}
	handler := &httpHandler{
		logger:   deps.Logger,
		service:  deps.Service,
		rates:    deps.Rates,
		sessions: sessions,
		chainID:  deps.ChainID,
		cfg:      cfg,
	}
	router := setupRouter(cfg, handler, sessions)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("webapi listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			deps.Logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, sessions *SessionManager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/session", handler.handleSession)
	router.GET("/api/rates", handler.handleRates)

	api := router.Group("/api")
	api.Use(sessions.GinMiddleware())

	api.POST("/bills", handler.handleCreateBill)
	api.GET("/bills", handler.handleListBills)
	api.GET("/bills/:id", handler.handleGetBill)
	api.POST("/bills/:id/pay", handler.handlePayShare)
	api.POST("/bills/:id/withdraw", handler.handleWithdraw)
	api.GET("/history", handler.handleHistory)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	service  *splitbill.Service
	rates    RateSource
	sessions *SessionManager
	chainID  uint64
	cfg      Config
}

// handleSession validates the wallet address and issues a session token
// alongside the resolved network identity.
func (handler *httpHandler) handleSession(ctx *gin.Context) {
	var request sessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	address, err := splitbill.NewAddress(request.Address)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_address", err.Error()))
		return
	}
	token, err := handler.sessions.Issue(address)
	if err != nil {
		handler.logger.Error("session issue failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("session_error", "could not issue session"))
		return
	}
	network := networks.Lookup(handler.chainID)
	ctx.JSON(http.StatusOK, gin.H{
		"token": token,
		"wallet": walletToPayload(splitbill.Wallet{
			Address:     address,
			NetworkName: network.Name,
			Explorer:    network.Explorer,
		}),
	})
}

// handleRates degrades to an empty mapping when the feed is unavailable so
// the client can keep working with plain ETH amounts.
func (handler *httpHandler) handleRates(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	rates, err := handler.rates.Rates(requestCtx)
	if err != nil {
		handler.logger.Warn("rate feed unavailable", zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"available": false, "rates": gin.H{}})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"available": true, "rates": rates})
}

func (handler *httpHandler) handleCreateBill(ctx *gin.Context) {
	var request createBillRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	ethAmount := request.AmountEth
	if request.Currency != "" {
		rates, err := handler.rates.Rates(requestCtx)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		converted, err := splitbill.ConvertFiatWithRates(request.AmountFiat, request.Currency, rates)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		ethAmount = converted
	}
	totalWei, err := splitbill.WeiFromEthString(ethAmount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	billID, view, err := handler.service.CreateBill(requestCtx, request.Description, request.Participants, totalWei)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"bill_id": billID,
		"view":    viewToPayload(view),
	})
}

func (handler *httpHandler) handleListBills(ctx *gin.Context) {
	viewer, ok := sessionWallet(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, ErrMissingToken.Error()))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	bills, err := handler.service.ListBills(requestCtx, viewer)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]billPayload, 0, len(bills))
	for _, bill := range bills {
		payloads = append(payloads, billToPayload(bill))
	}
	ctx.JSON(http.StatusOK, gin.H{"bills": payloads})
}

func (handler *httpHandler) handleGetBill(ctx *gin.Context) {
	viewer, ok := sessionWallet(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, ErrMissingToken.Error()))
		return
	}
	billID, ok := parseBillID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	view, err := handler.service.BillViewFor(requestCtx, billID, viewer)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"view": viewToPayload(view)})
}

func (handler *httpHandler) handlePayShare(ctx *gin.Context) {
	billID, ok := parseBillID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	view, err := handler.service.PayShare(requestCtx, billID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"view": viewToPayload(view)})
}

func (handler *httpHandler) handleWithdraw(ctx *gin.Context) {
	billID, ok := parseBillID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	view, err := handler.service.Withdraw(requestCtx, billID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"view": viewToPayload(view)})
}

func (handler *httpHandler) handleHistory(ctx *gin.Context) {
	viewer, ok := sessionWallet(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, ErrMissingToken.Error()))
		return
	}
	limit := defaultHistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	records, err := handler.service.History(requestCtx, viewer, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]recordPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, recordToPayload(record))
	}
	ctx.JSON(http.StatusOK, gin.H{"records": payloads})
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := statusFromError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, splitbill.ErrValidation),
		errors.Is(err, splitbill.ErrInvalidAddress),
		errors.Is(err, splitbill.ErrInvalidAmount),
		errors.Is(err, splitbill.ErrInvalidRate):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, splitbill.ErrNoRateAvailable):
		return http.StatusBadRequest, "no_rate_available"
	case errors.Is(err, splitbill.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, splitbill.ErrTransactionFailed):
		return http.StatusUnprocessableEntity, "transaction_failed"
	case errors.Is(err, splitbill.ErrConnection):
		return http.StatusBadGateway, "provider_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func parseBillID(ctx *gin.Context) (uint64, bool) {
	billID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_bill_id", "bill id must be a non-negative integer"))
		return 0, false
	}
	return billID, true
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
