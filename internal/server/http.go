package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"MarketLedger/internal/observability"
	"MarketLedger/internal/query"
)

// Server exposes the read-only query API plus health probes over HTTP/JSON.
// It never mutates ledger state: writes arrive only through the event stream.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds the HTTP server with all routes registered.
func New(
	addr string,
	readTimeout, writeTimeout time.Duration,
	svc *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	h := &handler{svc: svc, metrics: metrics, logger: logger}

	v1 := r.Group("/v1")
	v1.GET("/accounts/:address/balances", h.accountBalances)
	v1.GET("/market/prices", h.priceFloors)
	v1.GET("/market/items/:item/lots", h.openLots)
	v1.GET("/market/lots/:lot/deals", h.lotDeals)
	v1.GET("/monitors/:monitor/checkpoint", h.checkpoint)

	r.GET("/healthz", gin.WrapF(health.LivenessHandler))
	r.GET("/readyz", gin.WrapF(health.ReadinessHandler))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("query API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type handler struct {
	svc     *query.Service
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func (h *handler) accountBalances(c *gin.Context) {
	defer h.observe("account_balances", time.Now())

	balances, err := h.svc.BalancesForAccount(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.fail(c, "account_balances", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (h *handler) priceFloors(c *gin.Context) {
	defer h.observe("price_floors", time.Now())

	prices, err := h.svc.BestPricePerItem(c.Request.Context())
	if err != nil {
		h.fail(c, "price_floors", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

func (h *handler) openLots(c *gin.Context) {
	defer h.observe("open_lots", time.Now())

	itemID, err := strconv.ParseInt(c.Param("item"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "BAD_ITEM_ID", Message: "item must be an integer"})
		return
	}

	lots, err := h.svc.OpenLotsForItem(c.Request.Context(), itemID)
	if err != nil {
		h.fail(c, "open_lots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lots": lots})
}

func (h *handler) lotDeals(c *gin.Context) {
	defer h.observe("lot_deals", time.Now())

	lotID, err := strconv.ParseInt(c.Param("lot"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "BAD_LOT_ID", Message: "lot must be an integer"})
		return
	}

	deals, err := h.svc.DealsForLot(c.Request.Context(), lotID)
	if err != nil {
		h.fail(c, "lot_deals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals})
}

func (h *handler) checkpoint(c *gin.Context) {
	defer h.observe("checkpoint", time.Now())

	cp, err := h.svc.Checkpoint(c.Request.Context(), c.Param("monitor"))
	if err != nil {
		h.fail(c, "checkpoint", err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (h *handler) observe(endpoint string, start time.Time) {
	h.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	h.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *handler) fail(c *gin.Context, endpoint string, err error) {
	h.metrics.QueryErrors.WithLabelValues(endpoint).Inc()
	h.logger.Error().Err(err).Str("endpoint", endpoint).Msg("query failed")
	c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
}
