package api

import (
	"context"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"klarna-checkout-service/internal/checkout"
	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/service"
	"klarna-checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MessageCookie carries a one-shot buyer message to the next checkout page
const MessageCookie = "checkout_message"

const gatewayParam = "commerce_payment_gateway"

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	gateways *service.Registry
	urls     *checkout.URLBuilder
	snippets *service.SnippetSigner
	deps     map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(gateways *service.Registry, urls *checkout.URLBuilder, snippets *service.SnippetSigner, deps map[string]Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		gateways: gateways,
		urls:     urls,
		snippets: snippets,
		deps:     deps,
		logger:   logger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) error {
	tmpl, err := LoadTemplates()
	if err != nil {
		return err
	}
	router.SetHTMLTemplate(tmpl)

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	co := router.Group("/checkout/:order_id/payment")
	{
		co.POST("/klarna", h.initiate)
		co.POST("/klarna/snippet", h.snippet)
		co.GET("/return", h.onReturn)
		co.GET("/cancel", h.onCancel)
	}

	router.GET("/payment/notify/:gateway", h.onNotify)
	router.POST("/payment/notify/:gateway", h.onNotify)

	router.GET("/orders/:order_id/payment-state", h.paymentState)
	return nil
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return orderID, true
}

func (h *Handler) gateway(c *gin.Context, kind string) (service.PaymentGateway, bool) {
	g, ok := h.gateways.Get(kind)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown payment gateway"})
	}
	return g, ok
}

// initiate creates the remote checkout and posts the snippet to the payment page
func (h *Handler) initiate(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	g, ok := h.gateway(c, string(service.GatewayKlarnaCheckout))
	if !ok {
		return
	}

	form, err := g.Initiate(c.Request.Context(), orderID)
	if err != nil {
		h.logger.Error("Checkout initiation failed", zap.Int64("order_id", orderID), zap.Error(err))
		c.HTML(statusFor(err), "error.html", errorPage{
			Message: service.CheckoutErrorMessage,
			BackURL: h.urls.StepURL(orderID, models.CheckoutStepReview),
		})
		return
	}

	c.HTML(http.StatusOK, "redirect.html", form)
}

// snippet embeds the decoded provider snippet once its signature checks out
func (h *Handler) snippet(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	snippet, err := h.snippets.Decode(orderID, c.PostForm(service.SnippetField), c.PostForm(service.SnippetSignatureField))
	if err != nil {
		h.logger.Warn("Invalid checkout snippet", zap.Int64("order_id", orderID), zap.Error(err))
		c.HTML(http.StatusBadRequest, "error.html", errorPage{
			Message: service.CheckoutErrorMessage,
			BackURL: h.urls.StepURL(orderID, models.CheckoutStepReview),
		})
		return
	}

	c.HTML(http.StatusOK, "snippet.html", snippetPage{Snippet: template.HTML(snippet)})
}

// onReturn handles the buyer coming back from the provider
func (h *Handler) onReturn(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	g, ok := h.gateway(c, c.DefaultQuery(gatewayParam, string(service.GatewayKlarnaCheckout)))
	if !ok {
		return
	}

	res, err := g.OnReturn(c.Request.Context(), orderID, service.ReturnRequest{
		RemoteID: c.Query(checkout.RemoteIDParam),
	})
	if err != nil {
		h.logger.Error("Return handling failed", zap.Int64("order_id", orderID), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Failed to process payment return"})
		return
	}

	if res.Message != "" {
		c.SetCookie(MessageCookie, res.Message, 300, "/", "", false, true)
	}
	c.Redirect(http.StatusFound, h.urls.StepURL(orderID, res.Step))
}

// onCancel handles the buyer leaving the provider page
func (h *Handler) onCancel(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	g, ok := h.gateway(c, c.DefaultQuery(gatewayParam, string(service.GatewayKlarnaCheckout)))
	if !ok {
		return
	}

	step, err := g.OnCancel(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to cancel payment"})
		return
	}
	c.Redirect(http.StatusFound, h.urls.StepURL(orderID, step))
}

// onNotify handles the provider's push callback. Only an unknown order is
// reported as a failure; the provider retries on anything but 200.
func (h *Handler) onNotify(c *gin.Context) {
	g, ok := h.gateway(c, c.Param("gateway"))
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(c.Query(checkout.OrderParam), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	res, err := g.OnNotify(c.Request.Context(), service.NotifyRequest{
		OrderID:  orderID,
		RemoteID: c.Query(checkout.RemoteIDParam),
	})
	if err != nil {
		h.logger.Error("Notify handling failed", zap.Int64("order_id", orderID), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Failed to process notification"})
		return
	}

	if res.Outcome == service.NotifyOrderNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": res.Outcome})
}

// paymentState reports the derived reconciliation state
func (h *Handler) paymentState(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	g, ok := h.gateway(c, c.DefaultQuery("gateway", string(service.GatewayKlarnaCheckout)))
	if !ok {
		return
	}

	state, err := g.State(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to load payment state",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"state":    state,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
