package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/extsync"
	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"bitbucket.org/almapacdev/shipments_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

var (
	statusOrchestrator *workflow.StatusOrchestrator
	queueAllocator     *workflow.QueueAllocator
	updateEngine       *workflow.UpdateEngine
	contingencyQueue   *workflow.ContingencyQueue
)

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// errorStatus maps an error kind to the HTTP status the integrations expect.
func errorStatus(err error) int {
	switch utils.KindOf(err) {
	case utils.KindNotFound:
		return http.StatusNotFound
	case utils.KindInvalidTransition, utils.KindDuplicateStatus, utils.KindValidationFailed,
		utils.KindInvalidState, utils.KindInvalidType, utils.KindInsufficientSlots,
		utils.KindNoSlotAvailable, utils.KindCapacityExceeded:
		return http.StatusBadRequest
	case utils.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case utils.KindForbidden:
		return http.StatusForbidden
	case utils.KindConflict:
		return http.StatusConflict
	case utils.KindExternalSyncFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

type addStatusRequest struct {
	StatusId    int    `json:"status_id" binding:"required"`
	Observation string `json:"observation"`
}

func addStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		status, err := statusOrchestrator.AddStatus(c.Request.Context(), c.Param("codeGen"), req.StatusId, req.Observation)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, status)
	}
}

type updateStatusesRequest struct {
	StatusIds   []int  `json:"status_ids" binding:"required,min=1"`
	Observation string `json:"observation"`
}

func updateStatusesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateStatusesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		codeGen := c.Param("codeGen")
		if err := statusOrchestrator.UpdateStatuses(c.Request.Context(), codeGen, req.StatusIds, req.Observation); err != nil {
			respondError(c, err)
			return
		}
		statuses, err := statusOrchestrator.GetStatuses(c.Request.Context(), codeGen)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, statuses)
	}
}

func getStatusesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		codeGen := c.Param("codeGen")
		if c.Query("current") == "true" {
			status, err := statusOrchestrator.GetCurrentStatus(c.Request.Context(), codeGen)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, status)
			return
		}
		statuses, err := statusOrchestrator.GetStatuses(c.Request.Context(), codeGen)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, statuses)
	}
}

type navStatusChangeRequest struct {
	TransactionId int    `json:"transaction_id" binding:"required"`
	CodeGen       string `json:"code_gen" binding:"required"`
	Status        string `json:"status" binding:"required"`
}

func navStatusChangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req navStatusChangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		err := statusOrchestrator.HandleNavStatusChange(c.Request.Context(), req.TransactionId, req.CodeGen, req.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func callSlotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		slot, err := queueAllocator.CallSlot(c.Request.Context(), c.Param("type"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, slot)
	}
}

type sendShipmentRequest struct {
	Observation string `json:"observation"`
}

func sendShipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendShipmentRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, err)
				return
			}
		}
		slot, err := queueAllocator.SendShipment(c.Request.Context(), c.Param("codeGen"), req.Observation)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, slot)
	}
}

func releaseSlotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quantity := 1
		if v := c.Query("quantity"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				respondError(c, utils.Errf(utils.KindValidationFailed, "invalid quantity %q", v))
				return
			}
			quantity = n
		}
		released, err := queueAllocator.ReleaseMultiple(c.Request.Context(), c.Param("type"), quantity)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"released": released})
	}
}

func availableSlotsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if truckType := c.Param("type"); truckType != "" {
			available, err := queueAllocator.AvailableSlots(c.Request.Context(), truckType)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"truck_type": truckType, "available": available})
			return
		}
		available, err := queueAllocator.AvailableSlotsAllTypes(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, available)
	}
}

type updateShipmentRequest struct {
	Patch         workflow.ShipmentPatch `json:"patch" binding:"required"`
	AllowedFields []string               `json:"allowed_fields"`
}

func updateShipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			respondError(c, utils.Errf(utils.KindValidationFailed, "invalid shipment id %q", c.Param("id")))
			return
		}
		var req updateShipmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		shipment, err := updateEngine.UpdateShipment(c.Request.Context(), id, &req.Patch, req.AllowedFields)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shipment)
	}
}

type magneticCardRequest struct {
	MagneticCard int `json:"magnetic_card" binding:"required"`
}

func magneticCardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req magneticCardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		shipment, err := updateEngine.AssignMagneticCard(c.Request.Context(), c.Param("codeGen"), req.MagneticCard)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shipment)
	}
}

type reportInconsistencyRequest struct {
	InconsistencyType string  `json:"inconsistency_type" binding:"required"`
	Comments          *string `json:"comments"`
}

func reportInconsistencyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reportInconsistencyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		record, err := statusOrchestrator.ReportInconsistency(c.Request.Context(), c.Param("codeGen"), req.InconsistencyType, req.Comments)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func contingencyResendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contingencyQueue.ResendPending(c.Request.Context())
		c.Status(http.StatusAccepted)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Graceful drain on SIGTERM.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Wire the engines. They resolve the DB lazily, so this is safe before
	// the connection is up; the readiness gate covers the gap.
	navClient := extsync.NewNavClient()
	leveransClient := extsync.NewLeveransClient()
	receiptClient := extsync.NewExcaliburClient(60 * time.Second)
	sweepReceiptClient := extsync.NewExcaliburClient(20 * time.Second)
	contingencyQueue = workflow.NewContingencyQueue(sweepReceiptClient)
	statusOrchestrator = workflow.NewStatusOrchestrator(navClient, leveransClient, receiptClient, contingencyQueue)
	queueAllocator = workflow.NewQueueAllocator(statusOrchestrator)
	updateEngine = workflow.NewUpdateEngine(navClient)

	// Start the HTTP server ASAP; app endpoints return 503 until deps are up.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	// Acting user for the audit trail.
	r.Use(func(c *gin.Context) {
		if username := c.GetHeader("x-username"); username != "" {
			c.Request = c.Request.WithContext(utils.SetUsernameInContext(c.Request.Context(), username))
		}
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist; allow all elsewhere.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id", "x-username")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting for the public-facing deployments.
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDRESS")})
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/status/:codeGen", addStatusHandler())
		api.PUT("/status/:codeGen", updateStatusesHandler())
		api.GET("/status/:codeGen", getStatusesHandler())
		api.POST("/nav/status-change", navStatusChangeHandler())
		api.POST("/queue/call/:type", callSlotHandler())
		api.POST("/queue/send/:codeGen", sendShipmentHandler())
		api.DELETE("/queue/release/:type", releaseSlotHandler())
		api.GET("/queue/available", availableSlotsHandler())
		api.GET("/queue/available/:type", availableSlotsHandler())
		api.PATCH("/shipments/:id", updateShipmentHandler())
		api.PUT("/shipments/:codeGen/magnetic-card", magneticCardHandler())
		api.POST("/shipments/:codeGen/inconsistency", reportInconsistencyHandler())
		api.POST("/contingency/resend", contingencyResendHandler())
	}
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start the contingency sweeper.
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	go contingencyQueue.Run(sweeperCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the sweeper first so it doesn't start new work while draining.
	cancelSweeper()

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// RateLimiter throttles by client IP using redis counters.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
