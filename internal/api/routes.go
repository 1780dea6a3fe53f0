package api

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/qsweep-engine/internal/db"
	"github.com/rawblock/qsweep-engine/internal/detect"
	"github.com/rawblock/qsweep-engine/pkg/models"
)

type APIHandler struct {
	monitor    *detect.Monitor
	dispatcher *detect.AlertDispatcher
	dbStore    *db.PostgresStore
	wsHub      *Hub
}

func SetupRouter(monitor *detect.Monitor, dispatcher *detect.AlertDispatcher, dbStore *db.PostgresStore, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// CORS — configurable via ALLOWED_ORIGINS env var.
	// Production: ALLOWED_ORIGINS=https://ops.example.net
	// Development: leave empty for *
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{monitor: monitor, dispatcher: dispatcher, dbStore: dbStore, wsHub: wsHub}
	limiter := NewRateLimiter(60, 20)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		// Read-only endpoints are public
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)

		// Mutating and query endpoints sit behind bearer auth
		protected := api.Group("")
		protected.Use(AuthMiddleware())
		{
			protected.POST("/observe", handler.handleObserve)
			protected.POST("/analyze", handler.handleAnalyzeBatch)
			protected.GET("/summary", handler.handleSummary)
			protected.GET("/patterns", handler.handlePatterns)
			protected.GET("/alerts", handler.handleAlerts)
			protected.GET("/signatures", handler.handleSignatures)
		}
	}

	// Serve Static Dashboard
	r.Static("/dashboard", "./public")

	return r
}

// handleObserve ingests one transaction and returns its scored pattern.
func (h *APIHandler) handleObserve(c *gin.Context) {
	var tx models.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction payload", "details": err.Error()})
		return
	}

	pattern, err := h.monitor.Observe(c.Request.Context(), tx)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	BroadcastPattern(h.wsHub, pattern)
	c.JSON(http.StatusOK, gin.H{"pattern": pattern})
}

// handleAnalyzeBatch runs ad-hoc batch analysis over an explicit
// transaction set: POST /api/v1/analyze { "transactions": [...] }
func (h *APIHandler) handleAnalyzeBatch(c *gin.Context) {
	var req struct {
		Transactions []models.Transaction `json:"transactions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {transactions: [...]}"})
		return
	}

	sig, alert := h.monitor.AnalyzeBatch(c.Request.Context(), req.Transactions)
	if sig == nil {
		c.JSON(http.StatusOK, gin.H{
			"detected": false,
			"reason":   "batch below minimum transaction count",
		})
		return
	}

	resp := gin.H{
		"detected":  alert != nil,
		"signature": sig,
	}
	if alert != nil {
		resp["alert"] = alert
	}
	c.JSON(http.StatusOK, resp)
}

// handleSummary returns the engine's recent risk summary.
// GET /api/v1/summary?windowMinutes=60
func (h *APIHandler) handleSummary(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("windowMinutes", "60"))
	if err != nil || minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid windowMinutes"})
		return
	}
	c.JSON(http.StatusOK, h.monitor.RiskSummary(time.Duration(minutes)*time.Minute))
}

// handlePatterns returns the active coordinated attack patterns.
func (h *APIHandler) handlePatterns(c *gin.Context) {
	patterns := h.monitor.ActivePatterns()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(patterns),
		"patterns": patterns,
	})
}

// handleAlerts returns recent threat alerts from the dispatcher history.
func (h *APIHandler) handleAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"alerts": h.dispatcher.RecentAlerts(limit)})
}

// handleSignatures returns persisted signature history.
func (h *APIHandler) handleSignatures(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sigs, err := h.dbStore.RecentSignatures(c.Request.Context(), limit)
	if err != nil {
		log.Printf("[API] Failed to fetch signature history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signature history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signatures": sigs})
}

// handleHealth returns engine status for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "RawBlock Quantum Sweep Detector v1.0",
		"capabilities": gin.H{
			"batch_signatures":     true,
			"coordinated_clusters": true,
			"address_profiles":     true,
			"webhook_dispatch":     true,
		},
		"dbConnected": h.dbStore != nil,
	})
}
