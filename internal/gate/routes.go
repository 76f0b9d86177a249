package gate

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/onegate/internal/auth"
	"github.com/danmuck/onegate/internal/config"
	"github.com/danmuck/onegate/internal/deeplink"
	"github.com/danmuck/onegate/internal/intake"
	"github.com/danmuck/onegate/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// LinkRequest is the body of POST /links and POST /links/normalize.
type LinkRequest struct {
	URL string `json:"url"`
}

// LinkAccepted is returned by POST /links.
type LinkAccepted struct {
	DeliveryID string `json:"delivery_id"`
	Parked     bool   `json:"parked"`
}

// NormalizeResponse is returned by POST /links/normalize.
type NormalizeResponse struct {
	Kind      string `json:"kind"`
	Reason    string `json:"reason,omitempty"`
	URI       string `json:"uri,omitempty"`
	Recovered bool   `json:"recovered"`
	Error     string `json:"error,omitempty"`
}

func (s *Service) newRouter() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	if origins := config.NormalizeOrigins(s.cfg.CorsOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if token := strings.TrimSpace(s.cfg.LinkToken); token != "" {
		r.POST("/links", auth.RequireBearer(auth.SharedToken(token)), s.handleDispatch)
	} else {
		r.POST("/links", s.handleDispatch)
	}
	r.POST("/links/normalize", s.handleNormalize)
	r.GET("/links/recent", s.handleRecent)
	return r
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.appeared).String(),
		"service": s.cfg.Name,
		"version": version,
	})
}

func (s *Service) handleReady(c *gin.Context) {
	mounted := s.intake.Mounted()
	walletReady := s.cell.Ready()
	status := http.StatusOK
	if !mounted || !walletReady {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"ready":        mounted && walletReady,
		"mounted":      mounted,
		"wallet_ready": walletReady,
		"uptime":       time.Since(s.appeared).String(),
		"service":      s.cfg.Name,
		"version":      version,
	})
}

func (s *Service) handleDispatch(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	d, err := s.hub.Dispatch(req.URL)
	switch {
	case errors.Is(err, intake.ErrEmptyLink):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, intake.ErrHubClosed), errors.Is(err, intake.ErrSubscriberBacklog):
		log.Warn().Err(err).Msg("gate.Service.handleDispatch link not delivered")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, LinkAccepted{DeliveryID: d.ID, Parked: d.Initial})
}

func (s *Service) handleNormalize(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	res, err := s.normalizer.Normalize(req.URL)
	resp := NormalizeResponse{
		Kind:      res.Kind.String(),
		Reason:    string(res.Reason),
		Recovered: res.Recovered,
	}
	if err != nil {
		resp.Error = err.Error()
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	if res.Kind == deeplink.KindReady {
		resp.URI = res.URI.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) handleRecent(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"links": s.reports.recent(limit)})
}
