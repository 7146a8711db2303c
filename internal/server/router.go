// Package server exposes the intake flow, the analyzer and the engine
// controls over HTTP and serves the bundled web UI.
package server

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ZayedOfficial/truthshield/internal/clinical"
	"github.com/ZayedOfficial/truthshield/internal/discrepancy"
	"github.com/ZayedOfficial/truthshield/internal/engine"
	"github.com/ZayedOfficial/truthshield/internal/intake"
	"github.com/ZayedOfficial/truthshield/internal/metrics"
)

const maxBodyBytes = 1 << 20

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Engine is the model handle as seen by the API.
type Engine interface {
	Status() engine.Status
	Load(ctx context.Context) error
}

type Analyzer interface {
	Analyze(ctx context.Context, req discrepancy.Request) (*discrepancy.Result, error)
}

type Intake interface {
	SubmitStory(ctx context.Context, id, story string) (*intake.StoryResult, error)
	SubmitFinal(ctx context.Context, id, story string, answers []*string) (*intake.FinalResult, error)
	LoadScenario(ctx context.Context, id, scenarioID string) (*intake.ScenarioResult, error)
	Clear(ctx context.Context, id string) error
	Session(ctx context.Context, id string) (*intake.Session, error)
}

// Deps are the collaborators the router wires into handlers. DB and
// StaticRoot are optional.
type Deps struct {
	Engine      Engine
	Catalog     *clinical.Catalog
	Intake      Intake
	Analyzer    Analyzer
	DB          HealthChecker
	StaticRoot  string
	CORSOrigins []string
	Logger      zerolog.Logger
}

type handler struct {
	Deps
}

func NewRouter(d Deps) *gin.Engine {
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		requestID(),
		requestLogger(d.Logger),
		gin.Recovery(),
		countRequests(),
		limitBodySize(maxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders: []string{"X-Request-ID"},
			MaxAge:        12 * time.Hour,
		}),
	)

	h := &handler{Deps: d}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", h.readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/engine", h.engineStatus)
	api.POST("/engine/sync", h.engineSync)
	api.GET("/scenarios", h.listScenarios)
	api.GET("/scenarios/:id", h.getScenario)
	api.GET("/questions", h.listQuestions)

	api.GET("/intake/:session", h.getSession)
	api.DELETE("/intake/:session", h.clearSession)
	api.POST("/intake/:session/story", h.submitStory)
	api.POST("/intake/:session/scenario/:id", h.loadScenario)
	api.POST("/intake/:session/final", h.submitFinal)

	api.POST("/analyze", h.analyze)
	api.POST("/ehr/sync", h.ehrSync)

	if d.StaticRoot != "" && fileExists(filepath.Join(d.StaticRoot, "index.html")) {
		router.StaticFile("/", filepath.Join(d.StaticRoot, "index.html"))
		router.StaticFile("/styles.css", filepath.Join(d.StaticRoot, "styles.css"))
		router.StaticFile("/app.js", filepath.Join(d.StaticRoot, "app.js"))
		router.Static("/static", d.StaticRoot)
	}

	return router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		evt := logger.Info()
		if len(c.Errors) > 0 {
			evt = logger.Error().Str("errors", c.Errors.String())
		}
		evt.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("remote_ip", c.ClientIP()).
			Msg("request")
	}
}

func countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil {
			c.Request.Body = http.NoBody
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
