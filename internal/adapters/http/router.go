// Package http exposes the participant's local debug surface and the
// recording-service client. Nothing here is reachable from other meeting
// participants; the router binds for operators and probes only.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
)

func SetupRouter(cfg *config.Config, coord *app.Coordinator, reg *prometheus.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "self": coord.Self(), "room": coord.Room()})
	})

	r.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"peers":    coord.Peers(),
			"statuses": coord.PeerStatuses(),
			"sharer":   coord.CurrentSharer(),
		})
	})

	r.GET("/roster", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"peers": coord.Peers()})
	})

	r.GET("/content", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"text": coord.Content()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Recording is requested through the external service; the resulting
	// state still arrives via the relay's recording_update broadcast.
	if cfg.RecordingURL != "" {
		rec := NewRecordingClient(cfg.RecordingURL)
		r.POST("/recording/start", func(c *gin.Context) {
			if err := rec.Start(c.Request.Context(), coord.Room()); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
		})
		r.POST("/recording/stop", func(c *gin.Context) {
			if err := rec.Stop(c.Request.Context(), coord.Room()); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
		})
	}

	return r
}
