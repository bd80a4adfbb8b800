package main

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"dsst-etl/config"
	"dsst-etl/dbctx"
	"dsst-etl/repository"
	"dsst-etl/services"
)

var contentHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Serve the HTTP API and run scheduled reconciliations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			svc, err := a.newReconciler()
			if err != nil {
				return err
			}

			cronScheduler := cron.New()
			if a.cfg.CronSchedule != "" {
				_, err := cronScheduler.AddFunc(a.cfg.CronSchedule, func() {
					a.log.Info("Running scheduled reconciliation...")
					if _, err := svc.Run(ctx); err != nil {
						a.log.Error("Cron job failed", zap.Error(err))
					}
				})
				if err != nil {
					return err
				}
				cronScheduler.Start()
				defer cronScheduler.Stop()
				a.log.Info("Scheduled reconciliation", zap.String("schedule", a.cfg.CronSchedule))
			}

			srv := &http.Server{
				Addr:              ":" + a.cfg.HTTPPort,
				Handler:           newRouter(ctx, a.cfg, a.db, svc, a.log),
				ReadTimeout:       30 * time.Second,
				ReadHeaderTimeout: 15 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info("Starting server", zap.String("port", a.cfg.HTTPPort))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Error("Failed to run server", zap.Error(err))
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.log.Info("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

// newRouter baut die HTTP-API. runCtx begrenzt per API gestartete Läufe.
func newRouter(runCtx context.Context, cfg *config.Config, db *gorm.DB, svc *services.ReconcileService, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": services.Version})
	})

	api := router.Group("/", apiKeyAuthMiddleware(cfg))
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))
	setupRunRoutes(api, runCtx, svc)
	setupDocumentRoutes(api, db, log)
	return router
}

func setupRunRoutes(rg *gin.RouterGroup, runCtx context.Context, svc *services.ReconcileService) {
	rg.POST("/reconcile", func(c *gin.Context) {
		runID, err := svc.Start(runCtx)
		switch {
		case services.IsRunInProgress(err):
			c.JSON(http.StatusConflict, gin.H{"error": "reconciliation already running"})
		case errors.Is(err, config.ErrConfiguration):
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		case err != nil:
			svc.Logger.Error("Failed to start reconciliation", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start reconciliation"})
		default:
			c.JSON(http.StatusAccepted, gin.H{"message": "Reconciliation triggered.", "run_id": runID})
		}
	})

	rg.GET("/runs/last", func(c *gin.Context) {
		summary := svc.LastSummary()
		if summary == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no completed run yet", "running": svc.Running()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func setupDocumentRoutes(rg *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	documents := repository.NewDocumentRepo(db, log)

	rg.GET("/documents/:hash", func(c *gin.Context) {
		hash := c.Param("hash")
		if !contentHashPattern.MatchString(hash) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be 64 lowercase hex characters"})
			return
		}
		details, err := documents.Details(dbctx.Context{Ctx: c.Request.Context()}, hash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			log.Error("DB error loading document", zap.String("hash", hash), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, details)
	})
}
