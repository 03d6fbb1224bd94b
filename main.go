package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"course-scout/config"
	"course-scout/models"
	"course-scout/providers"
	"course-scout/providers/ollama"
	"course-scout/providers/pdftext"
	"course-scout/services"
	"course-scout/storage"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	documentsAnalyzedCounter prometheus.Counter
	documentsFailedCounter   prometheus.Counter
	recommendationsCounter   prometheus.Counter
)

func init() {
	documentsAnalyzedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "documents_analyzed_total",
			Help: "Total number of PDF documents analyzed successfully.",
		},
	)
	documentsFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "documents_failed_total",
			Help: "Total number of PDF documents whose analysis failed.",
		},
	)
	recommendationsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Total number of recommendation queries answered.",
		},
	)
	prometheus.MustRegister(documentsAnalyzedCounter, documentsFailedCounter, recommendationsCounter)
}

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

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Fatal("Failed to create database directory", zap.Error(err))
		}
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logging.Fatal("Failed to create upload directory", zap.Error(err))
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to course database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Course{}, &models.PdfDocument{}, &models.DocumentCourseLink{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Seeding
	seedDefaultCourses(db, logging)

	// Setup Providers
	ollamaClient := ollama.NewClient(cfg, logging)
	fallbackExtractor := providers.NewFallbackExtractor(cfg.MaxKeywords)
	textExtractor := pdftext.NewExtractor(logging)

	var s3Client *awss3.Client
	if cfg.ArchiveEnabled() {
		s3Client, err = storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		logging.Info("PDF archive enabled", zap.String("bucket", cfg.ArchiveS3Bucket))
	}

	// Setup Services
	linkService := services.NewLinkService(db, logging)
	analysisService := services.NewAnalysisService(cfg, db, logging, textExtractor, ollamaClient, linkService, s3Client)
	recommendService := services.NewRecommendService(cfg, db, logging, ollamaClient, fallbackExtractor)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupCourseRoutes(router, db, linkService, logging)
	setupDocumentRoutes(router, cfg, db, analysisService, logging)
	setupRecommendRoutes(router, recommendService)
	setupLinkRoutes(router, db, logging)
	setupHealthRoutes(router, db, ollamaClient)

	// Setup Cron: ausstehende Dokumente regelmäßig analysieren
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled analysis job...")
		summary := analysisService.ProcessPending(context.Background())
		documentsAnalyzedCounter.Add(float64(summary.Processed))
		documentsFailedCounter.Add(float64(summary.Failed))
		logging.Info("Cron job completed",
			zap.Int("analyzed", summary.Processed), zap.Int("failed", summary.Failed))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

type courseInput struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords" binding:"required"`
}

func setupCourseRoutes(router *gin.Engine, db *gorm.DB, linker *services.LinkService, log *zap.Logger) {
	rg := router.Group("/courses")

	rg.GET("/", func(c *gin.Context) {
		var courses []models.Course
		if err := db.Order("name asc").Find(&courses).Error; err != nil {
			log.Error("Database query for courses failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, courses)
	})

	rg.POST("/", func(c *gin.Context) {
		var req courseInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		keywords := services.Normalize(req.Keywords)
		if len(keywords) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "keywords must not be empty"})
			return
		}

		course := models.Course{Name: req.Name, Description: req.Description}
		if err := course.SetKeywords(keywords); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid keywords"})
			return
		}
		if err := db.Create(&course).Error; err != nil {
			log.Error("DB error creating course", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create course"})
			return
		}

		// Neuer Kurs: Links für alle analysierten Dokumente aufbauen.
		if err := linker.RelinkCourse(&course); err != nil {
			log.Error("Relink after course create failed", zap.Uint("course_id", course.ID), zap.Error(err))
		}

		c.JSON(http.StatusCreated, course)
	})

	rg.PUT("/:id", func(c *gin.Context) {
		id := c.Param("id")

		var course models.Course
		if err := db.First(&course, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
				return
			}
			log.Error("DB error checking for course on PUT", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		var req struct {
			Name        *string  `json:"name"`
			Description *string  `json:"description"`
			Keywords    []string `json:"keywords"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if req.Name != nil {
			course.Name = *req.Name
		}
		if req.Description != nil {
			course.Description = *req.Description
		}

		keywordsChanged := false
		if req.Keywords != nil {
			keywords := services.Normalize(req.Keywords)
			if len(keywords) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "keywords must not be empty"})
				return
			}
			if err := course.SetKeywords(keywords); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid keywords"})
				return
			}
			keywordsChanged = true
		}

		if err := db.Save(&course).Error; err != nil {
			log.Error("DB error updating course", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update course"})
			return
		}

		// Geänderte Keywords machen alle Scores dieses Kurses ungültig.
		if keywordsChanged {
			if err := linker.RelinkCourse(&course); err != nil {
				log.Error("Relink after keyword change failed", zap.Uint("course_id", course.ID), zap.Error(err))
			}
		}

		c.JSON(http.StatusOK, course)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id := c.Param("id")

		var course models.Course
		if err := db.First(&course, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		// Kurs und zugehörige Link-Zeilen atomar entfernen.
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("course_id = ?", course.ID).Delete(&models.DocumentCourseLink{}).Error; err != nil {
				return err
			}
			return tx.Delete(&course).Error
		})
		if err != nil {
			log.Error("DB error deleting course", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete course"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "course deleted"})
	})
}

func setupDocumentRoutes(router *gin.Engine, cfg *config.Config, db *gorm.DB, analysis *services.AnalysisService, log *zap.Logger) {
	rg := router.Group("/documents")

	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.PdfDocument{}).Omit("extracted_text")
		if status := c.Query("status"); status != "" {
			query = query.Where("analysis_status = ?", status)
		}

		var docs []models.PdfDocument
		if err := query.Order("upload_date desc").Find(&docs).Error; err != nil {
			log.Error("Database query for documents failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, docs)
	})

	rg.GET("/stats", func(c *gin.Context) {
		stats, err := analysis.DocumentStats()
		if err != nil {
			log.Error("Document stats failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	rg.POST("/upload", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
			return
		}
		if !strings.HasSuffix(strings.ToLower(file.Filename), ".pdf") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is not a PDF"})
			return
		}

		// Duplikat-Check vor dem Speichern, sonst überschreibt der Upload die
		// Datei eines bestehenden Dokuments. Letzte Instanz bleibt der
		// Unique-Index auf filename beim Anlegen des Datensatzes.
		var existing models.PdfDocument
		if err := db.Where("filename = ?", filepath.Base(file.Filename)).First(&existing).Error; err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "a document with this filename already exists"})
			return
		}

		path := filepath.Join(cfg.UploadDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, path); err != nil {
			log.Error("Saving uploaded file failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
			return
		}

		go func() {
			doc, err := analysis.IngestFile(context.Background(), path)
			if errors.Is(err, services.ErrAlreadyClaimed) {
				log.Info("Async ingest skipped, document claimed elsewhere", zap.String("path", path))
				return
			}
			if err != nil {
				documentsFailedCounter.Inc()
				log.Warn("Async ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			documentsAnalyzedCounter.Inc()
			log.Info("Async ingest completed", zap.Uint("document_id", doc.ID))
		}()

		c.JSON(http.StatusAccepted, gin.H{"message": fmt.Sprintf("Analysis for %s triggered.", file.Filename)})
	})

	rg.POST("/ingest", func(c *gin.Context) {
		var req struct {
			Folder string `json:"folder" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if _, err := os.Stat(req.Folder); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "folder not found"})
			return
		}

		summary, err := analysis.IngestDir(c.Request.Context(), req.Folder)
		if err != nil {
			log.Error("Bulk ingest failed", zap.String("folder", req.Folder), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "bulk ingest failed"})
			return
		}
		documentsAnalyzedCounter.Add(float64(summary.Processed))
		documentsFailedCounter.Add(float64(summary.Failed))

		c.JSON(http.StatusOK, summary)
	})

	rg.POST("/:id/reanalyze", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
			return
		}

		doc, err := analysis.Reanalyze(c.Request.Context(), uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		go func() {
			err := analysis.AnalyzeDocument(context.Background(), doc)
			if errors.Is(err, services.ErrAlreadyClaimed) {
				log.Info("Re-analysis skipped, document claimed elsewhere", zap.Uint("document_id", doc.ID))
				return
			}
			if err != nil {
				documentsFailedCounter.Inc()
				log.Warn("Async re-analysis failed", zap.Uint("document_id", doc.ID), zap.Error(err))
				return
			}
			documentsAnalyzedCounter.Inc()
		}()

		c.JSON(http.StatusAccepted, gin.H{"message": fmt.Sprintf("Re-analysis for document %d triggered.", doc.ID)})
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id := c.Param("id")

		var doc models.PdfDocument
		if err := db.First(&doc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		// Dokument und zugehörige Link-Zeilen atomar entfernen.
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("document_id = ?", doc.ID).Delete(&models.DocumentCourseLink{}).Error; err != nil {
				return err
			}
			return tx.Delete(&doc).Error
		})
		if err != nil {
			log.Error("DB error deleting document", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
	})
}

func setupRecommendRoutes(router *gin.Engine, recommend *services.RecommendService) {
	router.POST("/recommend", func(c *gin.Context) {
		var req struct {
			Text string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		rec, err := recommend.Recommend(c.Request.Context(), req.Text)
		if err != nil {
			recommend.Logger.Error("Recommendation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "recommendation failed"})
			return
		}

		recommendationsCounter.Inc()
		c.JSON(http.StatusOK, rec)
	})
}

func setupLinkRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	router.GET("/links", func(c *gin.Context) {
		query := db.Model(&models.DocumentCourseLink{})

		if v := c.Query("document_id"); v != "" {
			query = query.Where("document_id = ?", v)
		}
		if v := c.Query("course_id"); v != "" {
			query = query.Where("course_id = ?", v)
		}
		if v := c.Query("min_score"); v != "" {
			minScore, err := strconv.ParseFloat(v, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_score"})
				return
			}
			query = query.Where("relevance_score >= ?", minScore)
		}

		var links []models.DocumentCourseLink
		if err := query.Order("relevance_score desc").Find(&links).Error; err != nil {
			log.Error("Database query for links failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, links)
	})
}

func setupHealthRoutes(router *gin.Engine, db *gorm.DB, ollamaClient *ollama.Client) {
	router.GET("/health", func(c *gin.Context) {
		status := gin.H{"database": "ok", "ollama": "ok"}
		httpStatus := http.StatusOK

		var count int64
		if err := db.Model(&models.Course{}).Count(&count).Error; err != nil {
			status["database"] = err.Error()
			httpStatus = http.StatusServiceUnavailable
		} else {
			status["courses"] = count
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		if err := ollamaClient.TestConnection(ctx); err != nil {
			// Ollama-Ausfall ist kein harter Fehler, der Fallback-Extractor übernimmt.
			status["ollama"] = err.Error()
		}

		c.JSON(httpStatus, status)
	})
}

// seedDefaultCourses legt den Beispiel-Kurskatalog an, falls er noch fehlt.
func seedDefaultCourses(db *gorm.DB, log *zap.Logger) {
	type seed struct {
		name        string
		description string
		keywords    []string
	}
	seeds := []seed{
		{"Android Development", "Developing Android applications with Java", []string{"mobile", "android", "java"}},
		{"iOS Development", "iOS applications with Swift", []string{"mobile", "ios", "swift"}},
		{"React Native", "Cross-platform mobile applications", []string{"mobile", "react native", "cross-platform"}},
		{"Data Science", "Data analysis and machine learning with Python", []string{"data science", "python", "data", "ml"}},
		{"Game Development", "Game programming with Unity", []string{"game", "unity", "c#"}},
		{"Web Development", "Websites with HTML, CSS, JavaScript", []string{"web", "html", "css", "javascript"}},
		{"Python Programming", "Python programming language fundamentals", []string{"python", "programming", "basics"}},
		{"Database Management", "SQL and database design", []string{"database", "sql", "design"}},
	}

	created := 0
	for _, s := range seeds {
		course := models.Course{Name: s.name, Description: s.description}
		if err := course.SetKeywords(services.Normalize(s.keywords)); err != nil {
			log.Warn("Seed course skipped", zap.String("name", s.name), zap.Error(err))
			continue
		}
		result := db.Where("name = ?", s.name).FirstOrCreate(&course)
		if result.Error != nil {
			log.Warn("Seed course failed", zap.String("name", s.name), zap.Error(result.Error))
			continue
		}
		created += int(result.RowsAffected)
	}
	if created > 0 {
		log.Info("Seeded default courses", zap.Int("count", created))
	}
}
