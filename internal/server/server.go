package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"grocermap/internal"
	"grocermap/internal/catalog"
	"grocermap/internal/pipeline"
)

const minSearchQuery = 2

type Handler struct {
	orders    *pipeline.OrderService
	maxUpload int64
}

func NewHandler(orders *pipeline.OrderService, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{orders: orders, maxUpload: maxUpload}
}

// NewRouter wires the handler behind recovery, request logging and CORS.
func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	if cfg, ok := corsConfig(allowedOrigins); ok {
		router.Use(cors.New(cfg))
	}
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)

	cat := r.Group("/catalog")
	cat.GET("", h.catalogItems)
	cat.GET("/stats", h.catalogStats)
	cat.GET("/summary", h.catalogSummary)
	cat.GET("/search", h.catalogSearch)
	cat.GET("/items/:code", h.catalogItem)
	cat.POST("/reload", h.catalogReload)

	r.POST("/orders", h.processText)
	r.POST("/upload-order-file", h.uploadOrderFile)
	r.GET("/download-csv/:filename", h.download)
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func fail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// index writes 503 and returns false while no catalog is loaded.
func (h *Handler) index(c *gin.Context) (*catalog.Index, bool) {
	idx, err := h.orders.Engine().Index()
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "Catalog not loaded")
		return nil, false
	}
	return idx, true
}

func (h *Handler) health(c *gin.Context) {
	engine := h.orders.Engine()
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"catalog_loaded":   engine.IsLoaded(),
		"embeddings_ready": engine.IsPrepared(),
		"embedder":         engine.EmbedderName(),
		"timestamp":        now(),
	})
}

func (h *Handler) catalogItems(c *gin.Context) {
	idx, ok := h.index(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, idx.Items())
}

func (h *Handler) catalogStats(c *gin.Context) {
	idx, ok := h.index(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"catalog_loaded": true, "stats": idx.Stats(), "timestamp": now()})
}

func (h *Handler) catalogSummary(c *gin.Context) {
	idx, ok := h.index(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"catalog_loaded": true, "summary": idx.Summary(), "timestamp": now()})
}

func (h *Handler) catalogSearch(c *gin.Context) {
	idx, ok := h.index(c)
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("query"))
	if len([]rune(query)) < minSearchQuery {
		fail(c, http.StatusBadRequest, "Search query must be at least 2 characters")
		return
	}
	limit := parseInt(c.Query("limit"), 10)
	results := idx.Search(query, limit)
	c.JSON(http.StatusOK, gin.H{
		"query":       query,
		"results":     results,
		"total_found": len(results),
		"limit":       limit,
	})
}

func (h *Handler) catalogItem(c *gin.Context) {
	idx, ok := h.index(c)
	if !ok {
		return
	}
	item, found := idx.LookupByCode(c.Param("code"))
	if !found {
		fail(c, http.StatusNotFound, "Item not found")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) catalogReload(c *gin.Context) {
	idx, err := h.orders.Engine().Reload(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		var catErr *catalog.CatalogError
		if errors.As(err, &catErr) {
			status = http.StatusServiceUnavailable
		}
		fail(c, status, "Error reloading catalog: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Catalog reloaded successfully",
		"total_items": idx.Len(),
		"timestamp":   now(),
	})
}

type orderRequest struct {
	TextContent string `json:"text_content" binding:"required"`
}

func (h *Handler) processText(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "text_content is required")
		return
	}
	order, err := h.orders.Process(c.Request.Context(), req.TextContent)
	h.respondOrder(c, order, err)
}

func (h *Handler) uploadOrderFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "File exceeds "+strconv.FormatInt(h.maxUpload, 10)+" bytes")
			return
		}
		fail(c, http.StatusBadRequest, "No file provided")
		return
	}
	kind, err := pipeline.KindFromFilename(header.Filename)
	if err != nil {
		fail(c, http.StatusBadRequest, "Only .txt, .html, .eml, .pdf and .xlsx files are supported")
		return
	}
	f, err := header.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "Could not read file")
		return
	}
	defer f.Close()
	blob, err := io.ReadAll(f)
	if err != nil {
		fail(c, http.StatusBadRequest, "Could not read file")
		return
	}

	order, err := h.orders.ProcessFile(c.Request.Context(), kind, blob)
	h.respondOrder(c, order, err)
}

func (h *Handler) respondOrder(c *gin.Context, order internal.ProcessedOrder, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, order)
	case errors.Is(err, pipeline.ErrCatalogNotLoaded):
		fail(c, http.StatusServiceUnavailable, "Catalog not loaded")
	case errors.Is(err, pipeline.ErrUnreadableInput):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, "Error processing order: "+err.Error())
	}
}

func (h *Handler) download(c *gin.Context) {
	exporter := h.orders.Exporter()
	if exporter == nil {
		fail(c, http.StatusNotFound, "CSV file not found")
		return
	}
	name := c.Param("filename")
	path, err := exporter.Open(name)
	if err != nil {
		fail(c, http.StatusNotFound, "CSV file not found")
		return
	}
	c.FileAttachment(path, name)
}

// corsConfig allows the configured origins with credentials. A "*" entry
// allows every origin and drops credentials.
func corsConfig(allowed []string) (cors.Config, bool) {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(allowed, "*") {
		cfg.AllowAllOrigins = true
		return cfg, true
	}
	for _, origin := range allowed {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			log.Printf("server: ignoring cors origin=%q", origin)
			continue
		}
		cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
	}
	cfg.AllowCredentials = true
	return cfg, len(cfg.AllowOrigins) > 0
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
