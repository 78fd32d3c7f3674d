package livehttp

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"quorum/internal/analysis/indicator"
	"quorum/internal/engine"
	"quorum/internal/logger"
	"quorum/internal/pkg/symbol"
	"quorum/internal/position"
	"quorum/internal/stats"
	"quorum/internal/store/gormstore"

	"github.com/gin-gonic/gin"
)

// LiveEngine is the part of the engine the HTTP surface reads from.
type LiveEngine interface {
	Status() engine.Status
	OpenPositions() []position.Position
	ClosedPositions() []position.Position
	PairStatistics(symbol string) stats.PairStatistics
	AllStatistics() []stats.PairStatistics
	ManualClose(ctx context.Context, symbol string) (position.CloseResult, error)
	Evaluate(ctx context.Context, symbol string) (engine.Evaluation, error)
}

// History is optional persisted state. Without it history comes from the in-memory archive.
type History interface {
	ListClosedPositions(ctx context.Context, symbol string, limit int) ([]position.Position, error)
	LoadEvents(ctx context.Context, since time.Time, limit int) ([]gormstore.EventRecord, error)
}

type Router struct {
	engine  LiveEngine
	history History
	hub     *Hub
	origins originPolicy
}

func NewRouter(eng LiveEngine, history History, hub *Hub) *Router {
	return &Router{engine: eng, history: history, hub: hub, origins: newOriginPolicy(nil)}
}

// AllowOrigins lets browsers on the given origins (scheme://host[:port]) call the API.
func (r *Router) AllowOrigins(origins ...string) *Router {
	r.origins = newOriginPolicy(origins)
	return r
}

// Register mounts the live routes under group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.Use(r.origins.middleware())
	group.GET("/status", r.handleStatus)
	group.GET("/positions", r.handlePositions)
	group.GET("/positions/history", r.handleHistory)
	group.POST("/positions/:symbol/close", r.handleClose)
	group.GET("/stats", r.handleStats)
	group.GET("/stats/:symbol", r.handlePairStats)
	group.GET("/evaluate/:symbol", r.handleEvaluate)
	group.GET("/events", r.handleEvents)
	if r.hub != nil {
		group.GET("/ws", r.hub.serveWS(r.origins.Allow))
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.engine.Status())
}

func (r *Router) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": r.engine.OpenPositions()})
}

func (r *Router) handleHistory(c *gin.Context) {
	limit := parseLimit(c, 100, 500)
	sym := ""
	if raw := strings.TrimSpace(c.Query("symbol")); raw != "" {
		sym = symbol.Normalize(raw)
	}
	if r.history != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		list, err := r.history.ListClosedPositions(ctx, sym, limit)
		if err != nil {
			logger.Errorf("[api] position history failed ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"positions": list, "source": "store"})
		return
	}
	archive := r.engine.ClosedPositions()
	out := make([]position.Position, 0, len(archive))
	for i := len(archive) - 1; i >= 0 && len(out) < limit; i-- {
		if sym != "" && archive[i].Symbol != sym {
			continue
		}
		out = append(out, archive[i])
	}
	c.JSON(http.StatusOK, gin.H{"positions": out, "source": "memory"})
}

func (r *Router) handleClose(c *gin.Context) {
	sym := symbol.Normalize(c.Param("symbol"))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	res, err := r.engine.ManualClose(c.Request.Context(), sym)
	if err != nil {
		logger.Errorf("[api] manual close %s failed ip=%s err=%v", sym, c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] manual close %s status=%s ip=%s", sym, res.Status, c.ClientIP())
	body := gin.H{"symbol": sym, "status": res.Status}
	if res.Status == position.CloseClosed {
		body["position"] = res.Position
	}
	c.JSON(http.StatusOK, body)
}

func (r *Router) handleStats(c *gin.Context) {
	st := r.engine.Status()
	c.JSON(http.StatusOK, gin.H{
		"overall": st.Overall,
		"pairs":   r.engine.AllStatistics(),
		"risk":    st.Risk,
	})
}

func (r *Router) handlePairStats(c *gin.Context) {
	sym := symbol.Normalize(c.Param("symbol"))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	ps := r.engine.PairStatistics(sym)
	c.JSON(http.StatusOK, gin.H{"stats": ps, "win_rate": ps.WinRate()})
}

func (r *Router) handleEvaluate(c *gin.Context) {
	sym := symbol.Normalize(c.Param("symbol"))
	if !slices.Contains(r.engine.Status().Symbols, sym) {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not configured: " + sym})
		return
	}
	ev, err := r.engine.Evaluate(c.Request.Context(), sym)
	if err != nil {
		var short *indicator.InsufficientDataError
		if errors.As(err, &short) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event store disabled"})
		return
	}
	var since time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be unix millis"})
			return
		}
		since = time.UnixMilli(ms)
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	events, err := r.history.LoadEvents(ctx, since, parseLimit(c, 200, 1000))
	if err != nil {
		logger.Errorf("[api] events failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func parseLimit(c *gin.Context, def, maxLimit int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
