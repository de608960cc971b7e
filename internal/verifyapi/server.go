// Package verifyapi serves the verification endpoint the stamped QR marker
// points at: given a fingerprint, report whether the archive holds a
// matching record.
package verifyapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turoarchive/turoarchive/internal/models"
	"github.com/turoarchive/turoarchive/internal/remote"
)

const cacheKeyPrefix = "verified:"

type cacheEntry struct {
	record   *models.DocumentRecord
	found    bool
	storedAt time.Time
}

// Server answers verification lookups, caching recent answers so repeated
// scans of the same document do not hammer the archive.
type Server struct {
	store  remote.Store
	logger *slog.Logger
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds a Server with the given lookup cache TTL.
func New(store remote.Store, logger *slog.Logger, cacheTTL time.Duration) *Server {
	return &Server{
		store:  store,
		logger: logger,
		ttl:    cacheTTL,
		cache:  make(map[string]cacheEntry),
	}
}

// Router wires the HTTP routes. Both the API path and the bare QR locator
// path resolve the same handler.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/verify/:fingerprint", s.handleVerify)
	router.GET("/api/verify/:fingerprint", s.handleVerify)
	return router
}

func (s *Server) handleVerify(c *gin.Context) {
	fp := c.Param("fingerprint")
	if len(fp) != 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fingerprint must be a 64-character hex digest"})
		return
	}

	entry, ok := s.cached(fp)
	if !ok {
		record, err := s.store.QueryByFingerprint(c.Request.Context(), fp)
		if err != nil {
			s.logger.Error("Verification lookup failed.", "fingerprint", fp, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive lookup failed"})
			return
		}
		entry = cacheEntry{record: record, found: record != nil, storedAt: time.Now()}
		// Only positive answers are cached: a document archived moments
		// after a scan must not keep answering not-found for a full TTL.
		if entry.found {
			s.storeCached(fp, entry)
		}
	}

	if !entry.found {
		c.JSON(http.StatusNotFound, gin.H{
			"verified":    false,
			"fingerprint": fp,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verified":    true,
		"fingerprint": fp,
		"record":      entry.record,
		"checkedAt":   entry.storedAt,
	})
}

func (s *Server) cached(fp string) (cacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[cacheKeyPrefix+fp]
	if !ok || time.Since(entry.storedAt) > s.ttl {
		return cacheEntry{}, false
	}
	return entry, true
}

func (s *Server) storeCached(fp string, entry cacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[cacheKeyPrefix+fp] = entry
}
