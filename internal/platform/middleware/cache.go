package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// CacheStore is a response cache backend.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryCacheStore is a thread-safe in-memory CacheStore with lazy expiration.
type InMemoryCacheStore struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
}

func NewInMemoryCacheStore() *InMemoryCacheStore {
	return &InMemoryCacheStore{
		entries: make(map[string]*cacheEntry),
	}
}

func (s *InMemoryCacheStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (s *InMemoryCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &cacheEntry{
		data:      value,
		expiresAt: time.Now().Add(ttl),
	}
}

func (s *InMemoryCacheStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *InMemoryCacheStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*cacheEntry)
}

// StartCleanup periodically removes expired entries until ctx is cancelled.
func (s *InMemoryCacheStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				now := time.Now()
				for k, v := range s.entries {
					if now.After(v.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}

// bufferedResponseWriter captures the response so it can be cached or
// hashed before it reaches the client.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        *bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{
		writer:     w,
		buf:        &bytes.Buffer{},
		statusCode: http.StatusOK,
	}
}

func (w *bufferedResponseWriter) Header() http.Header {
	return w.writer.Header()
}

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *bufferedResponseWriter) WriteHeader(code int) {
	w.statusCode = code
}

func (w *bufferedResponseWriter) Flush() {}

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() > 0 {
		_, err := w.writer.Write(w.buf.Bytes())
		return err
	}
	return nil
}

// cachedResponse is the stored form of a response.
type cachedResponse struct {
	ContentType        string `json:"content_type"`
	ContentDisposition string `json:"content_disposition,omitempty"`
	Body               []byte `json:"body"`
}

// ResponseCache caches successful GET responses keyed by path and query for
// ttl. Cached bodies are replayed with their content type and an ETag;
// If-None-Match requests that match get 304.
func ResponseCache(store CacheStore, ttl time.Duration) echo.MiddlewareFunc {
	maxAge := int(ttl.Seconds())
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || req.Header.Get("Cache-Control") == "no-cache" {
				return next(c)
			}

			ctx := req.Context()
			key := cacheKey(req.URL.Path, req.URL.RawQuery)
			res := c.Response()

			if data, ok := store.Get(ctx, key); ok {
				var cached cachedResponse
				if err := json.Unmarshal(data, &cached); err == nil {
					etag := computeETag(cached.Body)
					res.Header().Set("X-Cache", "HIT")
					res.Header().Set("ETag", etag)
					res.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAge))
					if etagMatch(req.Header.Get("If-None-Match"), etag) {
						return c.NoContent(http.StatusNotModified)
					}
					if cached.ContentDisposition != "" {
						res.Header().Set(echo.HeaderContentDisposition, cached.ContentDisposition)
					}
					return c.Blob(http.StatusOK, cached.ContentType, cached.Body)
				}
				store.Delete(ctx, key)
			}

			origWriter := res.Writer
			buf := newBufferedResponseWriter(origWriter)
			res.Writer = buf

			if err := next(c); err != nil {
				res.Writer = origWriter
				return err
			}
			res.Writer = origWriter

			if buf.statusCode == http.StatusOK {
				body := buf.buf.Bytes()
				data, err := json.Marshal(cachedResponse{
					ContentType:        res.Header().Get(echo.HeaderContentType),
					ContentDisposition: res.Header().Get(echo.HeaderContentDisposition),
					Body:               body,
				})
				if err == nil {
					store.Set(ctx, key, data, ttl)
				}
				res.Header().Set("ETag", computeETag(body))
				res.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAge))
			}

			res.Header().Set("X-Cache", "MISS")
			return buf.flushTo()
		}
	}
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`W/"%x"`, sum[:12])
}

// cacheKey sorts query parameters so equivalent report filters share an
// entry.
func cacheKey(path, rawQuery string) string {
	if rawQuery == "" {
		return "GET:" + path
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "GET:" + path + "?" + rawQuery
	}
	return "GET:" + path + "?" + q.Encode()
}

// InvalidateOnWrite clears store after any successful mutating request.
func InvalidateOnWrite(store CacheStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return err
			}
			if err == nil && c.Response().Status < 400 {
				store.Clear(c.Request().Context())
			}
			return err
		}
	}
}

// etagMatch checks an If-None-Match header value against etag. Supports
// comma separated lists and the wildcard "*".
func etagMatch(headerVal, etag string) bool {
	headerVal = strings.TrimSpace(headerVal)
	if headerVal == "" {
		return false
	}
	if headerVal == "*" {
		return true
	}
	for _, candidate := range strings.Split(headerVal, ",") {
		if stripWeakPrefix(strings.TrimSpace(candidate)) == stripWeakPrefix(etag) {
			return true
		}
	}
	return false
}

func stripWeakPrefix(etag string) string {
	return strings.TrimPrefix(etag, "W/")
}
