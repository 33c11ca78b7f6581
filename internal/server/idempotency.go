package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the first response produced under an Idempotency-Key
// for a day. The key is scoped per identity and method+path, so distinct
// operations never collide on a shared key.
func (s *Server) Idempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		if key == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		rc := requestContext(c)
		cacheKey := "idem:" + rc.Identity + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		ctx := c.Request.Context()
		if raw, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached cachedResponse
			if json.Unmarshal(raw, &cached) == nil {
				c.Data(cached.Status, "application/json", cached.Body)
				c.Abort()
				return
			}
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			return
		}

		raw, err := json.Marshal(cachedResponse{
			Status: writer.Status(),
			Body:   writer.buf.Bytes(),
		})
		if err != nil {
			return
		}
		if err := s.redis.Set(ctx, cacheKey, raw, idempotencyTTL).Err(); err != nil {
			s.log.Warn("idempotency cache write failed", zap.Error(err))
		}
	}
}
