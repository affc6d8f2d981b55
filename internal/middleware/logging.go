// Package middleware contains the Gin middlewares.
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"comerse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// bodyLogWriter captures the response body alongside the real writer.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestLogger logs each request with latency, status, and bodies. Streaming
// responses are skipped: buffering an SSE stream would defeat the streaming
// and blow up the log line.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		streaming := c.GetHeader("Accept") == "text/event-stream" ||
			strings.HasPrefix(c.Request.URL.Path, "/api/v1/chat")
		var blw *bodyLogWriter
		if !streaming {
			blw = &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
			c.Writer = blw
		}

		c.Next()

		latency := time.Since(startTime)
		fields := []interface{}{
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		}
		if !streaming {
			fields = append(fields,
				"requestBody", string(requestBody),
				"responseBody", blw.body.String(),
			)
		}
		log.Infow("HTTP Request Log", fields...)
	}
}
