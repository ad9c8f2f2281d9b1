// Package middleware provides gin middlewares shared by all routes.
package middleware

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// RequestIDHeader carries the request id between client and server.
const RequestIDHeader = "X-Request-ID"

// GetLogger returns the application logger configured for the environment.
func GetLogger(config configpkg.Config) zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	var (
		output   io.Writer = os.Stderr
		logLevel           = zerolog.InfoLevel // default to INFO
	)

	log := zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Logger()

	if config.Environment == "development" {
		log = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(zerolog.TraceLevel).
			With().
			Caller().
			Logger()
	}

	return log
}

// RequestLogger puts a request scoped logger into the request context and
// logs every request once it is served.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.Request.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set(RequestIDHeader, requestID)
		}

		c.Writer.Header().Set(RequestIDHeader, requestID)

		l := logger.With().Str("request_id", requestID).Logger()

		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		defer func() {
			if panicVal := recover(); panicVal != nil {
				l.Error().Msgf("panic message: %v", panicVal)
				c.AbortWithStatus(http.StatusInternalServerError)
			}

			latency := time.Since(start)

			var logEvent *zerolog.Event
			if c.Writer.Status() >= 500 {
				logEvent = l.Error()
			} else {
				logEvent = l.Info()
			}

			logEvent.
				Str("client_ip", c.ClientIP()).
				Str("method", c.Request.Method).
				Int("status_code", c.Writer.Status()).
				Str("path", c.Request.URL.Path).
				Str("latency", latency.String()).
				Msg(c.Errors.ByType(gin.ErrorTypePrivate).String())
		}()

		// Process request
		c.Next()
	}
}
