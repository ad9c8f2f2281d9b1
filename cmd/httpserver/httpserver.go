// Package httpserver manages server creation and api routing.
package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/ledgerdelivery"
	"github.com/go-petr/pet-ledger/internal/ledgerservice"
	"github.com/go-petr/pet-ledger/internal/ledgerstore"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
)

// Server holds the ledger store, handlers router and configuration.
type Server struct {
	Store  ledgerstore.Store
	Engine *gin.Engine
	Config configpkg.Config
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
func New(store ledgerstore.Store, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	ledgerService := ledgerservice.New(store, ledgerservice.Config{
		DefaultListLimit: config.ListDefaultLimit,
		MaxListLimit:     config.ListMaxLimit,
	})

	ledgerHandler := ledgerdelivery.NewHandler(ledgerService)

	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	ledgerHandler.Register(engine)

	if err := ledgerdelivery.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("cannot register validators: %w", err)
	}

	server := &Server{
		Store:  store,
		Engine: engine,
		Config: config,
	}

	return server, nil
}
