package main

import (
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/go-petr/pet-ledger/cmd/httpserver"
	"github.com/go-petr/pet-ledger/internal/ledgerrepo"
	"github.com/go-petr/pet-ledger/internal/ledgerstore"
	"github.com/go-petr/pet-ledger/internal/memstore"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.GetLogger(config)

	var store ledgerstore.Store

	switch config.DBDriver {
	case configpkg.DriverMemory:
		logger.Warn().Msg("using in-memory store, state is lost on exit")

		store = memstore.New()
	default:
		conn, err := dbpkg.Setup(config.DBDriver, config.DBSource)
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot connect to db")
		}
		defer conn.Close()

		store = ledgerrepo.NewRepoPGS(conn)
	}

	if config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := httpserver.New(store, logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	logger.Info().Str("address", config.ServerAddress).Str("driver", config.DBDriver).Msg("starting server")

	if err := server.Engine.Run(config.ServerAddress); err != nil {
		logger.Fatal().Err(err).Msg("cannot start server")
	}
}
