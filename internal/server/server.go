package server

import (
	"fmt"
	"net/http"

	"github.com/Tomlord1122/kanban-backend/internal/auth"
	"github.com/Tomlord1122/kanban-backend/internal/config"
	"github.com/Tomlord1122/kanban-backend/internal/database"
	"github.com/Tomlord1122/kanban-backend/internal/service"
)

type Server struct {
	port         int
	boardService service.BoardService
	db           database.Service
	auth         *auth.Resolver
}

func NewServer(cfg config.HTTPConfig, boardService service.BoardService, dbService database.Service, resolver *auth.Resolver) *http.Server {
	appServer := &Server{
		port:         cfg.Port,
		boardService: boardService,
		db:           dbService,
		auth:         resolver,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", appServer.port),
		Handler:      appServer.RegisterRoutes(),
		IdleTimeout:  cfg.IdleTimeout.Duration(),
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
	}

	return server
}
