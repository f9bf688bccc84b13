package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

// Server exposes health, control status and metrics over HTTP.
// Every request is answered by asking the master actor.
type Server struct {
	port          uint
	httpLog       bool
	rootContext   *actor.RootContext
	masterActor   *actor.PID
	healthTimeout time.Duration
	statusTimeout time.Duration
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID) *http.Server {
	s := &Server{
		port:          cfg.Port,
		httpLog:       cfg.HttpLog,
		rootContext:   rootContext,
		masterActor:   masterActor,
		healthTimeout: 10 * time.Second,
		statusTimeout: 5 * time.Second,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
