package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"racetimer/internal/countdown"
	"racetimer/internal/handlers"
	"racetimer/internal/logger"
	"racetimer/internal/repository"
	"racetimer/internal/repository/db"
	"racetimer/internal/serial"
	"racetimer/internal/server"
	"racetimer/internal/service"
	"racetimer/internal/ws"

	"github.com/spf13/viper"
)

func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	// open DB
	sqlDB, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	hub := ws.NewHub(log)

	session := serial.NewSession(serial.Config{
		Port:     viper.GetString("serial.port"),
		BaudRate: viper.GetInt("serial.baud"),
	}, hub, repos.Races, log)

	registry := countdown.NewRegistry(viper.GetInt("countdown.duration"), hub)
	services := service.NewService(session, registry, repos)
	apiHandler := handlers.NewHandler(services, hub, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// connect to the timer box up front when configured to
	if viper.GetBool("serial.autoconnect") {
		if err := services.Hardware.Connect(ctx, viper.GetString("serial.port")); err != nil {
			log.Warnw("initial hardware connect failed", "err", err)
		}
	}

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, services, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetDefault("serial.baud", 115200)
	viper.SetDefault("countdown.duration", countdown.DefaultDuration)
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "racetimer.db")
		dbPath = "racetimer.db"
	}
	return db.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// release the serial port before the process exits
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := services.Hardware.Disconnect(shutdownCtx); err != nil {
		log.Warnw("hardware disconnect on shutdown failed", "err", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
