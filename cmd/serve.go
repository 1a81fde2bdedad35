package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	v1 "quizforge/handler/http/v1"
	"quizforge/src/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API server",
	Long:  `The serve command starts the HTTP server for enqueueing and monitoring generation jobs.`,
	Run:   RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	db, ledger, questions, err := openDatabase()
	if err != nil {
		log.Error(err, "failed to initialize database")
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "failed to get underlying *sql.DB")
		return
	}
	defer sqlDB.Close()

	store, err := buildSourceStore()
	if err != nil {
		log.Error(err, "failed to initialize object store")
		return
	}

	// Setup gin router
	r := gin.Default()
	var pinger v1.Pinger
	if store != nil {
		pinger = store
	}
	v1.NewHandler(ledger, questions, db, pinger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "failed to start server")
			os.Exit(1)
		}
	}()
	log.Info("server started", "port", viper.GetString("server.port"))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	log.Info("server exited")
}
