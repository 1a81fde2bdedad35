package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"quizforge/src/generation"
	"quizforge/src/history"
	"quizforge/src/log"
	"quizforge/src/sourcestore"
	"quizforge/src/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background generation worker",
	Long: `The worker command starts a loop that claims pending generation jobs
from the shared ledger and executes them one at a time. Run more worker
processes against the same database to scale out.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	db, ledger, questions, err := openDatabase()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var store sourcestore.Store
	minioStore, err := buildSourceStore()
	if err != nil {
		return err
	}
	if minioStore != nil {
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			return err
		}
		store = minioStore
	} else {
		store = sourcestore.NewMemoryStore()
	}

	gateway, err := buildGateway()
	if err != nil {
		return err
	}
	log.Info("generation provider selected", "provider", gateway.Name())

	pipeline := generation.NewPipeline(
		ledger,
		questions,
		history.NewResolver(db),
		store,
		gateway,
		generation.Config{
			BatchBudget:          viper.GetInt("generation.batch_budget"),
			MaxHistoryTitles:     viper.GetInt("generation.max_history_titles"),
			MaxSourceChars:       viper.GetInt("generation.max_source_chars"),
			HistoryTopicLimit:    viper.GetInt("history.topic_limit"),
			HistoryCategoryLimit: viper.GetInt("history.category_limit"),
		},
	)

	w := worker.New(ledger, pipeline, viper.GetDuration("worker.poll_interval"))
	w.Start(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down worker")
	w.Stop()
	log.Info("worker exited")
	return nil
}
