package cmd

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"quizforge/src/provider"
	"quizforge/src/question"
	"quizforge/src/queue"
	"quizforge/src/sourcestore"
)

// openDatabase connects to the configured store and runs migrations. The
// driver also decides the ledger's claim strategy downstream.
func openDatabase() (*gorm.DB, *queue.Ledger, *question.QuestionService, error) {
	var dialector gorm.Dialector
	switch driver := viper.GetString("db.driver"); driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			viper.GetString("postgres.host"),
			viper.GetString("postgres.user"),
			viper.GetString("postgres.password"),
			viper.GetString("postgres.db"),
			viper.GetString("postgres.port"),
		)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(viper.GetString("sqlite.path"))
	default:
		return nil, nil, nil, fmt.Errorf("unknown db driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	ledger := queue.NewLedger(db)
	if err := ledger.Migrate(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to migrate jobs table: %v", err)
	}
	questions, err := question.NewQuestionService(db)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := questions.Migrate(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to migrate question tables: %v", err)
	}
	return db, ledger, questions, nil
}

// buildSourceStore returns the configured object store, or nil when no
// endpoint is set (jobs without source refs still work).
func buildSourceStore() (*sourcestore.MinioStore, error) {
	endpoint := viper.GetString("minio.endpoint")
	if endpoint == "" {
		return nil, nil
	}
	return sourcestore.NewMinioStore(
		endpoint,
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
		viper.GetString("minio.source_bucket"),
	)
}

// buildGateway selects the active generation provider by name.
func buildGateway() (provider.Gateway, error) {
	registry := provider.NewRegistry()

	registry.Register("gemini", func() (provider.Gateway, error) {
		return provider.NewGemini(provider.GeminiConfig{
			BaseURL: viper.GetString("gemini.base_url"),
			Model:   viper.GetString("gemini.model"),
			APIKeys: geminiKeys(),
		})
	})
	registry.Register("ollama", func() (provider.Gateway, error) {
		return provider.NewOllama(provider.OllamaConfig{
			BaseURL: viper.GetString("ollama.url"),
			Model:   viper.GetString("ollama.model"),
		})
	})

	return registry.Get(viper.GetString("provider.name"))
}

// geminiKeys merges the single-key and pool-style env settings.
func geminiKeys() []string {
	var keys []string
	if key := viper.GetString("gemini.api_key"); key != "" {
		keys = append(keys, key)
	}
	for _, key := range strings.Split(viper.GetString("gemini.api_keys"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
