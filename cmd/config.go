package cmd

import "github.com/spf13/viper"

func settingDefaultConfig() {
	// Enable automatic environment variable binding
	viper.AutomaticEnv()

	// Map environment variables to Viper keys for the database
	viper.BindEnv("db.driver", "DB_DRIVER")
	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.db", "POSTGRES_DB")
	viper.BindEnv("sqlite.path", "SQLITE_PATH")

	// Map environment variables to Viper keys for MinIO and Server
	viper.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("minio.use_ssl", "MINIO_USE_SSL")
	viper.BindEnv("minio.source_bucket", "MINIO_SOURCE_BUCKET")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")

	// Map environment variables to Viper keys for generation providers
	viper.BindEnv("provider.name", "PROVIDER_NAME")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("gemini.api_keys", "GEMINI_API_KEYS")
	viper.BindEnv("gemini.model", "GEMINI_MODEL")
	viper.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	viper.BindEnv("ollama.url", "OLLAMA_URL")
	viper.BindEnv("ollama.model", "OLLAMA_MODEL")

	// Map environment variables to Viper keys for the worker and pipeline
	viper.BindEnv("worker.poll_interval", "WORKER_POLL_INTERVAL")
	viper.BindEnv("generation.batch_budget", "GENERATION_BATCH_BUDGET")
	viper.BindEnv("generation.max_history_titles", "GENERATION_MAX_HISTORY_TITLES")
	viper.BindEnv("generation.max_source_chars", "GENERATION_MAX_SOURCE_CHARS")
	viper.BindEnv("history.topic_limit", "TOPIC_HISTORY_FETCH_LIMIT")
	viper.BindEnv("history.category_limit", "CATEGORY_HISTORY_FETCH_LIMIT")

	// Set default values for the database
	viper.SetDefault("db.driver", "postgres")
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.db", "quizforge")
	viper.SetDefault("sqlite.path", "quizforge.db")

	// Set default values for MinIO and Server. The endpoint has no
	// default: an unset MINIO_ENDPOINT means no object store, and the
	// worker falls back to its in-memory store.
	viper.SetDefault("minio.access_key", "minioadmin")
	viper.SetDefault("minio.secret_key", "minioadmin")
	viper.SetDefault("minio.use_ssl", false)
	viper.SetDefault("minio.source_bucket", "source-material")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdown_timeout", "5s")

	// Set default values for generation providers
	viper.SetDefault("provider.name", "gemini")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("ollama.url", "http://ollama:11434/api")
	viper.SetDefault("ollama.model", "llama3")

	// Set default values for the worker and pipeline
	viper.SetDefault("worker.poll_interval", "2s")
	viper.SetDefault("generation.batch_budget", 3)
	viper.SetDefault("generation.max_history_titles", 200)
	viper.SetDefault("generation.max_source_chars", 60000)
	viper.SetDefault("history.topic_limit", 300)
	viper.SetDefault("history.category_limit", 100)
}
