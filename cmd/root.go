package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quizforge",
	Short: "Quiz question generation pipeline",
	Long: `Quizforge turns source material into quiz questions through a durable
job queue: the serve command exposes the admin API for enqueueing and
monitoring generation jobs, the worker command claims and executes them.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
