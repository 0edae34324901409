package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dolt-y/deepseek-ai-h5/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chat-service",
	Short: "DeepSeek chat backend for the H5 and mini-program clients",
	Long: `chat-service serves the /api/v1/ai chat API: multi-turn sessions stored in
Postgres, streamed replies over SSE, image OCR, speech-to-text and reply
regeneration against any OpenAI-compatible model endpoint.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
