package cmd

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"

	"github.com/jjenkins/tenders/internal/handlers"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tender index web server",
	Long:  `Start a read-only web view of the stored tenders and the fetch history.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Use PORT env var if set, otherwise use flag value
		if envPort := os.Getenv("PORT"); envPort != "" && port == "8080" {
			port = envPort
		}

		cfg := loadConfig()
		validate(cfg.ValidateDatabase())

		env := openEnv(cfg)
		defer env.db.Close()

		if err := env.ensureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare database: %v", err)
		}

		app := newApp(env)

		log.Printf("Starting server on :%s", port)
		if err := app.Listen(":" + port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on")
}

// newApp builds the web application on top of the opened stores
func newApp(env *storeEnv) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Tender Index",
	})

	app.Use(logger.New())

	app.Get("/", handlers.HomeHandler(env.tenders, env.fetches, env.metrics))

	app.Get("/tenders", handlers.TendersHandler(env.tenders))
	app.Get("/tenders/:code", handlers.TenderDetailHandler(env.tenders))

	app.Get("/fetches", handlers.FetchesHandler(env.fetches))

	return app
}
