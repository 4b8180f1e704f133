// main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/b3yotch/spyder/agent"
	"github.com/b3yotch/spyder/config"
	"github.com/b3yotch/spyder/database"
	"github.com/b3yotch/spyder/fetcher"
	"github.com/b3yotch/spyder/handlers"
	"github.com/b3yotch/spyder/services"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN Main: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "spyder",
		Usage: "Federal registry document ingestion and query service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/config.yaml",
				Usage:   "path to the YAML configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "pipeline",
				Usage: "Run one ingestion pass and exit",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days-back",
						Usage: "override the lookback window in days",
					},
					&cli.StringFlag{
						Name:  "start-date",
						Usage: "explicit window start (YYYY-MM-DD)",
					},
					&cli.StringFlag{
						Name:  "end-date",
						Usage: "explicit window end (YYYY-MM-DD)",
					},
					&cli.BoolFlag{
						Name:  "full-refresh",
						Usage: "ignore the watermark and use the configured lookback",
					},
				},
				Action: runPipeline,
			},
			{
				Name:  "serve",
				Usage: "Start the HTTP API server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "port",
						Usage: "override the configured listen port",
					},
					&cli.BoolFlag{
						Name:  "skip-pipeline",
						Usage: "do not run the startup ingestion pass",
					},
				},
				Action: runServe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("FATAL Main: %v", err)
	}
}

// setup loads configuration and brings up the database layer shared by
// both commands. The caller owns the returned handle.
func setup(c *cli.Context) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.InitSchema(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return cfg, db, nil
}

func runPipeline(c *cli.Context) error {
	cfg, db, err := setup(c)
	if err != nil {
		return err
	}
	defer db.Close()

	store := database.NewStore(db)
	client := fetcher.NewClient(cfg.Registry, cfg.Pipeline.RawDataDir)
	watermark := services.NewWatermarkTracker(cfg.Pipeline.WatermarkFile)
	pipeline := services.NewPipeline(store, client, watermark, cfg.Pipeline)

	opts := services.RunOptions{
		DaysBack:    c.Int("days-back"),
		StartDate:   c.String("start-date"),
		EndDate:     c.String("end-date"),
		Incremental: !c.Bool("full-refresh"),
	}

	start := time.Now()
	if err := pipeline.Run(context.Background(), opts); err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	log.Printf("INFO Main: pipeline run completed in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func runServe(c *cli.Context) error {
	cfg, db, err := setup(c)
	if err != nil {
		return err
	}
	defer db.Close()

	store := database.NewStore(db)
	client := fetcher.NewClient(cfg.Registry, cfg.Pipeline.RawDataDir)
	watermark := services.NewWatermarkTracker(cfg.Pipeline.WatermarkFile)
	pipeline := services.NewPipeline(store, client, watermark, cfg.Pipeline)

	handler := &handlers.Handler{
		Store:    store,
		Pipeline: pipeline,
	}

	qa, err := agent.New(cfg.Agent, store)
	switch {
	case err == nil:
		handler.Agent = qa
	case err == agent.ErrNoAPIKey:
		log.Println("WARN Main: no API key configured, /api/ask is disabled")
	default:
		return fmt.Errorf("failed to set up agent: %w", err)
	}

	// Catch up on anything published since the last run, without holding
	// the API back while it happens.
	if !c.Bool("skip-pipeline") {
		go func() {
			if err := pipeline.Run(context.Background(), services.RunOptions{Incremental: true}); err != nil {
				log.Printf("ERROR Main: Startup pipeline run failed: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	port := c.String("port")
	if port == "" {
		port = cfg.Server.Port
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("INFO Main: listening on port %s", port)
	return srv.ListenAndServe()
}
