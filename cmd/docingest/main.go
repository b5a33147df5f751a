package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/docingest/api"
	"github.com/gcbaptista/docingest/internal/engine"
	"github.com/gcbaptista/docingest/internal/progress"
)

func main() {
	var (
		help        = flag.Bool("help", false, "Show help message")
		version     = flag.Bool("version", false, "Show version information")
		port        = flag.String("port", "8080", "Port to run the server on")
		dataDir     = flag.String("data-dir", "./docingest_data", "Directory to store index data")
		ingestIndex = flag.String("ingest-index", "", "Run a one-shot batch ingest into this index instead of starting the server")
		ingestFile  = flag.String("ingest-file", "-", "JSON document array to ingest; \"-\" reads from stdin")
	)

	flag.Parse()

	if *help {
		fmt.Printf("docingest - a document ingestion and transform engine\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s                                       # Start server on default port 8080\n", os.Args[0])
		fmt.Printf("  %s --port 9000                           # Start server on port 9000\n", os.Args[0])
		fmt.Printf("  %s --data-dir /tmp/docingest              # Use custom data directory\n", os.Args[0])
		fmt.Printf("  %s --ingest-index products < batch.json   # Batch-ingest a file into an existing index, then exit\n", os.Args[0])
		return
	}

	if *version {
		fmt.Printf("docingest v1.0.0\n")
		return
	}

	log.Printf("Using data directory: %s", *dataDir)
	ingestEngine, err := engine.NewEngine(*dataDir)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer ingestEngine.Stop()

	if *ingestIndex != "" {
		runBatchIngest(ingestEngine, *ingestIndex, *ingestFile)
		return
	}

	runServer(ingestEngine, *port)
}

// runBatchIngest drives a single synchronous ingestion of a JSON
// document array into an existing index, for offline/scripted use
// outside the HTTP API.
func runBatchIngest(ingestEngine *engine.Engine, indexName, filePath string) {
	input := os.Stdin
	if filePath != "-" {
		f, err := os.Open(filePath)
		if err != nil {
			log.Fatalf("Failed to open ingest file '%s': %v", filePath, err)
		}
		defer f.Close()
		input = f
	}

	cb := progress.Callback(func(ev progress.Event) {
		log.Printf("ingest: %s %d/%d", ev.Step, ev.Current, ev.Total)
	})

	result, err := ingestEngine.IngestFromReader(indexName, input, cb)
	if err != nil {
		log.Fatalf("Batch ingest into '%s' failed: %v", indexName, err)
	}

	log.Printf("Batch ingest into '%s' complete: %d documents (%d new, %d replaced)",
		indexName, result.DocumentsCount, result.NewDocuments, result.ReplacedDocuments)
}

func runServer(ingestEngine *engine.Engine, port string) {
	router := gin.Default()
	api.SetupRoutes(router, ingestEngine)

	srv := &http.Server{
		Addr:           ":" + port,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting server on port %s...", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
