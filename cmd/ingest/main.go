package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/bimrag/internal/queue"
	"github.com/OFFIS-RIT/bimrag/internal/storage"
	"github.com/OFFIS-RIT/bimrag/internal/util"
	"github.com/OFFIS-RIT/bimrag/pkg/graph"
	"github.com/OFFIS-RIT/bimrag/pkg/logger"
	"github.com/OFFIS-RIT/bimrag/pkg/logger/console"
	neo4jstore "github.com/OFFIS-RIT/bimrag/pkg/store/neo4j"
)

// ingest merges ifcJSON documents (local paths or s3:// URIs) into the
// graph under a source tag:
//
//	ingest <source-tag> <document> [<document>...]
func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: ingest <source-tag> <document> [<document>...]")
		os.Exit(2)
	}
	sourceTag := os.Args[1]
	refs := os.Args[2:]

	// Async mode hands the job to the queue worker instead of ingesting
	// inline. Documents must then be reachable from the worker, so local
	// paths only work when both share a filesystem.
	if util.GetEnvBool("INGEST_ASYNC", false) {
		conn := queue.Init()
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, queue.Queues); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}

		job, err := json.Marshal(queue.IngestJob{SourceTag: sourceTag, Documents: refs})
		if err != nil {
			logger.Fatal("Could not encode ingest job", "err", err)
		}
		if err := queue.PublishFIFO(ch, queue.QueueIngest, job); err != nil {
			logger.Fatal("Failed to publish ingest job", "err", err)
		}
		logger.Info("Ingest job queued", "source", sourceTag, "documents", len(refs))
		return
	}

	s3Client := storage.NewS3Client(ctx)

	storeClient, err := neo4jstore.NewGraphDBStorage(ctx, neo4jstore.NewGraphDBStorageParams{
		URI:      util.GetEnv("NEO4J_URI"),
		Username: util.GetEnv("NEO4J_USER"),
		Password: util.GetEnv("NEO4J_PASSWORD"),
		Database: util.GetEnvString("NEO4J_DATABASE", "neo4j"),
	})
	if err != nil {
		logger.Fatal("Could not connect to Neo4j", "err", err)
	}
	defer storeClient.Close(ctx)

	docs := make([]graph.SourceDocument, 0, len(refs))
	for _, ref := range refs {
		name, data, err := storage.ReadDocument(ctx, s3Client, ref)
		if err != nil {
			logger.Fatal("Could not read document", "document", ref, "err", err)
		}
		docs = append(docs, graph.SourceDocument{Name: name, Data: data})
	}

	graphClient := graph.NewGraphClient(graph.NewGraphClientParams{
		ChunkSize: int(util.GetEnvNumeric("INGEST_CHUNK_SIZE", 250)),
	})

	summary, err := graphClient.IngestDocuments(ctx, docs, sourceTag, storeClient)
	if err != nil {
		logger.Fatal("Ingest run failed", "err", err)
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		logger.Fatal("Could not encode summary", "err", err)
	}
	fmt.Println(string(out))
}
