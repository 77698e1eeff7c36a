package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/bimrag/internal/util"
	"github.com/OFFIS-RIT/bimrag/pkg/ai"
	oai "github.com/OFFIS-RIT/bimrag/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/bimrag/pkg/ai/openai"
	"github.com/OFFIS-RIT/bimrag/pkg/index"
	memindex "github.com/OFFIS-RIT/bimrag/pkg/index/memory"
	pgindex "github.com/OFFIS-RIT/bimrag/pkg/index/pgx"
	"github.com/OFFIS-RIT/bimrag/pkg/logger"
	"github.com/OFFIS-RIT/bimrag/pkg/logger/console"
	neo4jstore "github.com/OFFIS-RIT/bimrag/pkg/store/neo4j"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// indexer rebuilds the vector index from the current graph in one shot.
func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.GraphAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
		})
	}

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

	var vectorIndex index.VectorIndex
	var memIdx *memindex.FlatMemIndex
	snapshotPath := util.GetEnvString("INDEX_SNAPSHOT", "index.json")

	switch util.GetEnvString("INDEX_BACKEND", "memory") {
	case "pgx":
		if err := pgindex.Migrate(util.GetEnv("DATABASE_URL")); err != nil {
			logger.Fatal("Index migration failed", "err", err)
		}
		poolConfig, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
		if err != nil {
			logger.Fatal("Invalid DATABASE_URL", "err", err)
		}
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
		pgConn, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pgConn.Close()
		vectorIndex = pgindex.NewGraphDBIndex(pgConn)
	default:
		memIdx = memindex.NewFlatMemIndex()
		vectorIndex = memIdx
	}

	builder := index.NewBuilder(index.NewBuilderParams{
		AIClient:  aiClient,
		BatchSize: int(util.GetEnvNumeric("INDEX_BATCH_SIZE", 64)),
		Parallel:  int(util.GetEnvNumeric("INDEX_PARALLEL", 4)),
	})

	summary, err := builder.Build(ctx, storeClient, vectorIndex)
	if err != nil {
		logger.Fatal("Index build failed", "err", err)
	}

	if memIdx != nil {
		if err := memIdx.Save(snapshotPath); err != nil {
			logger.Fatal("Failed to save index snapshot", "path", snapshotPath, "err", err)
		}
	}

	logger.Info(
		"Index build complete",
		"cards", summary.Cards,
		"fingerprint", summary.Fingerprint,
		"duration_ms", summary.DurationMs,
	)
}
