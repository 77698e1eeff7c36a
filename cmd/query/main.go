package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/OFFIS-RIT/bimrag/internal/util"
	"github.com/OFFIS-RIT/bimrag/pkg/ai"
	oai "github.com/OFFIS-RIT/bimrag/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/bimrag/pkg/ai/openai"
	"github.com/OFFIS-RIT/bimrag/pkg/evidence"
	"github.com/OFFIS-RIT/bimrag/pkg/index"
	memindex "github.com/OFFIS-RIT/bimrag/pkg/index/memory"
	pgindex "github.com/OFFIS-RIT/bimrag/pkg/index/pgx"
	"github.com/OFFIS-RIT/bimrag/pkg/logger"
	"github.com/OFFIS-RIT/bimrag/pkg/logger/console"
	"github.com/OFFIS-RIT/bimrag/pkg/query"
	"github.com/OFFIS-RIT/bimrag/pkg/retrieval"
	neo4jstore "github.com/OFFIS-RIT/bimrag/pkg/store/neo4j"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// query answers one question against the graph:
//
//	query <question...>
func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: query <question>")
		os.Exit(2)
	}
	question := strings.Join(os.Args[1:], " ")

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

	// warm the chat model while the store connects; a no-op for openai
	_ = aiClient.LoadModel(ctx)

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

	switch util.GetEnvString("INDEX_BACKEND", "memory") {
	case "pgx":
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
		memIdx := memindex.NewFlatMemIndex()
		snapshotPath := util.GetEnvString("INDEX_SNAPSHOT", "index.json")
		if err := memIdx.Load(snapshotPath); err != nil {
			logger.Warn("No index snapshot loaded, retrieval is lexical-only", "path", snapshotPath, "err", err)
		}
		vectorIndex = memIdx
	}

	engine := retrieval.NewEngine(retrieval.NewEngineParams{
		AIClient:    aiClient,
		StoreClient: storeClient,
		VectorIndex: vectorIndex,

		TopK:     int(util.GetEnvNumeric("RAG_TOPK", 10)),
		Hops:     int(util.GetEnvNumeric("RAG_HOPS", 1)),
		MaxNodes: int(util.GetEnvNumeric("RAG_MAX_NODES", 40)),
		MinScore: util.GetEnvNumeric("RAG_MIN_SCORE", 0),
	})

	queryClient := query.NewClient(query.NewClientParams{
		AIClient: aiClient,
		Engine:   engine,
		Assembler: evidence.NewAssembler(evidence.NewAssemblerParams{
			MaxTokens: int(util.GetEnvNumeric("RAG_MAX_TOKENS", 3000)),
		}),
	})

	answer, err := queryClient.Ask(ctx, question)
	if err != nil {
		logger.Fatal("Query failed", "err", err)
	}

	fmt.Println(answer.Text)

	if answer.NoData {
		return
	}
	if len(answer.CitedIDs) > 0 {
		fmt.Println()
		fmt.Println("Cited:", strings.Join(answer.CitedIDs, ", "))
	}
	if answer.Evidence.Stale {
		fmt.Println()
		fmt.Println("(index is stale, answer may not reflect the latest graph)")
	}
	fmt.Println()
	fmt.Println("Evidence:")
	for _, en := range answer.Evidence.Nodes {
		name := en.Node.Name
		if name == "" {
			name = en.Node.GlobalID
		}
		fmt.Printf("  %s (%s) [%s] score=%.4f\n", name, en.Node.IfcType, en.Node.GlobalID, en.Score)
	}
}
