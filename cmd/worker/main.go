package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graphweave/graphweave/internal/queue"
	"github.com/graphweave/graphweave/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/graphweave/graphweave/pkg/ai"
	oai "github.com/graphweave/graphweave/pkg/ai/ollama"
	gai "github.com/graphweave/graphweave/pkg/ai/openai"
	"github.com/graphweave/graphweave/pkg/community"
	"github.com/graphweave/graphweave/pkg/extractcache"
	"github.com/graphweave/graphweave/pkg/governor"
	"github.com/graphweave/graphweave/pkg/graph"
	"github.com/graphweave/graphweave/pkg/graphdb"
	"github.com/graphweave/graphweave/pkg/logger"
	"github.com/graphweave/graphweave/pkg/logger/console"
	"github.com/graphweave/graphweave/pkg/tenant"
	"github.com/graphweave/graphweave/pkg/vector"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/redis/go-redis/v9"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// AI client
	adapter := util.GetEnvString("AI_ADAPTER", "openai")
	var aiClient ai.Client

	switch adapter {
	case "ollama":
		client, err := oai.NewClient(oai.NewClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewClient(gai.NewClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),

			InputCostPerMTok:  util.GetEnvNumeric("AI_INPUT_COST_PER_MTOK", 0),
			OutputCostPerMTok: util.GetEnvNumeric("AI_OUTPUT_COST_PER_MTOK", 0),
		})
	}

	// Postgres pool with pgvector types on every connection
	poolConfig, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	graphClient, err := graphdb.NewPgxClient(graphdb.NewPgxClientParams{Conn: pgConn})
	if err != nil {
		logger.Fatal("Could not create graph client", "err", err)
	}
	store, err := vector.NewPgvectorStore(vector.NewPgvectorStoreParams{Conn: pgConn})
	if err != nil {
		logger.Fatal("Could not create vector store", "err", err)
	}

	// Redis-backed extraction cache
	var cache *extractcache.Cache
	if addr := util.GetEnvString("REDIS_ADDR", ""); addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: util.GetEnvString("REDIS_PASSWORD", ""),
		})
		cache = extractcache.NewCache(extractcache.NewCacheParams{
			KV: extractcache.NewRedisKV(redisClient),
		})
	}

	settings := &tenant.Settings{
		Provider:    adapter,
		Model:       util.GetEnv("AI_CHAT_MODEL"),
		Temperature: util.GetEnvNumeric("AI_TEMPERATURE", 0),
	}

	gov, err := governor.New(governor.Params{
		InitialLimit: int(util.GetEnvNumeric("GOVERNOR_INITIAL_LIMIT", 4)),
		MinLimit:     int(util.GetEnvNumeric("GOVERNOR_MIN_LIMIT", 1)),
		MaxLimit:     int(util.GetEnvNumeric("GOVERNOR_MAX_LIMIT", 16)),
	})
	if err != nil {
		logger.Fatal("Could not create governor", "err", err)
	}

	extractor, err := graph.NewExtractor(graph.NewExtractorParams{
		LLM:      aiClient,
		Cache:    cache,
		Settings: settings,
	})
	if err != nil {
		logger.Fatal("Could not create extractor", "err", err)
	}
	writer, err := graph.NewStoreWriter(graph.NewStoreWriterParams{
		DB:    graphClient,
		Store: store,
		LLM:   aiClient,
	})
	if err != nil {
		logger.Fatal("Could not create store writer", "err", err)
	}
	coordinator, err := graph.NewCoordinator(graph.NewCoordinatorParams{
		Extractor: extractor,
		Governor:  gov,
		Writer:    writer,
	})
	if err != nil {
		logger.Fatal("Could not create coordinator", "err", err)
	}

	detector, err := community.NewDetector(community.NewDetectorParams{
		DB:         graphClient,
		Resolution: util.GetEnvNumeric("COMMUNITY_RESOLUTION", 0),
	})
	if err != nil {
		logger.Fatal("Could not create community detector", "err", err)
	}
	lifecycle, err := community.NewLifecycle(community.NewLifecycleParams{
		DB: graphClient,
	})
	if err != nil {
		logger.Fatal("Could not create community lifecycle", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	if err := queue.RecoverStalledJobs(ctx, graphClient, lifecycle); err != nil {
		logger.Error("Stalled job recovery failed", "err", err)
	}

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so only one message is in
	// flight across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.ExtractQueue:
					processingErr = queue.ProcessExtractionMessage(ctx, coordinator, ch, string(qm.msg.Body))
				case queue.CommunityQueue:
					processingErr = queue.ProcessCommunityMessage(ctx, detector, lifecycle, string(qm.msg.Body))
				}

				// On error send to retry or dead-letter, otherwise ack
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					err = qm.msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				aiHours := int(aiDuration.Hours())
				aiMinutes := int(aiDuration.Minutes()) % 60
				aiSeconds := int(aiDuration.Seconds()) % 60
				logger.Info(
					"AI Metrics",
					"calls", metrics.Calls,
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"cost", metrics.Cost,
					"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
				)

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// After 10 attempts the message goes to the dead-letter queue
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
