package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	redisAdapter "carsnbids-pipeline/adapters/redis"
	internalS3 "carsnbids-pipeline/adapters/s3"
	"carsnbids-pipeline/models"
	"carsnbids-pipeline/pipeline"
	"carsnbids-pipeline/warehouse"
)

// ServerImpl wires the pipeline stages to their collaborators. Clients
// are constructed once here and shared across requests; nothing is held
// in package-level state.
type ServerImpl struct {
	store        pipeline.ObjectStore
	mergeStore   *pipeline.MergeStore
	rescrapeSink *pipeline.RescrapeSink
	loader       *warehouse.Loader
	producer     redisAdapter.IProducer[models.RunSummary]
	htmlChecker  *bluemonday.Policy
	redisClient  *redis.Client
	db           *gorm.DB

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	s3Cfg, err := awsCfg.LoadDefaultConfig(
		context.Background(),
		awsCfg.WithBaseEndpoint(config.S3.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
		awsCfg.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	s3Operator, err := internalS3.NewS3Operator(s3.NewFromConfig(s3Cfg))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	loader, err := warehouse.NewLoader(db)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create warehouse loader, err=%w", op, err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	producer, err := redisAdapter.NewProducer[models.RunSummary](redisClient, config.Redis.StreamKeys.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event producer, err=%w", op, err)
	}

	return &ServerImpl{
		store:        s3Operator,
		mergeStore:   pipeline.NewMergeStore(s3Operator, config.S3.ProcessedBucket),
		rescrapeSink: pipeline.NewRescrapeSink(s3Operator, config.S3.URLsBucket, config.S3.RescrapePrefix),
		loader:       loader,
		producer:     producer,
		htmlChecker:  bluemonday.StrictPolicy(),
		redisClient:  redisClient,
		db:           db,
		config:       config,
	}, nil
}

func (impl *ServerImpl) Start() {
	impl.producer.Start()
}

func (impl *ServerImpl) Close() {
	impl.producer.Close()
	if impl.redisClient != nil {
		impl.redisClient.Close()
	}
	if impl.db != nil {
		if sqlDB, err := impl.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	router.POST("/pipeline/transform", impl.PostTransform)
	router.POST("/pipeline/rescrape-urls", impl.PostRescrapeURLs)
	router.POST("/pipeline/load", impl.PostLoad)
}

type TransformRequest struct {
	Bucket string `json:"bucket" binding:"required"`
	Key    string `json:"key" binding:"required"`
}

type TransformResponse struct {
	ProcessedAuctionsBucket string   `json:"processed_auctions_bucket"`
	UploadedObjects         []string `json:"uploaded_objects"`
	RescrapeURLs            []string `json:"rescrape_urls"`
}

type RescrapeURLsRequest struct {
	RescrapeURLs []string `json:"rescrape_urls"`
}

type RescrapeURLsResponse struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type LoadRequest struct {
	Bucket string   `json:"bucket" binding:"required"`
	Keys   []string `json:"keys" binding:"required"`
}

type LoadResponse struct {
	RowsLoaded int `json:"rows_loaded"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// Run one transform invocation over a raw auction object
// (POST /pipeline/transform)
func (impl *ServerImpl) PostTransform(c *gin.Context) {
	const op = "PostTransform"
	var request TransformRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}

	runID := uuid.New()
	logger := slog.Default().With(slog.String("op", op), slog.String("runID", runID.String()), slog.String("bucket", request.Bucket), slog.String("key", request.Key))
	logger.Info("Transform run started")

	raw, err := impl.store.Get(c.Request.Context(), request.Bucket, request.Key)
	if err != nil {
		if errors.Is(err, internalS3.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Message: "raw object not found"})
			return
		}
		logger.Error("Fail to read raw object", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "fail to read raw object"})
		return
	}

	flat, err := pipeline.FlattenJSON(raw)
	if err != nil {
		if errors.Is(err, pipeline.ErrInputShape) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Message: err.Error()})
			return
		}
		logger.Error("Fail to flatten raw payload", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "fail to flatten raw payload"})
		return
	}
	impl.sanitizeFreeText(flat)

	valid, rescrapeURLs := pipeline.PartitionValid(flat)
	records := pipeline.Transform(valid)

	uploaded, err := impl.mergeStore.MergeAndPersist(c.Request.Context(), records)
	if err != nil {
		logger.Error("Fail to persist partitions", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "fail to persist partitions"})
		return
	}

	impl.publishRunSummary(logger, models.RunSummary{
		RunID:           runID,
		SourceBucket:    request.Bucket,
		SourceKey:       request.Key,
		ProcessedBucket: impl.config.S3.ProcessedBucket,
		PartitionKeys:   uploaded,
		RecordCount:     len(records),
		RescrapeCount:   len(rescrapeURLs),
		FinishedAt:      time.Now().UTC(),
	})

	logger.Info("Transform run finished", slog.Int("records", len(records)), slog.Int("partitions", len(uploaded)), slog.Int("rescrapeUrls", len(rescrapeURLs)))
	c.JSON(http.StatusOK, TransformResponse{
		ProcessedAuctionsBucket: impl.config.S3.ProcessedBucket,
		UploadedObjects:         uploaded,
		RescrapeURLs:            rescrapeURLs,
	})
}

// Persist a list of auction URLs for a later re-scrape cycle
// (POST /pipeline/rescrape-urls)
func (impl *ServerImpl) PostRescrapeURLs(c *gin.Context) {
	const op = "PostRescrapeURLs"
	var request RescrapeURLsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}

	key, err := impl.rescrapeSink.Write(c.Request.Context(), request.RescrapeURLs)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoRescrapeURLs) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "no URLs provided"})
			return
		}
		slog.Error("Fail to write rescrape urls", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "fail to write rescrape urls"})
		return
	}

	c.JSON(http.StatusOK, RescrapeURLsResponse{Bucket: impl.config.S3.URLsBucket, Key: key})
}

// Load processed partition objects into the warehouse staging table
// (POST /pipeline/load)
func (impl *ServerImpl) PostLoad(c *gin.Context) {
	const op = "PostLoad"
	var request LoadRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}

	total := 0
	for _, key := range request.Keys {
		body, err := impl.store.Get(c.Request.Context(), request.Bucket, key)
		if err != nil {
			slog.Error("Fail to read partition", slog.String("op", op), slog.String("key", key), slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Message: fmt.Sprintf("fail to read partition %s", key)})
			return
		}
		records, err := pipeline.DecodeNDJSON(body)
		if err != nil {
			slog.Error("Fail to decode partition", slog.String("op", op), slog.String("key", key), slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Message: fmt.Sprintf("fail to decode partition %s", key)})
			return
		}
		loaded, err := impl.loader.LoadPartition(c.Request.Context(), records)
		if err != nil {
			slog.Error("Fail to load partition", slog.String("op", op), slog.String("key", key), slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Message: fmt.Sprintf("fail to load partition %s", key)})
			return
		}
		total += loaded
	}

	c.JSON(http.StatusOK, LoadResponse{RowsLoaded: total})
}

// sanitizeFreeText strips HTML from the scraped free-text fields before
// they reach the pipeline; scraped pages occasionally leak markup into
// them.
func (impl *ServerImpl) sanitizeFreeText(records []models.FlatAuction) {
	if impl.htmlChecker == nil {
		return
	}
	for i := range records {
		for _, field := range []**string{&records[i].AuctionTitle, &records[i].AuctionSubtitle, &records[i].DougsTake} {
			if *field != nil {
				cleaned := impl.htmlChecker.Sanitize(**field)
				*field = &cleaned
			}
		}
	}
}

func (impl *ServerImpl) publishRunSummary(logger *slog.Logger, summary models.RunSummary) {
	if impl.producer == nil {
		return
	}
	if err := impl.producer.Publish(summary); err != nil {
		// the run already succeeded; a missed notification is not worth a 500
		logger.Warn("Fail to publish run summary", slog.Any("error", err))
	}
}
