package main

import (
	"context"
	"log"
	"os"
	"time"

	"closetapi/controllers"
	"closetapi/dbhelper"
	"closetapi/services"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv("SENTRY_DSN"),
		Environment:      services.GetEnv("ENV", "local"),
		Release:          "closetapi@1.0.0",
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Recover()
	defer sentry.Flush(2 * time.Second)

	db := dbhelper.SetupDB()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")})

	awsService := &services.AWSService{}
	if err := awsService.InitPresignClient(context.Background()); err != nil {
		log.Fatal("Failed to initialize AWS provider: S3")
	}
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	urlCache, err := services.NewURLCacheService(awsService, bucketName)
	if err != nil {
		log.Fatal("Failed to initialize URL cache service")
	}

	gateway := services.NewVisionGateway(services.NewVisionMetrics(), services.DefaultProviderChain()...)
	var outfitLLM services.OutfitLLM
	if composer := services.NewGeminiOutfitComposer(); composer.Available() {
		outfitLLM = composer
	}

	e := controllers.SetupServer(db, gateway, outfitLLM, awsService, asynqClient, urlCache)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	e.Logger.Fatal(e.Start(":" + services.GetEnv("PORT", "8083")))
}
