package main

import (
	"context"
	"log"
	"os"

	"closetapi/dbhelper"
	"closetapi/services"
	"closetapi/tasks"

	"github.com/hibiken/asynq"
)

func runScheduler() {
	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}, &asynq.SchedulerOpts{
		LogLevel: asynq.InfoLevel,
	})

	scheduled := []struct {
		cron string
		task *asynq.Task
		desc string
	}{
		{
			cron: "30 3 * * *",
			task: tasks.NewBehaviorCleanupTask(),
			desc: "Behavior event retention cleanup",
		},
	}

	for _, t := range scheduled {
		entryID, err := scheduler.Register(t.cron, t.task)
		if err != nil {
			log.Fatalf("Failed to register task '%s': %v", t.desc, err)
		}
		log.Printf("Registered task '%s' with ID: %s, cron: %s", t.desc, entryID, t.cron)
	}

	log.Println("Starting scheduler...")
	if err := scheduler.Run(); err != nil {
		log.Fatalf("Scheduler failed: %v", err)
	}
}

func main() {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			"default": 7,
		}},
	)

	awsService := &services.AWSService{}
	if err := awsService.InitPresignClient(context.Background()); err != nil {
		log.Fatal("[Queue] Failed to initialize AWS provider: S3")
	}
	gateway := services.NewVisionGateway(services.NewVisionMetrics(), services.DefaultProviderChain()...)

	mux := asynq.NewServeMux()
	db := dbhelper.SetupDB()
	mux.HandleFunc(tasks.TypeGarmentAnalysis, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleGarmentAnalysisTask(ctx, t, db, gateway, awsService)
	})
	mux.HandleFunc(tasks.TypePreferenceUpdate, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandlePreferenceUpdateTask(ctx, t, db)
	})
	mux.HandleFunc(tasks.TypeBehaviorCleanup, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleBehaviorCleanupTask(ctx, t, db)
	})

	go runScheduler()
	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
