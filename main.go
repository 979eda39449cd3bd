// main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	date := flag.String("date", time.Now().Format("2006-01-02"), "Date to produce reels for (YYYY-MM-DD)")
	schedule := flag.Bool("schedule", false, "Keep running and produce reels daily at SCHEDULE_HOUR")
	upload := flag.Bool("upload", false, "Upload finished reels after assembly")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	// Initialize database (optional: file-only when DATABASE_URL is unset)
	if err := initDB(); err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}

	if *schedule {
		scheduler := NewReelScheduler(func(d string) {
			if err := runPipeline(d, *upload); err != nil {
				log.Printf("Scheduled run for %s failed: %v", d, err)
			}
		})
		scheduler.Start()
		select {}
	}

	if err := runPipeline(*date, *upload); err != nil {
		log.Printf("Run failed for %s: %v", *date, err)
		os.Exit(1)
	}
}

func runPipeline(date string, upload bool) error {
	outputBase := os.Getenv("OUTPUT_DIR")
	if outputBase == "" {
		outputBase = "output"
	}
	runDir := filepath.Join(outputBase, date)

	fetcher := NewDigestFetcher(configuredModels(), configuredRetryPolicy(), configuredLanguages(), runDir)
	pipeline := NewPipeline(fetcher, runDir)

	log.Printf("Starting reel production for %s", date)
	result, err := pipeline.Run(context.Background(), date)
	if err != nil {
		return err
	}
	log.Printf("Completed reel production for %s: %d reels, %d failed languages",
		date, len(result.Reels), len(result.Errors))

	var run *ReelRun
	if dbClient != nil {
		if run, err = dbClient.SaveRun(date, result); err != nil {
			log.Printf("Warning: could not persist run: %v", err)
		}
	}

	if upload {
		if err := UploadReels(context.Background(), result, run); err != nil {
			return err
		}
	}
	return nil
}

func configuredModels() []string {
	raw := os.Getenv("DIGEST_MODELS")
	if raw == "" {
		return nil
	}
	var models []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			models = append(models, name)
		}
	}
	return models
}

func configuredLanguages() []string {
	raw := os.Getenv("NEWS_LANGUAGES")
	if raw == "" {
		return []string{"en", "hi", "gu"}
	}
	var languages []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			languages = append(languages, tag)
		}
	}
	return languages
}

func configuredRetryPolicy() RetryPolicy {
	policy := RetryPolicy{MaxAttempts: 1}
	if raw := os.Getenv("DIGEST_RETRY_ATTEMPTS"); raw != "" {
		if attempts, err := strconv.Atoi(raw); err == nil && attempts > 0 {
			policy.MaxAttempts = attempts
			policy.Backoff = func(attempt int) time.Duration {
				return time.Duration(attempt) * 2 * time.Second
			}
		}
	}
	return policy
}
