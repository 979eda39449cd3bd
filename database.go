package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Global database client; nil when DATABASE_URL is unset, in which case
// persistence is skipped and the pipeline runs file-only.
var dbClient DBClient

type DBClient interface {
	SaveRun(date string, result *RunResult) (*ReelRun, error)
	MarkUploaded(runID uuid.UUID, language, videoID string) error
}

// ReelRun is one pipeline run for one date.
type ReelRun struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key"`
	Date      string         `gorm:"not null;index"`
	Languages pq.StringArray `gorm:"type:text[];default:'{}'"`
	ItemCount int
	SeoTitle  string
	SeoTags   pq.StringArray `gorm:"type:text[];default:'{}'"`
	CreatedAt time.Time      `gorm:"default:CURRENT_TIMESTAMP"`
}

func (ReelRun) TableName() string {
	return "reel_run"
}

// ReelRecord is one assembled (or failed) per-language reel within a run.
type ReelRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Language  string    `gorm:"not null"`
	Path      string
	Error     string
	VideoID   string
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

func (ReelRecord) TableName() string {
	return "reel_record"
}

type PostgresClient struct {
	db *gorm.DB
}

func NewPostgresClient(dsn string) (*PostgresClient, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&ReelRun{}, &ReelRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %v", err)
	}
	return &PostgresClient{db: db}, nil
}

func (c *PostgresClient) SaveRun(date string, result *RunResult) (*ReelRun, error) {
	run := &ReelRun{
		ID:        uuid.New(),
		Date:      date,
		Languages: pq.StringArray(result.Digest.Languages()),
		ItemCount: len(result.Digest.Items()),
	}
	if result.Seo != nil {
		run.SeoTitle = result.Seo.Title
		run.SeoTags = pq.StringArray(result.Seo.Tags)
	}
	if err := c.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("error saving run: %v", err)
	}

	for lang, path := range result.Reels {
		record := &ReelRecord{ID: uuid.New(), RunID: run.ID, Language: lang, Path: path}
		if err := c.db.Create(record).Error; err != nil {
			return nil, fmt.Errorf("error saving reel record: %v", err)
		}
	}
	for lang, reelErr := range result.Errors {
		record := &ReelRecord{ID: uuid.New(), RunID: run.ID, Language: lang, Error: reelErr.Error()}
		if err := c.db.Create(record).Error; err != nil {
			return nil, fmt.Errorf("error saving reel record: %v", err)
		}
	}
	return run, nil
}

func (c *PostgresClient) MarkUploaded(runID uuid.UUID, language, videoID string) error {
	return c.db.Model(&ReelRecord{}).
		Where("run_id = ? AND language = ?", runID, language).
		Update("video_id", videoID).Error
}

// initDB wires the global client when a database is configured. Absence of
// the database never blocks the pipeline.
func initDB() error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Printf("DATABASE_URL not set, skipping run persistence")
		return nil
	}
	client, err := NewPostgresClient(dsn)
	if err != nil {
		return err
	}
	dbClient = client
	return nil
}
