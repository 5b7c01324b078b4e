package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 58120417

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&SummaryJobModel{}, &CreditsModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := backfillLegacyStatus(tx); err != nil {
			return err
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'summary_jobs'
					AND constraint_name = 'summary_jobs_status_check'
				) THEN
					ALTER TABLE summary_jobs
					ADD CONSTRAINT summary_jobs_status_check
					CHECK (status IN ('pending', 'processing', 'completed', 'failed'));
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure status constraint: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// backfillLegacyStatus derives status for rows imported from the
// single-field schema, where content doubled as the status marker.
func backfillLegacyStatus(tx *gorm.DB) error {
	var legacy []SummaryJobModel
	if err := tx.Where("status = ?", "").Find(&legacy).Error; err != nil {
		return fmt.Errorf("load legacy jobs: %w", err)
	}
	for _, m := range legacy {
		job := jobFromModel(m)
		if err := tx.Model(&SummaryJobModel{}).Where("id = ?", m.ID).Updates(map[string]any{
			"status":        string(job.Status),
			"content":       job.Text,
			"error_message": job.ErrorMessage,
		}).Error; err != nil {
			return fmt.Errorf("backfill job %s: %w", m.ID, err)
		}
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateJob inserts a new job row.
func (s *GormStore) CreateJob(job domain.SummaryJob) error {
	model, err := jobToModel(job)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// GetJob retrieves a job by ID.
func (s *GormStore) GetJob(id string) (domain.SummaryJob, bool, error) {
	var model SummaryJobModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SummaryJob{}, false, nil
		}
		return domain.SummaryJob{}, false, err
	}
	return jobFromModel(model), true, nil
}

// ListJobsByOwner returns the owner's jobs newest first. limit <= 0 means all.
func (s *GormStore) ListJobsByOwner(ownerID string, limit int) ([]domain.SummaryJob, error) {
	var models []SummaryJobModel
	tx := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SummaryJob, 0, len(models))
	for _, m := range models {
		res = append(res, jobFromModel(m))
	}
	return res, nil
}

// DeleteJob hard-deletes a job owned by ownerID.
func (s *GormStore) DeleteJob(ownerID, id string) (bool, error) {
	res := s.db.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&SummaryJobModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimJob moves a pending job to processing.
func (s *GormStore) ClaimJob(id string) (bool, error) {
	return s.transition(id, domain.StatusPending, map[string]any{
		"status": string(domain.StatusProcessing),
	})
}

// CompleteJob stores the generated text on a processing job.
func (s *GormStore) CompleteJob(id, text string, metadata map[string]string) (bool, error) {
	updates := map[string]any{
		"status":  string(domain.StatusCompleted),
		"content": text,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return false, fmt.Errorf("encode metadata: %w", err)
		}
		updates["metadata"] = datatypes.JSON(raw)
	}
	return s.transition(id, domain.StatusProcessing, updates)
}

// FailJob records the failure message on a processing job.
func (s *GormStore) FailJob(id, errMsg string) (bool, error) {
	return s.transition(id, domain.StatusProcessing, map[string]any{
		"status":        string(domain.StatusFailed),
		"error_message": errMsg,
	})
}

func (s *GormStore) transition(id string, from domain.JobStatus, updates map[string]any) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := s.db.Model(&SummaryJobModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetExportKey records where the exported summary lives.
func (s *GormStore) SetExportKey(id, key string) error {
	return s.db.Model(&SummaryJobModel{}).
		Where("id = ?", id).
		Update("export_key", key).Error
}

// ListStuckJobs returns jobs in status not updated since updatedBefore, oldest first.
func (s *GormStore) ListStuckJobs(status domain.JobStatus, updatedBefore time.Time, limit int) ([]domain.SummaryJob, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []SummaryJobModel
	if err := s.db.Where("status = ? AND updated_at < ?", string(status), updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SummaryJob, 0, len(models))
	for _, m := range models {
		res = append(res, jobFromModel(m))
	}
	return res, nil
}

// GetOrCreateCredits returns the owner's credits, creating the free record on first use.
func (s *GormStore) GetOrCreateCredits(ownerID string) (domain.Credits, error) {
	model := creditsToModel(domain.DefaultCredits(ownerID, time.Now().UTC()))
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
		return domain.Credits{}, err
	}
	var stored CreditsModel
	if err := s.db.First(&stored, "owner_id = ?", ownerID).Error; err != nil {
		return domain.Credits{}, err
	}
	return creditsFromModel(stored), nil
}

// ConsumeCredit decrements the allowance when any is left.
func (s *GormStore) ConsumeCredit(ownerID string) (bool, error) {
	res := s.db.Model(&CreditsModel{}).
		Where("owner_id = ? AND summaries_left > 0", ownerID).
		Updates(map[string]any{
			"summaries_left": gorm.Expr("summaries_left - 1"),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RefundCredit gives one summary back.
func (s *GormStore) RefundCredit(ownerID string) error {
	return s.db.Model(&CreditsModel{}).
		Where("owner_id = ?", ownerID).
		Updates(map[string]any{
			"summaries_left": gorm.Expr("summaries_left + 1"),
			"updated_at":     time.Now().UTC(),
		}).Error
}

// SaveCredits upserts a credits record.
func (s *GormStore) SaveCredits(c domain.Credits) error {
	model := creditsToModel(c)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan", "summaries_left", "subscription_status", "customer_id", "subscription_id", "updated_at"}),
	}).Create(&model).Error
}

// GetCreditsByCustomer looks up credits by billing customer ID.
func (s *GormStore) GetCreditsByCustomer(customerID string) (domain.Credits, bool, error) {
	var model CreditsModel
	if err := s.db.First(&model, "customer_id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Credits{}, false, nil
		}
		return domain.Credits{}, false, err
	}
	return creditsFromModel(model), true, nil
}

func jobToModel(job domain.SummaryJob) (SummaryJobModel, error) {
	model := SummaryJobModel{
		ID:              job.ID,
		OwnerID:         job.OwnerID,
		SourceReference: job.SourceReference,
		VideoID:         job.VideoID,
		Format:          string(job.Format),
		Language:        string(job.Language),
		Status:          string(job.Status),
		Content:         job.Text,
		ErrorMessage:    job.ErrorMessage,
		ExportKey:       job.ExportKey,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if len(job.Metadata) > 0 {
		raw, err := json.Marshal(job.Metadata)
		if err != nil {
			return SummaryJobModel{}, fmt.Errorf("encode metadata: %w", err)
		}
		model.Metadata = datatypes.JSON(raw)
	}
	return model, nil
}

// jobFromModel maps a row to a job. Rows without a status come from the
// single-field schema and are classified from their content.
func jobFromModel(m SummaryJobModel) domain.SummaryJob {
	job := domain.SummaryJob{
		ID:              m.ID,
		OwnerID:         m.OwnerID,
		SourceReference: m.SourceReference,
		VideoID:         m.VideoID,
		Format:          domain.Format(m.Format),
		Language:        domain.Language(m.Language),
		Status:          domain.JobStatus(m.Status),
		Text:            m.Content,
		ErrorMessage:    m.ErrorMessage,
		ExportKey:       m.ExportKey,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if job.Status == "" {
		job.Status, job.ErrorMessage = domain.ClassifyContent(m.Content)
		if job.Status != domain.StatusCompleted {
			job.Text = ""
		}
	}
	if len(m.Metadata) > 0 {
		var metadata map[string]string
		if err := json.Unmarshal(m.Metadata, &metadata); err == nil {
			job.Metadata = metadata
		}
	}
	return job
}

func creditsToModel(c domain.Credits) CreditsModel {
	return CreditsModel{
		OwnerID:            c.OwnerID,
		Plan:               string(c.Plan),
		SummariesLeft:      c.SummariesLeft,
		SubscriptionStatus: string(c.SubscriptionStatus),
		CustomerID:         c.CustomerID,
		SubscriptionID:     c.SubscriptionID,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func creditsFromModel(m CreditsModel) domain.Credits {
	return domain.Credits{
		OwnerID:            m.OwnerID,
		Plan:               domain.PlanID(m.Plan),
		SummariesLeft:      m.SummariesLeft,
		SubscriptionStatus: domain.SubscriptionStatus(m.SubscriptionStatus),
		CustomerID:         m.CustomerID,
		SubscriptionID:     m.SubscriptionID,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
