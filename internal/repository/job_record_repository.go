package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/stanstork/pricesync-api/internal/models"
)

var ErrJobRecordNotFound = errors.New("job record not found")

type JobRecordRepository interface {
	Create(ctx context.Context, rec models.JobRecord) (models.JobRecord, error)
	Get(ctx context.Context, tenantID, id string) (models.JobRecord, error)
	Update(ctx context.Context, rec models.JobRecord) (models.JobRecord, error)
	ListRecent(ctx context.Context, tenantID string, kinds []models.BulkJobKind, limit int) ([]models.JobRecord, error)
}

type jobRecordRepository struct {
	db *sql.DB
}

func NewJobRecordRepository(db *sql.DB) JobRecordRepository {
	return &jobRecordRepository{db: db}
}

const jobRecordColumns = `id, tenant_id, kind, remote_id, status, object_count, expected_update_count,
	artifact_key, error_message, summary, created_at, updated_at, completed_at`

func (r *jobRecordRepository) Create(ctx context.Context, rec models.JobRecord) (models.JobRecord, error) {
	const query = `
		INSERT INTO pricesync.job_records (id, tenant_id, kind, remote_id, status, object_count, expected_update_count, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + jobRecordColumns

	row := r.db.QueryRowContext(ctx, query,
		rec.ID,
		strings.TrimSpace(rec.TenantID),
		rec.Kind,
		rec.RemoteID,
		rec.Status,
		rec.ObjectCount,
		rec.ExpectedUpdateCount,
		nullableJSON(rec.Summary),
	)
	return scanJobRecord(row)
}

func (r *jobRecordRepository) Get(ctx context.Context, tenantID, id string) (models.JobRecord, error) {
	const query = `
		SELECT ` + jobRecordColumns + `
		FROM pricesync.job_records
		WHERE id = $1 AND tenant_id = $2
	`
	rec, err := scanJobRecord(r.db.QueryRowContext(ctx, query, strings.TrimSpace(id), strings.TrimSpace(tenantID)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.JobRecord{}, ErrJobRecordNotFound
	}
	return rec, err
}

func (r *jobRecordRepository) Update(ctx context.Context, rec models.JobRecord) (models.JobRecord, error) {
	const query = `
		UPDATE pricesync.job_records
		SET status = $3,
			object_count = $4,
			expected_update_count = $5,
			artifact_key = $6,
			error_message = $7,
			summary = COALESCE($8, summary),
			completed_at = $9,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + jobRecordColumns

	row := r.db.QueryRowContext(ctx, query,
		rec.ID,
		strings.TrimSpace(rec.TenantID),
		rec.Status,
		rec.ObjectCount,
		rec.ExpectedUpdateCount,
		rec.ArtifactKey,
		rec.ErrorMessage,
		nullableJSON(rec.Summary),
		rec.CompletedAt,
	)
	updated, err := scanJobRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JobRecord{}, ErrJobRecordNotFound
	}
	return updated, err
}

func (r *jobRecordRepository) ListRecent(ctx context.Context, tenantID string, kinds []models.BulkJobKind, limit int) ([]models.JobRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	kindFilter := make([]string, 0, len(kinds))
	for _, k := range kinds {
		kindFilter = append(kindFilter, string(k))
	}

	const query = `
		SELECT ` + jobRecordColumns + `
		FROM pricesync.job_records
		WHERE tenant_id = $1
		  AND (cardinality($2::text[]) = 0 OR kind = ANY($2::text[]))
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(tenantID), pq.Array(kindFilter), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.JobRecord
	for rows.Next() {
		rec, err := scanJobRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanJobRecord(scanner interface {
	Scan(dest ...interface{}) error
}) (models.JobRecord, error) {
	var (
		rec         models.JobRecord
		artifactKey sql.NullString
		errMsg      sql.NullString
		summaryRaw  []byte
		completedAt sql.NullTime
	)

	if err := scanner.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.Kind,
		&rec.RemoteID,
		&rec.Status,
		&rec.ObjectCount,
		&rec.ExpectedUpdateCount,
		&artifactKey,
		&errMsg,
		&summaryRaw,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&completedAt,
	); err != nil {
		return models.JobRecord{}, err
	}

	if artifactKey.Valid {
		v := artifactKey.String
		rec.ArtifactKey = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		rec.ErrorMessage = &v
	}
	if len(summaryRaw) > 0 {
		rec.Summary = json.RawMessage(summaryRaw)
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
