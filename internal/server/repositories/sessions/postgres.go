// Package sessions provides the PostgreSQL-backed upload session registry.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/dbx"
	"github.com/devchaudhary24k/vidcastx/internal/server/models"
)

// PostgresRepository implements Repository over *sql.DB. Conditional status
// transitions run inside a transaction so the guard check and its follow-up
// existence probe see one consistent snapshot.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.UploadSession) error {
	query := `
		INSERT INTO upload_sessions
			(id, tenant_id, owner_id, title, filename, content_type, storage_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.TenantID, s.OwnerID, s.Title, s.Filename, s.ContentType, s.StorageKey, s.Status)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.UploadSession, error) {
	query := `
		SELECT id, tenant_id, owner_id, title, filename, content_type, storage_key,
		       multipart_upload_id, status, size_bytes, created_at, updated_at
		FROM upload_sessions WHERE id = $1
	`
	var s models.UploadSession
	var uploadID sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.TenantID, &s.OwnerID, &s.Title, &s.Filename, &s.ContentType, &s.StorageKey,
		&uploadID, &s.Status, &s.SizeBytes, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	if uploadID.Valid {
		s.MultipartUploadID = &uploadID.String
	}
	return &s, nil
}

// SetMultipartUpload is the compare-and-swap that enforces "at most one open
// multipart transaction per session". Two concurrent init requests race on
// this UPDATE; exactly one sees a row affected.
func (r *PostgresRepository) SetMultipartUpload(ctx context.Context, id, uploadID string) error {
	query := `
		UPDATE upload_sessions
		SET multipart_upload_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'waiting_upload' AND multipart_upload_id IS NULL
	`
	return r.conditionalUpdate(ctx, id, query, id, uploadID)
}

func (r *PostgresRepository) ClearMultipartUpload(ctx context.Context, id string) error {
	query := `
		UPDATE upload_sessions
		SET multipart_upload_id = NULL, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("clear multipart id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkProcessing(ctx context.Context, id string, sizeBytes int64) error {
	query := `
		UPDATE upload_sessions
		SET status = 'processing', size_bytes = $2, multipart_upload_id = NULL, updated_at = now()
		WHERE id = $1 AND status = 'waiting_upload'
	`
	return r.conditionalUpdate(ctx, id, query, id, sizeBytes)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id string) error {
	query := `
		UPDATE upload_sessions
		SET status = 'failed', updated_at = now()
		WHERE id = $1 AND status IN ('waiting_upload', 'processing')
	`
	return r.conditionalUpdate(ctx, id, query, id)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error) {
	query := `
		SELECT id, tenant_id, owner_id, title, filename, content_type, storage_key,
		       multipart_upload_id, status, size_bytes, created_at, updated_at
		FROM upload_sessions
		WHERE status = 'waiting_upload' AND created_at < $1
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select expired sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadSession
	for rows.Next() {
		var s models.UploadSession
		var uploadID sql.NullString
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.OwnerID, &s.Title, &s.Filename, &s.ContentType, &s.StorageKey,
			&uploadID, &s.Status, &s.SizeBytes, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if uploadID.Valid {
			s.MultipartUploadID = &uploadID.String
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// conditionalUpdate runs an UPDATE whose WHERE clause encodes the expected
// prior state. Zero rows affected means the guard did not hold: either the
// session is gone (ErrNotFound) or it is in the wrong state
// (ErrInvalidState). A follow-up existence check inside the same transaction
// disambiguates.
func (r *PostgresRepository) conditionalUpdate(ctx context.Context, id, query string, args ...any) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("conditional update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		switch n {
		case 1:
			return nil
		case 0:
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM upload_sessions WHERE id = $1`, id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("existence check: %w", err)
			}
			return common.ErrInvalidState
		default:
			return fmt.Errorf("unexpected rows affected: %d", n)
		}
	})
}
