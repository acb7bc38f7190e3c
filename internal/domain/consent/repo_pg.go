package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseid/pulseid/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const grantCols = `id, patient_id, doctor_id, access_type, can_view_records,
	can_add_records, can_view_documents, active, granted_at, expires_at, revoked_at`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(
		&g.ID, &g.PatientID, &g.DoctorID, &g.AccessType, &g.CanViewRecords,
		&g.CanAddRecords, &g.CanViewDocuments, &g.Active, &g.GrantedAt,
		&g.ExpiresAt, &g.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &g, err
}

func (r *RepoPG) Upsert(ctx context.Context, g *Grant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	q := `INSERT INTO sharing_grants (id, patient_id, doctor_id, access_type,
			can_view_records, can_add_records, can_view_documents, active, granted_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), $8, NULL)
		ON CONFLICT (patient_id, doctor_id) DO UPDATE SET
			access_type = EXCLUDED.access_type,
			can_view_records = EXCLUDED.can_view_records,
			can_add_records = EXCLUDED.can_add_records,
			can_view_documents = EXCLUDED.can_view_documents,
			active = TRUE,
			granted_at = NOW(),
			expires_at = EXCLUDED.expires_at,
			revoked_at = NULL
		RETURNING id, granted_at`
	return r.conn(ctx).QueryRow(ctx, q,
		g.ID, g.PatientID, g.DoctorID, g.AccessType,
		g.CanViewRecords, g.CanAddRecords, g.CanViewDocuments, g.ExpiresAt,
	).Scan(&g.ID, &g.GrantedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	q := fmt.Sprintf("SELECT %s FROM sharing_grants WHERE id = $1", grantCols)
	return scanGrant(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) GetByPair(ctx context.Context, patientID, doctorID uuid.UUID) (*Grant, error) {
	q := fmt.Sprintf("SELECT %s FROM sharing_grants WHERE patient_id = $1 AND doctor_id = $2", grantCols)
	return scanGrant(r.conn(ctx).QueryRow(ctx, q, patientID, doctorID))
}

func (r *RepoPG) listGrants(ctx context.Context, q string, args ...interface{}) ([]*Grant, error) {
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

func (r *RepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Grant, error) {
	q := fmt.Sprintf(`SELECT %s FROM sharing_grants
		WHERE patient_id = $1 AND active AND revoked_at IS NULL
		ORDER BY granted_at DESC`, grantCols)
	return r.listGrants(ctx, q, patientID)
}

func (r *RepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Grant, error) {
	q := fmt.Sprintf(`SELECT %s FROM sharing_grants
		WHERE doctor_id = $1 AND active AND revoked_at IS NULL
		ORDER BY granted_at DESC`, grantCols)
	return r.listGrants(ctx, q, doctorID)
}

func (r *RepoPG) History(ctx context.Context, patientID uuid.UUID, limit int) ([]*Grant, error) {
	q := fmt.Sprintf(`SELECT %s FROM sharing_grants
		WHERE patient_id = $1
		ORDER BY granted_at DESC LIMIT $2`, grantCols)
	return r.listGrants(ctx, q, patientID, limit)
}

func (r *RepoPG) Revoke(ctx context.Context, id, patientID uuid.UUID, at time.Time) (*Grant, error) {
	q := fmt.Sprintf(`UPDATE sharing_grants
		SET active = FALSE, revoked_at = COALESCE(revoked_at, $3)
		WHERE id = $1 AND patient_id = $2
		RETURNING %s`, grantCols)
	return scanGrant(r.conn(ctx).QueryRow(ctx, q, id, patientID, at))
}

func (r *RepoPG) CreateChallenge(ctx context.Context, c *OTPChallenge) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	q := `INSERT INTO otp_challenges (id, patient_id, doctor_id, code, verified, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING created_at`
	return r.conn(ctx).QueryRow(ctx, q, c.ID, c.PatientID, c.DoctorID, c.Code).Scan(&c.CreatedAt)
}

func (r *RepoPG) LatestUnverifiedByCode(ctx context.Context, patientID, doctorID uuid.UUID, code string) (*OTPChallenge, error) {
	q := `SELECT id, patient_id, doctor_id, code, verified, created_at
		FROM otp_challenges
		WHERE patient_id = $1 AND doctor_id = $2 AND code = $3 AND NOT verified
		ORDER BY created_at DESC LIMIT 1`
	var c OTPChallenge
	err := r.conn(ctx).QueryRow(ctx, q, patientID, doctorID, code).Scan(
		&c.ID, &c.PatientID, &c.DoctorID, &c.Code, &c.Verified, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *RepoPG) MarkVerified(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE otp_challenges SET verified = TRUE WHERE id = $1 AND NOT verified`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
