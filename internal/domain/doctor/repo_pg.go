package doctor

import (
	"context"
	"fmt"

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

func (r *RepoPG) CreateHospital(ctx context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	q := `INSERT INTO hospitals (id, name, address, city, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING created_at`
	return r.conn(ctx).QueryRow(ctx, q, h.ID, h.Name, h.Address, h.City, h.Phone).Scan(&h.CreatedAt)
}

func (r *RepoPG) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	var h Hospital
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, address, city, phone, created_at FROM hospitals WHERE id = $1`, id,
	).Scan(&h.ID, &h.Name, &h.Address, &h.City, &h.Phone, &h.CreatedAt)
	return &h, err
}

func (r *RepoPG) ListHospitals(ctx context.Context) ([]*Hospital, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, address, city, phone, created_at FROM hospitals ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Hospital
	for rows.Next() {
		var h Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.Address, &h.City, &h.Phone, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}

const doctorCols = `d.id, d.user_id, d.hospital_id, u.full_name, u.email, d.license_number,
	d.specialization, d.authorization_level, d.is_verified, d.rejection_reason,
	d.verified_at, d.created_at, d.updated_at`

const doctorFrom = `FROM doctors d JOIN users u ON u.id = d.user_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.UserID, &d.HospitalID, &d.FullName, &d.Email, &d.LicenseNumber,
		&d.Specialization, &d.AuthorizationLevel, &d.IsVerified, &d.RejectionReason,
		&d.VerifiedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	return &d, err
}

func (r *RepoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	q := `INSERT INTO doctors (id, user_id, hospital_id, license_number, specialization,
			authorization_level, is_verified, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, '', NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.conn(ctx).QueryRow(ctx, q,
		d.ID, d.UserID, d.HospitalID, d.LicenseNumber, d.Specialization, d.AuthorizationLevel,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	q := fmt.Sprintf("SELECT %s %s WHERE d.id = $1", doctorCols, doctorFrom)
	return scanDoctor(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	q := fmt.Sprintf("SELECT %s %s WHERE d.user_id = $1", doctorCols, doctorFrom)
	return scanDoctor(r.conn(ctx).QueryRow(ctx, q, userID))
}

func (r *RepoPG) Update(ctx context.Context, d *Doctor) error {
	q := `UPDATE doctors SET hospital_id = $2, specialization = $3, authorization_level = $4,
			is_verified = $5, rejection_reason = $6, verified_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	return r.conn(ctx).QueryRow(ctx, q,
		d.ID, d.HospitalID, d.Specialization, d.AuthorizationLevel,
		d.IsVerified, d.RejectionReason, d.VerifiedAt,
	).Scan(&d.UpdatedAt)
}

func (r *RepoPG) List(ctx context.Context, verifiedOnly bool, limit, offset int) ([]*Doctor, int, error) {
	where := ""
	if verifiedOnly {
		where = "WHERE d.is_verified"
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM doctors d %s", where)
	if err := r.conn(ctx).QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s %s %s ORDER BY d.created_at DESC LIMIT $1 OFFSET $2",
		doctorCols, doctorFrom, where)
	rows, err := r.conn(ctx).Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) ListPending(ctx context.Context) ([]*Doctor, error) {
	q := fmt.Sprintf(`SELECT %s %s
		WHERE NOT d.is_verified AND d.rejection_reason = ''
		ORDER BY d.created_at`, doctorCols, doctorFrom)
	rows, err := r.conn(ctx).Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *RepoPG) CreateConsultation(ctx context.Context, c *Consultation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	q := `INSERT INTO consultations (id, patient_id, doctor_id, symptoms, diagnosis, prescription, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`
	return r.conn(ctx).QueryRow(ctx, q,
		c.ID, c.PatientID, c.DoctorID, c.Symptoms, c.Diagnosis, c.Prescription, c.Notes,
	).Scan(&c.CreatedAt)
}

func (r *RepoPG) ListConsultations(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultations WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT c.id, c.patient_id, c.doctor_id, u.full_name, c.symptoms, c.diagnosis,
			c.prescription, c.notes, c.created_at
		FROM consultations c
		JOIN doctors d ON d.id = c.doctor_id
		JOIN users u ON u.id = d.user_id
		WHERE c.patient_id = $1
		ORDER BY c.created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.conn(ctx).Query(ctx, q, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Consultation
	for rows.Next() {
		var c Consultation
		if err := rows.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.DoctorName, &c.Symptoms,
			&c.Diagnosis, &c.Prescription, &c.Notes, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &c)
	}
	return items, total, rows.Err()
}
