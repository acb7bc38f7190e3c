package patient

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

const patientCols = `p.id, p.user_id, p.health_id, p.qr_payload, u.full_name, u.email,
	p.date_of_birth, p.gender, p.contact_number, p.address, p.blood_group,
	p.organ_donor, p.allergies, p.chronic_conditions, p.created_at, p.updated_at`

const patientFrom = `FROM patients p JOIN users u ON u.id = p.user_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.UserID, &p.HealthID, &p.QRPayload, &p.FullName, &p.Email,
		&p.DateOfBirth, &p.Gender, &p.ContactNumber, &p.Address, &p.BloodGroup,
		&p.OrganDonor, &p.Allergies, &p.ChronicConditions, &p.CreatedAt, &p.UpdatedAt,
	)
	return &p, err
}

func (r *RepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	q := `INSERT INTO patients (id, user_id, health_id, qr_payload, date_of_birth, gender,
		contact_number, address, blood_group, organ_donor, allergies, chronic_conditions,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.conn(ctx).QueryRow(ctx, q,
		p.ID, p.UserID, p.HealthID, p.QRPayload, p.DateOfBirth, p.Gender,
		p.ContactNumber, p.Address, p.BloodGroup, p.OrganDonor, p.Allergies, p.ChronicConditions,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	q := fmt.Sprintf("SELECT %s %s WHERE p.id = $1", patientCols, patientFrom)
	return scanPatient(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	q := fmt.Sprintf("SELECT %s %s WHERE p.user_id = $1", patientCols, patientFrom)
	return scanPatient(r.conn(ctx).QueryRow(ctx, q, userID))
}

func (r *RepoPG) GetByHealthID(ctx context.Context, healthID string) (*Patient, error) {
	q := fmt.Sprintf("SELECT %s %s WHERE p.health_id = $1", patientCols, patientFrom)
	return scanPatient(r.conn(ctx).QueryRow(ctx, q, healthID))
}

func (r *RepoPG) Update(ctx context.Context, p *Patient) error {
	q := `UPDATE patients SET date_of_birth = $2, gender = $3, contact_number = $4,
		address = $5, blood_group = $6, organ_donor = $7, allergies = $8,
		chronic_conditions = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	return r.conn(ctx).QueryRow(ctx, q,
		p.ID, p.DateOfBirth, p.Gender, p.ContactNumber, p.Address,
		p.BloodGroup, p.OrganDonor, p.Allergies, p.ChronicConditions,
	).Scan(&p.UpdatedAt)
}

func (r *RepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM patients").Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s %s ORDER BY p.created_at DESC LIMIT $1 OFFSET $2", patientCols, patientFrom)
	rows, err := r.conn(ctx).Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) AddContact(ctx context.Context, c *EmergencyContact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	q := `INSERT INTO emergency_contacts (id, patient_id, name, relationship, phone, can_grant_access, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at`
	return r.conn(ctx).QueryRow(ctx, q,
		c.ID, c.PatientID, c.Name, c.Relationship, c.Phone, c.CanGrantAccess,
	).Scan(&c.CreatedAt)
}

func (r *RepoPG) ListContacts(ctx context.Context, patientID uuid.UUID) ([]*EmergencyContact, error) {
	q := `SELECT id, patient_id, name, relationship, phone, can_grant_access, created_at
		FROM emergency_contacts WHERE patient_id = $1 ORDER BY created_at`
	rows, err := r.conn(ctx).Query(ctx, q, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*EmergencyContact
	for rows.Next() {
		var c EmergencyContact
		if err := rows.Scan(&c.ID, &c.PatientID, &c.Name, &c.Relationship, &c.Phone, &c.CanGrantAccess, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

func (r *RepoPG) RemoveContact(ctx context.Context, patientID, contactID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM emergency_contacts WHERE id = $1 AND patient_id = $2`, contactID, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
