package labrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentallab/labdesk/internal/domain/quote"
	"github.com/dentallab/labdesk/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &requestRepoPG{pool: pool} }

func (r *requestRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reqCols = `id, doctor_id, doctor_name, patient_ref, material, shade, notes,
	tooth_groups, dates, pricing, quote, status, rejection_reason, version,
	submitted_at, signed_at, created_at, updated_at`

func (r *requestRepoPG) scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	var cols jsonColumns
	var material string
	err := row.Scan(&req.ID, &req.DoctorID, &req.DoctorName, &req.PatientRef,
		&material, &req.TechnicalInfo.Shade, &req.TechnicalInfo.Notes,
		&cols.groups, &cols.dates, &cols.pricing, &cols.quote,
		&req.Status, &req.RejectionReason, &req.Version,
		&req.SubmittedAt, &req.SignedAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	req.TechnicalInfo.Material = quote.Material(material)
	if err := cols.decodeInto(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepoPG) Create(ctx context.Context, req *Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Version == 0 {
		req.Version = 1
	}
	cols, err := encodeColumns(req)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_request (id, doctor_id, doctor_name, patient_ref, material, shade, notes,
			tooth_groups, dates, pricing, quote, status, rejection_reason, version, submitted_at, signed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		req.ID, req.DoctorID, req.DoctorName, req.PatientRef,
		string(req.TechnicalInfo.Material), req.TechnicalInfo.Shade, req.TechnicalInfo.Notes,
		cols.groups, cols.dates, cols.pricing, cols.quote,
		req.Status, req.RejectionReason, req.Version, req.SubmittedAt, req.SignedAt,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+reqCols+` FROM lab_request WHERE id = $1`, id))
}

func (r *requestRepoPG) Update(ctx context.Context, req *Request) error {
	cols, err := encodeColumns(req)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_request SET doctor_name=$3, patient_ref=$4, material=$5, shade=$6, notes=$7,
			tooth_groups=$8, dates=$9, pricing=$10, quote=$11, status=$12, rejection_reason=$13,
			submitted_at=$14, signed_at=$15, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		req.ID, req.Version, req.DoctorName, req.PatientRef,
		string(req.TechnicalInfo.Material), req.TechnicalInfo.Shade, req.TechnicalInfo.Notes,
		cols.groups, cols.dates, cols.pricing, cols.quote,
		req.Status, req.RejectionReason, req.SubmittedAt, req.SignedAt,
	).Scan(&req.Version, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if qerr := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lab_request WHERE id = $1)`, req.ID).Scan(&exists); qerr != nil {
			return qerr
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return err
}

func (r *requestRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Request, int, error) {
	var where []string
	var args []interface{}
	if filter.DoctorID != "" {
		args = append(args, filter.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_request`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM lab_request%s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		reqCols, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}
