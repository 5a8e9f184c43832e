package labrequest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/dentallab/labdesk/internal/domain/quote"
)

// SQLiteRepo keeps requests in a single-file SQLite database. It is meant for
// single-node deployments and local development; the schema is created on
// open.
type SQLiteRepo struct {
	db   *sql.DB
	path string
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS lab_request (
	id               TEXT PRIMARY KEY,
	doctor_id        TEXT NOT NULL,
	doctor_name      TEXT,
	patient_ref      TEXT,
	material         TEXT NOT NULL,
	shade            TEXT,
	notes            TEXT,
	tooth_groups     TEXT NOT NULL,
	dates            TEXT,
	pricing          TEXT,
	quote            TEXT,
	status           TEXT NOT NULL,
	rejection_reason TEXT,
	version          INTEGER NOT NULL,
	submitted_at     TEXT,
	signed_at        TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lab_request_doctor ON lab_request(doctor_id);
CREATE INDEX IF NOT EXISTS idx_lab_request_status ON lab_request(status);`

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteRepo, error) {
	if path == "" {
		path = "labdesk.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create lab_request table: %w", err)
	}
	return &SQLiteRepo{db: db, path: path}, nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

// Ping checks the database is reachable.
func (r *SQLiteRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Path returns the database file.
func (r *SQLiteRepo) Path() string { return r.path }

// Fixed-width so that ORDER BY on the text column is chronological.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqliteTime)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(sqliteTime, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", s.String, err)
	}
	return &t, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLiteRepo) scanRequest(row rowScanner) (*Request, error) {
	var (
		req                                  Request
		id, material, status                 string
		doctorName, patientRef, shade, notes sql.NullString
		groups                               string
		dates, pricing, quoteJSON            sql.NullString
		rejection                            sql.NullString
		submittedAt, signedAt                sql.NullString
		createdAt, updatedAt                 string
	)
	err := row.Scan(&id, &req.DoctorID, &doctorName, &patientRef, &material, &shade, &notes,
		&groups, &dates, &pricing, &quoteJSON, &status, &rejection, &req.Version,
		&submittedAt, &signedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if req.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	req.DoctorName = stringPtr(doctorName)
	req.PatientRef = stringPtr(patientRef)
	req.TechnicalInfo = TechnicalInfo{Material: quote.Material(material), Shade: stringPtr(shade), Notes: stringPtr(notes)}
	req.Status = Status(status)
	req.RejectionReason = stringPtr(rejection)

	cols := jsonColumns{groups: []byte(groups)}
	if dates.Valid {
		cols.dates = []byte(dates.String)
	}
	if pricing.Valid {
		cols.pricing = []byte(pricing.String)
	}
	if quoteJSON.Valid {
		cols.quote = []byte(quoteJSON.String)
	}
	if err := cols.decodeInto(&req); err != nil {
		return nil, err
	}

	if req.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return nil, err
	}
	if req.SignedAt, err = parseTime(signedAt); err != nil {
		return nil, err
	}
	created, err := parseTime(sql.NullString{String: createdAt, Valid: true})
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(sql.NullString{String: updatedAt, Valid: true})
	if err != nil {
		return nil, err
	}
	req.CreatedAt, req.UpdatedAt = *created, *updated
	return &req, nil
}

func (r *SQLiteRepo) Create(ctx context.Context, req *Request) error {
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
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lab_request (id, doctor_id, doctor_name, patient_ref, material, shade, notes,
			tooth_groups, dates, pricing, quote, status, rejection_reason, version,
			submitted_at, signed_at, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID.String(), req.DoctorID, nullString(req.DoctorName), nullString(req.PatientRef),
		string(req.TechnicalInfo.Material), nullString(req.TechnicalInfo.Shade), nullString(req.TechnicalInfo.Notes),
		string(cols.groups), nullBytes(cols.dates), nullBytes(cols.pricing), nullBytes(cols.quote),
		string(req.Status), nullString(req.RejectionReason), req.Version,
		formatTime(req.SubmittedAt), formatTime(req.SignedAt), formatTime(&now), formatTime(&now))
	if err != nil {
		return fmt.Errorf("insert lab request: %w", err)
	}
	req.CreatedAt, req.UpdatedAt = now, now
	return nil
}

func (r *SQLiteRepo) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scanRequest(r.db.QueryRowContext(ctx, `SELECT `+reqCols+` FROM lab_request WHERE id = ?`, id.String()))
}

func (r *SQLiteRepo) Update(ctx context.Context, req *Request) error {
	cols, err := encodeColumns(req)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE lab_request SET doctor_name=?, patient_ref=?, material=?, shade=?, notes=?,
			tooth_groups=?, dates=?, pricing=?, quote=?, status=?, rejection_reason=?,
			submitted_at=?, signed_at=?, version = version + 1, updated_at=?
		WHERE id = ? AND version = ?`,
		nullString(req.DoctorName), nullString(req.PatientRef),
		string(req.TechnicalInfo.Material), nullString(req.TechnicalInfo.Shade), nullString(req.TechnicalInfo.Notes),
		string(cols.groups), nullBytes(cols.dates), nullBytes(cols.pricing), nullBytes(cols.quote),
		string(req.Status), nullString(req.RejectionReason),
		formatTime(req.SubmittedAt), formatTime(req.SignedAt), formatTime(&now),
		req.ID.String(), req.Version)
	if err != nil {
		return fmt.Errorf("update lab request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lab_request WHERE id = ?`, req.ID.String()).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	req.Version++
	req.UpdatedAt = now
	return nil
}

func (r *SQLiteRepo) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Request, int, error) {
	var where []string
	var args []interface{}
	if filter.DoctorID != "" {
		where = append(where, "doctor_id = ?")
		args = append(args, filter.DoctorID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lab_request`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reqCols+` FROM lab_request`+clause+` ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()
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
