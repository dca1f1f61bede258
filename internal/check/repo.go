package check

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Student is an identity record. Passwords are stored as provisioned; checks
// reference students by id.
type Student struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Check is one persisted uniform-check row. The beard flag from the
// classifier is deliberately not part of this record.
type Check struct {
	ID           int64     `json:"id"`
	StudentID    int64     `json:"student_id"`
	StudentName  string    `json:"student_name"`
	CheckTime    time.Time `json:"check_time"`
	BlazerOrSuit bool      `json:"black_blazer_or_suit"`
	Tie          bool      `json:"tie"`
	WhiteShirt   bool      `json:"white_shirt"`
	IDCard       bool      `json:"id_card"`
	Overall      bool      `json:"overall_compliance"`
	ImagePath    string    `json:"image_path"`
	FaceVerified bool      `json:"face_verified"`
}

// Repository persists students and uniform checks in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS students (
			id BIGINT PRIMARY KEY,
			student_name VARCHAR(255) NOT NULL,
			username VARCHAR(255) NOT NULL UNIQUE,
			password VARCHAR(255) NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS uniform_checks (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT REFERENCES students(id) ON DELETE CASCADE,
			student_name VARCHAR(255),
			check_time TIMESTAMPTZ NOT NULL,
			black_blazer_or_suit BOOLEAN NOT NULL DEFAULT FALSE,
			tie BOOLEAN NOT NULL DEFAULT FALSE,
			white_shirt BOOLEAN NOT NULL DEFAULT FALSE,
			id_card BOOLEAN NOT NULL DEFAULT FALSE,
			overall_compliance BOOLEAN NOT NULL DEFAULT FALSE,
			image_path VARCHAR(500),
			face_verified BOOLEAN NOT NULL DEFAULT TRUE
		)
	`)
	return err
}

// Authenticate looks up a student by credentials. Returns (nil, nil) when no
// student matches.
func (r *Repository) Authenticate(ctx context.Context, username, password string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_name, username FROM students
		WHERE username = $1 AND password = $2
	`, username, password)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// InsertStudent adds a student record (administrative insertion).
func (r *Repository) InsertStudent(ctx context.Context, id int64, name, username, password string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, student_name, username, password)
		VALUES ($1, $2, $3, $4)
	`, id, name, username, password)
	return err
}

// ListStudents returns all students ordered by name.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_name, username FROM students ORDER BY student_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Username); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertCheck writes one uniform-check row and returns it with the assigned id.
func (r *Repository) InsertCheck(ctx context.Context, c Check) (Check, error) {
	if c.CheckTime.IsZero() {
		c.CheckTime = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO uniform_checks
			(student_id, student_name, check_time, black_blazer_or_suit, tie,
			 white_shirt, id_card, overall_compliance, image_path, face_verified)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, c.StudentID, c.StudentName, c.CheckTime, c.BlazerOrSuit, c.Tie,
		c.WhiteShirt, c.IDCard, c.Overall, c.ImagePath, c.FaceVerified)
	if err := row.Scan(&c.ID); err != nil {
		return Check{}, err
	}
	return c, nil
}

// GetCheck returns a single check by id.
func (r *Repository) GetCheck(ctx context.Context, id int64) (Check, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, student_name, check_time, black_blazer_or_suit,
		       tie, white_shirt, id_card, overall_compliance, image_path, face_verified
		FROM uniform_checks WHERE id = $1
	`, id)
	var c Check
	if err := row.Scan(&c.ID, &c.StudentID, &c.StudentName, &c.CheckTime,
		&c.BlazerOrSuit, &c.Tie, &c.WhiteShirt, &c.IDCard, &c.Overall,
		&c.ImagePath, &c.FaceVerified); err != nil {
		return Check{}, err
	}
	return c, nil
}
