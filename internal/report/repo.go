package report

import (
	"context"
	"database/sql"
	"time"

	"uniformcheck/internal/check"
)

// Repository answers read-side queries over uniform_checks. Every call hits
// the database; nothing is cached.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Daily computes school-wide statistics for the given day.
func (r *Repository) Daily(ctx context.Context, day time.Time) (DailyStats, error) {
	var stats DailyStats

	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE overall_compliance),
			COUNT(*) FILTER (WHERE NOT overall_compliance),
			COUNT(DISTINCT student_id),
			COUNT(*) FILTER (WHERE black_blazer_or_suit),
			COUNT(*) FILTER (WHERE tie),
			COUNT(*) FILTER (WHERE white_shirt),
			COUNT(*) FILTER (WHERE id_card)
		FROM uniform_checks
		WHERE check_time::date = $1::date
	`, day)
	if err := row.Scan(&stats.TotalChecks, &stats.Compliant, &stats.NonCompliant,
		&stats.PresentToday, &stats.ItemCompliance.BlazerOrSuit, &stats.ItemCompliance.Tie,
		&stats.ItemCompliance.WhiteShirt, &stats.ItemCompliance.IDCard); err != nil {
		return DailyStats{}, err
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&stats.TotalStudents); err != nil {
		return DailyStats{}, err
	}
	stats.AbsentToday = stats.TotalStudents - stats.PresentToday
	return stats, nil
}

// Monthly computes one student's statistics for a calendar month. Zero year
// or month defaults to the current month.
func (r *Repository) Monthly(ctx context.Context, studentID int64, year, month int) (MonthlyStats, error) {
	if year == 0 || month == 0 {
		now := time.Now()
		year, month = now.Year(), int(now.Month())
	}
	stats := MonthlyStats{Year: year, Month: month}

	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE overall_compliance),
			COUNT(*) FILTER (WHERE black_blazer_or_suit),
			COUNT(*) FILTER (WHERE tie),
			COUNT(*) FILTER (WHERE white_shirt),
			COUNT(*) FILTER (WHERE id_card)
		FROM uniform_checks
		WHERE student_id = $1
		  AND EXTRACT(YEAR FROM check_time) = $2
		  AND EXTRACT(MONTH FROM check_time) = $3
	`, studentID, year, month)
	if err := row.Scan(&stats.TotalChecks, &stats.Compliant,
		&stats.ItemCompliance.BlazerOrSuit, &stats.ItemCompliance.Tie,
		&stats.ItemCompliance.WhiteShirt, &stats.ItemCompliance.IDCard); err != nil {
		return MonthlyStats{}, err
	}
	stats.NonCompliant = stats.TotalChecks - stats.Compliant
	stats.ComplianceRate = ComplianceRate(stats.Compliant, stats.TotalChecks)
	return stats, nil
}

// Weekly returns per-day totals for the trailing seven days inclusive of the
// given day, ascending, with zero-filled entries for days without checks.
func (r *Repository) Weekly(ctx context.Context, end time.Time) ([]DayReport, error) {
	start := end.AddDate(0, 0, -6)
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			check_time::date,
			COUNT(*),
			COUNT(*) FILTER (WHERE overall_compliance)
		FROM uniform_checks
		WHERE check_time::date BETWEEN $1::date AND $2::date
		GROUP BY check_time::date
		ORDER BY check_time::date
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[string]DayReport)
	for rows.Next() {
		var day time.Time
		var total, compliant int
		if err := rows.Scan(&day, &total, &compliant); err != nil {
			return nil, err
		}
		key := day.Format("2006-01-02")
		byDay[key] = DayReport{Date: key, Total: total, Compliant: compliant, NonCompliant: total - compliant}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var res []DayReport
	for _, d := range weekDays(end) {
		key := d.Format("2006-01-02")
		if rep, ok := byDay[key]; ok {
			res = append(res, rep)
		} else {
			res = append(res, DayReport{Date: key})
		}
	}
	return res, nil
}

// Violations lists the given day's non-compliant checks, most recent first,
// each annotated with which items were missing.
func (r *Repository) Violations(ctx context.Context, day time.Time) ([]Violation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_name, check_time, black_blazer_or_suit, tie, white_shirt, id_card, image_path
		FROM uniform_checks
		WHERE check_time::date = $1::date AND NOT overall_compliance
		ORDER BY check_time DESC
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Violation
	for rows.Next() {
		var name string
		var when time.Time
		var blazer, tie, shirt, idCard bool
		var imagePath sql.NullString
		if err := rows.Scan(&name, &when, &blazer, &tie, &shirt, &idCard, &imagePath); err != nil {
			return nil, err
		}
		res = append(res, Violation{
			StudentName:  name,
			CheckTime:    when.Format("03:04 PM"),
			MissingItems: MissingItems(blazer, tie, shirt, idCard),
			ImagePath:    imagePath.String,
		})
	}
	return res, rows.Err()
}

// StudentHistory returns a student's last ten checks, most recent first.
func (r *Repository) StudentHistory(ctx context.Context, studentID int64) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT check_time, black_blazer_or_suit, tie, white_shirt, id_card, overall_compliance, image_path
		FROM uniform_checks
		WHERE student_id = $1
		ORDER BY check_time DESC
		LIMIT 10
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var when time.Time
		var imagePath sql.NullString
		if err := rows.Scan(&when, &e.BlazerOrSuit, &e.Tie, &e.WhiteShirt, &e.IDCard, &e.Overall, &imagePath); err != nil {
			return nil, err
		}
		e.CheckTime = when.Format("2006-01-02 03:04 PM")
		e.ImagePath = imagePath.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// Absent lists students with zero checks on the given day, ordered by name.
func (r *Repository) Absent(ctx context.Context, day time.Time) ([]check.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_name, s.username
		FROM students s
		WHERE s.id NOT IN (
			SELECT DISTINCT student_id FROM uniform_checks
			WHERE check_time::date = $1::date AND student_id IS NOT NULL
		)
		ORDER BY s.student_name
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []check.Student
	for rows.Next() {
		var s check.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Username); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
