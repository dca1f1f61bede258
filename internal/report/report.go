package report

import (
	"math"
	"time"
)

// ItemCounts holds per-item compliance counts among a set of checks.
type ItemCounts struct {
	BlazerOrSuit int `json:"black_blazer"`
	Tie          int `json:"tie"`
	WhiteShirt   int `json:"white_shirt"`
	IDCard       int `json:"id_card"`
}

// DailyStats summarizes one day of checks across the whole school.
type DailyStats struct {
	TotalStudents  int        `json:"total_students"`
	PresentToday   int        `json:"present_today"`
	AbsentToday    int        `json:"absent_today"`
	TotalChecks    int        `json:"total_checks"`
	Compliant      int        `json:"compliant"`
	NonCompliant   int        `json:"non_compliant"`
	ItemCompliance ItemCounts `json:"item_compliance"`
}

// MonthlyStats summarizes one student's checks for a calendar month.
type MonthlyStats struct {
	Year           int        `json:"year"`
	Month          int        `json:"month"`
	TotalChecks    int        `json:"total_checks"`
	Compliant      int        `json:"compliant"`
	NonCompliant   int        `json:"non_compliant"`
	ComplianceRate float64    `json:"compliance_rate"`
	ItemCompliance ItemCounts `json:"item_compliance"`
}

// DayReport is one day's totals in the weekly report.
type DayReport struct {
	Date         string `json:"date"`
	Total        int    `json:"total"`
	Compliant    int    `json:"compliant"`
	NonCompliant int    `json:"non_compliant"`
}

// Violation is one non-compliant check annotated with the missing items.
type Violation struct {
	StudentName  string   `json:"student_name"`
	CheckTime    string   `json:"check_time"`
	MissingItems []string `json:"missing_items"`
	ImagePath    string   `json:"image_path"`
}

// HistoryEntry is one row of a student's recent check history.
type HistoryEntry struct {
	CheckTime    string `json:"check_time"`
	BlazerOrSuit bool   `json:"black_blazer_or_suit"`
	Tie          bool   `json:"tie"`
	WhiteShirt   bool   `json:"white_shirt"`
	IDCard       bool   `json:"id_card"`
	Overall      bool   `json:"overall_compliance"`
	ImagePath    string `json:"image_path"`
}

// ComplianceRate is compliant/total as a percentage rounded to two decimals,
// and 0 when there are no checks.
func ComplianceRate(compliant, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(compliant) / float64(total) * 100
	return math.Round(rate*100) / 100
}

// MissingItems names the sub-checks that are false, in report order.
func MissingItems(blazer, tie, shirt, idCard bool) []string {
	var missing []string
	if !blazer {
		missing = append(missing, "Blazer")
	}
	if !tie {
		missing = append(missing, "Tie")
	}
	if !shirt {
		missing = append(missing, "Shirt")
	}
	if !idCard {
		missing = append(missing, "ID Card")
	}
	return missing
}

// weekDays returns the trailing seven dates ending at the given day, ascending.
func weekDays(end time.Time) []time.Time {
	days := make([]time.Time, 0, 7)
	start := end.AddDate(0, 0, -6)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
