package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"uniformcheck/internal/auth"
	"uniformcheck/internal/check"
	"uniformcheck/internal/report"
	"uniformcheck/internal/session"
)

// MaxUploadSize bounds check photo uploads.
const MaxUploadSize = 8 << 20

// Submitter runs the check pipeline for one photo.
type Submitter interface {
	Submit(ctx context.Context, student check.Student, image []byte) (check.Result, error)
}

// StudentStore is the persistence surface the handlers need for students.
type StudentStore interface {
	Authenticate(ctx context.Context, username, password string) (*check.Student, error)
	InsertStudent(ctx context.Context, id int64, name, username, password string) error
	ListStudents(ctx context.Context) ([]check.Student, error)
}

// Reporter answers the read-side aggregation queries.
type Reporter interface {
	Daily(ctx context.Context, day time.Time) (report.DailyStats, error)
	Monthly(ctx context.Context, studentID int64, year, month int) (report.MonthlyStats, error)
	Weekly(ctx context.Context, end time.Time) ([]report.DayReport, error)
	Violations(ctx context.Context, day time.Time) ([]report.Violation, error)
	StudentHistory(ctx context.Context, studentID int64) ([]report.HistoryEntry, error)
	Absent(ctx context.Context, day time.Time) ([]check.Student, error)
}

// Deps collects everything the routes are wired with.
type Deps struct {
	Pipeline Submitter
	Students StudentStore
	Reports  Reporter
	Sessions session.Store
	Logger   *zap.Logger

	JWTIssuer     string
	JWTSigningKey string
	KioskTTL      time.Duration

	TeacherUsername string
	TeacherPassword string
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(r *gin.Engine, d Deps) {
	r.POST("/login", d.studentLogin)
	r.POST("/teacher/login", d.teacherLogin)
	r.POST("/logout", d.logout)

	r.POST("/v1/kiosks/register", d.registerKiosk)

	kiosk := r.Group("/v1", auth.KioskAuth(d.JWTSigningKey, d.JWTIssuer))
	kiosk.POST("/checks", d.submitCheck)

	student := r.Group("/v1", d.sessionRequired(""))
	student.GET("/students/:id/history", d.studentHistory)
	student.GET("/students/:id/monthly", d.studentMonthly)

	teacher := r.Group("/v1", d.sessionRequired(session.RoleTeacher))
	teacher.GET("/students", d.listStudents)
	teacher.POST("/students", d.addStudent)
	teacher.GET("/reports/daily", d.dailyReport)
	teacher.GET("/reports/weekly", d.weeklyReport)
	teacher.GET("/reports/violations", d.violations)
	teacher.GET("/reports/absent", d.absentStudents)
}

func (d Deps) studentLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := d.Students.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if student == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	token, err := d.Sessions.Create(c.Request.Context(), session.Identity{
		StudentID: student.ID,
		Name:      student.Name,
		Username:  student.Username,
		Role:      session.RoleStudent,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session create failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "student": student})
}

func (d Deps) teacherLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username != d.TeacherUsername || req.Password != d.TeacherPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	token, err := d.Sessions.Create(c.Request.Context(), session.Identity{
		Name:     req.Username,
		Username: req.Username,
		Role:     session.RoleTeacher,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session create failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (d Deps) logout(c *gin.Context) {
	token := sessionToken(c)
	if token != "" {
		_ = d.Sessions.Invalidate(c.Request.Context(), token)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (d Deps) registerKiosk(c *gin.Context) {
	var req struct {
		KioskID string `json:"kiosk_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := auth.Issue(req.KioskID, d.JWTIssuer, d.JWTSigningKey, d.KioskTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token": token.Value,
		"expires_at":   token.ExpiresAt.Unix(),
	})
}

// submitCheck runs the pipeline. The kiosk posts on behalf of the logged-in
// student, so the student session token travels in the form.
func (d Deps) submitCheck(c *gin.Context) {
	token := c.PostForm("session")
	if token == "" {
		token = sessionToken(c)
	}
	id, ok, err := d.Sessions.Lookup(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	if !ok || id.Role != session.RoleStudent {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "student session required"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	result, err := d.Pipeline.Submit(c.Request.Context(), check.Student{
		ID:       id.StudentID,
		Name:     id.Name,
		Username: id.Username,
	}, data)
	if err != nil {
		d.Logger.Error("check submission failed", zap.Error(err), zap.Int64("student_id", id.StudentID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "check failed"})
		return
	}

	switch result.Status {
	case check.StatusFaceMismatch:
		c.JSON(http.StatusOK, gin.H{
			"success":           false,
			"status":            result.Status,
			"error":             "Face verification failed",
			"message":           "The person in the image does not match the registered user",
			"face_verification": result.FaceMatch,
			"image_url":         "/" + result.ImagePath,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"status":            result.Status,
			"check_id":          result.CheckID,
			"face_verified":     result.FaceVerified,
			"face_verification": result.FaceMatch,
			"results":           result.Judgment,
			"detail":            result.Detail,
			"image_url":         "/" + result.ImagePath,
		})
	}
}

func (d Deps) studentHistory(c *gin.Context) {
	studentID, ok := d.studentParam(c)
	if !ok {
		return
	}
	history, err := d.Reports.StudentHistory(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": history})
}

func (d Deps) studentMonthly(c *gin.Context) {
	studentID, ok := d.studentParam(c)
	if !ok {
		return
	}
	year, _ := strconv.Atoi(c.Query("year"))
	month, _ := strconv.Atoi(c.Query("month"))
	stats, err := d.Reports.Monthly(c.Request.Context(), studentID, year, month)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "year": stats.Year, "month": stats.Month, "statistics": stats})
}

func (d Deps) listStudents(c *gin.Context) {
	students, err := d.Students.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (d Deps) addStudent(c *gin.Context) {
	var req struct {
		ID       int64  `json:"id" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := d.Students.InsertStudent(c.Request.Context(), req.ID, req.Name, req.Username, req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

func (d Deps) dailyReport(c *gin.Context) {
	stats, err := d.Reports.Daily(c.Request.Context(), reportDay(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (d Deps) weeklyReport(c *gin.Context) {
	days, err := d.Reports.Weekly(c.Request.Context(), reportDay(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (d Deps) violations(c *gin.Context) {
	list, err := d.Reports.Violations(c.Request.Context(), reportDay(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"violations": list})
}

func (d Deps) absentStudents(c *gin.Context) {
	list, err := d.Reports.Absent(c.Request.Context(), reportDay(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"absent": list})
}

// sessionRequired resolves the session token and enforces an optional role.
// Students may only read their own records; teachers may read any.
func (d Deps) sessionRequired(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
			return
		}
		id, ok, err := d.Sessions.Lookup(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		if role != "" && id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Set("identity", id)
		c.Next()
	}
}

// studentParam parses :id and checks the caller may read that student.
func (d Deps) studentParam(c *gin.Context) (int64, bool) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return 0, false
	}
	idAny, _ := c.Get("identity")
	id, _ := idAny.(session.Identity)
	if id.Role != session.RoleTeacher && id.StudentID != studentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return 0, false
	}
	return studentID, true
}

// reportDay reads an optional ?date=YYYY-MM-DD query, defaulting to today.
func reportDay(c *gin.Context) time.Time {
	if v := c.Query("date"); v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			return parsed
		}
	}
	return time.Now()
}

func sessionToken(c *gin.Context) string {
	if v := c.GetHeader("X-Session-Token"); v != "" {
		return v
	}
	return c.Query("session")
}
