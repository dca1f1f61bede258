package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"uniformcheck/internal/auth"
	"uniformcheck/internal/check"
	"uniformcheck/internal/report"
	"uniformcheck/internal/session"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "uniformcheck-test"
)

type stubSubmitter struct {
	result  check.Result
	err     error
	student check.Student
}

func (s *stubSubmitter) Submit(ctx context.Context, student check.Student, image []byte) (check.Result, error) {
	s.student = student
	return s.result, s.err
}

type stubStudents struct {
	byCreds map[string]check.Student
}

func (s *stubStudents) Authenticate(ctx context.Context, username, password string) (*check.Student, error) {
	if st, ok := s.byCreds[username+":"+password]; ok {
		return &st, nil
	}
	return nil, nil
}

func (s *stubStudents) InsertStudent(ctx context.Context, id int64, name, username, password string) error {
	return nil
}

func (s *stubStudents) ListStudents(ctx context.Context) ([]check.Student, error) {
	return nil, nil
}

type stubReporter struct {
	history []report.HistoryEntry
}

func (s *stubReporter) Daily(ctx context.Context, day time.Time) (report.DailyStats, error) {
	return report.DailyStats{}, nil
}

func (s *stubReporter) Monthly(ctx context.Context, studentID int64, year, month int) (report.MonthlyStats, error) {
	return report.MonthlyStats{Year: year, Month: month}, nil
}

func (s *stubReporter) Weekly(ctx context.Context, end time.Time) ([]report.DayReport, error) {
	return nil, nil
}

func (s *stubReporter) Violations(ctx context.Context, day time.Time) ([]report.Violation, error) {
	return nil, nil
}

func (s *stubReporter) StudentHistory(ctx context.Context, studentID int64) ([]report.HistoryEntry, error) {
	return s.history, nil
}

func (s *stubReporter) Absent(ctx context.Context, day time.Time) ([]check.Student, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, submitter *stubSubmitter) (*gin.Engine, session.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := session.NewMemory(time.Hour)
	r := gin.New()
	RegisterRoutes(r, Deps{
		Pipeline: submitter,
		Students: &stubStudents{byCreds: map[string]check.Student{
			"shivraj26:pass": {ID: 7, Name: "Shiva R", Username: "shivraj26"},
		}},
		Reports:         &stubReporter{history: []report.HistoryEntry{{CheckTime: "2024-03-10 08:00 AM"}}},
		Sessions:        sessions,
		Logger:          zap.NewNop(),
		JWTIssuer:       testIssuer,
		JWTSigningKey:   testSigningKey,
		KioskTTL:        time.Hour,
		TeacherUsername: "teach26",
		TeacherPassword: "teach@123",
	})
	return r, sessions
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStudentLoginIssuesSession(t *testing.T) {
	r, sessions := newTestRouter(t, &stubSubmitter{})

	resp := doJSON(t, r, http.MethodPost, "/login", map[string]string{
		"username": "shivraj26", "password": "pass",
	}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	id, ok, err := sessions.Lookup(context.Background(), out.Token)
	if err != nil || !ok {
		t.Fatalf("issued token does not resolve: ok=%v err=%v", ok, err)
	}
	if id.StudentID != 7 || id.Role != session.RoleStudent {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestStudentLoginRejectsBadCredentials(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	resp := doJSON(t, r, http.MethodPost, "/login", map[string]string{
		"username": "shivraj26", "password": "wrong",
	}, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestTeacherReportsRequireTeacherRole(t *testing.T) {
	r, sessions := newTestRouter(t, &stubSubmitter{})

	studentToken, _ := sessions.Create(context.Background(), session.Identity{
		StudentID: 7, Username: "shivraj26", Role: session.RoleStudent,
	})
	resp := doJSON(t, r, http.MethodGet, "/v1/reports/daily", nil, map[string]string{
		"X-Session-Token": studentToken,
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("student must not read teacher reports, got %d", resp.Code)
	}

	teacherToken, _ := sessions.Create(context.Background(), session.Identity{
		Username: "teach26", Role: session.RoleTeacher,
	})
	resp = doJSON(t, r, http.MethodGet, "/v1/reports/daily", nil, map[string]string{
		"X-Session-Token": teacherToken,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("teacher report read failed: %d %s", resp.Code, resp.Body.String())
	}
}

func TestStudentHistoryForbiddenForOtherStudents(t *testing.T) {
	r, sessions := newTestRouter(t, &stubSubmitter{})
	token, _ := sessions.Create(context.Background(), session.Identity{
		StudentID: 7, Username: "shivraj26", Role: session.RoleStudent,
	})

	resp := doJSON(t, r, http.MethodGet, "/v1/students/8/history", nil, map[string]string{
		"X-Session-Token": token,
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another student's history, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodGet, "/v1/students/7/history", nil, map[string]string{
		"X-Session-Token": token,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("own history read failed: %d", resp.Code)
	}
}

func buildCheckUpload(t *testing.T, sessionToken string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("session", sessionToken); err != nil {
		t.Fatalf("write session field: %v", err)
	}
	part, err := writer.CreateFormFile("image", "capture.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("jpeg-bytes")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestSubmitCheckRunsPipelineForSessionStudent(t *testing.T) {
	submitter := &stubSubmitter{result: check.Result{
		Status:       check.StatusOK,
		FaceVerified: true,
		CheckID:      42,
	}}
	r, sessions := newTestRouter(t, submitter)

	token, _ := sessions.Create(context.Background(), session.Identity{
		StudentID: 7, Name: "Shiva R", Username: "shivraj26", Role: session.RoleStudent,
	})
	kiosk, err := auth.Issue("kiosk-1", testIssuer, testSigningKey, time.Hour)
	if err != nil {
		t.Fatalf("issue kiosk token: %v", err)
	}

	body, contentType := buildCheckUpload(t, token)
	req := httptest.NewRequest(http.MethodPost, "/v1/checks", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+kiosk.Value)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if submitter.student.ID != 7 || submitter.student.Username != "shivraj26" {
		t.Fatalf("pipeline received wrong student: %+v", submitter.student)
	}
	if !strings.Contains(resp.Body.String(), `"check_id":42`) {
		t.Fatalf("response missing check id: %s", resp.Body.String())
	}
}

func TestSubmitCheckRejectsMissingKioskToken(t *testing.T) {
	r, sessions := newTestRouter(t, &stubSubmitter{})
	token, _ := sessions.Create(context.Background(), session.Identity{
		StudentID: 7, Username: "shivraj26", Role: session.RoleStudent,
	})

	body, contentType := buildCheckUpload(t, token)
	req := httptest.NewRequest(http.MethodPost, "/v1/checks", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without kiosk token, got %d", resp.Code)
	}
}

func TestSubmitCheckRejectsExpiredSession(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	kiosk, _ := auth.Issue("kiosk-1", testIssuer, testSigningKey, time.Hour)

	body, contentType := buildCheckUpload(t, "stale-token")
	req := httptest.NewRequest(http.MethodPost, "/v1/checks", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+kiosk.Value)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown session, got %d", resp.Code)
	}
}

func TestSubmitCheckFaceMismatchResponse(t *testing.T) {
	submitter := &stubSubmitter{result: check.Result{Status: check.StatusFaceMismatch}}
	r, sessions := newTestRouter(t, submitter)

	token, _ := sessions.Create(context.Background(), session.Identity{
		StudentID: 7, Username: "shivraj26", Role: session.RoleStudent,
	})
	kiosk, _ := auth.Issue("kiosk-1", testIssuer, testSigningKey, time.Hour)

	body, contentType := buildCheckUpload(t, token)
	req := httptest.NewRequest(http.MethodPost, "/v1/checks", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+kiosk.Value)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("mismatch is a handled outcome, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"success":false`) {
		t.Fatalf("mismatch response must report success=false: %s", resp.Body.String())
	}
}
