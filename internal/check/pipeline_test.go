package check

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"uniformcheck/internal/imagestore"
	"uniformcheck/internal/queue"
	"uniformcheck/internal/vision"
)

type stubRecorder struct {
	inserted []Check
	err      error
	nextID   int64
}

func (s *stubRecorder) InsertCheck(ctx context.Context, c Check) (Check, error) {
	if s.err != nil {
		return Check{}, s.err
	}
	s.nextID++
	c.ID = s.nextID
	s.inserted = append(s.inserted, c)
	return c, nil
}

type stubImages struct {
	saveErr    error
	references map[string][]byte
	missing    map[string]bool
	saves      int
}

func (s *stubImages) Save(studentID int64, captured time.Time, data []byte) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saves++
	return fmt.Sprintf("static/uploads/uniform_%d_%d.jpg", studentID, s.saves), nil
}

func (s *stubImages) HasReference(username string) bool {
	if s.missing[username] {
		return true
	}
	_, ok := s.references[username]
	return ok
}

func (s *stubImages) Reference(username string) ([]byte, error) {
	if s.missing[username] {
		return nil, imagestore.ErrReferenceMissing
	}
	if data, ok := s.references[username]; ok {
		return data, nil
	}
	return nil, errors.New("not registered")
}

type stubClassifier struct {
	judgment vision.Judgment
	err      error
	calls    int
}

func (s *stubClassifier) ClassifyUniform(ctx context.Context, image []byte) (vision.Judgment, error) {
	s.calls++
	return s.judgment, s.err
}

type stubVerifier struct {
	match vision.FaceMatch
	err   error
	calls int
}

func (s *stubVerifier) VerifyFace(ctx context.Context, reference, candidate []byte) (vision.FaceMatch, error) {
	s.calls++
	return s.match, s.err
}

type stubPublisher struct {
	published []queue.Message
}

func (s *stubPublisher) Publish(ctx context.Context, msg queue.Message) error {
	s.published = append(s.published, msg)
	return nil
}

var testStudent = Student{ID: 7, Name: "Shiva R", Username: "shivraj26"}

func newTestPipeline(repo *stubRecorder, images *stubImages, cl *stubClassifier, v *stubVerifier, pub *stubPublisher, failOpen bool) *Pipeline {
	// Avoid wrapping a typed nil in the Publisher interface, which would
	// defeat the pipeline's nil-publisher guard.
	var p Publisher
	if pub != nil {
		p = pub
	}
	return NewPipeline(repo, images, cl, v, p, failOpen, zap.NewNop())
}

func TestSubmitWithoutReferenceSkipsVerification(t *testing.T) {
	repo := &stubRecorder{}
	images := &stubImages{}
	cl := &stubClassifier{judgment: vision.Judgment{
		BlazerOrSuit: true, WhiteShirt: true, IDCard: true, Tie: false, Overall: false,
	}}
	v := &stubVerifier{}
	pub := &stubPublisher{}

	res, err := newTestPipeline(repo, images, cl, v, pub, true).Submit(context.Background(), testStudent, []byte("jpeg"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("expected StatusOK, got %s", res.Status)
	}
	if v.calls != 0 {
		t.Fatal("verifier must not run without a reference image")
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected one row, got %d", len(repo.inserted))
	}
	row := repo.inserted[0]
	if !row.FaceVerified {
		t.Fatal("face_verified must default to true when verification is skipped")
	}
	if row.Tie || !row.BlazerOrSuit || !row.WhiteShirt || !row.IDCard {
		t.Fatalf("sub-checks not carried: %+v", row)
	}
	if row.Overall {
		t.Fatal("overall must be carried from the classifier, not derived")
	}
	if len(pub.published) != 1 {
		t.Fatalf("non-compliant check should publish a violation, got %d", len(pub.published))
	}
}

func TestSubmitFaceMismatchWritesNoRow(t *testing.T) {
	repo := &stubRecorder{}
	images := &stubImages{references: map[string][]byte{"shivraj26": []byte("ref")}}
	cl := &stubClassifier{judgment: vision.Judgment{Overall: true}}
	v := &stubVerifier{match: vision.FaceMatch{SamePerson: false, Confidence: "high"}}

	res, err := newTestPipeline(repo, images, cl, v, nil, true).Submit(context.Background(), testStudent, []byte("jpeg"))
	if err != nil {
		t.Fatalf("expected handled result, got error: %v", err)
	}
	if res.Status != StatusFaceMismatch {
		t.Fatalf("expected StatusFaceMismatch, got %s", res.Status)
	}
	if res.FaceVerified {
		t.Fatal("face_verified must be false on mismatch")
	}
	if cl.calls != 0 {
		t.Fatal("classifier must not run after a mismatch")
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("no row may be written on mismatch, got %d", len(repo.inserted))
	}
}

func TestSubmitMissingReferenceFailsOpen(t *testing.T) {
	repo := &stubRecorder{}
	images := &stubImages{missing: map[string]bool{"shivraj26": true}}
	cl := &stubClassifier{judgment: vision.Judgment{
		BlazerOrSuit: true, Tie: true, WhiteShirt: true, IDCard: true, Overall: true,
	}}
	v := &stubVerifier{}

	res, err := newTestPipeline(repo, images, cl, v, nil, true).Submit(context.Background(), testStudent, []byte("jpeg"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("expected StatusOK, got %s", res.Status)
	}
	if v.calls != 0 {
		t.Fatal("verifier must not run when the reference file is missing")
	}
	if len(repo.inserted) != 1 || !repo.inserted[0].FaceVerified {
		t.Fatalf("fail-open must persist a face_verified row: %+v", repo.inserted)
	}
}

func TestSubmitMissingReferenceFailClosed(t *testing.T) {
	repo := &stubRecorder{}
	images := &stubImages{missing: map[string]bool{"shivraj26": true}}
	cl := &stubClassifier{}
	v := &stubVerifier{}

	res, err := newTestPipeline(repo, images, cl, v, nil, false).Submit(context.Background(), testStudent, []byte("jpeg"))
	if err != nil {
		t.Fatalf("expected handled result, got error: %v", err)
	}
	if res.Status != StatusFaceMismatch {
		t.Fatalf("expected StatusFaceMismatch with fail-open disabled, got %s", res.Status)
	}
	if len(repo.inserted) != 0 {
		t.Fatal("no row may be written when fail-open is disabled")
	}
}

func TestSubmitUnparseableClassificationDefaultsAllFalse(t *testing.T) {
	repo := &stubRecorder{}
	images := &stubImages{}
	cl := &stubClassifier{err: vision.ErrUnparseable}

	res, err := newTestPipeline(repo, images, cl, &stubVerifier{}, nil, true).Submit(context.Background(), testStudent, []byte("jpeg"))
	if err != nil {
		t.Fatalf("classification failure must not fail the request: %v", err)
	}
	if res.Status != StatusClassificationError {
		t.Fatalf("expected StatusClassificationError, got %s", res.Status)
	}
	if res.Detail == "" {
		t.Fatal("detail must carry the classifier error")
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("best-effort row must still be written, got %d", len(repo.inserted))
	}
	row := repo.inserted[0]
	if row.BlazerOrSuit || row.Tie || row.WhiteShirt || row.IDCard || row.Overall {
		t.Fatalf("all flags must default to false: %+v", row)
	}
}

func TestSubmitVerifierFailureAborts(t *testing.T) {
	repo := &stubRecorder{}
	images := &stubImages{references: map[string][]byte{"shivraj26": []byte("ref")}}
	v := &stubVerifier{err: errors.New("vision timeout")}

	res, err := newTestPipeline(repo, images, &stubClassifier{}, v, nil, true).Submit(context.Background(), testStudent, []byte("jpeg"))
	if err != nil {
		t.Fatalf("expected handled result, got error: %v", err)
	}
	if res.Status != StatusFaceMismatch {
		t.Fatalf("expected StatusFaceMismatch, got %s", res.Status)
	}
	if len(repo.inserted) != 0 {
		t.Fatal("no row may be written when verification cannot complete")
	}
}

func TestSubmitImageWriteFailureIsFatal(t *testing.T) {
	images := &stubImages{saveErr: errors.New("disk full")}

	_, err := newTestPipeline(&stubRecorder{}, images, &stubClassifier{}, &stubVerifier{}, nil, true).
		Submit(context.Background(), testStudent, []byte("jpeg"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSubmitCompliantCheckPublishesNothing(t *testing.T) {
	repo := &stubRecorder{}
	pub := &stubPublisher{}
	cl := &stubClassifier{judgment: vision.Judgment{
		BlazerOrSuit: true, Tie: true, WhiteShirt: true, IDCard: true, Overall: true,
	}}

	_, err := newTestPipeline(repo, &stubImages{}, cl, &stubVerifier{}, pub, true).
		Submit(context.Background(), testStudent, []byte("jpeg"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("compliant check must not publish, got %d", len(pub.published))
	}
}
