package check

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"uniformcheck/internal/imagestore"
	"uniformcheck/internal/logging"
	"uniformcheck/internal/metrics"
	"uniformcheck/internal/queue"
	"uniformcheck/internal/vision"
)

// Status tags the outcome of a submission. A classification error still
// persists a best-effort row; a face mismatch persists nothing.
type Status string

const (
	StatusOK                  Status = "ok"
	StatusFaceMismatch        Status = "face_mismatch"
	StatusClassificationError Status = "classification_error"
)

// Result is what a submission returns to the caller. Judgment carries the
// ephemeral beard flag for display even though it is never persisted.
type Result struct {
	Status       Status
	Judgment     vision.Judgment
	FaceVerified bool
	FaceMatch    *vision.FaceMatch
	ImagePath    string
	CheckID      int64
	// Detail holds the underlying classifier/verifier error text, if any.
	Detail string
}

// Classifier produces a structured compliance judgment for one photo.
type Classifier interface {
	ClassifyUniform(ctx context.Context, image []byte) (vision.Judgment, error)
}

// Verifier judges whether two photos show the same person.
type Verifier interface {
	VerifyFace(ctx context.Context, reference, candidate []byte) (vision.FaceMatch, error)
}

// ImageStore persists uploaded photos and resolves reference photos.
type ImageStore interface {
	Save(studentID int64, captured time.Time, data []byte) (string, error)
	HasReference(username string) bool
	Reference(username string) ([]byte, error)
}

// Recorder is the persistence surface the pipeline needs.
type Recorder interface {
	InsertCheck(ctx context.Context, c Check) (Check, error)
}

// Publisher enqueues work for the violation notifier; may be nil.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Pipeline orchestrates upload, optional identity verification,
// classification, and persistence of one compliance record per submission.
type Pipeline struct {
	repo       Recorder
	images     ImageStore
	classifier Classifier
	verifier   Verifier
	publisher  Publisher
	logger     *zap.Logger

	// failOpen keeps the original leniency: a registered reference image
	// whose file is missing counts as a passed verification.
	failOpen bool
}

// NewPipeline wires the check pipeline.
func NewPipeline(repo Recorder, images ImageStore, classifier Classifier, verifier Verifier, publisher Publisher, failOpen bool, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		repo:       repo,
		images:     images,
		classifier: classifier,
		verifier:   verifier,
		publisher:  publisher,
		failOpen:   failOpen,
		logger:     logger.Named("check_pipeline"),
	}
}

// Submit runs one uniform check for a logged-in student. Image write failure
// is fatal to the request; classifier failures degrade to an all-false row.
func (p *Pipeline) Submit(ctx context.Context, student Student, image []byte) (Result, error) {
	captured := time.Now().UTC()
	opLogger := logging.WithOperation(p.logger, "check.submit", "").With(
		zap.Int64("student_id", student.ID))

	path, err := p.images.Save(student.ID, captured, image)
	if err != nil {
		opLogger.Error("image store write failed", zap.Error(err))
		return Result{}, logging.NewOperationError("check.save_image", "", err)
	}

	res := Result{ImagePath: path, FaceVerified: true}

	if p.images.HasReference(student.Username) {
		reference, refErr := p.images.Reference(student.Username)
		switch {
		case refErr == nil:
			match, verr := p.verifier.VerifyFace(ctx, reference, image)
			if verr != nil {
				// Verifier failure reads as not-same-person, matching the
				// original flow: abort without writing a row.
				opLogger.Warn("face verification call failed", zap.Error(verr))
				metrics.FaceVerifications.WithLabelValues("error").Inc()
				res.Status = StatusFaceMismatch
				res.FaceVerified = false
				res.Detail = verr.Error()
				metrics.ChecksTotal.WithLabelValues(string(StatusFaceMismatch)).Inc()
				return res, nil
			}
			res.FaceMatch = &match
			if !match.SamePerson {
				metrics.FaceVerifications.WithLabelValues("mismatch").Inc()
				res.Status = StatusFaceMismatch
				res.FaceVerified = false
				metrics.ChecksTotal.WithLabelValues(string(StatusFaceMismatch)).Inc()
				return res, nil
			}
			metrics.FaceVerifications.WithLabelValues("match").Inc()
		case errors.Is(refErr, imagestore.ErrReferenceMissing):
			if !p.failOpen {
				opLogger.Warn("reference image missing, fail-open disabled",
					zap.String("username", student.Username))
				res.Status = StatusFaceMismatch
				res.FaceVerified = false
				res.Detail = refErr.Error()
				metrics.ChecksTotal.WithLabelValues(string(StatusFaceMismatch)).Inc()
				return res, nil
			}
			opLogger.Info("reference image missing, verification treated as passed",
				zap.String("username", student.Username))
			metrics.FaceVerifications.WithLabelValues("unavailable").Inc()
		default:
			return Result{}, logging.NewOperationError("check.load_reference", "", refErr)
		}
	}

	start := time.Now()
	judgment, cerr := p.classifier.ClassifyUniform(ctx, image)
	metrics.ClassifierLatency.Observe(time.Since(start).Seconds())
	if cerr != nil {
		// Lenient default: persist an all-false row rather than aborting.
		opLogger.Warn("classification failed, defaulting all items to false", zap.Error(cerr))
		judgment = vision.Judgment{}
		res.Status = StatusClassificationError
		res.Detail = cerr.Error()
	} else {
		res.Status = StatusOK
	}
	res.Judgment = judgment

	row, err := p.repo.InsertCheck(ctx, Check{
		StudentID:    student.ID,
		StudentName:  student.Name,
		CheckTime:    captured,
		BlazerOrSuit: judgment.BlazerOrSuit,
		Tie:          judgment.Tie,
		WhiteShirt:   judgment.WhiteShirt,
		IDCard:       judgment.IDCard,
		Overall:      judgment.Overall,
		ImagePath:    path,
		FaceVerified: res.FaceVerified,
	})
	if err != nil {
		opLogger.Error("persist check failed", zap.Error(err))
		return Result{}, logging.NewOperationError("check.insert", "", err)
	}
	res.CheckID = row.ID

	metrics.ChecksTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.ComplianceTotal.WithLabelValues(strconv.FormatBool(judgment.Overall)).Inc()

	if !judgment.Overall && p.publisher != nil {
		msg := queue.Message{Type: "violation", Body: []byte(fmt.Sprintf("%d", row.ID))}
		if perr := p.publisher.Publish(ctx, msg); perr != nil {
			opLogger.Warn("violation publish failed", zap.Error(perr))
		}
	}

	return res, nil
}
