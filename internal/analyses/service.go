package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"skinscan-backend/internal/fanout"
	"skinscan-backend/internal/fusion"
	"skinscan-backend/internal/llm"
	"skinscan-backend/internal/quota"
	"skinscan-backend/internal/scancache"
	"skinscan-backend/internal/shared/metrics"
	"skinscan-backend/internal/shared/storage/object"
	"skinscan-backend/internal/shared/telemetry"
	"skinscan-backend/internal/vision"
)

// Scan types passed to the quota gate.
const (
	ScanTypeQuick    = "quick"
	ScanTypeDetailed = "detailed"
)

const (
	defaultPrimaryTimeout = 15 * time.Second
	maxArchivedImageBytes = 20 << 20
)

// Stage names reported to a ProgressFunc, in pipeline order.
type Stage string

const (
	StageCache   Stage = "cache"
	StageQuota   Stage = "quota"
	StageFanout  Stage = "fanout"
	StagePrimary Stage = "primary"
	StageFusion  Stage = "fusion"
	StageRecord  Stage = "record"
)

// ProgressFunc observes pipeline stages. It is called synchronously and must
// not block.
type ProgressFunc func(stage Stage, detail map[string]any)

// Fanout runs the multi-model signal stage.
type Fanout interface {
	RunAll(ctx context.Context, image []byte) fanout.Result
}

// Options are the collaborators of a Service. Archive may be nil.
type Options struct {
	Cache          CacheGate
	Quota          QuotaGate
	Fanout         Fanout
	Primary        llm.Analyzer
	PrimaryModel   string
	PrimaryTimeout time.Duration
	// PipelineTimeout bounds one shared escalation, independent of the
	// callers waiting on it.
	PipelineTimeout time.Duration
	Recorder        *Recorder
	Repo            Repo
	Archive         object.ImageArchive
	AIEnabled       bool
}

// Service runs the scan pipeline.
type Service struct {
	opts     Options
	validate *validator.Validate
	flights  *coalescer
	now      func() time.Time
	newID    func() string
}

// NewService constructs a Service. A nil Recorder is built from the cache
// and quota gates with events discarded.
func NewService(opts Options) *Service {
	if opts.PrimaryTimeout <= 0 {
		opts.PrimaryTimeout = defaultPrimaryTimeout
	}
	if opts.Primary == nil {
		opts.Primary = llm.Disabled{}
	}
	if opts.Recorder == nil {
		opts.Recorder = NewRecorder(opts.Quota, opts.Cache, nil)
	}
	if opts.Repo == nil {
		opts.Repo = NewMemoryRepo()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Service{
		opts:     opts,
		validate: v,
		flights:  newCoalescer(opts.PipelineTimeout),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type escalation struct {
	result  fusion.Result
	outcome string
}

type run struct {
	analysisID  string
	tenantID    string
	userID      string
	fingerprint string
	age         int
	image       []byte
	mimeType    string
	req         Request
	start       time.Time
}

// Analyze runs the pipeline for one request.
func (s *Service) Analyze(ctx context.Context, req Request) (Analysis, error) {
	return s.AnalyzeWithProgress(ctx, req, nil)
}

// AnalyzeWithProgress is Analyze with a stage observer. Requests coalesced
// onto an in-flight scan for the same fingerprint report no stages of their
// own and come back marked as cache-derived. Only AI-tier results are shared
// that way; a follower whose leader degraded to the baseline runs its own
// escalation.
func (s *Service) AnalyzeWithProgress(ctx context.Context, req Request, progress ProgressFunc) (Analysis, error) {
	start := s.now()
	ctx, span := telemetry.Tracer().Start(ctx, "analyses.Service.Analyze")
	defer span.End()

	if err := s.validateRequest(req); err != nil {
		metrics.IncScan("invalid", s.now().Sub(start))
		return Analysis{}, err
	}
	image, mimeType, err := decodeImage(req.ImageData)
	if err != nil {
		metrics.IncScan("invalid", s.now().Sub(start))
		return Analysis{}, &ValidationError{Fields: []FieldIssue{{Field: "imageData", Issue: err.Error()}}}
	}

	r := run{
		analysisID: s.newID(),
		tenantID:   strings.TrimSpace(req.ClinicID),
		userID:     strings.TrimSpace(req.UserID),
		age:        req.Customer.Age,
		image:      image,
		mimeType:   mimeType,
		req:        req,
		start:      start,
	}
	span.SetAttributes(
		attribute.String("analysis.id", r.analysisID),
		attribute.String("clinic.id", r.tenantID),
		attribute.Bool("analysis.use_ai", req.UseAI),
	)

	var out escalation
	if !req.UseAI || r.tenantID == "" || !s.opts.AIEnabled {
		emit(progress, StageFusion, nil)
		out = escalation{result: s.fuseBaseline(ctx, r), outcome: "baseline"}
	} else {
		r.fingerprint = scancache.Fingerprint(r.tenantID, req.identity())
		out, err = s.coalesce(ctx, r, progress)
		if err != nil {
			outcome := failureOutcome(err)
			metrics.IncScan(outcome, s.now().Sub(start))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			return Analysis{}, err
		}
	}

	elapsed := s.now().Sub(start)
	out.result.ProcessingTimeMs = elapsed.Milliseconds()
	span.SetAttributes(
		attribute.String("fusion.tier", out.result.Tier.String()),
		attribute.Bool("analysis.used_cache", out.result.UsedCache),
	)

	analysis := Analysis{
		ID:          r.analysisID,
		TenantID:    r.tenantID,
		UserID:      r.userID,
		CustomerID:  strings.TrimSpace(req.Customer.CustomerID),
		Age:         r.age,
		Fingerprint: r.fingerprint,
		Result:      out.result,
		CreatedAt:   start.UTC(),
	}
	if len(image) > 0 && !out.result.UsedCache {
		analysis.ImageKey = s.archive(ctx, r)
	}
	if err := s.opts.Repo.Create(context.WithoutCancel(ctx), analysis); err != nil {
		telemetry.Warn("analysis.persist_failed", map[string]any{
			"analysis_id": analysis.ID,
			"clinic_id":   analysis.TenantID,
			"error":       err.Error(),
		})
	}

	metrics.IncScan(out.outcome, elapsed)
	metrics.IncTier(out.result.Tier.String())
	telemetry.Info("analysis.completed", map[string]any{
		"analysis_id":   analysis.ID,
		"clinic_id":     analysis.TenantID,
		"request_id":    requestIDFromContext(ctx),
		"tier":          out.result.Tier.String(),
		"outcome":       out.outcome,
		"used_cache":    out.result.UsedCache,
		"ai_powered":    out.result.AIPowered,
		"processing_ms": out.result.ProcessingTimeMs,
	})
	return analysis, nil
}

// escalate is the AI path: cache, quota, fan-out, primary, fusion, record.
// Once a reservation is held every exit path goes through the recorder.
func (s *Service) escalate(ctx context.Context, r run, progress ProgressFunc) (out escalation, err error) {
	emit(progress, StageCache, nil)
	if entry, ok := s.lookup(ctx, r.fingerprint); ok {
		res := entry.Result
		res.UsedCache = true
		res.QuotaInfo = nil
		return escalation{result: res, outcome: "cached"}, nil
	}

	emit(progress, StageQuota, nil)
	scanType := ScanTypeQuick
	if len(r.image) > 0 {
		scanType = ScanTypeDetailed
	}
	res, err := s.reserve(ctx, r.tenantID, scanType)
	if err != nil {
		return escalation{}, err
	}
	if !res.Allowed {
		return escalation{}, &QuotaExceededError{Remaining: res.Remaining, WouldIncurCharge: res.WouldIncurCharge}
	}
	info := &fusion.QuotaInfo{Remaining: res.Remaining, WouldIncurCharge: res.WouldIncurCharge}

	if len(r.image) == 0 {
		// Nothing billable can run without a photo.
		if err := s.opts.Quota.Release(context.WithoutCancel(ctx), res); err != nil {
			telemetry.Warn("pipeline.release_failed", map[string]any{
				"clinic_id":      r.tenantID,
				"reservation_id": res.ID,
				"error":          err.Error(),
			})
		}
		result := s.fuseBaseline(ctx, r)
		result.QuotaInfo = info
		return escalation{result: result, outcome: "baseline"}, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			telemetry.Error("pipeline.panic", map[string]any{
				"analysis_id": r.analysisID,
				"clinic_id":   r.tenantID,
				"panic":       fmt.Sprint(rec),
			})
			result := s.fuseBaseline(ctx, r)
			result.QuotaInfo = info
			s.record(ctx, r, res, result, progress)
			out, err = escalation{result: result, outcome: "completed"}, nil
		}
	}()

	emit(progress, StageFanout, nil)
	signals := s.fanout(ctx, r.image)

	usable := fusion.Usable(signals.Signals)
	emit(progress, StagePrimary, map[string]any{"signals": len(usable)})
	parsed, model, cost := s.primary(ctx, r, signals.Signals)

	emit(progress, StageFusion, nil)
	_, fspan := telemetry.Tracer().Start(ctx, "pipeline.fusion")
	result := fusion.Fuse(fusion.Input{
		Age:          r.age,
		Signals:      signals.Signals,
		Primary:      parsed,
		PrimaryModel: model,
		Landmarks:    r.req.Landmarks,
	})
	fspan.SetAttributes(attribute.String("fusion.tier", result.Tier.String()))
	fspan.End()
	result.AICostUSD = cost
	result.QuotaInfo = info
	result.ProcessingTimeMs = s.now().Sub(r.start).Milliseconds()

	s.record(ctx, r, res, result, progress)
	return escalation{result: result, outcome: "completed"}, nil
}

func (s *Service) lookup(ctx context.Context, fingerprint string) (scancache.Entry, bool) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.cache")
	defer span.End()
	entry, ok := s.opts.Cache.LookupFingerprint(ctx, fingerprint)
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	return entry, ok
}

func (s *Service) reserve(ctx context.Context, tenantID, scanType string) (quota.Reservation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.quota")
	defer span.End()
	res, err := s.opts.Quota.Reserve(ctx, tenantID, scanType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return quota.Reservation{}, err
	}
	span.SetAttributes(
		attribute.Bool("quota.allowed", res.Allowed),
		attribute.Int("quota.remaining", res.Remaining),
		attribute.Bool("quota.would_incur_charge", res.WouldIncurCharge),
	)
	return res, nil
}

func (s *Service) fanout(ctx context.Context, image []byte) fanout.Result {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.fanout")
	defer span.End()
	if s.opts.Fanout == nil {
		return fanout.Result{}
	}
	res := s.opts.Fanout.RunAll(ctx, image)
	span.SetAttributes(attribute.Int("fanout.signals", len(res.Signals)))
	return res
}

// primary calls the contextual analyzer. Every failure degrades to an
// unparsed result.
func (s *Service) primary(ctx context.Context, r run, signals []vision.ModelSignal) (llm.Parsed, string, decimal.Decimal) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.primary")
	defer span.End()

	pctx, cancel := context.WithTimeout(ctx, s.opts.PrimaryTimeout)
	defer cancel()

	out, err := s.opts.Primary.Analyze(pctx, llm.Input{
		Image:    r.image,
		MimeType: r.mimeType,
		Age:      r.age,
		Context:  llm.BuildContext(signals),
	})
	cost := out.CostUSD
	if err != nil {
		if !errors.Is(err, llm.ErrNotConfigured) {
			telemetry.Warn("pipeline.primary_failed", map[string]any{
				"analysis_id": r.analysisID,
				"clinic_id":   r.tenantID,
				"error":       err.Error(),
			})
		}
		recordSpanError(span, err)
		return llm.Parsed{}, "", cost
	}

	parsed := llm.ParsePrimary(out.Raw)
	if !parsed.OK {
		telemetry.Warn("pipeline.primary_unparseable", map[string]any{
			"analysis_id": r.analysisID,
			"raw_length":  len(out.Raw),
		})
	}
	model := out.Model
	if model == "" {
		model = s.opts.PrimaryModel
	}
	span.SetAttributes(attribute.Bool("primary.parsed", parsed.OK), attribute.String("primary.model", model))
	return parsed, model, cost
}

func (s *Service) record(ctx context.Context, r run, res quota.Reservation, result fusion.Result, progress ProgressFunc) {
	emit(progress, StageRecord, nil)
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.record")
	defer span.End()
	err := s.opts.Recorder.Record(ctx, Attempt{
		AnalysisID:  r.analysisID,
		TenantID:    r.tenantID,
		UserID:      r.userID,
		Fingerprint: r.fingerprint,
		Reservation: res,
		Result:      result,
	})
	if err != nil {
		recordSpanError(span, err)
	}
}

func (s *Service) fuseBaseline(ctx context.Context, r run) fusion.Result {
	_, span := telemetry.Tracer().Start(ctx, "pipeline.fusion")
	defer span.End()
	return fusion.Fuse(fusion.Input{Age: r.age, Landmarks: r.req.Landmarks})
}

func (s *Service) archive(ctx context.Context, r run) string {
	if s.opts.Archive == nil {
		return ""
	}
	key, err := s.opts.Archive.Put(context.WithoutCancel(ctx), r.tenantID, r.analysisID, r.image)
	if err != nil {
		telemetry.Warn("analysis.archive_failed", map[string]any{
			"analysis_id": r.analysisID,
			"clinic_id":   r.tenantID,
			"error":       err.Error(),
		})
		return ""
	}
	return key
}

// Get returns a persisted analysis.
func (s *Service) Get(ctx context.Context, analysisID string) (Analysis, error) {
	return s.opts.Repo.GetByID(ctx, analysisID)
}

// Image returns the archived photo of one of a clinic's analyses and its
// sniffed content type.
func (s *Service) Image(ctx context.Context, tenantID, analysisID string) ([]byte, string, error) {
	analysis, err := s.opts.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return nil, "", err
	}
	if analysis.TenantID != tenantID {
		return nil, "", ErrNotFound
	}
	if s.opts.Archive == nil || analysis.ImageKey == "" {
		return nil, "", ErrNoImage
	}
	rc, err := s.opts.Archive.Open(ctx, analysis.ImageKey)
	if err != nil {
		return nil, "", fmt.Errorf("open archived image: %w", err)
	}
	defer rc.Close()
	image, err := io.ReadAll(io.LimitReader(rc, maxArchivedImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read archived image: %w", err)
	}
	_, mimeType := object.Extension(image)
	return image, mimeType, nil
}

// List returns a clinic's analyses, newest first.
func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) ([]Analysis, error) {
	return s.opts.Repo.ListByTenant(ctx, tenantID, limit, offset)
}

func (s *Service) validateRequest(req Request) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldIssue{{Field: "request", Issue: err.Error()}}}
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, FieldIssue{Field: fe.Field(), Issue: fe.Tag()})
	}
	return &ValidationError{Fields: issues}
}

// coalesce escalates r, sharing an in-flight escalation for the same
// fingerprint when there is one.
func (s *Service) coalesce(ctx context.Context, r run, progress ProgressFunc) (escalation, error) {
	relay := &stageRelay{fn: progress}
	defer relay.detach()
	for round := 0; round < maxCoalesceRounds; round++ {
		out, led, err := s.flights.do(ctx, r.fingerprint, func(fctx context.Context) (escalation, error) {
			return s.escalate(fctx, r, relay.emit)
		})
		if err != nil || led {
			return out, err
		}
		if shareable(out.result) {
			out.result.UsedCache = true
			out.result.QuotaInfo = nil
			out.outcome = "coalesced"
			return out, nil
		}
	}
	return s.escalate(ctx, r, progress)
}

func failureOutcome(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_denied"
	case errors.Is(err, quota.ErrQuotaUnavailable):
		return "quota_unavailable"
	default:
		return "failed"
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func emit(progress ProgressFunc, stage Stage, detail map[string]any) {
	if progress != nil {
		progress(stage, detail)
	}
}
