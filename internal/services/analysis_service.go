package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scaletrend/internal/config"
	apierrors "scaletrend/internal/errors"
	"scaletrend/internal/infrastructure"
	"scaletrend/internal/ingest"
	"scaletrend/internal/trend"
	"scaletrend/pkg/contracts/domain"
)

// AnalyzeOptions carries the per-upload knobs accepted alongside the dataset.
type AnalyzeOptions struct {
	// Unit forces the weight unit. UnitAuto (or empty) detects from the data.
	Unit domain.WeightUnit

	// Start and End bound the default summary view. Nil ends are open. The
	// full dataset is still aggregated and retained for later window queries.
	Start *time.Time
	End   *time.Time

	// EnergyFloor drops rows whose logged energy is below the given kcal
	// value. Zero disables the filter.
	EnergyFloor float64

	// DropEmptyRows removes valid-date rows carrying neither measurement.
	DropEmptyRows bool
}

// AnalysisResult pairs a new session id with the summary computed at upload time.
type AnalysisResult struct {
	ID      string
	Summary *domain.Summary
}

// SessionInfo describes one retained session without exposing its state.
type SessionInfo struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Weeks     int
}

// session is the retained state of one analyzed upload. Only the derived
// buckets and detection results are kept; the upload bytes are discarded
// once ingestion finishes.
type session struct {
	id        string
	state     *trend.Analysis
	createdAt time.Time
	expiresAt time.Time
}

// AnalysisService runs the upload-to-summary path and owns the in-memory
// session store that window queries re-filter against.
type AnalysisService struct {
	mu       sync.RWMutex
	sessions map[string]*session

	analyzer *trend.Analyzer
	cfg      config.AnalysisConfig
	logger   *slog.Logger
	metrics  *infrastructure.BusinessMetrics

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewAnalysisService creates the service and starts its expiry sweep.
// Call Close to stop the sweep and drop retained sessions.
func NewAnalysisService(cfg config.AnalysisConfig, logger *slog.Logger) *AnalysisService {
	return NewAnalysisServiceWithMetrics(cfg, logger, nil)
}

// NewAnalysisServiceWithMetrics creates the service with business metrics wired in.
func NewAnalysisServiceWithMetrics(cfg config.AnalysisConfig, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}

	s := &AnalysisService{
		sessions: make(map[string]*session),
		analyzer: trend.NewAnalyzer(logger),
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

// Analyze decodes and normalizes one uploaded dataset, aggregates it into
// weekly buckets, and retains the result under a fresh session id. The
// returned summary reflects the window supplied at upload time; the retained
// state always covers the full dataset.
func (s *AnalysisService) Analyze(ctx context.Context, r io.Reader, filename string, opts AnalyzeOptions) (*AnalysisResult, error) {
	counted := &countingReader{r: r}
	format := uploadFormat(filename)

	ingestStart := time.Now()
	table, err := ingest.Decode(counted, filename)
	if err != nil {
		return nil, apierrors.NewParsingError(fmt.Sprintf("decode %s", filename), err)
	}

	normalizerConfig := ingest.DefaultNormalizerConfig()
	normalizerConfig.EnergyFloor = opts.EnergyFloor
	normalizerConfig.DropEmptyRows = opts.DropEmptyRows

	dataset, err := ingest.NewNormalizer(s.logger, normalizerConfig).Normalize(ctx, table)
	if err != nil {
		return nil, apierrors.NewParsingError(fmt.Sprintf("normalize %s", filename), err)
	}
	ingestDuration := time.Since(ingestStart)

	window := trend.Window{Start: opts.Start, End: opts.End}

	analysisStart := time.Now()
	state := s.analyzer.Analyze(ctx, dataset, trend.Options{Unit: opts.Unit, Window: window})
	summary := s.analyzer.Summarize(ctx, state, window)
	analysisDuration := time.Since(analysisStart)

	now := time.Now()
	sess := &session{
		id:        uuid.New().String(),
		state:     state,
		createdAt: now,
		expiresAt: now.Add(s.cfg.SessionTTL),
	}

	if err := s.store(ctx, sess); err != nil {
		return nil, err
	}

	infrastructure.RecordIngestMetrics(ctx, s.metrics, format, counted.n, ingestDuration,
		dataset.Meta.RowsValid, dataset.Meta.RowsDropped, dataset.Meta.RowsFiltered)
	infrastructure.RecordAnalysisMetrics(ctx, s.metrics, string(state.DetectedUnit),
		string(state.Meta.EnergySource), len(state.Buckets), analysisDuration)
	infrastructure.RecordActiveSessionChange(ctx, s.metrics, 1)

	s.logger.InfoContext(ctx, "analysis session created",
		slog.String("analysis_id", sess.id),
		slog.String("format", format),
		slog.String("unit", string(state.DetectedUnit)),
		slog.Bool("unit_overridden", state.UnitOverridden),
		slog.Int("weeks", len(summary.Buckets)),
		slog.Int("samples", summary.TotalSamples()),
		slog.Int("rows_valid", dataset.Meta.RowsValid),
		slog.Time("expires_at", sess.expiresAt))

	return &AnalysisResult{ID: sess.id, Summary: summary}, nil
}

// Get returns the summary for a session's default view, the window supplied
// when the analysis was created.
func (s *AnalysisService) Get(ctx context.Context, id string) (*domain.Summary, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Summarize(ctx, sess.state, sess.state.Window), nil
}

// Window re-filters a retained session to an ad hoc date range and recomputes
// the summary. The detected unit is carried from the session, never re-derived.
func (s *AnalysisService) Window(ctx context.Context, id string, window trend.Window) (*domain.Summary, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	summary := s.analyzer.Summarize(ctx, sess.state, window)

	s.logger.DebugContext(ctx, "window query served",
		slog.String("analysis_id", id),
		slog.Int("weeks", len(summary.Buckets)),
		slog.Bool("open_window", window.IsOpen()))

	return summary, nil
}

// Info returns metadata for a retained session, including one that has
// expired but not yet been swept.
func (s *AnalysisService) Info(id string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("analysis %s: %w", id, apierrors.ErrAnalysisNotFound)
	}

	return &SessionInfo{
		ID:        sess.id,
		CreatedAt: sess.createdAt,
		ExpiresAt: sess.expiresAt,
		Weeks:     len(sess.state.Buckets),
	}, nil
}

// Count returns the number of retained sessions, expired ones included.
func (s *AnalysisService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats returns session store statistics for the health surface.
func (s *AnalysisService) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{
		"total_sessions": len(s.sessions),
		"active":         0,
		"expired":        0,
		"max_sessions":   s.cfg.MaxSessions,
	}

	now := time.Now()
	for _, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			stats["expired"]++
		} else {
			stats["active"]++
		}
	}

	return stats
}

// Close stops the expiry sweep and drops every retained session.
func (s *AnalysisService) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})

	s.mu.Lock()
	dropped := len(s.sessions)
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	if dropped > 0 {
		ctx := context.Background()
		for i := 0; i < dropped; i++ {
			infrastructure.RecordSessionEviction(ctx, s.metrics, "shutdown")
		}
		infrastructure.RecordActiveSessionChange(ctx, s.metrics, -int64(dropped))
		s.logger.Info("analysis sessions dropped on shutdown", slog.Int("count", dropped))
	}
}

// lookup fetches a live session. Expired sessions stay visible as expired
// until the sweep removes them, after which the id reads as not found.
func (s *AnalysisService) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, exists := s.sessions[id]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("analysis %s: %w", id, apierrors.ErrAnalysisNotFound)
	}
	if time.Now().After(sess.expiresAt) {
		return nil, fmt.Errorf("analysis %s: %w", id, apierrors.ErrAnalysisExpired)
	}
	return sess, nil
}

// store inserts a session, evicting expired ones first so stale entries do
// not consume capacity. At capacity the upload is rejected, never an older
// live session evicted.
func (s *AnalysisService) store(ctx context.Context, sess *session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	evicted := 0
	for id, existing := range s.sessions {
		if now.After(existing.expiresAt) {
			delete(s.sessions, id)
			evicted++
		}
	}
	s.recordEvictions(ctx, evicted)

	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		return fmt.Errorf("%d retained analyses: %w", len(s.sessions), apierrors.ErrSessionLimit)
	}

	s.sessions[sess.id] = sess
	return nil
}

// Sweep removes expired sessions and returns how many were evicted. The
// background loop calls it on every tick; tests call it directly.
func (s *AnalysisService) Sweep(ctx context.Context) int {
	ctx = infrastructure.EnsureTraceID(ctx)

	s.mu.Lock()
	now := time.Now()
	evicted := 0
	for id, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, id)
			evicted++
		}
	}
	s.mu.Unlock()

	s.recordEvictions(ctx, evicted)
	if evicted > 0 {
		s.logger.InfoContext(ctx, "expired analysis sessions evicted",
			slog.Int("count", evicted))
	}
	return evicted
}

func (s *AnalysisService) recordEvictions(ctx context.Context, evicted int) {
	if evicted == 0 {
		return
	}
	for i := 0; i < evicted; i++ {
		infrastructure.RecordSessionEviction(ctx, s.metrics, "expired")
	}
	infrastructure.RecordActiveSessionChange(ctx, s.metrics, -int64(evicted))
}

func (s *AnalysisService) sweepLoop() {
	defer close(s.done)

	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stop:
			return
		}
	}
}

// countingReader tracks how many upload bytes passed through ingestion.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// uploadFormat mirrors the decoder's extension dispatch for metric labels.
func uploadFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xls":
		return "xlsx"
	default:
		return "csv"
	}
}
