package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinsight/clinsight/internal/domain/diagnostic"
	"github.com/clinsight/clinsight/internal/platform/predictor"
	"github.com/clinsight/clinsight/internal/platform/scheduler"
)

// ErrForbidden is returned when a non-admin requests the admin snapshot.
var ErrForbidden = errors.New("admin role required")

// ConfusionThreshold is the operating point of the confusion matrix.
const ConfusionThreshold = 0.5

// Named view slots rendered by the refresh cycle.
const (
	ViewDashboard = "dashboard"
	ViewROC       = "roc"
	ViewConfusion = "confusion"
)

// RoleGate answers whether a user may see admin analytics. Implementations
// must fail closed: any doubt means false.
type RoleGate interface {
	IsAdmin(ctx context.Context, userID string) bool
}

// DashboardSnapshot is the clinician-facing summary of the recent window.
type DashboardSnapshot struct {
	Summary     Summary   `json:"summary"`
	WindowSize  int       `json:"windowSize"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// AdminSnapshot adds model-quality metrics over the larger admin window.
// When the window cannot support curves, InsufficientData is set and the
// curve fields are null — the console shows that state explicitly rather
// than a stale chart.
type AdminSnapshot struct {
	Summary           Summary                   `json:"summary"`
	ROC               *ROC                      `json:"roc,omitempty"`
	Confusion         *Confusion                `json:"confusion,omitempty"`
	InsufficientData  bool                      `json:"insufficientData"`
	AverageRisk       float64                   `json:"averageRisk"`
	FeatureImportance []predictor.FeatureWeight `json:"featureImportance"`
	WindowSize        int                       `json:"windowSize"`
	GeneratedAt       time.Time                 `json:"generatedAt"`
}

type Service struct {
	records   diagnostic.Repository
	gate      RoleGate
	predictor predictor.Client
	policy    LabelPolicy
	logger    zerolog.Logger

	dashboardWindow int
	adminWindow     int
	topK            int
}

func NewService(records diagnostic.Repository, gate RoleGate, pred predictor.Client, logger zerolog.Logger, dashboardWindow, adminWindow int) *Service {
	return &Service{
		records:         records,
		gate:            gate,
		predictor:       pred,
		policy:          RiskProxyLabel,
		logger:          logger,
		dashboardWindow: dashboardWindow,
		adminWindow:     adminWindow,
		topK:            5,
	}
}

// SetLabelPolicy swaps the ground-truth source for model metrics.
func (s *Service) SetLabelPolicy(policy LabelPolicy) { s.policy = policy }

// DashboardSnapshot aggregates the small recent window for any signed-in
// clinician.
func (s *Service) DashboardSnapshot(ctx context.Context) (*DashboardSnapshot, error) {
	window, err := s.records.ListRecent(ctx, s.dashboardWindow)
	if err != nil {
		return nil, fmt.Errorf("fetch dashboard window: %w", err)
	}
	return &DashboardSnapshot{
		Summary:     Aggregate(window, s.topK),
		WindowSize:  len(window),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// AdminSnapshot checks the role gate before touching the large window:
// a doctor's request is rejected without the window query or any metric
// computation running.
func (s *Service) AdminSnapshot(ctx context.Context, userID string) (*AdminSnapshot, error) {
	if !s.gate.IsAdmin(ctx, userID) {
		return nil, ErrForbidden
	}
	return s.computeAdminSnapshot(ctx)
}

func (s *Service) computeAdminSnapshot(ctx context.Context) (*AdminSnapshot, error) {
	window, err := s.records.ListRecent(ctx, s.adminWindow)
	if err != nil {
		return nil, fmt.Errorf("fetch admin window: %w", err)
	}

	snap := &AdminSnapshot{
		Summary:           Aggregate(window, s.topK),
		AverageRisk:       AverageRisk(window),
		FeatureImportance: []predictor.FeatureWeight{},
		WindowSize:        len(window),
		GeneratedAt:       time.Now().UTC(),
	}

	pairs := LabeledPairs(window, s.policy)
	roc, err := ComputeROC(pairs)
	switch {
	case errors.Is(err, ErrInsufficientData):
		snap.InsufficientData = true
	case err != nil:
		return nil, err
	default:
		snap.ROC = roc
	}

	// The matrix has its own sufficiency rule: a single-class window skips
	// the curve but still counts.
	cm, err := ComputeConfusion(pairs, ConfusionThreshold)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return nil, err
	}
	snap.Confusion = cm

	if s.predictor != nil {
		weights, err := s.predictor.FeatureImportance(ctx)
		if err != nil {
			// The snapshot is still useful without the importance vector.
			s.logger.Warn().Err(err).Msg("feature importance unavailable")
		} else if weights != nil {
			snap.FeatureImportance = weights
		}
	}

	return snap, nil
}

// RefreshCycle builds the scheduler's refresh function: fetch, aggregate,
// and render each named view through its slot. adminActive reports whether
// an admin session is currently watching the metric views; while it returns
// false the cycle never touches the admin window or MetricsComputer, so a
// doctor's submission trigger stays within the dashboard path.
func (s *Service) RefreshCycle(views *scheduler.ViewSet, adminActive func() bool) scheduler.RefreshFunc {
	return func(ctx context.Context) error {
		dashboard, err := s.DashboardSnapshot(ctx)
		if err != nil {
			return err
		}
		if err := views.Render(ViewDashboard, dashboard); err != nil {
			return err
		}

		if adminActive == nil || !adminActive() {
			return nil
		}

		admin, err := s.computeAdminSnapshot(ctx)
		if err != nil {
			return err
		}
		if err := views.Render(ViewROC, rocView{ROC: admin.ROC, InsufficientData: admin.InsufficientData}); err != nil {
			return err
		}
		return views.Render(ViewConfusion, confusionView{Confusion: admin.Confusion, InsufficientData: admin.Confusion == nil})
	}
}

// rocView and confusionView are the rendered shapes of the admin metric
// views; InsufficientData replaces the chart rather than leaving a stale
// one on screen.
type rocView struct {
	*ROC
	InsufficientData bool `json:"insufficientData"`
}

type confusionView struct {
	*Confusion
	InsufficientData bool `json:"insufficientData"`
}
