package risk

import (
	"context"
	"log/slog"
	"time"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/businesses"
)

// SettingsPort resolves the per-business thresholds detectors run against.
type SettingsPort interface {
	GetSettings(ctx context.Context, businessID int64) (businesses.Settings, error)
}

// Service runs detectors over committed facts and records alerts best-effort.
// A failure here is logged and swallowed; it must never affect the financial
// transaction that produced the facts.
type Service struct {
	repo     RepositoryPort
	settings SettingsPort
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, settings SettingsPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, settings: settings, logger: logger}
}

// ObserveSale runs the sale detectors against one committed sale.
func (s *Service) ObserveSale(ctx context.Context, facts SaleFacts) {
	cfg, err := s.settings.GetSettings(ctx, facts.BusinessID)
	if err != nil {
		s.warn("risk settings lookup failed", err)
		return
	}
	detectors := []func(SaleFacts) (Alert, bool){
		ExcessiveDiscount(cfg.DiscountApprovalBps),
	}
	if cfg.NegativeMarginAlerts {
		detectors = append(detectors, NegativeMargin())
	}
	for _, detect := range detectors {
		if alert, ok := detect(facts); ok {
			s.record(ctx, alert)
		}
	}
}

// ObserveShiftClose runs the drawer variance detector against a closed shift.
func (s *Service) ObserveShiftClose(ctx context.Context, shift drawer.Shift) {
	cfg, err := s.settings.GetSettings(ctx, shift.BusinessID)
	if err != nil {
		s.warn("risk settings lookup failed", err)
		return
	}
	facts := ShiftFacts{
		BusinessID:    shift.BusinessID,
		StoreID:       shift.StoreID,
		ShiftID:       shift.ID,
		TillID:        shift.TillID,
		VariancePence: shift.VariancePence,
		ClosedBy:      shift.ClosedBy,
	}
	if alert, ok := DrawerVariance(cfg.DrawerVariancePence)(facts); ok {
		s.record(ctx, alert)
	}
}

// ScanRecentSales re-runs the sale detectors over recent committed sales,
// catching anything the post-commit hook missed (crash between commit and
// observe). Returns the number of alerts written.
func (s *Service) ScanRecentSales(ctx context.Context, businessID int64, since time.Time) (int, error) {
	cfg, err := s.settings.GetSettings(ctx, businessID)
	if err != nil {
		return 0, err
	}
	facts, err := s.repo.ListRecentSaleFacts(ctx, businessID, since, 0)
	if err != nil {
		return 0, err
	}
	detectors := []func(SaleFacts) (Alert, bool){
		ExcessiveDiscount(cfg.DiscountApprovalBps),
	}
	if cfg.NegativeMarginAlerts {
		detectors = append(detectors, NegativeMargin())
	}
	written := 0
	for _, f := range facts {
		for _, detect := range detectors {
			alert, ok := detect(f)
			if !ok {
				continue
			}
			seen, err := s.repo.HasAlert(ctx, alert.BusinessID, alert.Kind, alert.RefModule, alert.RefID)
			if err != nil {
				return written, err
			}
			if seen {
				continue
			}
			if _, err := s.repo.InsertAlert(ctx, alert); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// Alerts lists recent alerts for a business.
func (s *Service) Alerts(ctx context.Context, businessID int64, limit int) ([]Alert, error) {
	return s.repo.ListAlerts(ctx, businessID, limit)
}

func (s *Service) record(ctx context.Context, alert Alert) {
	if _, err := s.repo.InsertAlert(ctx, alert); err != nil {
		s.warn("risk alert write failed", err)
	}
}

func (s *Service) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, "error", err)
	}
}

var _ drawer.VariancePort = (*Service)(nil)
