package session

import (
	"context"

	"terrana/internal/models"
)

// SweepReport summarizes an expiry sweep. Administrators only see
// aggregate counts, never per-record errors.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// ExpirePendingCash marks overdue pending cash reservations of a facility
// as expired. The client-side countdown is advisory; this sweep is the
// administrative action that actually transitions the records.
func (e *Engine) ExpirePendingCash(ctx context.Context, facilityID int64) (SweepReport, error) {
	var report SweepReport

	records, err := e.api.ListReservations(ctx, facilityID)
	if err != nil {
		return report, err
	}

	report.Scanned = len(records)

	now := e.clock.Now()
	for i := range records {
		rec := &records[i]
		if !rec.CashExpired(now) {
			continue
		}

		fields := map[string]any{"status": models.StatusExpired}
		if err := e.api.UpdateReservation(ctx, rec.ID, fields); err != nil {
			e.logger.Warn().Err(err).Int64("reservation_id", rec.ID).Msg("expire sweep update failed")
			report.Failed++
			continue
		}
		report.Expired++
	}

	if report.Expired > 0 {
		e.invalidate(ctx, facilityID)
	}
	return report, nil
}
