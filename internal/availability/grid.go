package availability

import (
	"fmt"
	"time"

	"terrana/internal/models"
)

// Cell is one (date, hour) slot of the schedule grid with its
// classification and, when occupied, the first matching record.
type Cell struct {
	Date        string                    `json:"date"`
	Hour        string                    `json:"hour"`
	State       string                    `json:"state"`
	Reservation *models.ReservationRecord `json:"reservation,omitempty"`
}

// Selectable reports whether clicking the cell may start a booking.
func (c *Cell) Selectable() bool {
	return c.State == models.SlotAvailable
}

// Day is one column of the grid.
type Day struct {
	Date  string `json:"date"`
	Cells []Cell `json:"cells"`
}

// Grid covers the next GridDays days with an hourly row per grid hour.
type Grid struct {
	FacilityID int64 `json:"terrain_id"`
	Days       []Day `json:"days"`
}

// Cell returns the cell at (date, hour), or nil when outside the grid.
func (g *Grid) Cell(date, hour string) *Cell {
	for di := range g.Days {
		if g.Days[di].Date != date {
			continue
		}
		for ci := range g.Days[di].Cells {
			if g.Days[di].Cells[ci].Hour == hour {
				return &g.Days[di].Cells[ci]
			}
		}
	}
	return nil
}

// Classify builds the schedule grid for one facility from its raw
// reservation list. Pure and deterministic: no I/O, same inputs produce
// the same grid. When duplicate records occupy one slot the first match in
// stable record order wins; the backend should prevent that, but the grid
// must never crash on it.
func Classify(facilityID int64, records []models.ReservationRecord, now time.Time) *Grid {
	grid := &Grid{
		FacilityID: facilityID,
		Days:       make([]Day, 0, models.GridDays),
	}

	start := now
	for d := 0; d < models.GridDays; d++ {
		dayTime := start.AddDate(0, 0, d)
		date := dayTime.Format("2006-01-02")
		day := Day{
			Date:  date,
			Cells: make([]Cell, 0, models.GridLastHour-models.GridFirstHour+1),
		}

		for h := models.GridFirstHour; h <= models.GridLastHour; h++ {
			hour := fmt.Sprintf("%02d:00", h)
			day.Cells = append(day.Cells, classifyCell(records, dayTime, date, hour, h, now))
		}

		grid.Days = append(grid.Days, day)
	}

	return grid
}

func classifyCell(records []models.ReservationRecord, dayTime time.Time, date, hour string, h int, now time.Time) Cell {
	cell := Cell{Date: date, Hour: hour}

	slotTime := time.Date(dayTime.Year(), dayTime.Month(), dayTime.Day(), h, 0, 0, 0, now.Location())
	if !slotTime.After(now) {
		cell.State = models.SlotPast
		return cell
	}

	for i := range records {
		rec := &records[i]
		if !rec.MatchesSlot(date, hour) || !rec.Occupies() {
			continue
		}
		cell.Reservation = rec
		switch rec.Status {
		case models.StatusPending:
			cell.State = models.SlotPending
		case models.StatusConfirmed:
			cell.State = models.SlotConfirmed
		default:
			cell.State = models.SlotReserved
		}
		return cell
	}

	cell.State = models.SlotAvailable
	return cell
}
