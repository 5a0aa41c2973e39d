package availability

import (
	"terrana/internal/domain"
	"terrana/internal/events"
	"terrana/internal/models"

	"github.com/rs/zerolog"
)

// SelectHandler receives the slot the user picked.
type SelectHandler func(key models.SlotKey)

// View renders a facility's grid and turns cell clicks into slot
// selections. Clicking a past or occupied cell is a no-op.
type View struct {
	facilityID int64
	grid       *Grid
	onSelect   SelectHandler
	bus        domain.EventPublisher
	clock      domain.Clock
	logger     *zerolog.Logger
}

func NewView(facilityID int64, bus domain.EventPublisher, clock domain.Clock, onSelect SelectHandler, logger *zerolog.Logger) *View {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &View{
		facilityID: facilityID,
		bus:        bus,
		clock:      clock,
		onSelect:   onSelect,
		logger:     logger,
	}
}

// Render rebuilds the grid from a fresh reservation list.
func (v *View) Render(records []models.ReservationRecord) *Grid {
	v.grid = Classify(v.facilityID, records, v.clock.Now())
	return v.grid
}

// Grid returns the last rendered grid, nil before the first Render.
func (v *View) Grid() *Grid {
	return v.grid
}

// Click handles a cell click. It returns true and emits the selection only
// for an available cell; past and occupied cells swallow the click.
func (v *View) Click(date, hour string) bool {
	if v.grid == nil {
		return false
	}

	cell := v.grid.Cell(date, hour)
	if cell == nil || !cell.Selectable() {
		return false
	}

	key := models.SlotKey{FacilityID: v.facilityID, Date: date, Hour: hour}
	if v.bus != nil {
		if err := v.bus.PublishJSON(events.EventSlotSelected, key); err != nil {
			v.logger.Error().Err(err).Int64("terrain_id", v.facilityID).Msg("publish slot selection")
		}
	}
	if v.onSelect != nil {
		v.onSelect(key)
	}
	return true
}
