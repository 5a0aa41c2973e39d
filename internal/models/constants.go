package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

const (
	PaymentCash   = "cash"
	PaymentOnline = "online"
)

const (
	SlotPast      = "past"
	SlotAvailable = "available"
	SlotPending   = "pending"
	SlotConfirmed = "confirmed"
	SlotReserved  = "reserved"
)

// AttemptSucceeded is the gateway intent status that settles a charge.
// Everything else is either transient or terminal failure.
const AttemptSucceeded = "succeeded"

const (
	// MaxDailyReservations ограничение заявок в день для обычных пользователей
	MaxDailyReservations = 2

	// GridDays глубина сетки расписания в днях
	GridDays = 7

	// GridFirstHour / GridLastHour границы почасовой сетки (включительно)
	GridFirstHour = 8
	GridLastHour  = 23

	// AvailabilityTTLSeconds время жизни кэша доступности
	AvailabilityTTLSeconds = 60

	// ForceRefreshMinutes период принудительного обновления доступности
	ForceRefreshMinutes = 5

	// QuotaRefreshMinutes период фонового обновления квоты
	QuotaRefreshMinutes = 60

	// CashPendingMinutes срок оплаты наличной брони до истечения
	CashPendingMinutes = 60
)
