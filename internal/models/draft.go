package models

// Actor describes who is driving a booking session.
type Actor struct {
	ClientID *int64 `json:"id_client"`
	IsAdmin  bool   `json:"is_admin"`
}

func (a Actor) IsGuest() bool {
	return a.ClientID == nil
}

// Metered reports whether the daily quota applies: logged-in, non-admin
// users only. Admins and guests are unmetered.
func (a Actor) Metered() bool {
	return a.ClientID != nil && !a.IsAdmin
}

// BookingDraft is the in-progress candidate booking. Exists only inside a
// session, from slot selection until a terminal outcome; discarded on
// cancel or success.
type BookingDraft struct {
	FacilityID    int64  `json:"terrain_id"`
	Date          string `json:"date"`
	Hour          string `json:"hour"`
	ClientID      *int64 `json:"id_client"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"payment_method"`
	Price         Money  `json:"price"`
}

// HasSlot reports whether the slot fields are all set.
func (d *BookingDraft) HasSlot() bool {
	return d.FacilityID != 0 && d.Date != "" && d.Hour != ""
}

// HasContact reports whether the payer identity fields required for guest
// checkout are all set.
func (d *BookingDraft) HasContact() bool {
	return d.Name != "" && d.Email != "" && d.Phone != ""
}
