package availability

type CreateParentSlotRequest struct {
	SlotDate  string `json:"slot_date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	Notes     string `json:"notes,omitempty" binding:"max=500"`
}

// CarveRequest asks for a booked sub-slot inside a parent window.
type CarveRequest struct {
	ParentSlotID string
	Window       Window
	BookedBy     string
	Notes        string
}

type ListFilters struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// RangesResponse lists the bookable gaps of a parent window.
type RangesResponse struct {
	Parent *Slot    `json:"parent"`
	Booked []Slot   `json:"booked"`
	Free   []Window `json:"free"`
}
