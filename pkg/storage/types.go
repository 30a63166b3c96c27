package storage

// Availability is a confirmed (source, product) price/stock record.
type Availability struct {
	ID           int64   `db:"id" json:"id"`
	ProductID    *int64  `db:"product_id" json:"product_id,omitempty"`
	SourceID     int64   `db:"source_id" json:"source_id"`
	Code         string  `db:"code" json:"code"`
	URL          string  `db:"url" json:"url"`
	Name         string  `db:"name" json:"name"`
	Price        float64 `db:"price" json:"price"`
	Stock        bool    `db:"stock" json:"stock"`
	Category     string  `db:"category" json:"category"`
	PartNumber   string  `db:"part_number" json:"part_number,omitempty"`
	Manufacturer string  `db:"manufacturer" json:"manufacturer,omitempty"`
	Refurbished  bool    `db:"refurbished" json:"refurbished"`
}

// ProductRegistration is everything RegisterProduct needs to create a
// product, its part number alias and its first availability. An empty
// PartNumber registers a standalone availability with no product linkage.
type ProductRegistration struct {
	SourceID     int64
	Code         string
	URL          string
	Name         string
	Category     string
	PartNumber   string
	Manufacturer string
	Price        float64
	Stock        bool
	Refurbished  bool
}

// StockUpdate is one (price, stock, code, source) tuple for SyncStock.
type StockUpdate struct {
	Price    float64
	Stock    bool
	Code     string
	SourceID int64
}

// ChannelEntry is a queued URL with no user attached yet.
type ChannelEntry struct {
	ID           int64  `db:"id"`
	URL          string `db:"url"`
	SourceName   string `db:"source_name"`
	Counter      int    `db:"counter"`
	Processed    bool   `db:"processed"`
	Invalid      bool   `db:"invalid"`
	Name         string `db:"name"`
	Code         string `db:"code"`
	Category     string `db:"category"`
	PartNumber   string `db:"part_number"`
	Manufacturer string `db:"manufacturer"`
	ErrorMessage string `db:"error_message"`
}

// UserEntry is a queued URL tied to a user's price alert request.
type UserEntry struct {
	ID              int64   `db:"id" json:"id"`
	URL             string  `db:"url" json:"url"`
	UserID          int64   `db:"user_id" json:"user_id"`
	MaxPrice        float64 `db:"max_price" json:"max_price"`
	AlertByEmail    bool    `db:"alert_by_email" json:"alert_by_email"`
	AlertByTelegram bool    `db:"alert_by_telegram" json:"alert_by_telegram"`
	Counter         int     `db:"counter" json:"counter"`
	Processed       bool    `db:"processed" json:"processed"`
	Invalid         bool    `db:"invalid" json:"invalid"`
}

// ChannelDiagnostics are the fields recorded on a channel entry when an
// extraction fails.
type ChannelDiagnostics struct {
	Name         string
	Code         string
	Category     string
	PartNumber   string
	Manufacturer string
	ErrorMessage string
}

// ChannelTransition is the new state of a channel entry after a tick.
// Nil Diagnostics leaves the diagnostic columns untouched.
type ChannelTransition struct {
	Counter     int
	Processed   bool
	Invalid     bool
	Diagnostics *ChannelDiagnostics
}

// UserTransition is the new state of a user entry after a tick.
type UserTransition struct {
	Counter   int
	Processed bool
	Invalid   bool
}

// Alert links a user to a confirmed availability.
type Alert struct {
	ID              int64   `db:"id" json:"id"`
	UserID          int64   `db:"user_id" json:"user_id"`
	AvailabilityID  int64   `db:"availability_id" json:"availability_id"`
	MaxPrice        float64 `db:"max_price" json:"max_price"`
	AlertByEmail    bool    `db:"alert_by_email" json:"alert_by_email"`
	AlertByTelegram bool    `db:"alert_by_telegram" json:"alert_by_telegram"`
}

// AlertView is an alert joined with the availability it watches.
type AlertView struct {
	Alert
	URL   string  `db:"url" json:"url"`
	Name  string  `db:"name" json:"name"`
	Price float64 `db:"price" json:"price"`
	Stock bool    `db:"stock" json:"stock"`
}
