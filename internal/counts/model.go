package counts

import "time"

// Status is the count session state machine. Both exits are terminal.
type Status string

const (
	StatusEnCours Status = "EN_COURS"
	StatusValide  Status = "VALIDE"
	StatusAnnule  Status = "ANNULE"
)

// Session is an inventory count header. TotalVariance is the signed sum of
// variances across counted validated lines, stored at validation time.
type Session struct {
	ID            int64      `json:"id"`
	Number        string     `json:"number"`
	BoutiqueID    int64      `json:"boutique_id"`
	Status        Status     `json:"status"`
	TotalVariance int64      `json:"total_variance"`
	CreatedBy     int64      `json:"created_by"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LineItem snapshots one part at session start. Counted stays nil until a
// clerk records a physical quantity; Variance is counted minus theoretical.
// Lines freeze when the session leaves EN_COURS.
type LineItem struct {
	ID          int64  `json:"id"`
	SessionID   int64  `json:"session_id"`
	PartID      int64  `json:"part_id"`
	Reference   string `json:"reference"`
	Name        string `json:"name"`
	Theoretical int64  `json:"theoretical"`
	Counted     *int64 `json:"counted,omitempty"`
	Variance    int64  `json:"variance"`
	Validated   bool   `json:"validated"`
}

// ListFilters narrows session listings.
type ListFilters struct {
	BoutiqueID int64
	Status     Status
	Limit      int
	Offset     int
}
