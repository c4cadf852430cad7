package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Material one material line on a route card
type Material struct {
	ItemID   string          `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
}

// Workstation one production stage, internal or subcontracted
type Workstation struct {
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	EstimatedHours  float64 `json:"estimated_hours"`
	IsSubcontractor bool    `json:"is_subcontractor"`
}

// Location where parts sit while this workstation works on them.
func (w Workstation) Location() RouteLocation {
	if w.IsSubcontractor {
		return LocationAtSubcontractor
	}
	return LocationAtWorkstation
}

// Label "Subcontractor: X" or "Workstation: X"
func (w Workstation) Label() string {
	if w.IsSubcontractor {
		return "Subcontractor: " + w.Name
	}
	return "Workstation: " + w.Name
}

// RouteCard the physical journey of one production order
type RouteCard struct {
	ID                      string                  `json:"id" gorm:"primaryKey;size:36"`
	OrderID                 string                  `json:"order_id" gorm:"size:36;not null;uniqueIndex"`
	Status                  RouteStatus             `json:"status" gorm:"size:32;not null;default:DRAFT;index"`
	CurrentLocation         RouteLocation           `json:"current_location" gorm:"size:32;not null;default:WAREHOUSE"`
	CurrentWorkstationIndex int                     `json:"current_workstation_index" gorm:"not null;default:0"`
	Materials               JSONList[Material]      `json:"materials" gorm:"type:jsonb;not null"`
	Workstations            JSONList[Workstation]   `json:"workstations" gorm:"type:jsonb;not null"`
	EstimatedTime           float64                 `json:"estimated_time"`
	EstimatedCompletionDate *time.Time              `json:"estimated_completion_date"`
	PickupDetails           EventLog[PickupEvent]   `json:"pickup_details" gorm:"type:jsonb;not null"`
	FollowupLogs            EventLog[FollowupEvent] `json:"followup_logs" gorm:"type:jsonb;not null"`
	QCLogs                  EventLog[QCEvent]       `json:"qc_logs" gorm:"type:jsonb;not null"`
	CreatedByID             string                  `json:"created_by_id" gorm:"size:64;not null"`
	Version                 int                     `json:"version" gorm:"not null;default:0"`
	CreatedAt               time.Time               `json:"created_at"`
	UpdatedAt               time.Time               `json:"updated_at"`
}

func (RouteCard) TableName() string {
	return "mes_route_cards"
}

// CurrentWorkstation the workstation at the cursor; false once all stages are done.
func (rc *RouteCard) CurrentWorkstation() (Workstation, bool) {
	return rc.Workstation(rc.CurrentWorkstationIndex)
}

func (rc *RouteCard) Workstation(i int) (Workstation, bool) {
	if i < 0 || i >= len(rc.Workstations) {
		return Workstation{}, false
	}
	return rc.Workstations[i], true
}

// IsLastWorkstation reports whether the cursor sits on the final stage.
func (rc *RouteCard) IsLastWorkstation() bool {
	return rc.CurrentWorkstationIndex >= len(rc.Workstations)-1
}

// placements lists the locations allowed for each status. CANCELLED keeps
// whatever location the parts were at.
var placements = map[RouteStatus][]RouteLocation{
	RouteStatusDraft:                 {LocationWarehouse},
	RouteStatusConfirmed:             {LocationWarehouse},
	RouteStatusMaterialsPrepared:     {LocationWarehouse},
	RouteStatusMaterialsInTransit:    {LocationWithExpediter},
	RouteStatusInProduction:          {LocationAtWorkstation, LocationAtSubcontractor},
	RouteStatusAwaitingQC:            {LocationQCArea},
	RouteStatusNeedsRework:           {LocationQCArea},
	RouteStatusAwaitingScrapApproval: {LocationQCArea},
	RouteStatusCompleted:             {LocationWarehouse},
	RouteStatusCancelled:             routeLocations,
}

// ValidPlacement reports whether status and location may coexist.
func ValidPlacement(status RouteStatus, location RouteLocation) bool {
	for _, l := range placements[status] {
		if l == location {
			return true
		}
	}
	return false
}

// CheckInvariants validates the status/location pair and the workstation cursor.
func (rc *RouteCard) CheckInvariants() error {
	if !ValidPlacement(rc.Status, rc.CurrentLocation) {
		return fmt.Errorf("route card %s: status %s cannot be at %s", rc.ID, rc.Status, rc.CurrentLocation)
	}
	if rc.CurrentWorkstationIndex < 0 || rc.CurrentWorkstationIndex > len(rc.Workstations) {
		return fmt.Errorf("route card %s: workstation index %d out of range [0,%d]",
			rc.ID, rc.CurrentWorkstationIndex, len(rc.Workstations))
	}
	return nil
}
