package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// Route card transitions. Each function validates first and only then mutates the
// card, so an error always leaves it untouched. The returned Step lists what the
// caller must do beyond saving the card.

// TaskSpec a task a transition asks for
type TaskSpec struct {
	Type         entity.TaskType
	Title        string
	Description  string
	AssigneeRole string
	Priority     int
	DueDate      *time.Time
	Payload      entity.TaskPayload
}

// Step side effects of a transition
type Step struct {
	Spawn       []TaskSpec
	CancelOpen  []entity.TaskType
	OrderStatus entity.OrderStatus
	Notices     []Notice
}

// finalFollowupLead how long before the estimated completion the final check-in is due
const finalFollowupLead = 24 * time.Hour

func expectStatus(rc *entity.RouteCard, want ...entity.RouteStatus) error {
	for _, s := range want {
		if rc.Status == s {
			return nil
		}
	}
	return invalidTransition("route card %s is %s, expected %s", rc.ID, rc.Status, joinStatuses(want))
}

func joinStatuses(ss []entity.RouteStatus) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}

func routeCardLink(rc *entity.RouteCard) string {
	return "/route-cards/" + rc.ID
}

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

// ConfirmRouteCard DRAFT -> CONFIRMED, asks the warehouse to prepare materials.
func ConfirmRouteCard(rc *entity.RouteCard) (Step, error) {
	if err := expectStatus(rc, entity.RouteStatusDraft); err != nil {
		return Step{}, err
	}
	rc.Status = entity.RouteStatusConfirmed
	rc.CurrentLocation = entity.LocationWarehouse

	var lines []string
	for _, m := range rc.Materials {
		lines = append(lines, fmt.Sprintf("- %s: %s %s", m.ItemID, m.Quantity.String(), m.Unit))
	}
	return Step{
		Spawn: []TaskSpec{{
			Type:         entity.TaskTypeMaterialPreparation,
			Title:        fmt.Sprintf("Prepare materials for Production Order #%s", rc.OrderID),
			Description:  "Please prepare the following materials:\n" + strings.Join(lines, "\n"),
			AssigneeRole: entity.RoleWarehouseManager,
			Priority:     entity.PriorityMedium,
		}},
		OrderStatus: entity.OrderStatusInProgress,
	}, nil
}

// MarkMaterialsPrepared CONFIRMED -> MATERIALS_PREPARED, asks for a pickup.
func MarkMaterialsPrepared(rc *entity.RouteCard) (Step, error) {
	if err := expectStatus(rc, entity.RouteStatusConfirmed); err != nil {
		return Step{}, err
	}
	rc.Status = entity.RouteStatusMaterialsPrepared
	rc.CurrentLocation = entity.LocationWarehouse
	return Step{
		Spawn: []TaskSpec{{
			Type:         entity.TaskTypeMaterialPickup,
			Title:        fmt.Sprintf("Pick up materials for Production Order #%s", rc.OrderID),
			Description:  "Materials are ready for pickup at the warehouse",
			AssigneeRole: entity.RoleExpediter,
			Priority:     entity.PriorityMedium,
		}},
	}, nil
}

// PickUpMaterials MATERIALS_PREPARED -> MATERIALS_IN_TRANSIT, asks for delivery to
// the workstation at the cursor.
func PickUpMaterials(rc *entity.RouteCard, ev entity.PickupEvent) (Step, error) {
	if err := expectStatus(rc, entity.RouteStatusMaterialsPrepared); err != nil {
		return Step{}, err
	}
	ws, ok := rc.CurrentWorkstation()
	if !ok {
		return Step{}, invalidTransition("route card %s has no workstation at index %d", rc.ID, rc.CurrentWorkstationIndex)
	}
	ev.Kind = entity.PickupMaterials
	ev.WorkstationIndex = rc.CurrentWorkstationIndex
	rc.PickupDetails = rc.PickupDetails.Append(ev)
	rc.Status = entity.RouteStatusMaterialsInTransit
	rc.CurrentLocation = entity.LocationWithExpediter
	return Step{
		Spawn: []TaskSpec{deliverySpec(rc, rc.CurrentWorkstationIndex, ws)},
	}, nil
}

func deliverySpec(rc *entity.RouteCard, target int, ws entity.Workstation) TaskSpec {
	return TaskSpec{
		Type:         entity.TaskTypeMaterialDelivery,
		Title:        fmt.Sprintf("Deliver materials to %s", ws.Label()),
		Description:  fmt.Sprintf("Deliver materials for Production Order #%s to %s", rc.OrderID, ws.Label()),
		AssigneeRole: entity.RoleExpediter,
		Priority:     entity.PriorityMedium,
		Payload:      entity.TaskPayload{WorkstationIndex: intPtr(target)},
	}
}

// DeliverMaterials MATERIALS_IN_TRANSIT -> IN_PRODUCTION at the target workstation.
// The cursor moves only when target is the next workstation.
func DeliverMaterials(rc *entity.RouteCard, target int, estimatedCompletion *time.Time, now time.Time) (Step, error) {
	if estimatedCompletion == nil {
		return Step{}, missingField("estimated_completion_date")
	}
	if err := expectStatus(rc, entity.RouteStatusMaterialsInTransit); err != nil {
		return Step{}, err
	}
	if target != rc.CurrentWorkstationIndex && target != rc.CurrentWorkstationIndex+1 {
		return Step{}, invalidTransition("route card %s is at workstation %d, cannot deliver to %d",
			rc.ID, rc.CurrentWorkstationIndex, target)
	}
	ws, ok := rc.Workstation(target)
	if !ok {
		return Step{}, invalidTransition("route card %s has no workstation at index %d", rc.ID, target)
	}
	rc.CurrentWorkstationIndex = target
	rc.Status = entity.RouteStatusInProduction
	rc.CurrentLocation = ws.Location()
	rc.EstimatedCompletionDate = timePtr(*estimatedCompletion)
	return Step{Spawn: followupPair(rc, ws, *estimatedCompletion, now)}, nil
}

// followupPair schedules a mid-point check-in and a final check one day before
// the estimated completion, never earlier than now.
func followupPair(rc *entity.RouteCard, ws entity.Workstation, est, now time.Time) []TaskSpec {
	mid := now
	if est.After(now) {
		mid = now.Add(est.Sub(now) / 2)
	}
	final := est.Add(-finalFollowupLead)
	if final.Before(now) {
		final = now
	}
	return []TaskSpec{
		followupSpec(rc, ws, "Mid-point follow-up", mid, entity.PriorityMedium),
		followupSpec(rc, ws, "Final follow-up", final, entity.PriorityMedium),
	}
}

func followupSpec(rc *entity.RouteCard, ws entity.Workstation, kind string, due time.Time, priority int) TaskSpec {
	return TaskSpec{
		Type:         entity.TaskTypeProductionFollowup,
		Title:        fmt.Sprintf("%s: %s", kind, ws.Label()),
		Description:  fmt.Sprintf("Check production progress of Production Order #%s at %s", rc.OrderID, ws.Label()),
		AssigneeRole: entity.RoleProductionPlanner,
		Priority:     priority,
		DueDate:      timePtr(due),
		Payload:      entity.TaskPayload{WorkstationIndex: intPtr(rc.CurrentWorkstationIndex)},
	}
}

// LogFollowup records a production check-in. The card stays IN_PRODUCTION.
func LogFollowup(rc *entity.RouteCard, ev entity.FollowupEvent, now time.Time) (Step, error) {
	if ev.Status == entity.FollowUpDelayed && ev.RevisedCompletionDate == nil {
		return Step{}, missingField("revised_completion_date")
	}
	if err := expectStatus(rc, entity.RouteStatusInProduction); err != nil {
		return Step{}, err
	}
	ws, ok := rc.CurrentWorkstation()
	if !ok {
		return Step{}, invalidTransition("route card %s has no workstation at index %d", rc.ID, rc.CurrentWorkstationIndex)
	}

	var step Step
	switch ev.Status {
	case entity.FollowUpOnSchedule:
	case entity.FollowUpDelayed:
		revised := *ev.RevisedCompletionDate
		rc.EstimatedCompletionDate = timePtr(revised)
		step.CancelOpen = []entity.TaskType{entity.TaskTypeProductionFollowup}
		step.Spawn = []TaskSpec{followupSpec(rc, ws, "Delayed production follow-up", revised, entity.PriorityHigh)}
		step.Notices = []Notice{{
			To: ToRole(entity.RoleProductionManager),
			Message: fmt.Sprintf("Production delay reported for Route Card #%s. New estimated completion date: %s",
				rc.ID, revised.Format("2006-01-02")),
			Type: NotifyProductionDelay,
			Link: routeCardLink(rc),
		}}
	case entity.FollowUpReadyForPickup:
		step.CancelOpen = []entity.TaskType{entity.TaskTypeProductionFollowup}
		step.Spawn = []TaskSpec{{
			Type:         entity.TaskTypePartPickup,
			Title:        fmt.Sprintf("Pick up parts from %s", ws.Label()),
			Description:  fmt.Sprintf("Parts for Production Order #%s are ready at %s", rc.OrderID, ws.Label()),
			AssigneeRole: entity.RoleExpediter,
			Priority:     entity.PriorityUrgent,
			DueDate:      timePtr(now),
			Payload:      entity.TaskPayload{WorkstationIndex: intPtr(rc.CurrentWorkstationIndex)},
		}}
	default:
		return Step{}, invalidTransition("unknown follow-up status %q", ev.Status)
	}
	rc.FollowupLogs = rc.FollowupLogs.Append(ev)
	return step, nil
}

// PickUpPart takes parts off the current workstation. After the last workstation
// they go to QC, otherwise they travel on to the next workstation.
func PickUpPart(rc *entity.RouteCard, ev entity.PickupEvent) (Step, error) {
	if err := expectStatus(rc, entity.RouteStatusInProduction); err != nil {
		return Step{}, err
	}
	ws, ok := rc.CurrentWorkstation()
	if !ok {
		return Step{}, invalidTransition("route card %s has no workstation at index %d", rc.ID, rc.CurrentWorkstationIndex)
	}
	ev.Kind = entity.PickupPart
	ev.WorkstationIndex = rc.CurrentWorkstationIndex

	step := Step{CancelOpen: []entity.TaskType{entity.TaskTypeProductionFollowup}}
	if rc.IsLastWorkstation() {
		var qty string
		if ev.QuantityReceived != nil {
			qty = ev.QuantityReceived.String()
		}
		rc.Status = entity.RouteStatusAwaitingQC
		rc.CurrentLocation = entity.LocationQCArea
		step.Spawn = []TaskSpec{{
			Type:         entity.TaskTypeQCInspection,
			Title:        fmt.Sprintf("QC inspection for Production Order #%s", rc.OrderID),
			Description:  fmt.Sprintf("Inspect parts picked up from %s", ws.Label()),
			AssigneeRole: entity.RoleQCManager,
			Priority:     entity.PriorityHigh,
			Payload: entity.TaskPayload{
				QuantityToInspect: qty,
				InvoiceURL:        ev.InvoiceURL,
				PickupDetails:     []entity.PickupEvent{ev},
			},
		}}
	} else {
		next := rc.CurrentWorkstationIndex + 1
		nextWS, _ := rc.Workstation(next)
		rc.Status = entity.RouteStatusMaterialsInTransit
		rc.CurrentLocation = entity.LocationWithExpediter
		step.Spawn = []TaskSpec{deliverySpec(rc, next, nextWS)}
	}
	rc.PickupDetails = rc.PickupDetails.Append(ev)
	return step, nil
}

// DecideQC applies the inspector's decision.
func DecideQC(rc *entity.RouteCard, ev entity.QCEvent) (Step, error) {
	if err := expectStatus(rc, entity.RouteStatusAwaitingQC); err != nil {
		return Step{}, err
	}
	var step Step
	switch ev.Decision {
	case entity.QCApprove:
		rc.Status = entity.RouteStatusCompleted
		rc.CurrentLocation = entity.LocationWarehouse
		rc.CurrentWorkstationIndex = len(rc.Workstations)
		step.Spawn = []TaskSpec{{
			Type:         entity.TaskTypeStockFinishedPart,
			Title:        fmt.Sprintf("Stock finished parts for Production Order #%s", rc.OrderID),
			Description:  "Parts passed QC, put them into stock",
			AssigneeRole: entity.RoleWarehouseManager,
			Priority:     entity.PriorityMedium,
		}}
		step.Notices = []Notice{{
			To:      ToUser(rc.CreatedByID),
			Message: fmt.Sprintf("Route Card #%s for Order #%s has been completed", rc.ID, rc.OrderID),
			Type:    NotifyRouteCardUpdate,
			Link:    routeCardLink(rc),
		}}
	case entity.QCRequestRework:
		rc.Status = entity.RouteStatusNeedsRework
		step.Spawn = []TaskSpec{reworkSpec(rc, ev)}
	case entity.QCRequestScrap:
		rc.Status = entity.RouteStatusAwaitingScrapApproval
		step.Spawn = []TaskSpec{{
			Type:         entity.TaskTypeReviewScrapRequest,
			Title:        fmt.Sprintf("Review scrap request for Production Order #%s", rc.OrderID),
			Description:  ev.Notes,
			AssigneeRole: entity.RoleProductionManager,
			Priority:     entity.PriorityHigh,
			Payload:      entity.TaskPayload{QCLogs: []entity.QCEvent{ev}},
		}}
	default:
		return Step{}, invalidTransition("unknown QC decision %q", ev.Decision)
	}
	rc.QCLogs = rc.QCLogs.Append(ev)
	return step, nil
}

func reworkSpec(rc *entity.RouteCard, ev entity.QCEvent) TaskSpec {
	ws, _ := rc.CurrentWorkstation()
	return TaskSpec{
		Type:         entity.TaskTypeDeliverForRework,
		Title:        fmt.Sprintf("Deliver parts for rework to %s", ws.Label()),
		Description:  ev.Notes,
		AssigneeRole: entity.RoleExpediter,
		Priority:     entity.PriorityHigh,
		Payload: entity.TaskPayload{
			WorkstationIndex: intPtr(rc.CurrentWorkstationIndex),
			QCLogs:           []entity.QCEvent{ev},
		},
	}
}

// DeliverForRework NEEDS_REWORK -> IN_PRODUCTION at the current workstation.
func DeliverForRework(rc *entity.RouteCard, estimatedCompletion *time.Time, now time.Time) (Step, error) {
	if estimatedCompletion == nil {
		return Step{}, missingField("estimated_completion_date")
	}
	if err := expectStatus(rc, entity.RouteStatusNeedsRework); err != nil {
		return Step{}, err
	}
	ws, ok := rc.CurrentWorkstation()
	if !ok {
		return Step{}, invalidTransition("route card %s has no workstation at index %d", rc.ID, rc.CurrentWorkstationIndex)
	}
	rc.Status = entity.RouteStatusInProduction
	rc.CurrentLocation = ws.Location()
	rc.EstimatedCompletionDate = timePtr(*estimatedCompletion)
	return Step{Spawn: followupPair(rc, ws, *estimatedCompletion, now)}, nil
}

// ReviewScrap approving the scrap cancels the card and its order; denying it sends
// the parts back for rework.
func ReviewScrap(rc *entity.RouteCard, ev entity.QCEvent) (Step, error) {
	if err := expectStatus(rc, entity.RouteStatusAwaitingScrapApproval); err != nil {
		return Step{}, err
	}
	var step Step
	switch ev.ScrapDecision {
	case entity.ScrapApprove:
		rc.Status = entity.RouteStatusCancelled
		step.OrderStatus = entity.OrderStatusCancelled
		step.Notices = []Notice{{
			To:      ToUser(rc.CreatedByID),
			Message: fmt.Sprintf("Parts of Route Card #%s were scrapped, Order #%s is cancelled", rc.ID, rc.OrderID),
			Type:    NotifyRouteCardUpdate,
			Link:    routeCardLink(rc),
		}}
	case entity.ScrapDeny:
		rc.Status = entity.RouteStatusNeedsRework
		step.Spawn = []TaskSpec{reworkSpec(rc, ev)}
	default:
		return Step{}, invalidTransition("unknown scrap decision %q", ev.ScrapDecision)
	}
	rc.QCLogs = rc.QCLogs.Append(ev)
	return step, nil
}

// StockFinishedPart closes out a completed card by completing its order.
func StockFinishedPart(rc *entity.RouteCard) (Step, error) {
	if err := expectStatus(rc, entity.RouteStatusCompleted); err != nil {
		return Step{}, err
	}
	return Step{OrderStatus: entity.OrderStatusCompleted}, nil
}

// CancelRouteCard stops a card in any non-terminal status. Parts stay where they are.
func CancelRouteCard(rc *entity.RouteCard, reason string) (Step, error) {
	if rc.Status.IsTerminal() {
		return Step{}, invalidTransition("route card %s is already %s", rc.ID, rc.Status)
	}
	rc.Status = entity.RouteStatusCancelled
	return Step{
		CancelOpen: []entity.TaskType{
			entity.TaskTypeMaterialPreparation, entity.TaskTypeMaterialPickup, entity.TaskTypeMaterialDelivery,
			entity.TaskTypeProductionFollowup, entity.TaskTypePartPickup, entity.TaskTypeQCInspection,
			entity.TaskTypeDeliverForRework, entity.TaskTypeReviewScrapRequest, entity.TaskTypeStockFinishedPart,
		},
		OrderStatus: entity.OrderStatusCancelled,
		Notices: []Notice{{
			To:      ToUser(rc.CreatedByID),
			Message: fmt.Sprintf("Route Card #%s was cancelled: %s", rc.ID, reason),
			Type:    NotifyRouteCardUpdate,
			Link:    routeCardLink(rc),
		}},
	}, nil
}
