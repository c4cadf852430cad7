package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/bitfantasy/nimo-mes/internal/shared/lock"
	"github.com/bitfantasy/nimo-mes/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// recorder captures notifications and audit records
type recorder struct {
	mu      sync.Mutex
	notices []workflow.Notice
	actions []string
	fail    bool
}

func (r *recorder) Notify(ctx context.Context, to workflow.Recipient, message, notificationType, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("sink down")
	}
	r.notices = append(r.notices, workflow.Notice{To: to, Message: message, Type: notificationType, Link: link})
	return nil
}

func (r *recorder) Record(ctx context.Context, actorID, action, entityType, entityID string, details map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("sink down")
	}
	r.actions = append(r.actions, action)
	return nil
}

func (r *recorder) noticesOfType(typ string) []workflow.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []workflow.Notice
	for _, n := range r.notices {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
	r.actions = nil
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	store *repository.Store
	sink  *recorder
	wf    *workflow.Orchestrator
	now   time.Time
}

// newFixture an orchestrator over a fresh SQLite database whose row stamps
// follow the fixture clock.
func newFixture(t *testing.T, opts ...workflow.Option) *fixture {
	t.Helper()
	f := &fixture{
		t:    t,
		ctx:  context.Background(),
		sink: &recorder{},
		now:  t0,
	}
	clock := func() time.Time { return f.now }
	f.db = testutil.SetupSQLiteDB(t, clock)
	f.store = repository.NewStore(f.db)
	opts = append([]workflow.Option{workflow.WithClock(clock)}, opts...)
	f.wf = workflow.NewOrchestrator(f.store, lock.NewKeyedMutex(), f.sink, f.sink, zap.NewNop(), opts...)
	return f
}

func (f *fixture) advanceClock(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) seedOrder(id string, typ entity.OrderType) *entity.Order {
	f.t.Helper()
	order := &entity.Order{
		ID:          id,
		OrderType:   typ,
		Status:      entity.OrderStatusDraft,
		Priority:    "normal",
		Quantity:    10,
		ItemID:      "item-" + id,
		CreatedByID: "planner-1",
	}
	require.NoError(f.t, f.store.Transaction(f.ctx, func(repo workflow.Repository) error {
		return repo.CreateOrder(f.ctx, order)
	}))
	return order
}

func (f *fixture) seedWarehouseRequest(req *entity.WarehouseRequest) {
	f.t.Helper()
	require.NoError(f.t, f.store.Transaction(f.ctx, func(repo workflow.Repository) error {
		return repo.CreateWarehouseRequest(f.ctx, req)
	}))
}

// seedRows inserts reference rows the workflow only reads, at version 1.
func (f *fixture) seedRows(rows ...interface{}) {
	f.t.Helper()
	for _, row := range rows {
		require.NoError(f.t, f.db.Create(row).Error)
	}
}

func workstations(subcontractedLast bool, names ...string) []entity.Workstation {
	out := make([]entity.Workstation, len(names))
	for i, n := range names {
		out[i] = entity.Workstation{Name: n, EstimatedHours: 8}
	}
	if subcontractedLast && len(out) > 0 {
		out[len(out)-1].IsSubcontractor = true
	}
	return out
}

// newRouteCard creates a DRAFT card over a fresh production order.
func (f *fixture) newRouteCard(orderID string, ws ...entity.Workstation) *entity.RouteCard {
	f.t.Helper()
	f.seedOrder(orderID, entity.OrderTypeProduction)
	rc, err := f.wf.CreateRouteCard(f.ctx, workflow.CreateRouteCardRequest{
		OrderID: orderID,
		Materials: []entity.Material{
			{ItemID: "steel-plate", Quantity: decimal.NewFromInt(4), Unit: "pcs"},
		},
		Workstations: ws,
	}, "planner-1")
	require.NoError(f.t, err)
	return rc
}

func (f *fixture) routeCard(id string) *entity.RouteCard {
	f.t.Helper()
	rc, err := f.wf.GetRouteCard(f.ctx, id)
	require.NoError(f.t, err)
	return rc
}

func (f *fixture) order(id string) *entity.Order {
	f.t.Helper()
	o, err := f.wf.GetOrder(f.ctx, id)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) tasks(filter entity.TaskFilter) []entity.Task {
	f.t.Helper()
	tasks, _, err := f.wf.ListTasks(f.ctx, filter)
	require.NoError(f.t, err)
	return tasks
}

func (f *fixture) openTasks(routeCardID string, typ entity.TaskType) []entity.Task {
	return f.tasks(entity.TaskFilter{RouteCardID: routeCardID, Type: typ, OpenOnly: true})
}

// openTask the single open task of typ on the card
func (f *fixture) openTask(routeCardID string, typ entity.TaskType) entity.Task {
	f.t.Helper()
	open := f.openTasks(routeCardID, typ)
	require.Len(f.t, open, 1, "open %s tasks", typ)
	return open[0]
}

func (f *fixture) requestItem(id string) *entity.WarehouseRequestItem {
	f.t.Helper()
	var item *entity.WarehouseRequestItem
	require.NoError(f.t, f.store.Query(f.ctx, func(repo workflow.Repository) error {
		var err error
		item, err = repo.GetWarehouseRequestItem(f.ctx, id)
		return err
	}))
	return item
}

func (f *fixture) warehouseRequest(id string) *entity.WarehouseRequest {
	f.t.Helper()
	var wr *entity.WarehouseRequest
	require.NoError(f.t, f.store.Query(f.ctx, func(repo workflow.Repository) error {
		var err error
		wr, err = repo.GetWarehouseRequest(f.ctx, id)
		return err
	}))
	return wr
}

// toProduction drives a fresh card to IN_PRODUCTION at its first workstation.
func (f *fixture) toProduction(rc *entity.RouteCard, est time.Time) {
	f.t.Helper()
	_, err := f.wf.ConfirmRouteCard(f.ctx, workflow.ConfirmRouteCardRequest{RouteCardID: rc.ID}, "planner-1")
	require.NoError(f.t, err)
	prep := f.openTask(rc.ID, entity.TaskTypeMaterialPreparation)
	_, err = f.wf.MarkMaterialsPrepared(f.ctx, workflow.TaskActionRequest{TaskID: prep.ID}, "wh-1")
	require.NoError(f.t, err)
	pickup := f.openTask(rc.ID, entity.TaskTypeMaterialPickup)
	_, err = f.wf.ConfirmMaterialPickup(f.ctx, workflow.MaterialPickupRequest{TaskID: pickup.ID}, "exp-1")
	require.NoError(f.t, err)
	delivery := f.openTask(rc.ID, entity.TaskTypeMaterialDelivery)
	_, err = f.wf.ConfirmMaterialDelivery(f.ctx, workflow.MaterialDeliveryRequest{
		TaskID: delivery.ID, EstimatedCompletionDate: &est,
	}, "exp-1")
	require.NoError(f.t, err)
}

// toQC drives an IN_PRODUCTION card on its last workstation to AWAITING_QC.
func (f *fixture) toQC(rc *entity.RouteCard) {
	f.t.Helper()
	followup := f.openTasks(rc.ID, entity.TaskTypeProductionFollowup)
	require.NotEmpty(f.t, followup)
	_, err := f.wf.LogProductionFollowup(f.ctx, workflow.FollowupRequest{
		TaskID: followup[0].ID, Status: entity.FollowUpReadyForPickup,
	}, "planner-1")
	require.NoError(f.t, err)
	pickup := f.openTask(rc.ID, entity.TaskTypePartPickup)
	_, err = f.wf.ConfirmPartPickup(f.ctx, workflow.PartPickupRequest{TaskID: pickup.ID}, "exp-1")
	require.NoError(f.t, err)
	require.Equal(f.t, entity.RouteStatusAwaitingQC, f.routeCard(rc.ID).Status)
}

func requirePlacement(t *testing.T, rc *entity.RouteCard) {
	t.Helper()
	require.Truef(t, entity.ValidPlacement(rc.Status, rc.CurrentLocation),
		"route card %s is %s at %s", rc.ID, rc.Status, rc.CurrentLocation)
}
