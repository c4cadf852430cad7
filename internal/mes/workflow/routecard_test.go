package workflow

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTransitCard(ws ...entity.Workstation) *entity.RouteCard {
	return &entity.RouteCard{
		ID:              "rc-1",
		OrderID:         "ord-1",
		Status:          entity.RouteStatusMaterialsInTransit,
		CurrentLocation: entity.LocationWithExpediter,
		Workstations:    ws,
	}
}

func TestFollowupPairScheduling(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	ws := entity.Workstation{Name: "Lathe"}

	tests := []struct {
		name      string
		est       time.Time
		wantMid   time.Time
		wantFinal time.Time
	}{
		{"four days out", now.Add(96 * time.Hour), now.Add(48 * time.Hour), now.Add(72 * time.Hour)},
		{"final clamps to now", now.Add(12 * time.Hour), now.Add(6 * time.Hour), now},
		{"already overdue", now.Add(-time.Hour), now, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := followupPair(inTransitCard(ws), ws, tt.est, now)
			require.Len(t, specs, 2)
			assert.True(t, specs[0].DueDate.Equal(tt.wantMid), "mid %s", specs[0].DueDate)
			assert.True(t, specs[1].DueDate.Equal(tt.wantFinal), "final %s", specs[1].DueDate)
			for _, s := range specs {
				assert.Equal(t, entity.TaskTypeProductionFollowup, s.Type)
				assert.Equal(t, entity.RoleProductionPlanner, s.AssigneeRole)
			}
		})
	}
}

func TestDeliverMaterialsTarget(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	est := now.Add(48 * time.Hour)
	ws := []entity.Workstation{{Name: "Saw"}, {Name: "Paint", IsSubcontractor: true}, {Name: "Pack"}}

	rc := inTransitCard(ws...)
	_, err := DeliverMaterials(rc, 2, &est, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, entity.RouteStatusMaterialsInTransit, rc.Status)

	_, err = DeliverMaterials(rc, 0, nil, now)
	assert.ErrorIs(t, err, ErrMissingRequiredField)

	step, err := DeliverMaterials(rc, 1, &est, now)
	require.NoError(t, err)
	assert.Equal(t, 1, rc.CurrentWorkstationIndex)
	assert.Equal(t, entity.LocationAtSubcontractor, rc.CurrentLocation)
	assert.Len(t, step.Spawn, 2)

	last := inTransitCard(ws...)
	last.CurrentWorkstationIndex = 2
	_, err = DeliverMaterials(last, 3, &est, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionsRejectWrongStatus(t *testing.T) {
	rc := &entity.RouteCard{
		ID:              "rc-1",
		Status:          entity.RouteStatusDraft,
		CurrentLocation: entity.LocationWarehouse,
		Workstations:    []entity.Workstation{{Name: "Saw"}},
	}
	_, err := MarkMaterialsPrepared(rc)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = PickUpMaterials(rc, entity.PickupEvent{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = DecideQC(rc, entity.QCEvent{Decision: entity.QCApprove})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = StockFinishedPart(rc)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, entity.RouteStatusDraft, rc.Status)
	assert.Equal(t, 0, rc.PickupDetails.Len())
	assert.Equal(t, 0, rc.QCLogs.Len())
}

func TestLogFollowupUnknownStatusLeavesLog(t *testing.T) {
	rc := &entity.RouteCard{
		ID:              "rc-1",
		Status:          entity.RouteStatusInProduction,
		CurrentLocation: entity.LocationAtWorkstation,
		Workstations:    []entity.Workstation{{Name: "Saw"}},
	}
	_, err := LogFollowup(rc, entity.FollowupEvent{Status: "sideways"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, rc.FollowupLogs.Len())
}

func TestTargetWorkstationFallsBack(t *testing.T) {
	task := &entity.Task{ID: "t-1"}
	got, err := targetWorkstation(task, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	require.NoError(t, task.SetPayload(entity.TaskPayload{WorkstationIndex: intPtr(1)}))
	got, err = targetWorkstation(task, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}
