package handler_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/handler"
	"github.com/bitfantasy/nimo-mes/internal/mes/notify"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/bitfantasy/nimo-mes/internal/shared/lock"
	"github.com/bitfantasy/nimo-mes/internal/shared/storage"
	"github.com/bitfantasy/nimo-mes/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiEnv struct {
	t      *testing.T
	router *gin.Engine
	store  *repository.Store
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	require.NoError(t, handler.RegisterValidators())

	db := testutil.SetupSQLiteDB(t, nil)
	store := repository.NewStore(db)
	notifications := repository.NewNotificationRepository(db)
	audit := repository.NewAuditLogRepository(db)
	wf := workflow.NewOrchestrator(store, lock.NewKeyedMutex(),
		notify.NewDBSink(notifications), notify.NewDBAuditSink(audit), zap.NewNop())

	r := testutil.SetupRouter()
	h := &handler.Handlers{
		Workflow:   handler.NewWorkflowHandler(wf, zap.NewNop()),
		Attachment: handler.NewAttachmentHandler(storage.NewMemoryStore(), zap.NewNop()),
		Inbox:      handler.NewInboxHandler(notifications, audit, zap.NewNop()),
	}
	h.RegisterRoutes(testutil.AuthGroup(r, "/api/v1"))
	return &apiEnv{t: t, router: r, store: store}
}

func (e *apiEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	return testutil.DoRequest(e.router, method, path, body, token)
}

func (e *apiEnv) seedOrder(id string) {
	e.t.Helper()
	ctx := context.Background()
	require.NoError(e.t, e.store.Transaction(ctx, func(repo workflow.Repository) error {
		return repo.CreateOrder(ctx, &entity.Order{
			ID: id, OrderType: entity.OrderTypeProduction, Status: entity.OrderStatusDraft, Quantity: 5, ItemID: "bracket", CreatedByID: "planner-1",
		})
	}))
}

func (e *apiEnv) seedWarehouseRequest(req *entity.WarehouseRequest) {
	e.t.Helper()
	ctx := context.Background()
	require.NoError(e.t, e.store.Transaction(ctx, func(repo workflow.Repository) error {
		return repo.CreateWarehouseRequest(ctx, req)
	}))
}

var (
	planner   = testutil.GenerateTestToken("planner-1", "Planner", entity.RoleProductionPlanner)
	warehouse = testutil.GenerateTestToken("wh-1", "Warehouse", entity.RoleWarehouseManager)
	expediter = testutil.GenerateTestToken("exp-1", "Expediter", entity.RoleExpediter)
	qcManager = testutil.GenerateTestToken("qc-1", "QC", entity.RoleQCManager)
	engineer  = testutil.GenerateTestToken("eng-1", "Engineer")
)

func items(w *httptest.ResponseRecorder) []interface{} {
	list, _ := testutil.Data(w)["items"].([]interface{})
	return list
}

func firstID(list []interface{}) string {
	if len(list) == 0 {
		return ""
	}
	m, _ := list[0].(map[string]interface{})
	id, _ := m["id"].(string)
	return id
}

func TestRouteCardLifecycleOverHTTP(t *testing.T) {
	e := newAPI(t)
	e.seedOrder("ord-1")

	w := e.do(http.MethodPost, "/api/v1/route-cards", map[string]interface{}{
		"order_id": "ord-1",
		"materials": []map[string]interface{}{
			{"item_id": "steel-plate", "quantity": "4", "unit": "pcs"},
		},
		"workstations": []map[string]interface{}{{"name": "Laser", "estimated_hours": 6}},
	}, planner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rc := testutil.Data(w)
	rcID := rc["id"].(string)
	assert.Equal(t, "DRAFT", rc["status"])
	assert.Equal(t, "WAREHOUSE", rc["current_location"])

	w = e.do(http.MethodPost, "/api/v1/route-cards/"+rcID+"/confirm", nil, planner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created, _ := testutil.Data(w)["created_tasks"].([]interface{})
	require.Len(t, created, 1)

	w = e.do(http.MethodGet, "/api/v1/tasks?open=true&route_card_id="+rcID, nil, warehouse)
	require.Equal(t, http.StatusOK, w.Code)
	open := items(w)
	require.Len(t, open, 1)
	taskID := firstID(open)

	w = e.do(http.MethodPost, "/api/v1/tasks/"+taskID+"/materials-prepared", map[string]string{"notes": "bay 3"}, warehouse)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	card := testutil.Data(w)["route_card"].(map[string]interface{})
	assert.Equal(t, "MATERIALS_PREPARED", card["status"])

	w = e.do(http.MethodPost, "/api/v1/tasks/"+taskID+"/materials-prepared", nil, warehouse)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.EqualValues(t, handler.CodeDuplicateSubmission, testutil.ParseResponse(w)["code"])

	w = e.do(http.MethodGet, "/api/v1/tasks?open=true&type=MATERIAL_PICKUP&route_card_id="+rcID, nil, expediter)
	pickupID := firstID(items(w))
	require.NotEmpty(t, pickupID)
	w = e.do(http.MethodPost, "/api/v1/tasks/"+pickupID+"/material-pickup", nil, expediter)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/v1/tasks?open=true&type=MATERIAL_DELIVERY&route_card_id="+rcID, nil, expediter)
	deliveryID := firstID(items(w))
	w = e.do(http.MethodPost, "/api/v1/tasks/"+deliveryID+"/material-delivery", map[string]string{"notes": "no date"}, expediter)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, handler.CodeMissingRequiredField, testutil.ParseResponse(w)["code"])

	w = e.do(http.MethodPost, "/api/v1/tasks/"+deliveryID+"/material-delivery", map[string]string{
		"estimated_completion_date": "2031-01-10T12:00:00Z",
	}, expediter)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	card = testutil.Data(w)["route_card"].(map[string]interface{})
	assert.Equal(t, "IN_PRODUCTION", card["status"])
	assert.Equal(t, "AT_WORKSTATION", card["current_location"])

	w = e.do(http.MethodGet, "/api/v1/tasks?open=true&type=PRODUCTION_FOLLOWUP&route_card_id="+rcID, nil, planner)
	followupID := firstID(items(w))
	w = e.do(http.MethodPost, "/api/v1/tasks/"+followupID+"/followup", map[string]string{"status": "sideways"}, planner)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/v1/route-cards/"+rcID+"/cancel", map[string]string{"reason": "customer withdrew"}, expediter)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/v1/orders/ord-1", nil, planner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IN_PROGRESS", testutil.Data(w)["status"])
}

func TestChunkedEmptyBodyIsAccepted(t *testing.T) {
	e := newAPI(t)
	e.seedOrder("ord-1")

	w := e.do(http.MethodPost, "/api/v1/route-cards", map[string]interface{}{
		"order_id":     "ord-1",
		"workstations": []map[string]interface{}{{"name": "Laser", "estimated_hours": 6}},
	}, planner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rcID := testutil.Data(w)["id"].(string)
	w = e.do(http.MethodPost, "/api/v1/route-cards/"+rcID+"/confirm", nil, planner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(http.MethodGet, "/api/v1/tasks?open=true&route_card_id="+rcID, nil, warehouse)
	taskID := firstID(items(w))
	require.NotEmpty(t, taskID)

	// no length known up front, as with Transfer-Encoding: chunked
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+taskID+"/materials-prepared",
		io.NopCloser(bytes.NewReader(nil)))
	require.EqualValues(t, -1, req.ContentLength)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+warehouse)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	card := testutil.Data(w)["route_card"].(map[string]interface{})
	assert.Equal(t, "MATERIALS_PREPARED", card["status"])
}

func TestErrorCodes(t *testing.T) {
	e := newAPI(t)
	e.seedOrder("ord-1")
	admin := testutil.DefaultTestToken()

	w := e.do(http.MethodGet, "/api/v1/route-cards/missing", nil, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.EqualValues(t, handler.CodeNotFound, testutil.ParseResponse(w)["code"])

	w = e.do(http.MethodPost, "/api/v1/route-cards", map[string]interface{}{"order_id": "ord-1"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := map[string]interface{}{
		"order_id":     "ord-1",
		"workstations": []map[string]interface{}{{"name": "Laser"}},
	}
	w = e.do(http.MethodPost, "/api/v1/route-cards", body, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(http.MethodPost, "/api/v1/route-cards", body, admin)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.EqualValues(t, handler.CodeInvalidTransition, testutil.ParseResponse(w)["code"])

	w = e.do(http.MethodPost, "/api/v1/route-cards", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPut, "/api/v1/orders/ord-1/status", map[string]string{"status": "LOST"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodPut, "/api/v1/orders/ord-1/status", map[string]string{"status": "DRAFT"}, admin)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestErrorCodeMapping(t *testing.T) {
	assert.Equal(t, handler.CodeNotFound, handler.ErrorCode(workflow.NotFoundError("task", "t-1")))
	assert.Equal(t, handler.CodeConcurrentModification, handler.ErrorCode(workflow.ErrConcurrentModification))
	assert.Equal(t, 0, handler.ErrorCode(assert.AnError))
}

func TestApprovalLevelRequiresReviewerRole(t *testing.T) {
	e := newAPI(t)
	e.seedWarehouseRequest(&entity.WarehouseRequest{
		ID: "wr-1", ProjectName: "Bracket line", Status: entity.WRStatusProcessing, CreatedByID: "eng-1",
	})

	w := e.do(http.MethodPost, "/api/v1/change-addenda", map[string]string{
		"original_request_id": "wr-1", "description": "Use 6061 instead of 5052",
	}, engineer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	approval := testutil.Data(w)["approval"].(map[string]interface{})
	approvalID := approval["id"].(string)

	decide := map[string]string{"level": "QC_MANAGER", "status": "approved"}
	w = e.do(http.MethodPost, "/api/v1/approvals/"+approvalID+"/levels", decide, expediter)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/api/v1/approvals/"+approvalID+"/levels", decide, qcManager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created, _ := testutil.Data(w)["created_tasks"].([]interface{})
	assert.Len(t, created, 1)

	w = e.do(http.MethodPost, "/api/v1/approvals/"+approvalID+"/levels", decide, qcManager)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.EqualValues(t, handler.CodeDuplicateSubmission, testutil.ParseResponse(w)["code"])

	w = e.do(http.MethodPost, "/api/v1/approvals/"+approvalID+"/levels",
		map[string]string{"level": "QC_MANAGER", "status": "maybe"}, qcManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationsAndAuditTrail(t *testing.T) {
	e := newAPI(t)
	e.seedOrder("ord-1")

	w := e.do(http.MethodPost, "/api/v1/route-cards", map[string]interface{}{
		"order_id": "ord-1", "workstations": []map[string]interface{}{{"name": "Laser"}},
	}, planner)
	require.Equal(t, http.StatusCreated, w.Code)
	rcID := testutil.Data(w)["id"].(string)
	w = e.do(http.MethodPost, "/api/v1/route-cards/"+rcID+"/confirm", nil, planner)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/api/v1/notifications", nil, warehouse)
	require.Equal(t, http.StatusOK, w.Code)
	notes := items(w)
	require.Len(t, notes, 1)
	note := notes[0].(map[string]interface{})
	assert.Equal(t, workflow.NotifyTaskAssigned, note["type"])

	w = e.do(http.MethodGet, "/api/v1/notifications", nil, expediter)
	assert.Empty(t, items(w))

	w = e.do(http.MethodPost, "/api/v1/notifications/"+note["id"].(string)+"/read", nil, warehouse)
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodGet, "/api/v1/notifications?unread=true", nil, warehouse)
	assert.Empty(t, items(w))
	w = e.do(http.MethodPost, "/api/v1/notifications/nope/read", nil, warehouse)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodGet, "/api/v1/audit-logs?entity_type=route_card&entity_id="+rcID, nil, planner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, items(w), 2)
	w = e.do(http.MethodGet, "/api/v1/audit-logs?entity_type=route_card", nil, planner)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachmentUploadAndDownload(t *testing.T) {
	e := newAPI(t)
	token := testutil.DefaultTestToken()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "invoice-17.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 invoice"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	uploaded, _ := testutil.ParseResponse(w)["data"].([]interface{})
	require.Len(t, uploaded, 1)
	obj := uploaded[0].(map[string]interface{})
	url := obj["url"].(string)
	assert.EqualValues(t, 16, obj["size"])

	w = e.do(http.MethodGet, url, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 invoice", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "invoice-17.pdf")

	w = e.do(http.MethodGet, "/api/v1/attachments/attachments/2026/01/nope.pdf", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
