package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Response envelope of every JSON reply
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse paged list
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newPagination(page, pageSize int, total int64) *Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: int(total), TotalPages: totalPages}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{Code: 0, Message: "success", Data: data})
}

// Error the HTTP status is code/100, so 40901 answers 409.
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{Code: code, Message: message})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// Error codes of workflow failures
const (
	CodeNotFound               = 40401
	CodeMissingRequiredField   = 40001
	CodeInvalidTransition      = 40901
	CodeDuplicateSubmission    = 40902
	CodeConcurrentModification = 40903
)

// ErrorCode maps a workflow error to its response code; 0 for anything unexpected.
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, workflow.ErrMissingRequiredField):
		return CodeMissingRequiredField
	case errors.Is(err, workflow.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, workflow.ErrDuplicateSubmission):
		return CodeDuplicateSubmission
	case errors.Is(err, workflow.ErrConcurrentModification):
		return CodeConcurrentModification
	}
	return 0
}

// respondError answers a failed operation. Unexpected errors are logged and
// hidden from the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if code := ErrorCode(err); code != 0 {
		Error(c, code, err.Error())
		return
	}
	_ = c.Error(err)
	logger.Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(middleware.CtxRequestID)),
		zap.Error(err),
	)
	InternalError(c, "internal error")
}

func GetUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserID)
}

func GetRoles(c *gin.Context) []string {
	roles, _ := c.Get(middleware.CtxRoles)
	r, _ := roles.([]string)
	return r
}

// pageParams reads page and page_size, defaulting to 1 and 20, capped at 100.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func enumValidator[T ~string](parse func(string) (T, error)) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		v, err := parse(s)
		return err == nil && string(v) == s
	}
}

// RegisterValidators adds the workflow enum tags to gin's validator. Values
// must match exactly; case folding is left to Parse* callers.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator is not go-playground/validator")
	}
	validators := map[string]validator.Func{
		"followup_status": enumValidator(entity.ParseFollowUpStatus),
		"qc_decision":     enumValidator(entity.ParseQCDecision),
		"scrap_decision":  enumValidator(entity.ParseScrapDecision),
		"approval_level":  enumValidator(entity.ParseApprovalLevel),
		"approval_status": enumValidator(entity.ParseApprovalStatus),
		"order_status":    enumValidator(entity.ParseOrderStatus),
	}
	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}
