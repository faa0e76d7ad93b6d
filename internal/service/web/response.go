package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// Коды ошибок в теле ответа.
const (
	codeBadRequest   = "bad_request"
	codeInvalidQuery = "invalid_filter"
	codeDatasetEmpty = "dataset_empty"
	codeInternal     = "internal_error"
	codeRateLimited  = "rate_limit_exceeded"
)

// errBadParam: некорректный query-параметр (дата, число).
var errBadParam = errors.New("bad query parameter")

// Response: общий конверт JSON-ответов API.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      int         `json:"code"`
	Message   string      `json:"message,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Code:      http.StatusOK,
		RequestID: requestIDFrom(c),
	})
}

// statusOf сопоставляет ошибку HTTP-коду и коду ошибки. Внутренние детали наружу не уходят.
func statusOf(err error) (int, string, string) {
	switch {
	case errors.Is(err, errBadParam):
		return http.StatusBadRequest, codeBadRequest, err.Error()
	case domain.IsInvalidFilter(err):
		return http.StatusBadRequest, codeInvalidQuery, err.Error()
	case errors.Is(err, domain.ErrDatasetEmpty):
		return http.StatusServiceUnavailable, codeDatasetEmpty, "dataset is not loaded"
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, code, message := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("request_id", requestIDFrom(c)).Error("request failed")
	}

	c.AbortWithStatusJSON(status, Response{
		Success:   false,
		Error:     code,
		Message:   message,
		Code:      status,
		RequestID: requestIDFrom(c),
	})
}
