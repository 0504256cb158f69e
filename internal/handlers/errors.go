package handlers

import (
	"net/http"
	"taskService/internal/logger"
	"taskService/internal/service"

	"go.uber.org/zap"
)

const (
	CodeInternal             = "INTERNAL_ERROR"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnavailable          = "SERVICE_UNAVAILABLE"

	messageInternal = "Internal server error"
)

// handleServiceError переводит ошибку сервиса в HTTP ответ.
// Причина 5xx ошибок пишется только в лог.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	busErr, ok := service.AsBusinessError(err)
	if !ok {
		logger.Error("HTTP: Неизвестная ошибка Service", err,
			zap.String("operation", operation),
			zap.String("client_ip", r.RemoteAddr))

		responseWithError(w, http.StatusInternalServerError, CodeInternal, messageInternal)
		return
	}

	statusCode := mapBusinessErrorToHTTP(busErr.Code)
	if statusCode >= http.StatusInternalServerError {
		logger.Error("HTTP: Ошибка Service", busErr,
			zap.String("error_code", busErr.Code),
			zap.String("operation", operation),
			zap.Int("http_status", statusCode))

		responseWithError(w, statusCode, busErr.Code, busErr.Message)
		return
	}

	logger.Warn("HTTP: Бизнес-ошибка",
		zap.String("error_code", busErr.Code),
		zap.String("operation", operation),
		zap.Int("http_status", statusCode))

	payload := []Payload{
		toPayload("error", busErr.Message),
		toPayload("code", busErr.Code),
	}
	if len(busErr.Details) > 0 {
		payload = append(payload, toPayload("details", busErr.Details))
	}
	responseWithJSON(w, statusCode, payload...)
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodePersistence, service.CodeSourceRead:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
