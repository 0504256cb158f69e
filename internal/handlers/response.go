package handlers

import (
	"encoding/json"
	"net/http"
	"taskService/internal/logger"
)

type Payload struct {
	Key     string
	Payload any
}

func toPayload(key string, pl any) Payload {
	return Payload{Key: key, Payload: pl}
}

func toJSON(storage map[string]any, payload Payload) {
	storage[payload.Key] = payload.Payload
}

func responseWithJSON(w http.ResponseWriter, code int, payload ...Payload) {
	storage := make(map[string]any)
	for _, pl := range payload {
		toJSON(storage, pl)
	}
	responseWithBody(w, code, storage)
}

func responseWithBody(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("HTTP: Ошибка записи ответа", err)
	}
}

func responseWithError(w http.ResponseWriter, code int, errCode string, message string) {
	responseWithJSON(w, code,
		toPayload("error", message),
		toPayload("code", errCode),
	)
}

func responseNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
