package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jittakal/fifopipe/internal/device"
	apperrors "github.com/jittakal/fifopipe/internal/errors"
)

// maxRequestBody caps a single write request body. Oversized writes are
// truncated to the element size by the pipe anyway, so this only bounds
// what we buffer in memory per request.
const maxRequestBody = 16 << 20

type writeResponse struct {
	Device      string `json:"device"`
	Transferred int    `json:"transferred"`
}

type elementSizeResponse struct {
	Device      string `json:"device"`
	ElementSize int    `json:"element_size"`
	Capacity    int    `json:"capacity"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewDataMux builds the data-plane routes for the device registry.
func NewDataMux(registry *device.Registry, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/devices/{name}/write", writeHandler(registry, logger))
	mux.HandleFunc("GET /v1/devices/{name}/read", readHandler(registry, logger))
	mux.HandleFunc("GET /v1/devices/{name}/elemsz", elementSizeHandler(registry, logger))
	return mux
}

func writeHandler(registry *device.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := registry.Lookup(r.PathValue("name"))
		if err != nil {
			writeError(w, http.StatusNotFound, err, logger)
			return
		}

		dev.Open()
		defer dev.Release()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, err, logger)
			return
		}

		n, err := dev.Write(r.Context(), body, len(body))
		if err != nil {
			writeError(w, transferStatus(err), err, logger)
			return
		}

		writeJSON(w, http.StatusOK, writeResponse{
			Device:      dev.Name(),
			Transferred: n,
		}, logger)
	}
}

func readHandler(registry *device.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := registry.Lookup(r.PathValue("name"))
		if err != nil {
			writeError(w, http.StatusNotFound, err, logger)
			return
		}

		count, err := strconv.Atoi(r.URL.Query().Get("count"))
		if err != nil || count < 0 {
			writeError(w, http.StatusBadRequest, apperrors.ErrInvalidArgument, logger)
			return
		}

		dev.Open()
		defer dev.Release()

		data, n, err := dev.Read(r.Context(), count)
		if err != nil {
			writeError(w, transferStatus(err), err, logger)
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(n))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data[:n]); err != nil {
			logger.Error("failed to write response body", "device", dev.Name(), "error", err)
		}
	}
}

func elementSizeHandler(registry *device.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := registry.Lookup(r.PathValue("name"))
		if err != nil {
			writeError(w, http.StatusNotFound, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, elementSizeResponse{
			Device:      dev.Name(),
			ElementSize: dev.ElementSize(),
			Capacity:    dev.Capacity(),
		}, logger)
	}
}

// transferStatus maps pipe transfer failures to HTTP status codes.
func transferStatus(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrFault):
		return http.StatusInternalServerError
	case errors.Is(err, apperrors.ErrInterrupted):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrClosed):
		return http.StatusGone
	case errors.Is(err, apperrors.ErrOutOfMemory):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error, logger *slog.Logger) {
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()}, logger)
}
