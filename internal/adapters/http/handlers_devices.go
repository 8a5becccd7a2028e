package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdantlabs/entitlement-service/internal/application"
)

func (h *Handler) deviceUsage(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")

	view, err := h.service.DeviceUsageByFingerprint(r.Context(), fingerprint)
	if err != nil {
		writeMappedError(r.Context(), w, "get_device_usage", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

type upsertDeviceUsageBody struct {
	DeviceID string `json:"device_id"`
	Count    int    `json:"count"`
}

func (h *Handler) upsertDeviceUsage(w http.ResponseWriter, r *http.Request) {
	var req upsertDeviceUsageBody
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "upsert_device_usage", err)
		return
	}

	view, err := h.service.UpsertDeviceUsage(r.Context(), application.UpsertDeviceUsageRequest{
		Fingerprint: chi.URLParam(r, "fingerprint"),
		DeviceID:    req.DeviceID,
		Count:       req.Count,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "upsert_device_usage", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

type linkDeviceBody struct {
	Device deviceContext `json:"device"`
}

func (h *Handler) linkDevice(w http.ResponseWriter, r *http.Request) {
	var req linkDeviceBody
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "link_device", err)
		return
	}

	if err := h.service.LinkDevice(r.Context(), application.LinkDeviceRequest{
		Subject: h.subjectFromRequest(r, req.Device),
	}); err != nil {
		writeMappedError(r.Context(), w, "link_device", err)
		return
	}
	writeMessage(w, http.StatusOK, "device linked")
}
