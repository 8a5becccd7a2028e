package http

import (
	"net/http"

	"github.com/verdantlabs/entitlement-service/internal/application"
)

type checkRequestBody struct {
	Device deviceContext `json:"device"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "check_entitlement", err)
		return
	}

	res, err := h.service.Check(r.Context(), application.CheckRequest{
		Subject: h.subjectFromRequest(r, req.Device),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "check_entitlement", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

type recordRequestBody struct {
	Device deviceContext `json:"device"`
}

func (h *Handler) recordAction(w http.ResponseWriter, r *http.Request) {
	var req recordRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "record_action", err)
		return
	}

	res, err := h.service.Record(r.Context(), application.RecordRequest{
		Subject: h.subjectFromRequest(r, req.Device),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "record_action", err)
		return
	}
	writeSuccess(w, http.StatusAccepted, res)
}

func (h *Handler) usageSummary(w http.ResponseWriter, r *http.Request) {
	device := deviceContext{
		DeviceID:    r.URL.Query().Get("device_id"),
		Fingerprint: r.URL.Query().Get("fingerprint"),
	}

	summary, err := h.service.UsageSummary(r.Context(), h.subjectFromRequest(r, device))
	if err != nil {
		writeMappedError(r.Context(), w, "usage_summary", err)
		return
	}
	writeSuccess(w, http.StatusOK, summary)
}

type reconcileRequestBody struct {
	Device    deviceContext `json:"device"`
	SessionID string        `json:"session_id"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "reconcile_device", err)
		return
	}

	res, err := h.service.Reconcile(r.Context(), application.ReconcileRequest{
		Subject:   h.subjectFromRequest(r, req.Device),
		SessionID: req.SessionID,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "reconcile_device", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
