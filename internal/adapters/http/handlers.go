package http

import (
	"net/http"

	"github.com/verdantlabs/entitlement-service/internal/application"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

// deviceContext is the device portion of a request subject. Anonymous callers
// send it in the body; authenticated callers may include it so their device
// gets linked for the abuse guard.
type deviceContext struct {
	DeviceID    string `json:"device_id"`
	Fingerprint string `json:"fingerprint"`
	LocalCount  int    `json:"local_count"`
}

func (h *Handler) subjectFromRequest(r *http.Request, device deviceContext) application.Subject {
	subject := application.Subject{
		DeviceID:    device.DeviceID,
		Fingerprint: device.Fingerprint,
		LocalCount:  device.LocalCount,
	}
	if claims, ok := claimsFromContext(r.Context()); ok {
		subject.AccountID = claims.AccountID
	}
	return subject
}
