package http

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/verdantlabs/entitlement-service/internal/application"
	"github.com/verdantlabs/entitlement-service/internal/domain"
)

type identifyBody struct {
	Device    deviceContext `json:"device"`
	ImageURL  string        `json:"image_url"`
	ImageData string        `json:"image_data"`
	Locale    string        `json:"locale"`
}

func (h *Handler) identify(w http.ResponseWriter, r *http.Request) {
	var req identifyBody
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "identify", err)
		return
	}

	var imageData []byte
	if req.ImageData != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageData)
		if err != nil {
			writeValidationError(r.Context(), w, "identify", errors.New("image_data is not valid base64"))
			return
		}
		imageData = decoded
	}

	resp, err := h.service.Identify(r.Context(), application.IdentifyRequest{
		Subject:   h.subjectFromRequest(r, req.Device),
		ImageURL:  req.ImageURL,
		ImageData: imageData,
		Locale:    req.Locale,
	})
	if err != nil {
		// A limit denial still carries the decision so the client can render
		// the paywall state without a second round trip.
		if errors.Is(err, domain.ErrLimitReached) {
			writeErrorWithData(w, http.StatusTooManyRequests, codeLimitReached,
				"monthly identification limit reached", resp)
			return
		}
		writeMappedError(r.Context(), w, "identify", err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}
