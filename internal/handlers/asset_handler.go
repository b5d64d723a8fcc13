package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/services/assets"
)

type AssetHandler struct {
	resolver *assets.Resolver
	logger   arbor.ILogger
}

func NewAssetHandler(resolver *assets.Resolver, logger arbor.ILogger) *AssetHandler {
	return &AssetHandler{
		resolver: resolver,
		logger:   logger,
	}
}

// ServeAssetHandler serves a stored drawing for a signed, unexpired URL.
// Path shape: /assets/{ref}?expires={unix}&sig={hmac}
func (h *AssetHandler) ServeAssetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ref := strings.TrimPrefix(r.URL.Path, "/assets/")
	ref, err := url.PathUnescape(ref)
	if err != nil || ref == "" {
		WriteError(w, http.StatusBadRequest, "Invalid asset reference")
		return
	}

	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Missing or invalid expiry")
		return
	}
	sig := r.URL.Query().Get("sig")

	if err := h.resolver.Verify(sig, expires, ref); err != nil {
		h.logger.Debug().Err(err).Str("asset_ref", ref).Msg("Rejected asset request")
		WriteError(w, http.StatusForbidden, "Invalid or expired asset URL")
		return
	}

	path, err := h.resolver.FilePath(ref)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Asset not found")
		return
	}

	// Signed URLs are single-use by convention; keep caches out of it so
	// an expired link cannot be revived from an intermediary
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}
