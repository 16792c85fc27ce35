package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"chatserver/internal/storage"
)

// handleCreateUpload mints a presigned upload target. The client PUTs the
// file bytes there directly and then references the object id in a send or
// group-image mutation.
func handleCreateUpload(objects storage.ObjectStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := requireUser(w, r)
		if caller == nil {
			return
		}
		target, err := objects.PresignUpload(r.Context())
		if err != nil {
			log.Error("presign upload failed", zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, target)
	}
}
