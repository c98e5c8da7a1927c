package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
)

func newHealth(deps Deps) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	h.AddReadinessCheck("store", healthcheck.Timeout(func() error {
		_, err := deps.Store.Collections()
		return err
	}, 2*time.Second))
	if db := deps.Store.DB(); db != nil {
		h.AddReadinessCheck("database", healthcheck.DatabasePingCheck(db, time.Second))
	}
	h.AddReadinessCheck("upload-dir", func() error {
		info, err := os.Stat(deps.UploadDir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", deps.UploadDir)
		}
		return nil
	})
	return h
}

// handleHealth reports whether the admin login is configured, without
// revealing any of its values.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":          true,
			"status":           "ok",
			"hasAdminEmail":    deps.Credentials.Email != "",
			"hasAdminPassword": len(deps.Credentials.PasswordHash) > 0,
			"hasJwtSecret":     deps.Issuer != nil,
		})
	}
}
