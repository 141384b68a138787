package pointlog

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/wayline-gg/wayline/internal/httputil"
	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/security"
)

// AttachAdminRoutes mounts the point log's debug surfaces: live SQL access
// via tailsql, a stats summary, and an on-demand gzip backup download.
func (s *SQLite) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://pointlog", s.db, &tailsql.DBOptions{
		Label: "Point log",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("pointlog-stats", "Point log size and channel counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Stats(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, stats)
	}))

	debug.Handle("backup", "Create and download a backup of the point log now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The backup lands next to the live database so it inherits the
		// same volume and permissions.
		name := fmt.Sprintf("pointlog-backup-%d.db", s.clock.Now().Unix())
		dataDir := filepath.Dir(s.path)
		backupPath := filepath.Join(dataDir, name)
		if err := security.ValidateBackupPath(backupPath, dataDir); err != nil {
			http.Error(w, fmt.Sprintf("Refusing backup path: %v", err), http.StatusInternalServerError)
			return
		}
		if _, err := s.db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("pointlog: failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
		w.Header().Set("Content-Type", "application/octet-stream")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			monitoring.Logf("pointlog: failed to stream backup: %v", err)
		}
	}))

	return nil
}
