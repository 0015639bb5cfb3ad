package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lcerrs "github.com/jdholdren/linkcal/internal/errors"
	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/logger"
	"github.com/jdholdren/linkcal/internal/serverutil"
)

func (s Server) getExport(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx        = r.Context()
		calendarID = strings.TrimSpace(r.URL.Query().Get("calendarId"))
	)
	if !linkcal.IsCalendarID(calendarID) {
		return errInvalidCalendar
	}
	ctx = logger.Calendar(ctx, calendarID)

	entries, err := s.repo.AllEntries(ctx, calendarID)
	if err != nil {
		return repoErr(err)
	}
	slog.InfoContext(ctx, "exported calendar", "count", len(entries))

	return serverutil.WriteJSON(w, http.StatusOK, linkcal.Export{
		ExportedAt: time.Now().UTC(),
		CalendarID: calendarID,
		Entries:    entries,
	})
}

type HealthResp struct {
	OK bool `json:"ok"`
}

func (s Server) getHealth(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		slog.ErrorContext(ctx, "health check failed", "error", err)
		return lcerrs.E(http.StatusServiceUnavailable, "Database unavailable.")
	}

	return serverutil.WriteJSON(w, http.StatusOK, HealthResp{OK: true})
}
