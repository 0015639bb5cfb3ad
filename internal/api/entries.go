package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	lcerrs "github.com/jdholdren/linkcal/internal/errors"
	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/logger"
	"github.com/jdholdren/linkcal/internal/serverutil"
)

var (
	errInvalidCalendar = lcerrs.E(http.StatusBadRequest, "Missing/invalid calendarId.")
	errInvalidMonth    = lcerrs.E(http.StatusBadRequest, "Missing/invalid month (YYYY-MM).")
	errInvalidDate     = lcerrs.E(http.StatusBadRequest, "Missing/invalid date (YYYY-MM-DD).")
	errTooManyEntries  = lcerrs.E(http.StatusBadRequest, "Too many entries (max 500).")
)

// Maps repository errors onto responses.
func repoErr(err error) error {
	if errors.Is(err, linkcal.ErrValidation) {
		return lcerrs.E(http.StatusBadRequest, err)
	}
	return err
}

type EntriesResp struct {
	Entries []linkcal.Entry `json:"entries"`
}

func (s Server) getEntries(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx        = r.Context()
		calendarID = strings.TrimSpace(r.URL.Query().Get("calendarId"))
		month      = strings.TrimSpace(r.URL.Query().Get("month"))
	)
	if !linkcal.IsCalendarID(calendarID) {
		return errInvalidCalendar
	}
	if !linkcal.IsMonth(month) {
		return errInvalidMonth
	}
	ctx = logger.Calendar(ctx, calendarID)

	entries, err := s.repo.MonthEntries(ctx, calendarID, month)
	if err != nil {
		return repoErr(err)
	}
	slog.DebugContext(ctx, "fetched month", "month", month, "count", len(entries))

	return serverutil.WriteJSON(w, http.StatusOK, EntriesResp{Entries: entries})
}

type (
	// EntryReq is a single day's write. Empty title and url deletes the day.
	EntryReq struct {
		Date  string `json:"date"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}

	// PostEntriesReq is either a single write (date, title, url) or, when
	// Entries is present, a batch.
	PostEntriesReq struct {
		CalendarID string `json:"calendarId"`
		EntryReq

		Entries *[]EntryReq `json:"entries"`
	}

	PostEntryResp struct {
		Entry *linkcal.Entry `json:"entry,omitempty"`
		// Set when the write removed the day.
		Deleted bool `json:"deleted,omitempty"`
	}

	PostBatchResp struct {
		OK bool `json:"ok"`
	}
)

func (req PostEntriesReq) Validate() error {
	if !linkcal.IsCalendarID(req.CalendarID) {
		return errInvalidCalendar
	}
	if req.Entries != nil {
		if len(*req.Entries) > linkcal.MaxBatchSize {
			return errTooManyEntries
		}
		return nil
	}
	if !linkcal.IsISODate(strings.TrimSpace(req.Date)) {
		return errInvalidDate
	}

	return nil
}

func (e EntryReq) entry() linkcal.Entry {
	return linkcal.Entry{
		Date:  strings.TrimSpace(e.Date),
		Title: e.Title,
		URL:   e.URL,
	}.Normalize()
}

func (s Server) postEntries(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	body, err := serverutil.DecodeValid[PostEntriesReq](r.Body)
	if err != nil {
		return err
	}
	calendarID := strings.TrimSpace(body.CalendarID)
	ctx = logger.Calendar(ctx, calendarID)

	if body.Entries != nil {
		entries := make([]linkcal.Entry, 0, len(*body.Entries))
		for _, e := range *body.Entries {
			entries = append(entries, e.entry())
		}
		if err := s.repo.ApplyBatch(ctx, calendarID, entries); err != nil {
			return repoErr(err)
		}
		slog.DebugContext(ctx, "applied batch", "count", len(entries))

		return serverutil.WriteJSON(w, http.StatusOK, PostBatchResp{OK: true})
	}

	entry := body.EntryReq.entry()
	if entry.Empty() {
		if err := s.repo.DeleteEntry(ctx, calendarID, entry.Date); err != nil {
			return repoErr(err)
		}
		return serverutil.WriteJSON(w, http.StatusOK, PostEntryResp{Deleted: true})
	}

	stored, err := s.repo.UpsertEntry(ctx, calendarID, entry)
	if err != nil {
		return repoErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, PostEntryResp{Entry: &stored})
}
