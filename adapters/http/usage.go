package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tola-labs/cfusage/app"
	"github.com/tola-labs/cfusage/domain/org"
	"github.com/tola-labs/cfusage/domain/quarter"
	"github.com/tola-labs/cfusage/domain/usage"
	"github.com/tola-labs/cfusage/pkg/jsonapi"
)

const defaultOrgsPerPage = 100

// UsageHandler serves rollups, organization listings and refresh control.
type UsageHandler struct {
	usage     *app.UsageService
	directory *app.OrgDirectory
	refresher *app.Refresher
	logger    zerolog.Logger
}

// NewUsageHandler creates a usage handler. refresher may be nil, in which case
// the refresh routes answer 503.
func NewUsageHandler(usageSvc *app.UsageService, directory *app.OrgDirectory, refresher *app.Refresher, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		usage:     usageSvc,
		directory: directory,
		refresher: refresher,
		logger:    logger,
	}
}

// Routes returns the /api/v1 router.
func (h *UsageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/foundations", h.ListFoundations)
	r.Route("/foundations/{foundation}", func(r chi.Router) {
		r.Get("/orgs", h.ListOrgs)
		r.Get("/orgs/{org}/app-usage", h.AppUsageRange)
		r.Get("/orgs/{org}/app-usage/{year}/{quarter}", h.AppUsage)
		r.Get("/orgs/{org}/service-usage", h.ServiceUsageRange)
		r.Get("/orgs/{org}/service-usage/{year}/{quarter}", h.ServiceUsage)
	})

	r.Post("/refresh", h.TriggerRefresh)
	r.Get("/refresh", h.RefreshStatus)

	return r
}

// ListFoundations lists configured foundations and their directory state.
func (h *UsageHandler) ListFoundations(w http.ResponseWriter, r *http.Request) {
	names := h.directory.Foundations()
	resources := make([]jsonapi.Resource, 0, len(names))
	for _, name := range names {
		b := jsonapi.NewResource("foundations", name).
			Attr("name", name).
			Attr("orgs", len(h.directory.List(name))).
			Link("/api/v1/foundations/" + name + "/orgs")
		if at, ok := h.directory.RefreshedAt(name); ok {
			b.Attr("refreshed_at", at)
		}
		if err := h.directory.LastError(name); err != nil {
			b.Attr("last_error", err.Error())
		}
		resources = append(resources, b.Build())
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, nil)
}

// ListOrgs lists a foundation's organizations from the last directory snapshot.
func (h *UsageHandler) ListOrgs(w http.ResponseWriter, r *http.Request) {
	foundation := chi.URLParam(r, "foundation")
	if !h.knownFoundation(foundation) {
		jsonapi.WriteError(w, jsonapi.ErrUnknownFoundation(foundation))
		return
	}

	orgs := h.directory.List(foundation)
	page, perPage := jsonapi.ParsePaginationParams(r.URL.Query(), defaultOrgsPerPage)
	p := jsonapi.NewPagination(int64(len(orgs)), page, perPage, r.URL.Path)
	start, end := p.Window(len(orgs))

	resources := make([]jsonapi.Resource, 0, end-start)
	for _, o := range orgs[start:end] {
		resources = append(resources, orgResource(foundation, o))
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, p)
}

func orgResource(foundation string, o org.Organization) jsonapi.Resource {
	return jsonapi.NewResource("organizations", o.GUID).
		Attr("name", o.Name).
		Attr("foundation", foundation).
		Build()
}

// AppUsage returns the app rollup of one org for one quarter.
func (h *UsageHandler) AppUsage(w http.ResponseWriter, r *http.Request) {
	foundation, orgGUID := chi.URLParam(r, "foundation"), chi.URLParam(r, "org")
	if !h.knownFoundation(foundation) {
		jsonapi.WriteError(w, jsonapi.ErrUnknownFoundation(foundation))
		return
	}
	year, q, ok := periodParams(w, r)
	if !ok {
		return
	}

	rollup, err := h.usage.AppUsage(r.Context(), foundation, orgGUID, year, q)
	if err != nil {
		h.writeUsageError(w, r, foundation, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

// ServiceUsage returns the service instance rollup of one org for one quarter.
func (h *UsageHandler) ServiceUsage(w http.ResponseWriter, r *http.Request) {
	foundation, orgGUID := chi.URLParam(r, "foundation"), chi.URLParam(r, "org")
	if !h.knownFoundation(foundation) {
		jsonapi.WriteError(w, jsonapi.ErrUnknownFoundation(foundation))
		return
	}
	year, q, ok := periodParams(w, r)
	if !ok {
		return
	}

	rollup, err := h.usage.ServiceUsage(r.Context(), foundation, orgGUID, year, q)
	if err != nil {
		h.writeUsageError(w, r, foundation, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

// AppUsageRange returns an uncached app rollup for ?start=YYYY-MM-DD&end=YYYY-MM-DD.
func (h *UsageHandler) AppUsageRange(w http.ResponseWriter, r *http.Request) {
	foundation, orgGUID := chi.URLParam(r, "foundation"), chi.URLParam(r, "org")
	if !h.knownFoundation(foundation) {
		jsonapi.WriteError(w, jsonapi.ErrUnknownFoundation(foundation))
		return
	}
	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}

	rollup, err := h.usage.AppUsageRange(r.Context(), foundation, orgGUID, start, end)
	if err != nil {
		h.writeUsageError(w, r, foundation, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

// ServiceUsageRange returns an uncached service rollup for a date range.
func (h *UsageHandler) ServiceUsageRange(w http.ResponseWriter, r *http.Request) {
	foundation, orgGUID := chi.URLParam(r, "foundation"), chi.URLParam(r, "org")
	if !h.knownFoundation(foundation) {
		jsonapi.WriteError(w, jsonapi.ErrUnknownFoundation(foundation))
		return
	}
	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}

	rollup, err := h.usage.ServiceUsageRange(r.Context(), foundation, orgGUID, start, end)
	if err != nil {
		h.writeUsageError(w, r, foundation, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

// TriggerRefresh starts a bulk refresh and answers 202 with its run ID.
func (h *UsageHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable("Refresh is disabled"))
		return
	}

	runID, err := h.refresher.Trigger()
	if errors.Is(err, app.ErrRefreshInProgress) {
		jsonapi.WriteError(w, jsonapi.ErrRefreshInProgress())
		return
	}
	if err != nil {
		jsonapi.WriteInternalError(w, err.Error())
		return
	}

	h.logger.Info().
		Str("run_id", runID).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("refresh triggered")
	jsonapi.WriteAccepted(w, jsonapi.Meta{"run_id": runID})
}

// RefreshStatus reports whether a refresh runs and the last finished report.
func (h *UsageHandler) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable("Refresh is disabled"))
		return
	}

	doc := jsonapi.NewDocument().Meta("running", h.refresher.Running())
	if last := h.refresher.LastReport(); last != nil {
		periods := make([]string, len(last.Periods))
		for i, p := range last.Periods {
			periods[i] = p.String()
		}
		doc.DataResource(jsonapi.NewResource("refresh-runs", last.RunID).
			Attr("started_at", last.StartedAt).
			Attr("finished_at", last.FinishedAt).
			Attr("periods", periods).
			Attr("refreshed", last.Refreshed).
			Attr("failed", last.Failed).
			Attr("outcome", last.Outcome()).
			Attr("errors", last.Errors).
			Build())
	}
	jsonapi.WriteDocument(w, http.StatusOK, doc.Build())
}

func (h *UsageHandler) knownFoundation(name string) bool {
	for _, f := range h.directory.Foundations() {
		if f == name {
			return true
		}
	}
	return false
}

// writeUsageError maps service errors onto JSON:API error documents.
func (h *UsageHandler) writeUsageError(w http.ResponseWriter, r *http.Request, foundation string, err error) {
	var (
		dateErr   *quarter.DateFormatError
		configErr *usage.ConfigurationError
		parseErr  *usage.ParseError
		upErr     *usage.UpstreamError
	)

	switch {
	case errors.As(err, &dateErr):
		jsonapi.WriteError(w, jsonapi.ErrInvalidDate("", dateErr.Error()))
	case errors.Is(err, quarter.ErrInvalidDate):
		jsonapi.WriteError(w, jsonapi.ErrInvalidDate("", err.Error()))
	case errors.Is(err, usage.ErrUnknownFoundation):
		jsonapi.WriteError(w, jsonapi.ErrUnknownFoundation(foundation))
	case errors.As(err, &configErr):
		h.logger.Error().Err(err).Str("foundation", configErr.Foundation).Msg("foundation misconfigured")
		jsonapi.WriteError(w, jsonapi.ErrConfiguration(configErr.Foundation, configErr.Reason))
	case errors.As(err, &parseErr):
		h.logger.Error().Err(err).Str("foundation", foundation).Msg("unreadable upstream payload")
		jsonapi.WriteError(w, jsonapi.ErrBadUpstreamPayload(parseErr.Error()))
	case errors.As(err, &upErr):
		h.logger.Warn().Err(err).Str("foundation", foundation).Msg("upstream call failed")
		if upErr.Timeout {
			jsonapi.WriteError(w, jsonapi.ErrUpstreamTimeout(foundation))
			return
		}
		jsonapi.WriteError(w, jsonapi.ErrUpstream(foundation, upErr.Status))
	case errors.Is(err, context.DeadlineExceeded):
		jsonapi.WriteError(w, jsonapi.ErrUpstreamTimeout(foundation))
	default:
		h.logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("usage query failed")
		jsonapi.WriteInternalError(w, "")
	}
}

// periodParams reads {year} and {quarter}. The quarter may be given as 2 or Q2.
func periodParams(w http.ResponseWriter, r *http.Request) (year, q int, ok bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 {
		jsonapi.WriteError(w, jsonapi.ErrInvalidDate("year", "year must be a positive integer"))
		return 0, 0, false
	}
	raw := strings.TrimPrefix(strings.ToUpper(chi.URLParam(r, "quarter")), "Q")
	q, err = strconv.Atoi(raw)
	if err != nil || q < 1 || q > 4 {
		jsonapi.WriteError(w, jsonapi.ErrInvalidDate("quarter", "quarter must be 1-4"))
		return 0, 0, false
	}
	return year, q, true
}

// rangeParams reads the start and end query parameters as YYYY-MM-DD dates.
func rangeParams(w http.ResponseWriter, r *http.Request) (start, end time.Time, ok bool) {
	query := r.URL.Query()
	for _, name := range []string{"start", "end"} {
		if query.Get(name) == "" {
			jsonapi.WriteError(w, jsonapi.ErrInvalidDate(name, name+" is required (YYYY-MM-DD)"))
			return time.Time{}, time.Time{}, false
		}
	}

	start, err := quarter.Parse(query.Get("start"))
	if err != nil {
		jsonapi.WriteError(w, jsonapi.ErrInvalidDate("start", err.Error()))
		return time.Time{}, time.Time{}, false
	}
	end, err = quarter.Parse(query.Get("end"))
	if err != nil {
		jsonapi.WriteError(w, jsonapi.ErrInvalidDate("end", err.Error()))
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
