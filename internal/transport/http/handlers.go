package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/rpc/analyticsv1"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const upstreamTimeout = 5 * time.Second

type Server struct {
	client AnalyticsClient
	mux    *http.ServeMux
	log    *zap.Logger
}

func New(client AnalyticsClient, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		client: client,
		mux:    http.NewServeMux(),
		log:    log,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := newRequestID()

	w.Header().Set("X-Request-Id", reqID)
	rr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if rec := recover(); rec != nil {
			rr.status = http.StatusInternalServerError

			// Best-effort response. If headers/body were already written, we can
			// only log.
			if !rr.wroteHeader {
				if strings.HasPrefix(r.URL.Path, "/api") {
					writeAPIError(rr, http.StatusInternalServerError, "internal_error", "internal error")
				} else {
					http.Error(rr, "internal error", http.StatusInternalServerError)
				}
			}

			s.log.Error("panic handling request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("req_id", reqID),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
		}

		dur := time.Since(start)
		observeHTTPRequest(r, rr.status, dur)

		// Keep health checks + metrics endpoint quiet.
		if r.URL.Path != "/healthz" && r.URL.Path != "/metrics" {
			s.log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rr.status),
				zap.Duration("duration", dur.Truncate(time.Millisecond)),
				zap.String("req_id", reqID),
			)
		}
	}()

	s.mux.ServeHTTP(rr, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/active-agreements", s.handleActiveAgreements)
	s.mux.HandleFunc("/api/halfhourly", s.handleHalfHourly)
	s.mux.HandleFunc("/api/daily-product", s.handleDailyProduct)
	s.mux.HandleFunc("/api/meterpoints/{id}/agreements", s.handleMeterpointAgreements)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/", s.handleIndex)
}

// handleActiveAgreements lists agreements active on reference_date (YYYY-MM-DD).
func (s *Server) handleActiveAgreements(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	ref := r.URL.Query().Get("reference_date")
	if ref == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "reference_date is required")
		return
	}
	if _, err := domain.ParseDate(ref); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid reference_date")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()
	grpcStart := time.Now()
	resp, err := s.client.ListActiveAgreements(ctx, &analyticsv1.ListActiveAgreementsRequest{ReferenceDate: ref})
	if !s.upstreamOK(w, "ListActiveAgreements", err, time.Since(grpcStart)) {
		return
	}

	out := make([]activeAgreementJSON, 0, len(resp.Agreements))
	for _, a := range resp.Agreements {
		out = append(out, activeAgreementJSON{
			AgreementID:  a.AgreementID,
			MeterpointID: a.MeterpointID,
			DisplayName:  a.DisplayName,
			IsVariable:   a.IsVariable,
		})
	}
	_ = writeJSON(w, http.StatusOK, activeAgreementsResponseJSON{
		ReferenceDate: resp.ReferenceDate,
		Agreements:    out,
	})
}

// handleHalfHourly returns half-hourly totals filtered by [start, end) if provided.
// Query params `start` and `end` must be RFC3339 (UTC recommended).
func (s *Server) handleHalfHourly(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}

	pageSize, err := parseOptionalInt(r.URL.Query().Get("page_size"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid page_size")
		return
	}
	if pageSize < 0 {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "page_size must be >= 0")
		return
	}
	pageToken := r.URL.Query().Get("page_token")
	if pageToken != "" && pageSize == 0 {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "page_token requires page_size")
		return
	}

	req := &analyticsv1.ListHalfHourlyConsumptionRequest{
		Start:     start,
		End:       end,
		PageSize:  int32(pageSize),
		PageToken: pageToken,
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()
	grpcStart := time.Now()
	resp, err := s.client.ListHalfHourlyConsumption(ctx, req)
	if !s.upstreamOK(w, "ListHalfHourlyConsumption", err, time.Since(grpcStart)) {
		return
	}

	out := make([]halfHourlyJSON, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if row == nil || row.Datetime.IsZero() {
			writeAPIError(w, http.StatusBadGateway, "upstream_error", "upstream returned invalid row")
			return
		}
		out = append(out, halfHourlyJSON{
			Datetime:            formatTime(row.Datetime),
			MeterpointCount:     row.MeterpointCount,
			TotalConsumptionKWh: row.TotalConsumptionKWh,
		})
	}

	_ = writeJSON(w, http.StatusOK, halfHourlyResponseJSON{
		Rows:          out,
		NextPageToken: resp.NextPageToken,
	})
}

// handleDailyProduct returns per-product daily totals for [start, end). Both bounds are required.
func (s *Server) handleDailyProduct(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}
	if start == nil || end == nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "start and end are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()
	grpcStart := time.Now()
	resp, err := s.client.ListDailyProductConsumption(ctx, &analyticsv1.ListDailyProductConsumptionRequest{Start: start, End: end})
	if !s.upstreamOK(w, "ListDailyProductConsumption", err, time.Since(grpcStart)) {
		return
	}

	out := make([]dailyProductJSON, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		out = append(out, dailyProductJSON{
			ProductDisplayName:  row.ProductDisplayName,
			Date:                row.Date,
			MeterpointCount:     row.MeterpointCount,
			TotalConsumptionKWh: row.TotalConsumptionKWh,
		})
	}
	_ = writeJSON(w, http.StatusOK, dailyProductResponseJSON{Rows: out})
}

// handleMeterpointAgreements returns one meterpoint's agreement history.
func (s *Server) handleMeterpointAgreements(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "meterpoint id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()
	grpcStart := time.Now()
	resp, err := s.client.GetMeterpointHistory(ctx, &analyticsv1.GetMeterpointHistoryRequest{MeterpointID: id})
	if !s.upstreamOK(w, "GetMeterpointHistory", err, time.Since(grpcStart)) {
		return
	}

	out := make([]meterpointAgreementJSON, 0, len(resp.Agreements))
	for _, a := range resp.Agreements {
		out = append(out, meterpointAgreementJSON{
			AgreementID: a.AgreementID,
			Region:      a.Region,
			ProductID:   a.ProductID,
			DisplayName: a.DisplayName,
			IsVariable:  a.IsVariable,
			AccountID:   a.AccountID,
			ValidFrom:   optionalString(a.ValidFrom),
			ValidTo:     optionalString(a.ValidTo),
		})
	}
	_ = writeJSON(w, http.StatusOK, meterpointAgreementsResponseJSON{MeterpointID: id, Agreements: out})
}

// upstreamOK records the upstream call and, on error, writes the mapped API error.
func (s *Server) upstreamOK(w http.ResponseWriter, method string, err error, dur time.Duration) bool {
	if err == nil {
		observeUpstreamGRPC(method, codes.OK.String(), dur)
		return true
	}

	code := codes.Unknown.String()
	if st, ok := status.FromError(err); ok {
		code = st.Code().String()
		switch st.Code() {
		case codes.InvalidArgument:
			observeUpstreamGRPC(method, code, dur)
			writeAPIError(w, http.StatusBadRequest, "invalid_argument", st.Message())
			return false
		case codes.DeadlineExceeded:
			observeUpstreamGRPC(method, code, dur)
			writeAPIError(w, http.StatusGatewayTimeout, "upstream_timeout", "upstream timeout")
			return false
		}
	}
	observeUpstreamGRPC(method, code, dur)
	s.log.Warn("upstream call failed", zap.String("method", method), zap.String("code", code), zap.Error(err))
	writeAPIError(w, http.StatusBadGateway, "upstream_error", "upstream error")
	return false
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		// Keep API errors JSON.
		if strings.HasPrefix(r.URL.Path, "/api") {
			writeAPIError(w, http.StatusNotFound, "not_found", "not found")
			return
		}
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	return false
}

func parseRange(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	start, err := parseOptionalRFC3339(r.URL.Query().Get("start"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid start")
		return nil, nil, false
	}
	end, err := parseOptionalRFC3339(r.URL.Query().Get("end"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid end")
		return nil, nil, false
	}
	if start != nil && end != nil && !start.Before(*end) {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid range: start must be before end")
		return nil, nil, false
	}
	return start, end, true
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(p)
}

func newRequestID() string {
	var b [6]byte // 12 hex chars
	if _, err := rand.Read(b[:]); err != nil {
		return "000000000000"
	}
	return hex.EncodeToString(b[:])
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	reqID := w.Header().Get("X-Request-Id")
	_ = writeJSON(w, status, apiErrorJSON{
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func parseOptionalInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return n, nil
}
