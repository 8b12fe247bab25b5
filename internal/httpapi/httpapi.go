package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"apotekku/backend/internal/archive"
	"apotekku/backend/internal/cache"
	"apotekku/backend/internal/cart"
	"apotekku/backend/internal/domain"
	"apotekku/backend/internal/emitter"
	"apotekku/backend/internal/session"
	"apotekku/backend/internal/upstream"
)

type API struct {
	sessions      *session.Manager
	catalog       upstream.Catalog
	archive       archive.Store
	lookupCache   cache.LookupCache
	cacheTTL      time.Duration
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(sessions *session.Manager, catalog upstream.Catalog, archiveStore archive.Store, lookupCache cache.LookupCache, cacheTTL time.Duration, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		sessions:      sessions,
		catalog:       catalog,
		archive:       archiveStore,
		lookupCache:   lookupCache,
		cacheTTL:      cacheTTL,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/catalog/items", a.requireAuth(a.handleCatalogItems, domain.RolePharmacist, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/catalog/batches", a.requireAuth(a.handleCatalogBatches, domain.RolePharmacist, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/returns/sessions", a.requireAuth(a.handleSessions, domain.RolePharmacist, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/returns/sessions/", a.requireAuth(a.handleSessionActions, domain.RolePharmacist, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/returns/reasons", a.requireAuth(a.handleReturnReasons, domain.RolePharmacist, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/returns/receipts", a.requireAuth(a.handleReceipts, domain.RolePharmacist, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCatalogItems serves the in-stock catalog page through the
// best-effort lookup cache.
func (a *API) handleCatalogItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	if items, ok, err := a.lookupCache.GetCatalog(r.Context()); err != nil {
		log.Printf("[httpapi] WARN: catalog cache read failed: %v", err)
	} else if ok {
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "cached": true})
		return
	}

	items, err := a.catalog.ListAvailableItems(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := a.lookupCache.SetCatalog(r.Context(), items, a.cacheTTL); err != nil {
		log.Printf("[httpapi] WARN: catalog cache write failed: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCatalogBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	medicineID := strings.TrimSpace(r.URL.Query().Get("medicine_id"))
	if medicineID == "" {
		writeError(w, http.StatusBadRequest, errors.New("medicine_id required"))
		return
	}

	if batches, ok, err := a.lookupCache.GetBatches(r.Context(), medicineID); err != nil {
		log.Printf("[httpapi] WARN: batches cache read failed: %v", err)
	} else if ok {
		writeJSON(w, http.StatusOK, map[string]any{"batches": batches, "cached": true})
		return
	}

	batches, err := a.catalog.ListBatches(r.Context(), medicineID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := a.lookupCache.SetBatches(r.Context(), medicineID, batches, a.cacheTTL); err != nil {
		log.Printf("[httpapi] WARN: batches cache write failed: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleReturnReasons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reasons": domain.ReturnReasons()})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	sess := a.sessions.Create()
	a.audit(r.Context(), "session.create", sess.ID())
	writeJSON(w, http.StatusCreated, map[string]any{"session": sess.Snapshot()})
}

func (a *API) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/returns/sessions/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("session id required"))
		return
	}

	parts := strings.SplitN(tail, "/", 3)
	sess, err := a.sessions.Get(parts[0])
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
		case http.MethodDelete:
			a.sessions.Remove(sess.ID())
			a.audit(r.Context(), "session.close", sess.ID())
			writeJSON(w, http.StatusOK, map[string]any{"closed": true})
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch parts[1] {
	case "catalog":
		a.handleSessionCatalog(w, r, sess)
	case "sales":
		a.handleSessionSales(w, r, sess)
	case "mode":
		a.handleSessionMode(w, r, sess)
	case "reset":
		a.handleSessionReset(w, r, sess)
	case "cart":
		a.handleSessionCart(w, r, sess)
	case "items":
		lineID := ""
		if len(parts) == 3 {
			lineID = parts[2]
		}
		a.handleSessionItems(w, r, sess, lineID)
	case "confirm":
		a.handleSessionConfirm(w, r, sess)
	case "submit":
		a.handleSessionSubmit(w, r, sess)
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown session action"))
	}
}

func (a *API) handleSessionCatalog(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	items, err := sess.RefreshCatalog(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleSessionSales(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := parseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sales, err := sess.FetchSales(r.Context(), from, to, r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSessionMode(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.SetMode(req.Mode); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
}

func (a *API) handleSessionReset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := sess.Reset(); err != nil {
		writeDomainError(w, err)
		return
	}
	a.audit(r.Context(), "session.reset", sess.ID())
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
}

func (a *API) handleSessionCart(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.UpdateCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.UpdateCart(req); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
}

func (a *API) handleSessionItems(w http.ResponseWriter, r *http.Request, sess *session.Session, lineID string) {
	if lineID == "" {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		a.handleAddManualItem(w, r, sess)
		return
	}

	if lineID == "invoice" {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		a.handleAddInvoiceItem(w, r, sess)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req domain.UpdateLineRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := sess.UpdateLine(r.Context(), lineID, req); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
	case http.MethodDelete:
		if err := sess.RemoveLine(lineID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAddManualItem(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req domain.AddManualItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("item_id required"))
		return
	}

	lineID, err := sess.AddManualItem(r.Context(), req.ItemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"line_id": lineID, "session": sess.Snapshot()})
}

func (a *API) handleAddInvoiceItem(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req domain.AddInvoiceItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.InvoiceID) == "" || strings.TrimSpace(req.LineID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice_id and line_id required"))
		return
	}

	lineID, err := sess.AddInvoiceItem(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"line_id": lineID, "session": sess.Snapshot()})
}

func (a *API) handleSessionConfirm(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	switch r.Method {
	case http.MethodPost:
		summary, err := sess.Confirm()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary, "session": sess.Snapshot()})
	case http.MethodDelete:
		if err := sess.CancelConfirm(); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSessionSubmit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	cashier := "unknown"
	if actor, ok := ActorFromContext(r.Context()); ok {
		cashier = actor.DisplayName
	}

	receipt, err := sess.Submit(r.Context(), cashier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Archive failures must not fail the submission: the upstream ledger
	// already accepted the return.
	if err := a.archive.SaveReceipt(r.Context(), *receipt); err != nil {
		log.Printf("[httpapi] WARN: archiving receipt %s failed: %v", receipt.ID, err)
	}
	a.audit(r.Context(), "return.submit", receipt.TransactionID)

	writeJSON(w, http.StatusCreated, domain.SubmitResponse{Receipt: *receipt})
}

func (a *API) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := parseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)

	receipts, err := a.archive.ListReceipts(r.Context(), from, to, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := parseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	entries, err := a.archive.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": entries})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.auth.ListUsers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req domain.CreateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateUser(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		a.audit(r.Context(), "user.create", user.Username)
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

// audit records a state-changing action. Failures are logged, never
// surfaced to the client.
func (a *API) audit(ctx context.Context, action string, detail string) {
	actorName := "anonymous"
	if actor, ok := ActorFromContext(ctx); ok {
		actorName = actor.Username
	}
	err := a.archive.CreateAuditLog(ctx, domain.AuditLog{
		Actor:  actorName,
		Action: action,
		Detail: detail,
	})
	if err != nil {
		log.Printf("[httpapi] WARN: audit log %s failed: %v", action, err)
	}
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var capErr *cart.CapacityError
	var valErr *cart.ValidationError
	var batchErr *cart.BatchMismatchError

	switch {
	case errors.As(err, &capErr):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &valErr):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.As(err, &batchErr):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, upstream.ErrNotFound),
		errors.Is(err, archive.ErrNotFound),
		errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidReason),
		errors.Is(err, session.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, emitter.ErrSubmitInFlight),
		errors.Is(err, emitter.ErrNotConfirmed),
		errors.Is(err, session.ErrWrongMode),
		errors.Is(err, upstream.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, upstream.ErrUnavailable):
		// Bypasses the 5xx masking in writeError: the client needs to
		// know the upstream is down and the request is safe to retry.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     upstream.ErrUnavailable.Error(),
			"retryable": true,
		})
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

// parseDateRange interprets start_date/end_date query values as an
// inclusive day range. Defaults to the last 30 days.
func parseDateRange(startRaw string, endRaw string) (time.Time, time.Time, error) {
	const layout = "2006-01-02"

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30).Truncate(24 * time.Hour)
	to := now.Add(24 * time.Hour)

	if trimmed := strings.TrimSpace(startRaw); trimmed != "" {
		parsed, err := time.Parse(layout, trimmed)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start_date must be formatted YYYY-MM-DD")
		}
		from = parsed
	}
	if trimmed := strings.TrimSpace(endRaw); trimmed != "" {
		parsed, err := time.Parse(layout, trimmed)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end_date must be formatted YYYY-MM-DD")
		}
		to = parsed.Add(24 * time.Hour)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("end_date must not be before start_date")
	}
	return from, to, nil
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message so internal details
	// (SQL errors, file paths) never reach the client. 4xx responses are
	// user-facing so the original message is kept.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
