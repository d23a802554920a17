package ledger

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/goalpulse/internal/lock"
)

const shutdownTimeout = 10 * time.Second

// Server handles HTTP requests for the ledger
type Server struct {
	service   *Service
	gate      *lock.Gate
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, gate *lock.Gate, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, gate, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, gate *lock.Gate, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	if gate == nil {
		gate = lock.NewGate(nil)
	}
	s := &Server{
		service:   service,
		gate:      gate,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="GoalPulse"`)
			writeErrorMessage(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requireUnlocked refuses requests while the app is locked
func (s *Server) requireUnlocked(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.gate.Locked() {
			writeErrorMessage(w, "App is locked", http.StatusLocked)
			return
		}
		next(w, r)
	}
}

// guard applies auth and the lock to a data route
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(s.requireUnlocked(next))
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Lock state, reachable while locked
	s.mux.HandleFunc("GET /api/lock", s.requireAuth(s.handleLockStatus))
	s.mux.HandleFunc("POST /api/app-state", s.requireAuth(s.handleAppState))
	s.mux.HandleFunc("POST /api/unlock", s.requireAuth(s.handleUnlock))

	// Dashboard
	s.mux.HandleFunc("GET /api/overview", s.guard(s.handleOverview))
	s.mux.HandleFunc("GET /api/challenge", s.guard(s.handleChallenge))
	s.mux.HandleFunc("GET /api/categories", s.guard(s.handleCategories))

	// Goal
	s.mux.HandleFunc("GET /api/goal", s.guard(s.handleGetGoal))
	s.mux.HandleFunc("PUT /api/goal", s.guard(s.handleUpdateGoal))

	// Transactions
	s.mux.HandleFunc("GET /api/transactions", s.guard(s.handleListTransactions))
	s.mux.HandleFunc("POST /api/transactions/expense", s.guard(s.handleAddExpense))
	s.mux.HandleFunc("POST /api/transactions/income", s.guard(s.handleAddIncome))
	s.mux.HandleFunc("DELETE /api/transactions/{id}", s.guard(s.handleDeleteTransaction))

	// Receipts
	s.mux.HandleFunc("POST /api/receipts/scan", s.guard(s.handleScanReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/drafts/{file}", s.guard(s.handleDiscardDraft))
	s.mux.HandleFunc("GET /api/receipts/{id}/image", s.guard(s.handleGetReceiptImage))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.guard(s.handleGetReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.guard(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.guard(s.handleListReceipts))
	s.mux.HandleFunc("POST /api/receipts", s.guard(s.handleSaveReceipt))
	s.mux.HandleFunc("POST /api/extract", s.guard(s.handleExtract))

	// Settings and data
	s.mux.HandleFunc("GET /api/settings", s.guard(s.handleListSettings))
	s.mux.HandleFunc("GET /api/settings/{key}", s.guard(s.handleGetSetting))
	s.mux.HandleFunc("PUT /api/settings/{key}", s.guard(s.handleSetSetting))
	s.mux.HandleFunc("GET /api/export/json", s.guard(s.handleExportJSON))
	s.mux.HandleFunc("GET /api/export/csv", s.guard(s.handleExportCSV))
	s.mux.HandleFunc("DELETE /api/data", s.guard(s.handleClearData))
}

// Start serves HTTP on addr until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
