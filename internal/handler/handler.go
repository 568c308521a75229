package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"verepo/internal/quota"
	"verepo/internal/repourl"
	"verepo/internal/verepo"
	"verepo/internal/wallet"
)

// Handler serves the public Verepo REST endpoints.
type Handler struct {
	coord          *verepo.Coordinator
	ledger         *quota.Ledger
	verifier       wallet.Verifier
	ipLimit        int
	analyzeTimeout time.Duration
}

func New(coord *verepo.Coordinator, ledger *quota.Ledger, verifier wallet.Verifier, ipLimit int, analyzeTimeout time.Duration) *Handler {
	return &Handler{
		coord:          coord,
		ledger:         ledger,
		verifier:       verifier,
		ipLimit:        ipLimit,
		analyzeTimeout: analyzeTimeout,
	}
}

// BuildMux registers all Verepo routes on a new ServeMux.
func BuildMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/verepo/analyze", h.HandleAnalyze)
	mux.HandleFunc("/api/verepo/status", h.HandleStatus)
	mux.HandleFunc("/api/verepo/usage", h.HandleUsage)
	mux.HandleFunc("/api/verepo/watch", h.HandleWatch)
	return mux
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var in struct {
		RepoURL   string `json:"repoUrl"`
		Wallet    string `json:"wallet"`
		Signature string `json:"signature"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.RepoURL) == "" {
		errorJSON(w, "Missing repoUrl in request body", verepo.CodeInvalidURL, http.StatusBadRequest)
		return
	}
	repoURL := strings.TrimSpace(in.RepoURL)

	walletAddr := strings.TrimSpace(in.Wallet)
	if walletAddr == "" {
		errorJSON(w, "Wallet connection required to analyze repositories.", verepo.CodeRateLimited, http.StatusUnauthorized)
		return
	}
	if in.Signature == "" || in.Timestamp == 0 {
		errorJSON(w, "Wallet signature required.", verepo.CodeRateLimited, http.StatusUnauthorized)
		return
	}
	if !h.verifier.Verify(walletAddr, in.Signature, in.Timestamp) {
		errorJSON(w, "Invalid wallet signature.", verepo.CodeRateLimited, http.StatusUnauthorized)
		return
	}

	if !repourl.Validate(repoURL) {
		errorJSON(w, "Invalid GitHub URL. Use format: https://github.com/owner/repo", verepo.CodeInvalidURL, http.StatusBadRequest)
		return
	}

	// The pipeline outlives the connection: a disconnecting caller must
	// not abort a triggered analysis, since the persisted result serves
	// whichever caller polls the key next. Only the wall clock bounds it.
	ctx := context.WithoutCancel(r.Context())
	if h.analyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.analyzeTimeout)
		defer cancel()
	}

	out, err := h.coord.Analyze(ctx, verepo.Request{
		RepoURL: repoURL,
		RepoKey: repourl.Canonicalize(repoURL),
		IP:      clientIP(r),
		Wallet:  walletAddr,
	})
	if err != nil {
		if f, ok := verepo.AsFailure(err); ok {
			errorJSON(w, f.Message, f.Code, f.HTTPStatus)
			return
		}
		log.Printf("[verepo] unexpected analyze error: %v", err)
		errorJSON(w, "Internal server error", verepo.CodeAnalysisFailed, http.StatusInternalServerError)
		return
	}

	if out.Analyzing {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "analyzing",
			"message": "This repository is currently being analyzed. Please wait a moment.",
			"repoKey": out.RepoKey,
		})
		return
	}

	if out.Cached {
		var body map[string]any
		if err := json.Unmarshal(out.Payload, &body); err != nil {
			log.Printf("[verepo] corrupt cached payload for %s: %v", out.RepoKey, err)
			errorJSON(w, "Internal server error", verepo.CodeAnalysisFailed, http.StatusInternalServerError)
			return
		}
		body["cached"] = true
		writeJSON(w, http.StatusOK, body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Payload)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	repoKey := strings.TrimSpace(r.URL.Query().Get("repo"))
	if repoKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing 'repo' query parameter"})
		return
	}
	view, err := h.coord.Status(r.Context(), repoKey)
	if err != nil {
		log.Printf("[verepo] status lookup failed for %s: %v", repoKey, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	walletAddr := strings.TrimSpace(r.URL.Query().Get("wallet"))
	usage, err := h.ledger.Peek(r.Context(), clientIP(r), walletAddr)
	if err != nil {
		log.Printf("[verepo] usage lookup failed: %v", err)
		// Degrade to optimistic defaults rather than blocking the client
		// over a read failure.
		writeJSON(w, http.StatusOK, map[string]any{
			"ipRemaining": h.ipLimit,
			"resetIn":     int64(24 * 60 * 60 * 1000),
		})
		return
	}
	body := map[string]any{
		"ipRemaining": usage.IPRemaining,
		"resetIn":     usage.ResetIn.Milliseconds(),
	}
	if usage.WalletRemaining != nil {
		body["walletRemaining"] = *usage.WalletRemaining
	}
	writeJSON(w, http.StatusOK, body)
}

// clientIP trusts the leftmost forwarded address, matching the reverse
// proxy setup in front of the service.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xr != "" {
		return xr
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorJSON(w http.ResponseWriter, message, code string, status int) {
	writeJSON(w, status, map[string]any{"error": message, "code": code})
}
