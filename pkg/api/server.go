package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Mindburn-Labs/helm-bridge/pkg/auth"
	"github.com/Mindburn-Labs/helm-bridge/pkg/claim"
	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/observability"
	"github.com/Mindburn-Labs/helm-bridge/pkg/processor"
	"github.com/Mindburn-Labs/helm-bridge/pkg/receipts"
)

const (
	maxBodyBytes        = 1 << 20
	defaultReceiptLimit = 50
	maxReceiptLimit     = 500
)

// UpgradeRequest is the body of POST /v1/governance/upgrade.
type UpgradeRequest struct {
	// VAA is the base64 (standard encoding) signed governance message.
	VAA    string             `json:"vaa"`
	Buffer contracts.Address  `json:"buffer"`
	Spill  contracts.Address  `json:"spill"`
	Claim  *contracts.Address `json:"claim,omitempty"`
}

// ClaimResponse describes the claim account of a message.
type ClaimResponse struct {
	Address contracts.Address `json:"address"`
	Claimed bool              `json:"claimed"`
	Record  *claim.Record     `json:"record,omitempty"`
}

// Options configure the middleware chain around the routes.
type Options struct {
	Validator   *auth.JWTValidator
	RateLimiter *GlobalRateLimiter
	CORSOrigins []string
}

// Server exposes a Processor over HTTP.
type Server struct {
	proc    *processor.Processor
	metrics *observability.Metrics
}

func NewServer(proc *processor.Processor, metrics *observability.Metrics) *Server {
	return &Server{
		proc:    proc,
		metrics: metrics,
	}
}

// Routes returns the bare route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/governance/upgrade", s.handleUpgrade)
	mux.HandleFunc("GET /v1/claims/{chain}/{emitter}/{sequence}", s.handleClaim)
	mux.HandleFunc("GET /v1/receipts", s.handleListReceipts)
	mux.HandleFunc("GET /v1/receipts/{id}", s.handleGetReceipt)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Handler returns the routes wrapped in request id, CORS, rate limiting,
// authentication and instrumentation, outermost first.
func (s *Server) Handler(opts Options) http.Handler {
	var h http.Handler = Instrument(s.metrics, s.Routes())
	h = auth.NewMiddleware(opts.Validator, WriteErrorR)(h)
	if opts.RateLimiter != nil {
		h = opts.RateLimiter.Middleware(h)
	}
	h = auth.CORSMiddleware(opts.CORSOrigins)(h)
	return auth.RequestIDMiddleware(h)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body UpgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(body.VAA)
	if err != nil || len(raw) == 0 {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "vaa must be non-empty base64")
		return
	}
	if body.Buffer.IsZero() || body.Spill.IsZero() {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "Missing required fields: buffer, spill")
		return
	}

	rcpt, err := s.proc.UpgradeContract(r.Context(), processor.Request{
		VAA:    raw,
		Payer:  principal.Payer,
		Buffer: body.Buffer,
		Spill:  body.Spill,
		Claim:  body.Claim,
	})
	if err != nil {
		s.writeProcessingError(w, r, rcpt, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

// writeProcessingError maps the error kind of a rejected upgrade to a status.
func (s *Server) writeProcessingError(w http.ResponseWriter, r *http.Request, rcpt *receipts.Receipt, err error) {
	kind := processor.Kind(err)
	p := &ProblemDetail{Kind: string(kind), Detail: err.Error()}
	if rcpt != nil {
		p.ReceiptID = rcpt.ID
	}

	switch kind {
	case processor.KindInvalidArgument:
		p.Title = "Bad Request"
		WriteProblem(w, r, http.StatusBadRequest, p)
	case processor.KindUnauthenticated:
		p.Title = "Unauthenticated Message"
		WriteProblem(w, r, http.StatusUnauthorized, p)
	case processor.KindAlreadyExecuted:
		p.Title = "Already Executed"
		WriteProblem(w, r, http.StatusConflict, p)
	case processor.KindInvalidGovernanceAction, processor.KindGovernanceForAnotherChain, processor.KindImplementationMismatch:
		p.Title = "Unprocessable Governance Action"
		WriteProblem(w, r, http.StatusUnprocessableEntity, p)
	case processor.KindPrivilegedOperationFailed:
		p.Title = "Upgrade Failed"
		WriteProblem(w, r, http.StatusInternalServerError, p)
	default:
		WriteInternal(w, r, err)
	}
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	chain, err := strconv.ParseUint(r.PathValue("chain"), 10, 16)
	if err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "chain must be a 16-bit unsigned integer")
		return
	}
	emitter, err := contracts.ParseAddress(r.PathValue("emitter"))
	if err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "emitter must be a 32-byte hex address")
		return
	}
	seq, err := strconv.ParseUint(r.PathValue("sequence"), 10, 64)
	if err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "sequence must be a 64-bit unsigned integer")
		return
	}

	key := claim.Key{Chain: contracts.ChainID(chain), Emitter: emitter, Sequence: contracts.Sequence(seq)}
	addr, err := s.proc.ClaimAddress(key)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}

	rec, err := s.proc.Claim(r.Context(), key)
	switch {
	case errors.Is(err, claim.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, &ProblemDetail{
			Title:  "Not Found",
			Detail: "no claim at " + addr.String(),
		})
	case err != nil:
		WriteInternal(w, r, err)
	default:
		writeJSON(w, http.StatusOK, ClaimResponse{Address: addr, Claimed: true, Record: rec})
	}
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	limit := defaultReceiptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxReceiptLimit)
	}

	list, err := s.proc.Receipts(r.Context(), limit)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	if list == nil {
		list = []*receipts.Receipt{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	rcpt, err := s.proc.Receipt(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, receipts.ErrNotFound):
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "receipt not found")
	case err != nil:
		WriteInternal(w, r, err)
	default:
		writeJSON(w, http.StatusOK, rcpt)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"signer_key": s.proc.SignerKey(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
