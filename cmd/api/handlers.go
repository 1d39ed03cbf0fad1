package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredSavings/pkg/logger"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/mcclellann/fredSavings/pkg/society"
	"github.com/mcclellann/fredSavings/pkg/store"
	"github.com/shopspring/decimal"
)

// memberHeader identifies the acting member. Sessions are handled in front of the API.
const memberHeader = "X-Member-ID"

// Server holds the society service.
type Server struct {
	society       *society.Service
	storage       store.Storage // Keep a reference to the storage to close it
	maxProofBytes int64
}

func NewServer(svc *society.Service, s store.Storage, maxProofBytes int64) *Server {
	return &Server{
		society:       svc,
		storage:       s,
		maxProofBytes: maxProofBytes,
	}
}

type errorResponse struct {
	Error  string               `json:"error"`
	Fields []society.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service and store errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *society.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, society.ErrForbidden), errors.Is(err, society.ErrMemberNotActive):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, society.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, society.ErrAlreadyReviewed),
		errors.Is(err, society.ErrDistributionApplied),
		errors.Is(err, society.ErrStaleProposal):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// actor reads the acting member from the request header.
func actor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(memberHeader)))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid " + memberHeader + " header"})
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		badRequest(w, "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req society.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	member, err := s.society.Register(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	member, err := s.society.Authenticate(strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	members, err := s.society.ListMembers(adminID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) activateMemberHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	memberID, ok := pathID(w, r)
	if !ok {
		return
	}
	member, err := s.society.ActivateMember(adminID, memberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) submitInstallmentHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := actor(w, r)
	if !ok {
		return
	}

	// Leave room for the other form fields on top of the proof itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxProofBytes+(1<<20))
	if err := r.ParseMultipartForm(s.maxProofBytes); err != nil {
		badRequest(w, "Invalid multipart form: "+err.Error())
		return
	}

	sub := society.Submission{Month: r.FormValue("month")}
	if raw := strings.TrimSpace(r.FormValue("amount")); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, r, society.NewValidationError(err, society.FieldError{Field: "amount", Error: "must be a number"}))
			return
		}
		sub.Amount = amount
	}
	if file, header, err := r.FormFile("proof"); err == nil {
		defer file.Close()
		sub.Proof = file
		sub.ProofFilename = header.Filename
	}

	inst, err := s.society.SubmitInstallment(r.Context(), memberID, sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) listInstallmentsHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var filter store.InstallmentFilter
	q := r.URL.Query()
	if raw := q.Get("member_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, "Invalid member ID")
			return
		}
		filter.MemberID = id
	}
	if raw := q.Get("status"); raw != "" {
		filter.Status = models.InstallmentStatus(raw)
	}

	insts, err := s.society.ListInstallments(actorID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insts)
}

func (s *Server) reviewInstallmentHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Decision models.InstallmentStatus `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	inst, err := s.society.ReviewInstallment(r.Context(), adminID, id, req.Decision)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) lateFeeHandler(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	fee, err := s.society.LateFeeFor(month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"month": month, "late_fee": fee})
}

func (s *Server) listDepositsHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	deposits, err := s.society.ListFixedDeposits(actorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deposits)
}

func (s *Server) createDepositHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	var in society.DepositInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w, err.Error())
		return
	}
	view, err := s.society.CreateFixedDeposit(adminID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) updateDepositHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in society.DepositInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w, err.Error())
		return
	}
	view, err := s.society.UpdateFixedDeposit(adminID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) deleteDepositHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.society.DeleteFixedDeposit(adminID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) previewDistributionHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	var req society.DistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	d, err := s.society.ProposeDistribution(adminID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) applyDistributionHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	var req society.DistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	run, d, err := s.society.ApplyDistribution(adminID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"run": run, "distribution": d})
}

func (s *Server) listDistributionsHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	runs, err := s.society.ListDistributionRuns(adminID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	dash, err := s.society.SocietyDashboard(actorID, r.URL.Query().Get("pool"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) memberDashboardHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	memberID, ok := pathID(w, r)
	if !ok {
		return
	}
	summary, err := s.society.MemberDashboard(actorID, memberID, r.URL.Query().Get("pool"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	report, err := s.society.Report(adminID, q.Get("pool"), q.Get("basis"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getSettingHandler(w http.ResponseWriter, r *http.Request) {
	setting, err := s.society.GetSetting(mux.Vars(r)["key"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) putSettingHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	setting, err := s.society.PutSetting(adminID, mux.Vars(r)["key"], req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}
