package gateway

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"jobescrow/escrow"
	"jobescrow/ledger"
)

const callerHeader = "X-Caller-Address"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type jobResponse struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Requirements     string  `json:"requirements"`
	Payment          string  `json:"payment"`
	Client           string  `json:"client"`
	Freelancer       *string `json:"freelancer,omitempty"`
	Status           string  `json:"status"`
	SubmissionURL    string  `json:"submissionUrl,omitempty"`
	CreatedAt        int64   `json:"createdAt"`
	Deadline         int64   `json:"deadline"`
	EvaluationResult string  `json:"evaluationResult,omitempty"`
}

func newJobResponse(job *escrow.Job) jobResponse {
	resp := jobResponse{
		ID:               job.ID.String(),
		Title:            job.Title,
		Requirements:     job.Requirements,
		Payment:          job.Amount.String(),
		Client:           job.Client.Hex(),
		Status:           job.Status.String(),
		SubmissionURL:    job.SubmissionURL,
		CreatedAt:        job.CreatedAt,
		Deadline:         job.Deadline,
		EvaluationResult: job.EvaluationResult,
	}
	if job.Freelancer != nil {
		hex := job.Freelancer.Hex()
		resp.Freelancer = &hex
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeEngineError maps engine failures onto HTTP statuses so clients can
// distinguish "not your turn" from "not your job" from "bad input".
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	if pre, ok := escrow.AsPrecondition(err); ok {
		status := http.StatusBadRequest
		switch pre.Code {
		case escrow.CodeWrongState, escrow.CodeDeadlineNotReached:
			status = http.StatusConflict
		case escrow.CodeWrongActor:
			status = http.StatusForbidden
		}
		writeError(w, status, string(pre.Code), pre.Message)
		return
	}
	if errors.Is(err, escrow.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		writeError(w, http.StatusConflict, "insufficient_balance", "caller balance does not cover the payment")
		return
	}
	s.logger.Error("escrow operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func (s *Server) caller(w http.ResponseWriter, req *http.Request) (escrow.Address, bool) {
	raw := req.Header.Get(callerHeader)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "caller address header required")
		return escrow.Address{}, false
	}
	addr, err := escrow.ParseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed caller address")
		return escrow.Address{}, false
	}
	return addr, true
}

func (s *Server) jobID(w http.ResponseWriter, req *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(req, "jobID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed job id")
		return uuid.Nil, false
	}
	return id, true
}

type createJobRequest struct {
	Title         string `json:"title"`
	Requirements  string `json:"requirements"`
	DurationHours int64  `json:"durationHours"`
	Amount        string `json:"amount"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, req *http.Request) {
	caller, ok := s.caller(w, req)
	if !ok {
		return
	}
	var body createJobRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}
	amount, ok := new(big.Int).SetString(body.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_input", "amount must be a decimal integer")
		return
	}
	job, err := s.engine.Create(caller, body.Title, body.Requirements, time.Duration(body.DurationHours)*time.Hour, amount)
	if err != nil {
		s.metrics.ObserveTransition("create", "error")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.ObserveTransition("create", "ok")
	s.logger.Info("job created", "job", job.ID.String(), "client", job.Client.Hex(), "amount", job.Amount.String())
	writeJSON(w, http.StatusCreated, newJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, req *http.Request) {
	id, ok := s.jobID(w, req)
	if !ok {
		return
	}
	job, err := s.engine.Get(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

func (s *Server) handleGetStatus(w http.ResponseWriter, req *http.Request) {
	id, ok := s.jobID(w, req)
	if !ok {
		return
	}
	status, err := s.engine.Status(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, req *http.Request) {
	id, ok := s.jobID(w, req)
	if !ok {
		return
	}
	evaluation, err := s.engine.Evaluation(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"evaluation": evaluation})
}

func (s *Server) handleGetDeadline(w http.ResponseWriter, req *http.Request) {
	id, ok := s.jobID(w, req)
	if !ok {
		return
	}
	passed, err := s.engine.DeadlinePassed(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	remaining, err := s.engine.TimeRemaining(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"passed":           passed,
		"remainingSeconds": remaining,
	})
}

func (s *Server) handleAccept(w http.ResponseWriter, req *http.Request) {
	s.handleTransition(w, req, "accept", s.engine.Accept)
}

type submitRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, req *http.Request) {
	caller, ok := s.caller(w, req)
	if !ok {
		return
	}
	id, ok := s.jobID(w, req)
	if !ok {
		return
	}
	var body submitRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}
	if err := s.engine.Submit(id, caller, body.URL); err != nil {
		s.metrics.ObserveTransition("submit", "error")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.ObserveTransition("submit", "ok")
	s.respondWithJob(w, id)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *http.Request) {
	s.handleTransition(w, req, "withdraw", s.engine.Withdraw)
}

func (s *Server) handleCancel(w http.ResponseWriter, req *http.Request) {
	s.handleTransition(w, req, "cancel", func(id uuid.UUID, caller escrow.Address) error {
		err := s.engine.Cancel(id, caller)
		if err == nil {
			s.metrics.ObserveDisbursement("client")
		}
		return err
	})
}

func (s *Server) handleDeadlineRefund(w http.ResponseWriter, req *http.Request) {
	s.handleTransition(w, req, "claim_deadline_refund", func(id uuid.UUID, caller escrow.Address) error {
		err := s.engine.ClaimDeadlineRefund(id, caller)
		if err == nil {
			s.metrics.ObserveDisbursement("client")
		}
		return err
	})
}

func (s *Server) handleTransition(w http.ResponseWriter, req *http.Request, op string, fn func(uuid.UUID, escrow.Address) error) {
	caller, ok := s.caller(w, req)
	if !ok {
		return
	}
	id, ok := s.jobID(w, req)
	if !ok {
		return
	}
	if err := fn(id, caller); err != nil {
		s.metrics.ObserveTransition(op, "error")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.ObserveTransition(op, "ok")
	s.respondWithJob(w, id)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, req *http.Request) {
	id, ok := s.jobID(w, req)
	if !ok {
		return
	}
	start := time.Now()
	result, err := s.engine.EvaluateAndRelease(req.Context(), id)
	if err != nil {
		s.metrics.ObserveTransition("evaluate_and_release", "error")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.ObserveTransition("evaluate_and_release", "ok")
	s.metrics.ObserveEvaluationDuration(time.Since(start))
	s.metrics.ObserveVerdict(string(result.Verdict))
	if result.Reason != "" {
		s.metrics.ObserveFetchFailure()
	}
	if result.Verdict == escrow.VerdictApproved {
		s.metrics.ObserveDisbursement("freelancer")
	} else {
		s.metrics.ObserveDisbursement("client")
	}
	s.logger.Info("evaluation settled", "job", id.String(), "verdict", string(result.Verdict))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	if s.recorder == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.recorder.Events()})
}

func (s *Server) respondWithJob(w http.ResponseWriter, id uuid.UUID) {
	job, err := s.engine.Get(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}
