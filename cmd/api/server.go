package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"verdict/auth"
	"verdict/dispute"
	"verdict/escrow"
	"verdict/receipt"
	"verdict/timeline"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type disputeService interface {
	Create(ctx context.Context, params dispute.CreateParams) (dispute.Dispute, error)
	SubmitEvidence(ctx context.Context, params dispute.SubmitEvidenceParams) (dispute.Evidence, error)
	StartVoting(ctx context.Context, params dispute.StartVotingParams) (dispute.Dispute, error)
	CastVote(ctx context.Context, params dispute.CastVoteParams) (dispute.Vote, error)
	Resolve(ctx context.Context, params dispute.ResolveParams) (dispute.Dispute, error)
	SetBlacklist(ctx context.Context, params dispute.SetBlacklistParams) error
	Pause(actorRole string) error
	Unpause(actorRole string) error
	Paused() bool
	Get(ctx context.Context, id int64) (dispute.Dispute, error)
	GetTally(ctx context.Context, id int64) (dispute.Tally, error)
	ListEvidence(ctx context.Context, disputeID int64) ([]dispute.Evidence, error)
	ListVotes(ctx context.Context, disputeID int64) ([]dispute.Vote, error)
	ListSubmitters(ctx context.Context, disputeID int64) ([]string, error)
	UserDisputes(ctx context.Context, principal string) ([]dispute.Dispute, error)
	RemainingCooldown(ctx context.Context, principal string) (time.Duration, error)
	Counter(ctx context.Context) (int64, error)
}

type receiptService interface {
	Get(ctx context.Context, id int64) (receipt.Token, error)
	ForDispute(ctx context.Context, disputeID int64) (receipt.Token, error)
	ReleaseTie(ctx context.Context, params receipt.ReleaseParams) (receipt.Token, error)
}

type escrowService interface {
	Deposit(ctx context.Context, account string, amount int64) error
	Account(ctx context.Context, account string) (escrow.Account, error)
	Transfers(ctx context.Context, disputeID int64) ([]escrow.Transfer, error)
}

type timelineService interface {
	List(ctx context.Context, disputeID int64) ([]timeline.Event, error)
}

type notificationService interface {
	PendingCount(ctx context.Context) (int, error)
}

// Server wires HTTP routes to the domain services.
type Server struct {
	authService     authService
	disputeService  disputeService
	receiptService  receiptService
	escrowService   escrowService
	timelineService timelineService
	notifications   notificationService
	logger          *slog.Logger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.Handle("POST /api/disputes", s.requireAuth(s.handleCreateDispute))
	mux.Handle("GET /api/disputes/{id}", s.requireAuth(s.handleDispute))
	mux.Handle("GET /api/disputes/{id}/evidence", s.requireAuth(s.handleListEvidence))
	mux.Handle("POST /api/disputes/{id}/evidence", s.requireAuth(s.handleSubmitEvidence))
	mux.Handle("POST /api/disputes/{id}/voting", s.requireAuth(s.handleStartVoting))
	mux.Handle("GET /api/disputes/{id}/votes", s.requireAuth(s.handleListVotes))
	mux.Handle("POST /api/disputes/{id}/votes", s.requireAuth(s.handleCastVote))
	mux.Handle("GET /api/disputes/{id}/tally", s.requireAuth(s.handleTally))
	mux.Handle("POST /api/disputes/{id}/resolve", s.requireAuth(s.handleResolve))
	mux.Handle("GET /api/disputes/{id}/submitters", s.requireAuth(s.handleSubmitters))
	mux.Handle("GET /api/disputes/{id}/receipt", s.requireAuth(s.handleDisputeReceipt))
	mux.Handle("GET /api/disputes/{id}/transfers", s.requireAuth(s.handleTransfers))
	mux.Handle("GET /api/disputes/{id}/timeline", s.requireAuth(s.handleTimeline))

	mux.Handle("GET /api/me/disputes", s.requireAuth(s.handleMyDisputes))
	mux.Handle("GET /api/me/cooldown", s.requireAuth(s.handleCooldown))
	mux.Handle("GET /api/me/balance", s.requireAuth(s.handleBalance))
	mux.Handle("POST /api/me/deposits", s.requireAuth(s.handleDeposit))

	mux.Handle("GET /api/receipts/{id}", s.requireAuth(s.handleReceipt))
	mux.Handle("POST /api/receipts/{id}/release", s.requireAuth(s.handleReleaseTie))

	mux.Handle("POST /api/admin/blacklist", s.requireAuth(s.handleBlacklist))
	mux.Handle("POST /api/admin/pause", s.requireAuth(s.handlePause))
	mux.Handle("POST /api/admin/unpause", s.requireAuth(s.handleUnpause))
	mux.Handle("GET /api/status", http.HandlerFunc(s.handleStatus))

	return mux
}

func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authService.Register(r.Context(), auth.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        auth.Role(req.Role),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authService.Login(r.Context(), auth.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user": userResponse{
			ID:          result.User.ID,
			Email:       result.User.Email,
			DisplayName: result.User.DisplayName,
			Role:        string(result.User.Role),
		},
	})
}

type evidenceInput struct {
	Description     string `json:"description"`
	DocumentHash    string `json:"documentHash"`
	SupportsCreator bool   `json:"supportsCreator"`
}

type createDisputeRequest struct {
	Respondent     string          `json:"respondent"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Priority       string          `json:"priority"`
	PeriodHours    int             `json:"periodHours"`
	RequiresEscrow bool            `json:"requiresEscrow"`
	EscrowAmount   int64           `json:"escrowAmount"`
	AttachedValue  int64           `json:"attachedValue"`
	Evidence       []evidenceInput `json:"evidence"`
}

type disputeResponse struct {
	ID                 int64   `json:"id"`
	Creator            string  `json:"creator"`
	Respondent         string  `json:"respondent"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Category           string  `json:"category"`
	Priority           string  `json:"priority"`
	Phase              string  `json:"phase"`
	RequiresEscrow     bool    `json:"requiresEscrow"`
	EscrowAmount       int64   `json:"escrowAmount"`
	CreatorVotes       int     `json:"creatorVotes"`
	RespondentVotes    int     `json:"respondentVotes"`
	Winner             *string `json:"winner,omitempty"`
	ReceiptID          *int64  `json:"receiptId,omitempty"`
	ResolutionSummary  *string `json:"resolutionSummary,omitempty"`
	CreatedAt          string  `json:"createdAt"`
	ActivationAt       string  `json:"activationAt"`
	DisputeEndAt       string  `json:"disputeEndAt"`
	VotingStartAt      string  `json:"votingStartAt"`
	VotingEndAt        string  `json:"votingEndAt"`
	ResolutionDeadline string  `json:"resolutionDeadline"`
}

func toDisputeResponse(d dispute.Dispute) disputeResponse {
	return disputeResponse{
		ID:                 d.ID,
		Creator:            d.Creator,
		Respondent:         d.Respondent,
		Title:              d.Title,
		Description:        d.Description,
		Category:           string(d.Category),
		Priority:           string(d.Priority),
		Phase:              string(d.Phase),
		RequiresEscrow:     d.RequiresEscrow,
		EscrowAmount:       d.EscrowAmount,
		CreatorVotes:       d.CreatorVotes,
		RespondentVotes:    d.RespondentVotes,
		Winner:             d.Winner,
		ReceiptID:          d.ReceiptID,
		ResolutionSummary:  d.ResolutionSummary,
		CreatedAt:          d.CreatedAt.Format(time.RFC3339),
		ActivationAt:       d.ActivationAt.Format(time.RFC3339),
		DisputeEndAt:       d.DisputeEndAt.Format(time.RFC3339),
		VotingStartAt:      d.VotingStartAt.Format(time.RFC3339),
		VotingEndAt:        d.VotingEndAt.Format(time.RFC3339),
		ResolutionDeadline: d.ResolutionDeadline.Format(time.RFC3339),
	}
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	var req createDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	evidence := make([]dispute.EvidenceInput, 0, len(req.Evidence))
	for _, e := range req.Evidence {
		evidence = append(evidence, dispute.EvidenceInput{
			Description:     e.Description,
			DocumentHash:    e.DocumentHash,
			SupportsCreator: e.SupportsCreator,
		})
	}

	d, err := s.disputeService.Create(r.Context(), dispute.CreateParams{
		Creator:        userID(r),
		Respondent:     req.Respondent,
		Title:          req.Title,
		Description:    req.Description,
		Category:       dispute.Category(req.Category),
		Priority:       dispute.Priority(req.Priority),
		CustomPeriod:   time.Duration(req.PeriodHours) * time.Hour,
		RequiresEscrow: req.RequiresEscrow,
		EscrowAmount:   req.EscrowAmount,
		AttachedValue:  req.AttachedValue,
		Evidence:       evidence,
	})
	if err != nil {
		s.disputeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDisputeResponse(d))
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.disputeService.Get(r.Context(), id)
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type evidenceResponse struct {
	ID              int64  `json:"id"`
	DisputeID       int64  `json:"disputeId"`
	Submitter       string `json:"submitter"`
	Description     string `json:"description"`
	DocumentHash    string `json:"documentHash"`
	SupportsCreator bool   `json:"supportsCreator"`
	SubmittedAt     string `json:"submittedAt"`
}

func toEvidenceResponse(e dispute.Evidence) evidenceResponse {
	return evidenceResponse{
		ID:              e.ID,
		DisputeID:       e.DisputeID,
		Submitter:       e.Submitter,
		Description:     e.Description,
		DocumentHash:    e.DocumentHash,
		SupportsCreator: e.SupportsCreator,
		SubmittedAt:     e.SubmittedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := s.disputeService.ListEvidence(r.Context(), id)
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	out := make([]evidenceResponse, 0, len(items))
	for _, e := range items {
		out = append(out, toEvidenceResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleSubmitEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req evidenceInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := s.disputeService.SubmitEvidence(r.Context(), dispute.SubmitEvidenceParams{
		DisputeID:       id,
		Submitter:       userID(r),
		Description:     req.Description,
		DocumentHash:    req.DocumentHash,
		SupportsCreator: req.SupportsCreator,
	})
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEvidenceResponse(e))
}

func (s *Server) handleStartVoting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.disputeService.StartVoting(r.Context(), dispute.StartVotingParams{DisputeID: id, ActorID: userID(r)})
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type voteRequest struct {
	SupportsCreator bool   `json:"supportsCreator"`
	Reason          string `json:"reason"`
}

type voteResponse struct {
	ID              int64  `json:"id"`
	DisputeID       int64  `json:"disputeId"`
	Voter           string `json:"voter"`
	SupportsCreator bool   `json:"supportsCreator"`
	Reason          string `json:"reason"`
	CastAt          string `json:"castAt"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := s.disputeService.CastVote(r.Context(), dispute.CastVoteParams{
		DisputeID:       id,
		Voter:           userID(r),
		SupportsCreator: req.SupportsCreator,
		Reason:          req.Reason,
	})
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, voteResponse{
		ID:              v.ID,
		DisputeID:       v.DisputeID,
		Voter:           v.Voter,
		SupportsCreator: v.SupportsCreator,
		Reason:          v.Reason,
		CastAt:          v.CastAt.Format(time.RFC3339),
	})
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := s.disputeService.ListVotes(r.Context(), id)
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	out := make([]voteResponse, 0, len(items))
	for _, v := range items {
		out = append(out, voteResponse{
			ID:              v.ID,
			DisputeID:       v.DisputeID,
			Voter:           v.Voter,
			SupportsCreator: v.SupportsCreator,
			Reason:          v.Reason,
			CastAt:          v.CastAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tally, err := s.disputeService.GetTally(r.Context(), id)
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"creatorVotes":    tally.CreatorVotes,
		"respondentVotes": tally.RespondentVotes,
		"winner":          tally.Winner,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.disputeService.Resolve(r.Context(), dispute.ResolveParams{DisputeID: id, ActorID: userID(r)})
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

func (s *Server) handleSubmitters(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := s.disputeService.ListSubmitters(r.Context(), id)
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleMyDisputes(w http.ResponseWriter, r *http.Request) {
	items, err := s.disputeService.UserDisputes(r.Context(), userID(r))
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	out := make([]disputeResponse, 0, len(items))
	for _, d := range items {
		out = append(out, toDisputeResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleCooldown(w http.ResponseWriter, r *http.Request) {
	wait, err := s.disputeService.RemainingCooldown(r.Context(), userID(r))
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"canCreate":        wait == 0,
		"remainingSeconds": int64(wait / time.Second),
	})
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.escrowService.Deposit(r.Context(), userID(r), req.Amount); err != nil {
		if errors.Is(err, escrow.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := s.escrowService.Account(r.Context(), userID(r))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := map[string]any{"balance": account.Balance}
	if !account.UpdatedAt.IsZero() {
		out["updatedAt"] = account.UpdatedAt.UTC()
	}
	writeJSON(w, http.StatusOK, out)
}

type transferResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Kind   string `json:"kind"`
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := s.escrowService.Transfers(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]transferResponse, 0, len(items))
	for _, t := range items {
		out = append(out, transferResponse{From: t.From, To: t.To, Amount: t.Amount, Kind: t.Kind})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type timelineEventResponse struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Actor     *string         `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	events, err := s.timelineService.List(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{
			Seq:       e.Seq,
			Type:      e.Type,
			Actor:     e.Actor,
			Payload:   json.RawMessage(e.Payload),
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type receiptResponse struct {
	ID         int64   `json:"id"`
	DisputeID  int64   `json:"disputeId"`
	Owner      string  `json:"owner"`
	Tie        bool    `json:"tie"`
	MintedAt   string  `json:"mintedAt"`
	ReleasedAt *string `json:"releasedAt,omitempty"`
	ReleasedTo *string `json:"releasedTo,omitempty"`
}

func toReceiptResponse(t receipt.Token) receiptResponse {
	resp := receiptResponse{
		ID:        t.ID,
		DisputeID: t.DisputeID,
		Owner:     t.Owner,
		Tie:       t.Tie,
		MintedAt:  t.MintedAt.Format(time.RFC3339),
	}
	if t.ReleasedAt != nil {
		released := t.ReleasedAt.Format(time.RFC3339)
		resp.ReleasedAt = &released
	}
	resp.ReleasedTo = t.ReleasedTo
	return resp
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tok, err := s.receiptService.Get(r.Context(), id)
	if err != nil {
		s.receiptError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(tok))
}

func (s *Server) handleDisputeReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tok, err := s.receiptService.ForDispute(r.Context(), id)
	if err != nil {
		s.receiptError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(tok))
}

type releaseRequest struct {
	To string `json:"to"`
}

func (s *Server) handleReleaseTie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tok, err := s.receiptService.ReleaseTie(r.Context(), receipt.ReleaseParams{
		TokenID:   id,
		To:        req.To,
		ActorID:   userID(r),
		ActorRole: string(userRole(r)),
	})
	if err != nil {
		s.receiptError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(tok))
}

type blacklistRequest struct {
	Principal   string `json:"principal"`
	Blacklisted bool   `json:"blacklisted"`
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.disputeService.SetBlacklist(r.Context(), dispute.SetBlacklistParams{
		Principal:   req.Principal,
		Blacklisted: req.Blacklisted,
		ActorID:     userID(r),
		ActorRole:   string(userRole(r)),
	})
	if err != nil {
		s.disputeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.disputeService.Pause(string(userRole(r))); err != nil {
		s.disputeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := s.disputeService.Unpause(string(userRole(r))); err != nil {
		s.disputeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, err := s.disputeService.Counter(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	pending, err := s.notifications.PendingCount(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":               s.disputeService.Paused(),
		"totalDisputes":        total,
		"pendingNotifications": pending,
	})
}

func (s *Server) disputeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dispute.ErrNotFound):
		writeError(w, http.StatusNotFound, "dispute not found")
	case errors.Is(err, dispute.ErrPaused):
		writeError(w, http.StatusServiceUnavailable, "engine is paused")
	case errors.Is(err, dispute.ErrForbidden):
		writeError(w, http.StatusForbidden, "admin role required")
	case errors.Is(err, dispute.ErrBlacklisted):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, dispute.ErrCooldownActive):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, dispute.ErrAlreadyVoted),
		errors.Is(err, dispute.ErrWrongPhase),
		errors.Is(err, dispute.ErrEvidenceLimit),
		errors.Is(err, dispute.ErrVotingNotReached),
		errors.Is(err, dispute.ErrNoSubmitters),
		errors.Is(err, dispute.ErrVotingClosed),
		errors.Is(err, dispute.ErrNotSubmitter),
		errors.Is(err, dispute.ErrVotingNotEnded),
		errors.Is(err, dispute.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispute.ErrInvalidRespondent),
		errors.Is(err, dispute.ErrTitleLength),
		errors.Is(err, dispute.ErrDescriptionLength),
		errors.Is(err, dispute.ErrEvidenceCount),
		errors.Is(err, dispute.ErrCustomPeriod),
		errors.Is(err, dispute.ErrEscrowAmount),
		errors.Is(err, dispute.ErrInsufficientValue),
		errors.Is(err, dispute.ErrReasonLength):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) receiptError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, receipt.ErrNotFound):
		writeError(w, http.StatusNotFound, "receipt not found")
	case errors.Is(err, receipt.ErrPaused):
		writeError(w, http.StatusServiceUnavailable, "engine is paused")
	case errors.Is(err, receipt.ErrForbidden):
		writeError(w, http.StatusForbidden, "admin role required")
	case errors.Is(err, receipt.ErrNotTie),
		errors.Is(err, receipt.ErrNotHeldBySystem),
		errors.Is(err, receipt.ErrBadRecipient):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	if s.logger != nil {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

func userRole(r *http.Request) auth.Role {
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	return role
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
