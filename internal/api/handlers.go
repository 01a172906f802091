package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/house"
	"github.com/MJE43/pf-bet-engine/internal/rounds"
	"github.com/MJE43/pf-bet-engine/internal/store"
)

const maxBodyBytes = 1 << 20

// decode reads a JSON body into v. An empty body is allowed when optional is set.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		s.errors.HandleValidationError(w, r, "body", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:         s.house.Games(),
		Tables:        s.house.Tables(),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req BetRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := ValidateBetRequest(&req); err != nil {
		s.errors.HandleError(w, r, err)
		return
	}

	res, err := s.house.PlaceBet(r.Context(), house.BetRequest{
		UserID:     userID(r.Context()),
		Game:       req.Game,
		Wager:      req.Wager,
		Params:     req.Params,
		ClientSeed: req.ClientSeed,
	})
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req house.VerifyRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if req.Game == "" {
		s.errors.HandleValidationError(w, r, "game", "game is required")
		return
	}
	res, err := s.house.Verify(req)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.security.LogVerifyOperation(middleware.GetReqID(r.Context()), req, res)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "betId"), 10, 64)
	if err != nil || id <= 0 {
		s.errors.HandleValidationError(w, r, "betId", "betId must be a positive integer")
		return
	}
	rep, err := s.house.ReplayBet(r.Context(), id)
	if err == nil && rep.Bet.UserID != userID(r.Context()) {
		// Someone else's bet looks the same as a missing one.
		err = errs.New(errs.CodeNotFound, "bet %d not found", id)
	}
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleFairness(w http.ResponseWriter, r *http.Request) {
	view, err := s.house.Fairness(r.Context(), chi.URLParam(r, "seedId"))
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req RotateRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := ValidateRotateRequest(&req); err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	res, err := s.house.Rotate(r.Context(), userID(r.Context()), req.Game, req.ClientSeed)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	view, err := s.house.CurrentRound(chi.URLParam(r, "table"))
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

type joinResponse struct {
	Participant rounds.ParticipantView `json:"participant"`
	Round       rounds.RoundView       `json:"round"`
}

func (s *Server) handleJoinRound(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := ValidateJoinRequest(&req); err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	p, view, err := s.house.JoinRound(r.Context(), chi.URLParam(r, "table"), userID(r.Context()), req.Wager, req.AutoCashout)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, joinResponse{Participant: p, Round: view})
}

func (s *Server) handleCashout(w http.ResponseWriter, r *http.Request) {
	var req CashoutRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	caller := userID(r.Context())
	if req.UserID != "" && req.UserID != caller {
		s.errors.HandleError(w, r, errs.New(errs.CodeUnauthorized, "cannot cash out for another user"))
		return
	}
	res, err := s.house.Cashout(r.Context(), chi.URLParam(r, "roundId"), caller)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAutoCashout(w http.ResponseWriter, r *http.Request) {
	var req AutoCashoutRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	roundID := chi.URLParam(r, "roundId")
	if err := s.house.SetAutoCashout(roundID, userID(r.Context()), req.Target); err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"roundId": roundID, "autoCashout": req.Target})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.errors.HandleError(w, r, errs.New(errs.CodeNotFound, "live stream disabled"))
		return
	}
	s.hub.ServeHTTP(w, r)
}

// ownAccount rejects reads of another user's ledger.
func (s *Server) ownAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "userId")
	if id != userID(r.Context()) {
		s.errors.HandleError(w, r, errs.New(errs.CodeUnauthorized, "ledger of %s is not readable by this caller", id))
		return "", false
	}
	return id, true
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ownAccount(w, r)
	if !ok {
		return
	}
	page := qInt(r, "page", 1)
	perPage := clampInt(qInt(r, "perPage", 50), 1, 200)

	res, err := s.house.History(r.Context(), id, page, perPage)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ownAccount(w, r)
	if !ok {
		return
	}
	acct, err := s.house.Balance(r.Context(), id)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceOf(acct))
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := ValidateCreditRequest(&req); err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	user := chi.URLParam(r, "userId")
	acct, err := s.house.Credit(r.Context(), user, req.Amount, req.Reason, "admin")
	s.audit(r, "credit", user, err, map[string]any{"amount": req.Amount.String(), "reason": req.Reason})
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceOf(acct))
}

func (s *Server) handleSetRank(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := ValidateRankRequest(&req); err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	user := chi.URLParam(r, "userId")
	acct, err := s.house.SetRank(r.Context(), user, req.Rank, "admin")
	s.audit(r, "set_rank", user, err, map[string]any{"rank": req.Rank})
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceOf(acct))
}

func (s *Server) audit(r *http.Request, action, user string, err error, details map[string]any) {
	outcome := "success"
	if err != nil {
		outcome = string(errs.CodeOf(err))
	}
	s.security.LogAuditEvent(middleware.GetReqID(r.Context()), action, "account/"+user, outcome, details)
}

func balanceOf(a store.Account) BalanceResponse {
	return BalanceResponse{UserID: a.UserID, Balance: a.Balance, Rank: a.Rank, Version: a.Version}
}

func qInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
