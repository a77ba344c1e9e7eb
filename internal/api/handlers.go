package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/psikit/internal/admin"
	"github.com/dmitrymomot/psikit/internal/billing"
	"github.com/dmitrymomot/psikit/internal/graceperiod"
	"github.com/dmitrymomot/psikit/internal/privacy"
	"github.com/dmitrymomot/psikit/pkg/audit"
	"github.com/dmitrymomot/psikit/pkg/jwt"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

type GraceRunner interface {
	Run(ctx context.Context) (graceperiod.Result, error)
}

type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
}

type DataExporter interface {
	Export(ctx context.Context, userID string) (*privacy.Bundle, error)
}

type DeletionRequests interface {
	Create(ctx context.Context, userID, reason string) (privacy.DeletionRequest, error)
	Pending(ctx context.Context, userID string) (privacy.DeletionRequest, error)
	Resolve(ctx context.Context, requestID string, action privacy.Action) (privacy.DeletionRequest, error)
}

type AdminMetrics interface {
	Overview(ctx context.Context) (admin.Overview, error)
}

type AuditFinder interface {
	Find(ctx context.Context, c audit.Criteria) ([]audit.Event, error)
}

type subscriptionResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Access       subscription.Access        `json:"access"`
}

func (s *server) currentUser(r *http.Request) (string, error) {
	userID, ok := jwt.UserIDFromContext(r.Context())
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// lookupSubscription treats "no subscription" as an absent one.
func (s *server) lookupSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	sub, err := s.deps.Subscriptions.Current(ctx, userID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return nil, nil
	}
	return sub, err
}

func (s *server) handleMySubscription(w http.ResponseWriter, r *http.Request) {
	userID, err := s.currentUser(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	sub, err := s.lookupSubscription(r.Context(), userID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, r, s.log, http.StatusOK, subscriptionResponse{
		Subscription: sub,
		Access:       s.deps.Gate.Evaluate(sub, s.now()),
	})
}

type checkoutRequest struct {
	Plan       string `json:"plan"`
	PriceID    string `json:"price_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (s *server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := s.currentUser(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}

	id := req.Plan
	if id == "" {
		id = req.PriceID
	}
	plan, ok := s.deps.Gate.Catalog().Lookup(id)
	if !ok {
		writeError(w, r, s.log, billing.ErrUnknownPlan)
		return
	}

	in := billing.CheckoutRequest{
		UserID:     userID,
		Plan:       plan,
		SuccessURL: s.redirectURL(req.SuccessURL, "/subscription?success=true"),
		CancelURL:  s.redirectURL(req.CancelURL, "/subscription?canceled=true"),
	}
	if claims, ok := jwt.ClaimsFromContext(r.Context()); ok {
		in.Email = claims.Email
	}
	if sub, err := s.lookupSubscription(r.Context(), userID); err == nil && sub != nil {
		in.CustomerID = sub.StripeCustomerID
	}

	session, err := s.deps.Checkout.CreateCheckoutSession(r.Context(), in)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, r, s.log, http.StatusOK, session)
}

// redirectURL only accepts URLs on the application's own origin.
func (s *server) redirectURL(candidate, fallbackPath string) string {
	base := s.deps.BaseURL
	if candidate != "" && (candidate == base || strings.HasPrefix(candidate, base+"/") || strings.HasPrefix(candidate, base+"?")) {
		return candidate
	}
	return base + fallbackPath
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, err := s.currentUser(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	bundle, err := s.deps.Exporter.Export(r.Context(), userID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.Header().Set("Content-Disposition",
		`attachment; filename="149psi-export-`+bundle.GeneratedAt.Format("20060102")+`.json"`)
	writeJSON(w, r, s.log, http.StatusOK, bundle)
}

type createDeletionRequest struct {
	Reason string `json:"reason"`
}

func (s *server) handleCreateDeletionRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := s.currentUser(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body createDeletionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	req, err := s.deps.Deletions.Create(r.Context(), userID, body.Reason)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, r, s.log, http.StatusCreated, req)
}

func (s *server) handlePendingDeletionRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := s.currentUser(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	req, err := s.deps.Deletions.Pending(r.Context(), userID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, r, s.log, http.StatusOK, req)
}

type resolveDeletionRequest struct {
	Action string `json:"action"`
}

type resolveDeletionResponse struct {
	Success bool                    `json:"success"`
	Request privacy.DeletionRequest `json:"request"`
}

func (s *server) handleResolveDeletionRequest(w http.ResponseWriter, r *http.Request) {
	var body resolveDeletionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	action, err := privacy.ParseAction(body.Action)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	req, err := s.deps.Deletions.Resolve(r.Context(), chi.URLParam(r, "id"), action)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, r, s.log, http.StatusOK, resolveDeletionResponse{Success: true, Request: req})
}

func (s *server) handleAdminMetrics(w http.ResponseWriter, r *http.Request) {
	overview, err := s.deps.Metrics.Overview(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, r, s.log, http.StatusOK, overview)
}

type auditLogsResponse struct {
	Events []audit.Event `json:"events"`
}

func (s *server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := audit.Criteria{
		UserID:   q.Get("user_id"),
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, s.log, HTTPError{Code: http.StatusBadRequest, Key: "invalid limit"})
			return
		}
		criteria.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, s.log, HTTPError{Code: http.StatusBadRequest, Key: "invalid offset"})
			return
		}
		criteria.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, s.log, HTTPError{Code: http.StatusBadRequest, Key: "invalid since"})
			return
		}
		criteria.Since = t
	}

	events, err := s.deps.Audit.Find(r.Context(), criteria)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, r, s.log, http.StatusOK, auditLogsResponse{Events: events})
}

func (s *server) handleGraceTask(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Grace.Run(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, r, s.log, http.StatusOK, res)
}
