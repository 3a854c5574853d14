package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/websocket"

	apperrors "github.com/inkflow/inkflow/internal/errors"
	"github.com/inkflow/inkflow/internal/signing/domain"
	"github.com/inkflow/inkflow/internal/signing/engine"
	"github.com/inkflow/inkflow/internal/signing/token"
	streamsync "github.com/inkflow/inkflow/internal/sync"
)

const (
	grantCookieName = "inkflow_grant"

	defaultPageSize = 20
	maxPageSize     = 100

	maxRequestBodyBytes = 256 * 1024
)

type handlerDeps struct {
	engine *engine.Engine
	tokens *token.Service
	hub    *streamsync.Hub
	grants GrantConfig
}

type senderEmailContextKey struct{}

// newHandler builds the HTTP surface: management API, signer routes, the
// health probe, and the dashboard websocket.
func newHandler(deps handlerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /api/requests", deps.requireGrant(deps.handleCreateRequest))
	mux.HandleFunc("GET /api/requests", deps.requireGrant(deps.handleListRequests))
	mux.HandleFunc("GET /api/requests/{id}", deps.requireGrant(deps.handleGetRequest))
	mux.HandleFunc("POST /api/requests/{id}/deliver", deps.requireGrant(deps.handleDeliver))
	mux.HandleFunc("POST /api/requests/{id}/void", deps.requireGrant(deps.handleVoid))
	mux.HandleFunc("POST /api/requests/{id}/resend", deps.requireGrant(deps.handleResend))
	mux.HandleFunc("GET /api/requests/{id}/audit", deps.requireGrant(deps.handleAuditTrail))
	mux.HandleFunc("GET /api/requests/{id}/download", deps.requireGrant(deps.handleDownload))

	mux.HandleFunc("GET /s/{token}", deps.handleSignerView)
	mux.HandleFunc("POST /s/{token}/open", deps.handleSignerOpen)
	mux.HandleFunc("POST /s/{token}/sign", deps.handleSignerSign)
	mux.HandleFunc("POST /s/{token}/decline", deps.handleSignerDecline)
	mux.HandleFunc("GET /sign/{requestID}", deps.handleSignerLookup)

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		deps.handleWSConn(conn)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		senderEmail, err := ValidateSubscribeGrant(grantFromRequest(r), deps.grants)
		if err != nil {
			log.Printf("server: websocket unauthorized: remote=%s err=%v", r.RemoteAddr, err)
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), senderEmailContextKey{}, senderEmail)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})

	return mux
}

// requireGrant authenticates a management API call and stashes the sender
// email on the request context.
func (deps handlerDeps) requireGrant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		senderEmail, err := ValidateSubscribeGrant(bearerToken(r), deps.grants)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), senderEmailContextKey{}, senderEmail)
		next(w, r.WithContext(ctx))
	}
}

func senderEmailFromContext(ctx context.Context) string {
	senderEmail, _ := ctx.Value(senderEmailContextKey{}).(string)
	return senderEmail
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

func grantFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(grantCookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("grant"))
}

func (deps handlerDeps) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var payload createRequestPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	request, err := deps.engine.Create(r.Context(), payload.toDomain(senderEmailFromContext(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreatedRequestView(request))
}

func (deps handlerDeps) handleListRequests(w http.ResponseWriter, r *http.Request) {
	pageSize := defaultPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "page_size must be a positive integer"))
			return
		}
		pageSize = parsed
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	page, err := deps.engine.List(r.Context(), senderEmailFromContext(r.Context()), pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeError(w, err)
		return
	}
	view := listRequestsView{NextPageToken: page.NextPageToken}
	for _, request := range page.Requests {
		view.Requests = append(view.Requests, toRequestView(request))
	}
	writeJSON(w, http.StatusOK, view)
}

// ownedRequest loads a request and hides it from senders who do not own it.
func (deps handlerDeps) ownedRequest(r *http.Request) (domain.SigningRequest, error) {
	request, err := deps.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return domain.SigningRequest{}, err
	}
	if request.SenderEmail != senderEmailFromContext(r.Context()) {
		return domain.SigningRequest{}, apperrors.New(apperrors.CodeNotFound, "signing request not found")
	}
	return request, nil
}

func (deps handlerDeps) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	request, err := deps.ownedRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(request))
}

func (deps handlerDeps) handleDeliver(w http.ResponseWriter, r *http.Request) {
	if _, err := deps.ownedRequest(r); err != nil {
		writeError(w, err)
		return
	}
	request, err := deps.engine.Deliver(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(request))
}

func (deps handlerDeps) handleVoid(w http.ResponseWriter, r *http.Request) {
	if _, err := deps.ownedRequest(r); err != nil {
		writeError(w, err)
		return
	}
	var payload voidPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	request, err := deps.engine.Void(r.Context(), r.PathValue("id"), payload.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(request))
}

func (deps handlerDeps) handleResend(w http.ResponseWriter, r *http.Request) {
	if _, err := deps.ownedRequest(r); err != nil {
		writeError(w, err)
		return
	}
	var payload resendPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	request, err := deps.engine.Resend(r.Context(), r.PathValue("id"), payload.SignerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(request))
}

func (deps handlerDeps) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if _, err := deps.ownedRequest(r); err != nil {
		writeError(w, err)
		return
	}
	events, err := deps.engine.AuditTrail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]auditEventView, 0, len(events))
	for _, event := range events {
		views = append(views, toAuditEventView(event))
	}
	writeJSON(w, http.StatusOK, views)
}

func (deps handlerDeps) handleDownload(w http.ResponseWriter, r *http.Request) {
	request, err := deps.ownedRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDownloadView(request))
}

func (deps handlerDeps) handleSignerView(w http.ResponseWriter, r *http.Request) {
	request, signer, err := deps.tokens.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSignerPageView(request, signer))
}

func (deps handlerDeps) handleSignerOpen(w http.ResponseWriter, r *http.Request) {
	request, signer, err := deps.tokens.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := deps.engine.MarkOpened(r.Context(), request.ID, signer.ID, openMetadata(r))
	if err != nil {
		writeError(w, err)
		return
	}
	current, _ := updated.SignerByID(signer.ID)
	writeJSON(w, http.StatusOK, toSignerPageView(updated, current))
}

func (deps handlerDeps) handleSignerSign(w http.ResponseWriter, r *http.Request) {
	request, signer, err := deps.tokens.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	var payload signPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	updated, err := deps.engine.RecordSignature(r.Context(), request.ID, signer.ID, payload.Values, openMetadata(r))
	if err != nil {
		writeError(w, err)
		return
	}
	current, _ := updated.SignerByID(signer.ID)
	writeJSON(w, http.StatusOK, toSignerPageView(updated, current))
}

func (deps handlerDeps) handleSignerDecline(w http.ResponseWriter, r *http.Request) {
	request, signer, err := deps.tokens.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	var payload declinePayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	updated, err := deps.engine.Decline(r.Context(), request.ID, signer.ID, payload.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	current, _ := updated.SignerByID(signer.ID)
	writeJSON(w, http.StatusOK, toSignerPageView(updated, current))
}

// handleSignerLookup is the fallback resolution path for signers who lost
// their link. It answers exactly like an unknown token unless the request
// and email line up.
func (deps handlerDeps) handleSignerLookup(w http.ResponseWriter, r *http.Request) {
	request, err := deps.engine.Get(r.Context(), r.PathValue("requestID"))
	if err != nil {
		writeError(w, token.ErrTokenNotFound)
		return
	}
	signer, ok := request.SignerByEmail(strings.TrimSpace(r.URL.Query().Get("email")))
	if !ok {
		writeError(w, token.ErrTokenNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toSignerPageView(request, signer))
}

func (deps handlerDeps) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	senderEmail := ""
	if request := conn.Request(); request != nil {
		senderEmail, _ = request.Context().Value(senderEmailContextKey{}).(string)
	}
	if senderEmail == "" {
		return
	}

	peer := streamsync.NewPeer(json.NewEncoder(conn))
	latest := deps.hub.Join(senderEmail, peer)
	defer deps.hub.Leave(senderEmail, peer)

	if err := peer.WriteFrame(streamsync.Frame{
		Type:        streamsync.FrameTypeHello,
		SenderEmail: senderEmail,
		Sequence:    latest,
	}); err != nil {
		return
	}

	// Updates flow one way; the read loop only watches for disconnect.
	decoder := json.NewDecoder(conn)
	for {
		var frame streamsync.Frame
		if err := decoder.Decode(&frame); err != nil {
			return
		}
	}
}

func openMetadata(r *http.Request) map[string]string {
	metadata := make(map[string]string)
	if r.RemoteAddr != "" {
		metadata["RemoteAddr"] = r.RemoteAddr
	}
	if agent := strings.TrimSpace(r.UserAgent()); agent != "" {
		metadata["UserAgent"] = agent
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("server: write response: %v", err)
	}
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	body := errorBody{
		Code:     string(code),
		Message:  err.Error(),
		Metadata: apperrors.GetMetadata(err),
	}
	if code == apperrors.CodeUnknown {
		body.Message = "internal error"
		log.Printf("server: internal error: %v", err)
	}
	writeJSON(w, apperrors.HTTPStatus(err), errorEnvelope{Error: body})
}
