// Package engine applies signing request transitions. Every operation is
// check-then-act over the persisted aggregate: load, validate against the
// current state, write with the expected version, then run side effects.
// Replays of already-applied operations return the current aggregate with
// no new audit entries or notifications.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkflow/inkflow/internal/audit"
	apperrors "github.com/inkflow/inkflow/internal/errors"
	"github.com/inkflow/inkflow/internal/notify"
	"github.com/inkflow/inkflow/internal/signing/domain"
	"github.com/inkflow/inkflow/internal/signing/storage"
	"github.com/inkflow/inkflow/internal/signing/token"
	streamsync "github.com/inkflow/inkflow/internal/sync"
)

// tracerName identifies engine spans in exported traces.
const tracerName = "inkflow/signing"

// Publisher pushes one request snapshot to the sender's dashboards.
type Publisher interface {
	Publish(senderEmail string, update streamsync.Update)
}

// Engine coordinates transitions across storage, tokens, audit, dispatch,
// and the sync publisher.
type Engine struct {
	requests   storage.RequestStore
	tokens     *token.Service
	auditor    *audit.Emitter
	dispatcher *notify.Dispatcher
	publisher  Publisher
	tracer     trace.Tracer
	now        func() time.Time
	baseURL    string
}

// Config wires an engine. Publisher may be nil; dispatch and audit are
// required because the workflow's ledger and notifications hang off them.
type Config struct {
	Requests   storage.RequestStore
	Tokens     *token.Service
	Audit      *audit.Emitter
	Dispatcher *notify.Dispatcher
	Publisher  Publisher
	Now        func() time.Time
	// BaseURL prefixes signer access links in outbound notifications.
	BaseURL string
}

// New creates a transition engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Requests == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if cfg.Audit == nil {
		return nil, fmt.Errorf("audit emitter is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		requests:   cfg.Requests,
		tokens:     cfg.Tokens,
		auditor:    cfg.Audit,
		dispatcher: cfg.Dispatcher,
		publisher:  cfg.Publisher,
		tracer:     otel.Tracer(tracerName),
		now:        cfg.Now,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// errNoop signals that an operation found its work already applied.
var errNoop = errors.New("transition already applied")

// dispatchIntent is one notification queued after a successful write.
type dispatchIntent struct {
	message notify.Message
	// resend intents take the next free sequence number instead of 0.
	resend bool
}

// effects accumulates the side effects of one applied transition.
type effects struct {
	auditEntries     []audit.Entry
	dispatches       []dispatchIntent
	invalidateTokens bool
}

// Create builds and persists a new signing request, issuing one access
// token per signer. No invites go out until Deliver.
func (e *Engine) Create(ctx context.Context, input domain.CreateRequestInput) (domain.SigningRequest, error) {
	ctx, span := e.tracer.Start(ctx, "signing.Create")
	defer span.End()

	request, err := domain.CreateRequest(input, e.now, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "create request")
		return domain.SigningRequest{}, err
	}
	span.SetAttributes(attribute.String("signing.request_id", request.ID))
	if err := e.requests.PutRequest(ctx, request); err != nil {
		return domain.SigningRequest{}, fmt.Errorf("persist request: %w", err)
	}
	if err := e.tokens.IssueForRequest(ctx, request); err != nil {
		return domain.SigningRequest{}, fmt.Errorf("issue signer tokens: %w", err)
	}

	e.runEffects(ctx, request, effects{
		auditEntries: []audit.Entry{{
			RequestID: request.ID,
			EventName: audit.EventRequestCreated,
			ActorType: audit.ActorSender,
			ActorID:   request.SenderEmail,
			Metadata:  map[string]string{"signers": fmt.Sprintf("%d", len(request.Signers))},
		}},
	})
	return request, nil
}

// Get loads one aggregate.
func (e *Engine) Get(ctx context.Context, requestID string) (domain.SigningRequest, error) {
	return e.requests.GetRequest(ctx, requestID)
}

// List returns a page of the sender's requests for the dashboard.
func (e *Engine) List(ctx context.Context, senderEmail string, pageSize int, pageToken string) (storage.RequestPage, error) {
	return e.requests.ListRequestsBySender(ctx, senderEmail, pageSize, pageToken)
}

// AuditTrail returns the full ledger of one request.
func (e *Engine) AuditTrail(ctx context.Context, requestID string) ([]storage.AuditEvent, error) {
	if _, err := e.requests.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return e.auditor.Trail(ctx, requestID)
}

// Deliver activates the first signer(s) and queues their invites. A replay
// on an already-delivered request is a no-op.
func (e *Engine) Deliver(ctx context.Context, requestID string) (domain.SigningRequest, error) {
	return e.mutate(ctx, "Deliver", requestID, func(request *domain.SigningRequest) (effects, error) {
		if domain.IsAbsorbing(request.Status) {
			return effects{}, apperrors.New(apperrors.CodeStateConflict, "request is closed")
		}

		var fx effects
		changed := false
		for _, active := range domain.ActiveSigners(*request) {
			signer, _ := request.SignerByID(active.ID)
			if signer.Status != domain.SignerStatusPending {
				continue
			}
			changed = true
			e.setSignerStatus(request, signer.ID, domain.SignerStatusDelivered, nil)
			if !signer.IsSelf {
				fx.dispatches = append(fx.dispatches, e.inviteIntent(*request, signer))
			}
		}
		if !changed {
			return effects{}, errNoop
		}
		fx.auditEntries = append(fx.auditEntries, audit.Entry{
			RequestID: request.ID,
			EventName: audit.EventRequestDelivered,
			ActorType: audit.ActorSender,
			ActorID:   request.SenderEmail,
		})
		return fx, nil
	})
}

// MarkOpened records that a signer viewed their signing page and notifies
// the sender. Already opened or signed signers are a no-op.
func (e *Engine) MarkOpened(ctx context.Context, requestID, signerID string, metadata map[string]string) (domain.SigningRequest, error) {
	return e.mutate(ctx, "MarkOpened", requestID, func(request *domain.SigningRequest) (effects, error) {
		if domain.IsAbsorbing(request.Status) {
			return effects{}, apperrors.New(apperrors.CodeStateConflict, "request is closed")
		}
		signer, ok := request.SignerByID(signerID)
		if !ok {
			return effects{}, apperrors.New(apperrors.CodeSignerUnknown, "signer does not exist on request")
		}
		switch signer.Status {
		case domain.SignerStatusOpened, domain.SignerStatusSigned:
			return effects{}, errNoop
		case domain.SignerStatusDeclined:
			return effects{}, apperrors.New(apperrors.CodeStateConflict, "signer has declined")
		}

		e.setSignerStatus(request, signer.ID, domain.SignerStatusOpened, nil)
		return effects{
			auditEntries: []audit.Entry{{
				RequestID: request.ID,
				SignerID:  signer.ID,
				EventName: audit.EventSignerOpened,
				ActorType: audit.ActorSigner,
				ActorID:   signer.ID,
				Metadata:  metadata,
			}},
			dispatches: []dispatchIntent{{message: notify.Message{
				Kind:           notify.KindViewed,
				RequestID:      request.ID,
				SignerID:       signer.ID,
				RecipientName:  request.SenderName,
				RecipientEmail: request.SenderEmail,
				Subject:        fmt.Sprintf("%s viewed %q", signer.Name, request.DocumentName),
			}}},
		}, nil
	})
}

// RecordSignature captures a signer's field values and marks them signed.
// In sequential mode the next signer is activated and invited; when the
// last signer finishes, the request completes, tokens are invalidated, and
// completion notices go to the sender and every signer.
func (e *Engine) RecordSignature(ctx context.Context, requestID, signerID string, values map[string]string, metadata map[string]string) (domain.SigningRequest, error) {
	return e.mutate(ctx, "RecordSignature", requestID, func(request *domain.SigningRequest) (effects, error) {
		signer, ok := request.SignerByID(signerID)
		if ok && signer.Status == domain.SignerStatusSigned {
			return effects{}, errNoop
		}
		if err := domain.EnsureMaySign(*request, signerID); err != nil {
			return effects{}, err
		}

		assigned := request.FieldsForSigner(signer)
		for _, field := range assigned {
			if _, present := values[field.ID]; !present {
				return effects{}, apperrors.WithMetadata(
					apperrors.CodeFieldValueMissing,
					"a required field value is missing",
					map[string]string{"FieldID": field.ID},
				)
			}
		}
		for i := range request.Fields {
			if value, present := values[request.Fields[i].ID]; present {
				request.Fields[i].Value = value
			}
		}

		signedAt := e.now().UTC()
		e.setSignerStatus(request, signer.ID, domain.SignerStatusSigned, &signedAt)
		request.Recompute()

		fx := effects{
			auditEntries: []audit.Entry{{
				RequestID: request.ID,
				SignerID:  signer.ID,
				EventName: audit.EventSignerSigned,
				ActorType: audit.ActorSigner,
				ActorID:   signer.ID,
				Metadata:  metadata,
			}},
			dispatches: []dispatchIntent{{message: notify.Message{
				Kind:           notify.KindSigned,
				RequestID:      request.ID,
				SignerID:       signer.ID,
				RecipientName:  request.SenderName,
				RecipientEmail: request.SenderEmail,
				Subject:        fmt.Sprintf("%s signed %q", signer.Name, request.DocumentName),
			}}},
		}

		if request.Status == domain.RequestStatusCompleted {
			fx.invalidateTokens = true
			fx.auditEntries = append(fx.auditEntries, audit.Entry{
				RequestID: request.ID,
				EventName: audit.EventRequestCompleted,
				ActorType: audit.ActorSystem,
			})
			fx.dispatches = append(fx.dispatches, dispatchIntent{message: notify.Message{
				Kind:           notify.KindCompleted,
				RequestID:      request.ID,
				RecipientName:  request.SenderName,
				RecipientEmail: request.SenderEmail,
				Subject:        fmt.Sprintf("%q is fully signed", request.DocumentName),
				CcEmails:       request.CcEmails,
			}})
			for _, party := range request.Signers {
				fx.dispatches = append(fx.dispatches, dispatchIntent{message: notify.Message{
					Kind:           notify.KindCompleted,
					RequestID:      request.ID,
					SignerID:       party.ID,
					RecipientName:  party.Name,
					RecipientEmail: party.Email,
					Subject:        fmt.Sprintf("%q is fully signed", request.DocumentName),
				}})
			}
			return fx, nil
		}

		// Activate whoever signs next; freshly activated signers get their
		// invite now.
		for _, active := range domain.ActiveSigners(*request) {
			next, _ := request.SignerByID(active.ID)
			if next.Status != domain.SignerStatusPending {
				continue
			}
			e.setSignerStatus(request, next.ID, domain.SignerStatusDelivered, nil)
			if !next.IsSelf {
				fx.dispatches = append(fx.dispatches, e.inviteIntent(*request, next))
			}
		}
		return fx, nil
	})
}

// Decline records a signer's refusal; the request absorbs into declined
// and every outstanding token stops resolving.
func (e *Engine) Decline(ctx context.Context, requestID, signerID, reason string) (domain.SigningRequest, error) {
	return e.mutate(ctx, "Decline", requestID, func(request *domain.SigningRequest) (effects, error) {
		signer, ok := request.SignerByID(signerID)
		if ok && signer.Status == domain.SignerStatusDeclined {
			return effects{}, errNoop
		}
		if err := domain.EnsureMayDecline(*request, signerID); err != nil {
			return effects{}, err
		}

		e.setSignerStatus(request, signer.ID, domain.SignerStatusDeclined, nil)
		request.DeclineReason = strings.TrimSpace(reason)
		request.Recompute()

		return effects{
			invalidateTokens: true,
			auditEntries: []audit.Entry{{
				RequestID: request.ID,
				SignerID:  signer.ID,
				EventName: audit.EventSignerDeclined,
				ActorType: audit.ActorSigner,
				ActorID:   signer.ID,
				Metadata:  map[string]string{"reason": request.DeclineReason},
			}},
			dispatches: []dispatchIntent{{message: notify.Message{
				Kind:           notify.KindDeclined,
				RequestID:      request.ID,
				SignerID:       signer.ID,
				RecipientName:  request.SenderName,
				RecipientEmail: request.SenderEmail,
				Subject:        fmt.Sprintf("%s declined %q", signer.Name, request.DocumentName),
				Body:           request.DeclineReason,
			}}},
		}, nil
	})
}

// Void cancels the request regardless of signer progress. Voiding an
// already-voided request is a no-op; other closed states conflict.
func (e *Engine) Void(ctx context.Context, requestID, reason string) (domain.SigningRequest, error) {
	return e.mutate(ctx, "Void", requestID, func(request *domain.SigningRequest) (effects, error) {
		if request.Status == domain.RequestStatusVoided {
			return effects{}, errNoop
		}
		if domain.IsAbsorbing(request.Status) {
			return effects{}, apperrors.New(apperrors.CodeStateConflict, "request is closed")
		}

		request.Status = domain.RequestStatusVoided
		request.VoidReason = strings.TrimSpace(reason)

		fx := effects{
			invalidateTokens: true,
			auditEntries: []audit.Entry{{
				RequestID: request.ID,
				EventName: audit.EventRequestVoided,
				ActorType: audit.ActorSender,
				ActorID:   request.SenderEmail,
				Metadata:  map[string]string{"reason": request.VoidReason},
			}},
		}
		for _, signer := range request.Signers {
			if signer.Terminal() || signer.IsSelf {
				continue
			}
			fx.dispatches = append(fx.dispatches, dispatchIntent{message: notify.Message{
				Kind:           notify.KindVoided,
				RequestID:      request.ID,
				SignerID:       signer.ID,
				RecipientName:  signer.Name,
				RecipientEmail: signer.Email,
				Subject:        fmt.Sprintf("%q was cancelled", request.DocumentName),
				Body:           request.VoidReason,
			}})
		}
		return fx, nil
	})
}

// Resend queues a fresh invite for one signer, or for every currently
// active signer when signerID is empty. Signed signers and closed requests
// conflict.
func (e *Engine) Resend(ctx context.Context, requestID, signerID string) (domain.SigningRequest, error) {
	return e.mutate(ctx, "Resend", requestID, func(request *domain.SigningRequest) (effects, error) {
		if domain.IsAbsorbing(request.Status) {
			return effects{}, apperrors.New(apperrors.CodeStateConflict, "request is closed")
		}

		var targets []domain.Signer
		if strings.TrimSpace(signerID) == "" {
			targets = domain.ActiveSigners(*request)
			if len(targets) == 0 {
				return effects{}, apperrors.New(apperrors.CodeStateConflict, "no signer is awaiting action")
			}
		} else {
			signer, ok := request.SignerByID(signerID)
			if !ok {
				return effects{}, apperrors.New(apperrors.CodeSignerUnknown, "signer does not exist on request")
			}
			if signer.Terminal() {
				return effects{}, apperrors.New(apperrors.CodeStateConflict, "signer has already finished")
			}
			targets = []domain.Signer{signer}
		}

		fx := effects{
			auditEntries: []audit.Entry{{
				RequestID: request.ID,
				EventName: audit.EventRequestResent,
				ActorType: audit.ActorSender,
				ActorID:   request.SenderEmail,
			}},
		}
		for _, signer := range targets {
			if signer.Status == domain.SignerStatusPending {
				e.setSignerStatus(request, signer.ID, domain.SignerStatusDelivered, nil)
			}
			if signer.IsSelf {
				continue
			}
			intent := e.inviteIntent(*request, signer)
			intent.resend = true
			fx.dispatches = append(fx.dispatches, intent)
		}
		return fx, nil
	})
}

// Expire absorbs a request whose due date has passed. Calling it early
// fails; calling it on a closed request is a conflict.
func (e *Engine) Expire(ctx context.Context, requestID string) (domain.SigningRequest, error) {
	return e.mutate(ctx, "Expire", requestID, func(request *domain.SigningRequest) (effects, error) {
		if request.Status == domain.RequestStatusExpired {
			return effects{}, errNoop
		}
		if domain.IsAbsorbing(request.Status) {
			return effects{}, apperrors.New(apperrors.CodeStateConflict, "request is closed")
		}
		if request.DueDate == nil || request.DueDate.After(e.now().UTC()) {
			return effects{}, apperrors.New(apperrors.CodeRequestNotExpired, "request due date has not passed")
		}

		request.Status = domain.RequestStatusExpired

		fx := effects{
			invalidateTokens: true,
			auditEntries: []audit.Entry{{
				RequestID: request.ID,
				EventName: audit.EventRequestExpired,
				ActorType: audit.ActorSystem,
			}},
			dispatches: []dispatchIntent{{message: notify.Message{
				Kind:           notify.KindExpired,
				RequestID:      request.ID,
				RecipientName:  request.SenderName,
				RecipientEmail: request.SenderEmail,
				Subject:        fmt.Sprintf("%q expired before completion", request.DocumentName),
			}}},
		}
		for _, signer := range request.Signers {
			if signer.Terminal() || signer.IsSelf {
				continue
			}
			fx.dispatches = append(fx.dispatches, dispatchIntent{message: notify.Message{
				Kind:           notify.KindExpired,
				RequestID:      request.ID,
				SignerID:       signer.ID,
				RecipientName:  signer.Name,
				RecipientEmail: signer.Email,
				Subject:        fmt.Sprintf("%q expired before completion", request.DocumentName),
			}})
		}
		return fx, nil
	})
}

// ExpireDue expires every overdue live request, up to limit. Individual
// failures are logged and skipped so one bad row cannot stall the sweep.
func (e *Engine) ExpireDue(ctx context.Context, limit int) (int, error) {
	due, err := e.requests.ListDueRequests(ctx, e.now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("list due requests: %w", err)
	}
	expired := 0
	for _, request := range due {
		if _, err := e.Expire(ctx, request.ID); err != nil {
			if apperrors.IsCode(err, apperrors.CodeStateConflict) || apperrors.IsCode(err, apperrors.CodeRequestNotExpired) {
				continue
			}
			log.Printf("engine: expire %s: %v", request.ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}

// RemindStale queues reminder invites for active signers of live requests
// untouched for idleFor or longer.
func (e *Engine) RemindStale(ctx context.Context, idleFor time.Duration, limit int) (int, error) {
	if idleFor <= 0 {
		return 0, fmt.Errorf("idle duration must be positive")
	}
	cutoff := e.now().UTC().Add(-idleFor)
	stale, err := e.requests.ListStaleRequests(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale requests: %w", err)
	}
	reminded := 0
	for _, request := range stale {
		count, err := e.remind(ctx, request.ID)
		if err != nil {
			log.Printf("engine: remind %s: %v", request.ID, err)
			continue
		}
		reminded += count
	}
	return reminded, nil
}

// remind queues reminders for one stale request through the version CAS
// path. The committed write advances UpdatedAt, so the request drops out of
// the stale set until it sits idle for a full window again.
func (e *Engine) remind(ctx context.Context, requestID string) (int, error) {
	reminded := 0
	_, err := e.mutate(ctx, "Remind", requestID, func(request *domain.SigningRequest) (effects, error) {
		if domain.IsAbsorbing(request.Status) {
			return effects{}, errNoop
		}
		var fx effects
		for _, signer := range domain.ActiveSigners(*request) {
			if signer.IsSelf || signer.Status == domain.SignerStatusPending {
				continue
			}
			intent := e.inviteIntent(*request, signer)
			intent.resend = true
			intent.message.Kind = notify.KindReminder
			intent.message.Subject = fmt.Sprintf("Reminder: %q is waiting for your signature", request.DocumentName)
			fx.dispatches = append(fx.dispatches, intent)
		}
		if len(fx.dispatches) == 0 {
			return effects{}, errNoop
		}
		reminded = len(fx.dispatches)
		fx.auditEntries = []audit.Entry{{
			RequestID: requestID,
			EventName: audit.EventRequestReminded,
			ActorType: audit.ActorSystem,
		}}
		return fx, nil
	})
	return reminded, err
}

// mutate runs one check-then-act transition under a tracer span, with a
// single re-read retry on a lost version race.
func (e *Engine) mutate(ctx context.Context, name, requestID string, op func(*domain.SigningRequest) (effects, error)) (domain.SigningRequest, error) {
	ctx, span := e.tracer.Start(ctx, "signing."+name,
		trace.WithAttributes(attribute.String("signing.request_id", requestID)))
	defer span.End()

	request, err := e.applyTransition(ctx, requestID, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, name)
	}
	return request, err
}

func (e *Engine) applyTransition(ctx context.Context, requestID string, op func(*domain.SigningRequest) (effects, error)) (domain.SigningRequest, error) {
	for attempt := 0; attempt < 2; attempt++ {
		request, err := e.requests.GetRequest(ctx, requestID)
		if err != nil {
			return domain.SigningRequest{}, err
		}
		expectedVersion := request.Version

		fx, err := op(&request)
		if err != nil {
			if errors.Is(err, errNoop) {
				return request, nil
			}
			return domain.SigningRequest{}, err
		}

		request.Recompute()
		request.UpdatedAt = e.now().UTC()
		updated, err := e.requests.UpdateRequest(ctx, request, expectedVersion)
		if err != nil {
			if errors.Is(err, storage.ErrVersionConflict) && attempt == 0 {
				continue
			}
			return domain.SigningRequest{}, err
		}
		e.runEffects(ctx, updated, fx)
		return updated, nil
	}
	return domain.SigningRequest{}, storage.ErrVersionConflict
}

// runEffects applies post-write side effects. Failures are logged, never
// propagated: the state transition has already committed and notification
// delivery must not decide workflow correctness.
func (e *Engine) runEffects(ctx context.Context, request domain.SigningRequest, fx effects) {
	if fx.invalidateTokens {
		if err := e.tokens.InvalidateForRequest(ctx, request.ID); err != nil {
			log.Printf("engine: invalidate tokens for %s: %v", request.ID, err)
		}
	}
	for _, entry := range fx.auditEntries {
		if err := e.auditor.Emit(ctx, entry); err != nil {
			log.Printf("engine: audit %s for %s: %v", entry.EventName, request.ID, err)
		}
	}
	for _, intent := range fx.dispatches {
		var err error
		if intent.resend {
			_, err = e.dispatcher.EnqueueNext(ctx, intent.message)
		} else {
			_, err = e.dispatcher.Enqueue(ctx, intent.message, 0)
		}
		if err != nil {
			log.Printf("engine: enqueue %s for %s: %v", intent.message.Kind, request.ID, err)
		}
	}
	e.publish(request)
}

func (e *Engine) publish(request domain.SigningRequest) {
	if e.publisher == nil {
		return
	}
	signed := 0
	for _, signer := range request.Signers {
		if signer.Status == domain.SignerStatusSigned {
			signed++
		}
	}
	e.publisher.Publish(request.SenderEmail, streamsync.Update{
		RequestID:    request.ID,
		Status:       domain.RequestStatusLabel(request.Status),
		SignedCount:  signed,
		TotalSigners: len(request.Signers),
		UpdatedAt:    request.UpdatedAt,
		Version:      request.Version,
	})
}

func (e *Engine) setSignerStatus(request *domain.SigningRequest, signerID string, status domain.SignerStatus, signedAt *time.Time) {
	for i := range request.Signers {
		if request.Signers[i].ID == signerID {
			request.Signers[i].Status = status
			if signedAt != nil {
				request.Signers[i].SignedAt = signedAt
			}
			return
		}
	}
}

func (e *Engine) inviteIntent(request domain.SigningRequest, signer domain.Signer) dispatchIntent {
	return dispatchIntent{message: notify.Message{
		Kind:           notify.KindInvite,
		RequestID:      request.ID,
		SignerID:       signer.ID,
		RecipientName:  signer.Name,
		RecipientEmail: signer.Email,
		Subject:        e.inviteSubject(request),
		Body:           request.Message,
		SigningURL:     e.signingURL(signer.Token),
		CcEmails:       request.CcEmails,
	}}
}

func (e *Engine) inviteSubject(request domain.SigningRequest) string {
	if request.Subject != "" {
		return request.Subject
	}
	return fmt.Sprintf("%s asks you to sign %q", request.SenderName, request.DocumentName)
}

func (e *Engine) signingURL(signerToken string) string {
	if e.baseURL == "" {
		return "/s/" + signerToken
	}
	return e.baseURL + "/s/" + signerToken
}
