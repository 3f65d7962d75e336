// Package services provides the business logic layer for the QualiTrack
// application. This file implements best-effort audit recording shared by
// every mutating service operation.
package services

import (
	"context"

	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
)

// RequestMeta carries the client context stamped onto audit entries.
// Populated by handlers from the incoming request.
type RequestMeta struct {
	IPAddress string // Source IP
	UserAgent string // Client identifier
}

// auditRecorder appends audit entries without ever failing the primary
// operation: the trail is evidence, not a gate. A failed append is logged as
// a security event so operators notice gaps.
type auditRecorder struct {
	repo   *repository.AuditRepository
	logger *security.Logger
}

func newAuditRecorder(logger *security.Logger) *auditRecorder {
	return &auditRecorder{
		repo:   repository.NewAuditRepository(),
		logger: logger,
	}
}

// record appends one audit entry for an action the actor just performed.
// Errors are swallowed after logging; the mutation has already committed.
func (a *auditRecorder) record(ctx context.Context, actor *authz.Principal, action, resource string, resourceID int, metadata map[string]any, meta RequestMeta) {
	entry := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	if actor != nil {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if resourceID != 0 {
		entry.ResourceID = &resourceID
	}

	if err := a.repo.Append(ctx, entry); err != nil {
		a.logger.Error("audit append failed for "+action, err)
		a.logger.SecurityEvent(security.EventAuditAppendFailed, entry.UserID, actorEmail(actor), meta.IPAddress, meta.UserAgent,
			map[string]any{"action": action, "resource": resource})
	}
}

func actorEmail(actor *authz.Principal) string {
	if actor == nil {
		return ""
	}
	return actor.Email
}
