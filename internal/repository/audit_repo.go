// Package repository provides the data access layer for the QualiTrack
// application. This file implements the audit repository: the append-only
// evidentiary trail of every mutating action.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
)

// AuditRepository handles all database operations related to audit logging.
//
// Immutability Note:
//
//	Audit entries are never modified or deleted once created. The
//	repository deliberately exposes no update or delete methods.
type AuditRepository struct{}

// NewAuditRepository creates and returns a new AuditRepository instance.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Append creates a new audit log entry. Called by every mutating service
// operation after the primary mutation commits.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - entry: AuditLog entry to persist (Action and Resource required)
//
// Side Effects:
//   - Sets entry.ID and entry.CreatedAt to the database-generated values
//
// Common Actions: "template:create", "specification:bind", "record:create",
// "record:update", "record:approve", "record:reject", "control:submit",
// "role:update", "user:create"
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditLog) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
        INSERT INTO audit_logs (user_id, action, resource, resource_id, metadata, ip_address, user_agent)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at
    `

	return database.DB.QueryRow(ctx, query,
		entry.UserID, entry.Action, entry.Resource, entry.ResourceID,
		metadata, entry.IPAddress, entry.UserAgent,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// ListRecent retrieves the most recent audit log entries, newest first.
// Used by administrators for monitoring and compliance review.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - limit: Maximum number of entries to retrieve (typically 50-500)
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	query := `
        SELECT id, user_id, action, resource, resource_id, metadata, ip_address, user_agent, created_at
        FROM audit_logs
        ORDER BY created_at DESC
        LIMIT $1
    `

	rows, err := database.DB.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		var metadata []byte

		if err := rows.Scan(
			&entry.ID,
			&entry.UserID, // nullable: NULL for system actions
			&entry.Action,
			&entry.Resource,
			&entry.ResourceID, // nullable
			&metadata,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// ListByResource retrieves the audit trail for one resource, oldest first,
// so the entries read as a chronological history of the object.
func (r *AuditRepository) ListByResource(ctx context.Context, resource string, resourceID int) ([]models.AuditLog, error) {
	query := `
        SELECT id, user_id, action, resource, resource_id, metadata, ip_address, user_agent, created_at
        FROM audit_logs
        WHERE resource = $1 AND resource_id = $2
        ORDER BY created_at ASC
    `

	rows, err := database.DB.Query(ctx, query, resource, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		var metadata []byte

		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Action, &entry.Resource, &entry.ResourceID,
			&metadata, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
