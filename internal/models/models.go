// Package models defines the domain entities and data transfer objects for QualiTrack.
// It includes database models mapped to PostgreSQL tables, form DTOs for user input,
// and view models for template rendering.
package models

import "time"

// Parameter kinds supported by the evaluation engine.
// This is a fixed, closed set: specifications are either a numeric range,
// a single numeric reading, or a free-text expectation.
const (
	KindRange   = "range"
	KindNumeric = "numeric"
	KindText    = "text"
)

// Record lifecycle states. A record starts pending and moves exactly once
// to approved or rejected; terminal states never transition back.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ============================================================================
// Domain Models (Database Entities)
// ============================================================================

// Product represents a manufactured product that lots are registered against.
// Parameter specifications and records both hang off a product.
//
// Database Table: products
type Product struct {
	ID        int       `db:"id"`         // Primary key, auto-increment
	Name      string    `db:"name"`       // Display name
	Code      string    `db:"code"`       // Unique internal product code
	Active    bool      `db:"active"`     // Soft-delete flag
	CreatedAt time.Time `db:"created_at"` // Creation timestamp
}

// ParameterTemplate is a reusable measurement definition in the parameter
// catalog. Templates are never hard-deleted because historical bindings may
// reference them by id; they are deactivated instead.
//
// Database Table: parameter_templates
// Invariant: if Kind == "range", MinRange and MaxRange are both set and MinRange < MaxRange
type ParameterTemplate struct {
	ID           int        `db:"id"`            // Primary key
	Name         string     `db:"name"`          // Unique template name
	Description  string     `db:"description"`   // Optional description
	Kind         string     `db:"kind"`          // "range", "numeric" or "text"
	DefaultValue *string    `db:"default_value"` // Optional default expected value
	MinRange     *float64   `db:"min_range"`     // Lower bound (range kind)
	MaxRange     *float64   `db:"max_range"`     // Upper bound (range kind)
	Unit         *string    `db:"unit"`          // Optional measurement unit
	Active       bool       `db:"active"`        // Deactivation flag (no hard delete)
	CreatedAt    time.Time  `db:"created_at"`    // Creation timestamp
	UpdatedAt    *time.Time `db:"updated_at"`    // Last modification (nullable)
}

// ProductSpecification binds a parameter (from the catalog or ad hoc) to a
// single product. Template fields are copied in at bind time so the binding
// survives later template edits; TemplateID is a weak back reference kept
// for lookup only.
//
// Database Table: product_specifications
// Invariant: at most one active binding per (product_id, template_id) pair
type ProductSpecification struct {
	ID            int       `db:"id"`             // Primary key
	ProductID     int       `db:"product_id"`     // Foreign key to products.id
	TemplateID    *int      `db:"template_id"`    // Optional source template (weak reference)
	Name          string    `db:"name"`           // Parameter name (copied or ad hoc)
	Kind          string    `db:"kind"`           // "range", "numeric" or "text"
	ExpectedValue *string   `db:"expected_value"` // Expected value / target
	MinRange      *float64  `db:"min_range"`      // Lower bound (range kind)
	MaxRange      *float64  `db:"max_range"`      // Upper bound (range kind)
	Unit          *string   `db:"unit"`           // Measurement unit
	Required      bool      `db:"required"`       // Whether a measurement is mandatory
	Active        bool      `db:"active"`         // Soft-deactivation flag
	CreatedAt     time.Time `db:"created_at"`     // Creation timestamp
}

// Record represents one manufactured lot moving through the quality-control
// workflow. Records are mutable only while pending; once approved or
// rejected they are immutable except for append-only observations on reject.
//
// Database Table: records
// Invariant: ApprovedBy and ApprovalDate are both null while Status == "pending"
// and both non-null once Status is "approved" or "rejected"
type Record struct {
	ID               int        `db:"id"`                // Primary key
	ProductID        int        `db:"product_id"`        // Foreign key to products.id
	InternalLot      string     `db:"internal_lot"`      // Globally-unique internal lot number
	SupplierLot      *string    `db:"supplier_lot"`      // Optional supplier lot number
	Quantity         float64    `db:"quantity"`          // Lot quantity, always > 0
	RegistrationDate time.Time  `db:"registration_date"` // When the lot was registered
	ExpirationDate   *time.Time `db:"expiration_date"`   // Optional expiry
	Status           string     `db:"status"`            // "pending", "approved" or "rejected"
	CreatedBy        int        `db:"created_by"`        // Principal that registered the lot
	ApprovedBy       *int       `db:"approved_by"`       // Principal that resolved the lot
	ApprovalDate     *time.Time `db:"approval_date"`     // When the lot was resolved
	Observations     *string    `db:"observations"`      // Free text, append-only on rejection
	CreatedAt        time.Time  `db:"created_at"`        // Row creation timestamp
}

// Control is the immutable evaluation result of one specification against
// one submitted measurement for one record. It carries a denormalized
// snapshot of the specification (name, full-range text, type) so the
// evidence stays stable even if the specification later changes.
//
// Database Table: controls
// Immutability: created in one batch at submission time, never mutated
type Control struct {
	ID              int       `db:"id"`               // Primary key
	RecordID        int       `db:"record_id"`        // Foreign key to records.id
	SpecificationID *int      `db:"specification_id"` // Optional back reference
	ParameterName   string    `db:"parameter_name"`   // Snapshot of specification name
	ParameterType   string    `db:"parameter_type"`   // Snapshot of specification kind
	FullRange       string    `db:"full_range"`       // Human-readable expected range/value
	ControlValue    *float64  `db:"control_value"`    // Numeric measurement (range/numeric kinds)
	TextControl     *string   `db:"text_control"`     // Text measurement (text kind)
	OutOfRange      bool      `db:"out_of_range"`     // True when the evaluation failed
	AlertMessage    *string   `db:"alert_message"`    // Failure description when out of range
	Observation     *string   `db:"observation"`      // Optional inspector note
	CreatedAt       time.Time `db:"created_at"`       // Submission timestamp
}

// AuditLog represents an append-only audit trail entry. Every mutating
// operation in the system records one entry; entries are never updated or
// deleted.
//
// Database Table: audit_logs
type AuditLog struct {
	ID         int            `db:"id"`          // Primary key
	UserID     *int           `db:"user_id"`     // Acting principal (nullable for system actions)
	Action     string         `db:"action"`      // Action performed (e.g. "record:approve")
	Resource   string         `db:"resource"`    // Affected resource type
	ResourceID *int           `db:"resource_id"` // Affected resource id (nullable)
	Metadata   map[string]any `db:"metadata"`    // Before/after details, JSONB
	IPAddress  string         `db:"ip_address"`  // Source IP
	UserAgent  string         `db:"user_agent"`  // Client identifier
	CreatedAt  time.Time      `db:"created_at"`  // When the action occurred
}

// ============================================================================
// Data Transfer Objects (DTOs) - Form Input
// ============================================================================

// TemplateForm represents data from the parameter template create/edit form.
type TemplateForm struct {
	Name         string // Template name (unique)
	Description  string // Optional description
	Kind         string // "range", "numeric" or "text"
	DefaultValue string // Optional default expected value
	MinRange     string // Lower bound (parsed to float64)
	MaxRange     string // Upper bound (parsed to float64)
	Unit         string // Optional unit
}

// SpecificationForm represents data from the product specification binding form.
type SpecificationForm struct {
	TemplateID    int    // Source template id, 0 for ad-hoc specifications
	Name          string // Parameter name (required for ad-hoc)
	Kind          string // Parameter kind (required for ad-hoc)
	ExpectedValue string // Expected value / tolerance expression
	MinRange      string // Lower bound
	MaxRange      string // Upper bound
	Unit          string // Unit
	Required      bool   // Measurement mandatory flag
}

// RecordForm represents data from the lot registration form.
type RecordForm struct {
	ProductID      int    // Product the lot belongs to
	InternalLot    string // Internal lot number (globally unique)
	SupplierLot    string // Optional supplier lot
	Quantity       string // Quantity (parsed to float64, must be > 0)
	ExpirationDate string // Optional expiry date (YYYY-MM-DD)
	Observations   string // Optional free text
}

// MeasurementInput is one submitted measurement keyed by specification.
// A batch of these is evaluated when a quality-control submission is
// finalized.
type MeasurementInput struct {
	SpecificationID int    // Which binding the value was measured against
	Value           string // Raw submitted value (may be empty: not yet measured)
	Observation     string // Optional inspector note
}

// ============================================================================
// View Models - Template Rendering
// ============================================================================

// SpecificationView is an enriched specification for template rendering,
// carrying the source template name when the binding came from the catalog.
type SpecificationView struct {
	ProductSpecification        // Embedded specification fields
	TemplateName         string // Source template name ("" for ad-hoc)
	FullRange            string // Formatted expected range/value for display
}

// RecordView is an enriched record for listing pages.
type RecordView struct {
	Record                 // Embedded record fields
	ProductName    string  // Product display name
	ProductCode    string  // Product code
	CreatedByName  string  // Registering user name
	ApprovedByName *string // Resolving user name (nil while pending)
	ControlCount   int     // Number of persisted controls
	AlertCount     int     // Number of out-of-range controls
}

// ControlView is a control with its record context, used on the record
// detail and evidence pages.
type ControlView struct {
	Control            // Embedded control fields
	InternalLot string // Owning record's lot number
	ProductName string // Owning record's product
}
