package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the intranet. Names are stored upper case.
const (
	ActionLogin       = "LOGIN"
	ActionLoginFailed = "LOGIN_FAILED"
	ActionLogout      = "LOGOUT"

	ActionViewChantier   = "VIEW_CHANTIER"
	ActionCreateChantier = "CREATE_CHANTIER"
	ActionUpdateChantier = "UPDATE_CHANTIER"
	ActionDeleteChantier = "DELETE_CHANTIER"

	ActionViewInvoice   = "VIEW_INVOICE"
	ActionCreateInvoice = "CREATE_INVOICE"
	ActionDeleteInvoice = "DELETE_INVOICE"
	ActionViewQuote     = "VIEW_QUOTE"
	ActionCreateQuote   = "CREATE_QUOTE"
	ActionDeleteQuote   = "DELETE_QUOTE"

	ActionCreateStockMovement = "CREATE_STOCK_MOVEMENT"

	ActionUpdateUser           = "UPDATE_USER"
	ActionUpdateUserPrivileges = "UPDATE_USER_PRIVILEGES"
	ActionDeleteUser           = "DELETE_USER"
)

// DeniedMessage is stored under details["error"] for denied accesses.
const DeniedMessage = "Access denied"

// bootstrapActions may be recorded without an authenticated actor.
var bootstrapActions = map[string]struct{}{
	ActionLoginFailed: {},
}

// reportableActions may be ingested by any authenticated principal. Every
// other action is written by the server itself or by an admin.
var reportableActions = map[string]struct{}{
	ActionViewChantier: {},
	ActionViewInvoice:  {},
	ActionViewQuote:    {},
}

// IsReportableAction reports whether a non-admin principal may ingest action.
func IsReportableAction(action string) bool {
	_, ok := reportableActions[normalizeAction(action)]
	return ok
}

// IsBootstrapAction reports whether action is whitelisted for unauthenticated recording.
func IsBootstrapAction(action string) bool {
	_, ok := bootstrapActions[normalizeAction(action)]
	return ok
}

// Record is a persisted, immutable audit trail row.
type Record struct {
	ID           int64          `json:"id"`
	ActorID      *int64         `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   *int64         `json:"resource_id"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Entry is the input to the recorder. EventID makes inserts idempotent across retries.
type Entry struct {
	EventID      uuid.UUID      `json:"event_id"`
	ActorID      *int64         `json:"actor_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   *int64         `json:"resource_id,omitempty"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	Details      map[string]any `json:"details,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Filter narrows audit queries. Zero values mean "any".
type Filter struct {
	ID           int64
	ActorID      *int64
	Action       string
	ResourceType string
	From         time.Time
	To           time.Time
}

// Page is a window of records plus the full matching count.
type Page struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
}

// Ref returns a pointer to id, for optional actor/resource ids.
func Ref(id int64) *int64 {
	return &id
}
