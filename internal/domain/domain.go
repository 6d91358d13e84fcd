package domain

// Kind discriminates an actionable and fixes which status set and
// transition graph apply.
type Kind string

const (
	KindTask        Kind = "task"
	KindQuestion    Kind = "question"
	KindDocRequest  Kind = "doc_request"
	KindConflict    Kind = "conflict"
	KindThread      Kind = "thread"
	KindAppointment Kind = "appointment"
)

// Role identifies who created, owns, or must act on an actionable.
// System can own entities but never performs transitions.
type Role string

const (
	RoleClient   Role = "client"
	RoleAttorney Role = "attorney"
	RoleStaff    Role = "staff"
	RoleSystem   Role = "system"
)

type Severity string

const (
	SeverityUrgent Severity = "urgent"
	SeverityHigh   Severity = "high"
	SeverityNormal Severity = "normal"
	SeverityLow    Severity = "low"
)

type DueKind string

const (
	DueHardDeadline DueKind = "hard_deadline"
	DueTarget       DueKind = "target"
	DueSLA          DueKind = "sla"
)

// Status is a lifecycle state drawn from the kind-specific enum.
// Membership is checked at runtime via IsStatusForKind; the per-kind
// constants below are the complete vocabulary.
type Status string

// task / conflict statuses.
const (
	StatusOpen            Status = "open"
	StatusInProgress      Status = "in_progress"
	StatusWaitingOnClient Status = "waiting_on_client"
	StatusWaitingOnStaff  Status = "waiting_on_staff"
	StatusNeedsAttorney   Status = "needs_attorney"
	StatusSnoozed         Status = "snoozed"
	StatusDone            Status = "done"
	StatusDismissed       Status = "dismissed"
	StatusConverted       Status = "converted"
	StatusEscalated       Status = "escalated"
)

// question statuses.
const (
	StatusUnassigned           Status = "unassigned"
	StatusAssignedToClient     Status = "assigned_to_client"
	StatusAnsweredByClient     Status = "answered_by_client"
	StatusNeedsClarification   Status = "needs_clarification"
	StatusAssignedToAttorney   Status = "assigned_to_attorney"
	StatusResolved             Status = "resolved"
	StatusResolvedWithOverride Status = "resolved_with_override"
	StatusWaived               Status = "waived"
	StatusReplaced             Status = "replaced"
)

// doc_request statuses.
const (
	StatusNotRequested         Status = "not_requested"
	StatusRequested            Status = "requested"
	StatusPartiallyReceived    Status = "partially_received"
	StatusReceivedUnreviewed   Status = "received_unreviewed"
	StatusReceivedInsufficient Status = "received_insufficient"
	StatusReceivedSufficient   Status = "received_sufficient"
)

// thread statuses (open/resolved shared with the sets above).
const (
	StatusAwaitingClient    Status = "awaiting_client"
	StatusAwaitingAttorney  Status = "awaiting_attorney"
	StatusConvertedToTask   Status = "converted_to_task"
	StatusConvertedToDocReq Status = "converted_to_doc_request"
	StatusArchived          Status = "archived"
)

// appointment statuses.
const (
	StatusProposed            Status = "proposed"
	StatusConfirmed           Status = "confirmed"
	StatusRescheduleRequested Status = "reschedule_requested"
	StatusCancelled           Status = "cancelled"
	StatusCompleted           Status = "completed"
)

type LinkType string

const (
	LinkField       LinkType = "field"
	LinkDoc         LinkType = "doc"
	LinkThread      LinkType = "thread"
	LinkAppointment LinkType = "appointment"
	LinkExternal    LinkType = "external"
)

// ContextLink is a typed reference into another subsystem. Type selects
// which of the optional fields are meaningful.
type ContextLink struct {
	Type          LinkType `json:"type"`
	StepID        string   `json:"step_id,omitempty"`
	FieldID       string   `json:"field_id,omitempty"`
	DocTypeID     string   `json:"doc_type_id,omitempty"`
	RequestID     string   `json:"request_id,omitempty"`
	ThreadID      string   `json:"thread_id,omitempty"`
	AppointmentID string   `json:"appointment_id,omitempty"`
	Href          string   `json:"href,omitempty"`
	Label         string   `json:"label,omitempty"`
}

// ReasonCode labels why a terminal status was reached.
type ReasonCode string

const (
	ReasonCompleted           ReasonCode = "completed"
	ReasonNotApplicable       ReasonCode = "not_applicable"
	ReasonDuplicate           ReasonCode = "duplicate"
	ReasonConvertedToQuestion ReasonCode = "converted_to_question"
	ReasonConvertedToDocReq   ReasonCode = "converted_to_doc_request"
	ReasonRequiresHearing     ReasonCode = "requires_hearing_or_call"
	ReasonOutsideScope        ReasonCode = "outside_scope"
	ReasonMissingPages        ReasonCode = "insufficient_missing_pages"
	ReasonWrongDateRange      ReasonCode = "insufficient_wrong_date_range"
	ReasonClientCannotObtain  ReasonCode = "waived_client_cannot_obtain"
	ReasonWaivedNotApplicable ReasonCode = "waived_not_applicable"
	ReasonAccepted            ReasonCode = "accepted"
	ReasonClarified           ReasonCode = "clarified"
	ReasonAttorneyOverride    ReasonCode = "attorney_override"
	ReasonReplaced            ReasonCode = "replaced"
	ReasonAnswered            ReasonCode = "answered"
	ReasonArchived            ReasonCode = "archived"
)

// Resolution is written exactly once, when an actionable enters a
// terminal status. It is never rewritten afterwards.
type Resolution struct {
	Outcome    string     `json:"outcome"`
	ReasonCode ReasonCode `json:"resolution_reason_code,omitempty"`
	Note       string     `json:"note,omitempty"`
	ResolvedBy Role       `json:"resolved_by"`
	ResolvedAt string     `json:"resolved_at" format:"date-time"`
}

// Actionable is the unit of trackable work. It is mutated only through
// the workspace operations and is never physically deleted; terminal
// statuses are the closure mechanism.
type Actionable struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Owner       Role          `json:"owner"`
	Responsible Role          `json:"responsible"`
	Severity    Severity      `json:"severity"`
	DueKind     DueKind       `json:"due_kind"`
	DueAt       string        `json:"due_at,omitempty" format:"date-time"`
	SLAHours    int           `json:"sla_hours,omitempty"`
	Status      Status        `json:"status"`
	Links       []ContextLink `json:"links,omitempty"`
	Resolution  *Resolution   `json:"resolution,omitempty"`
	Audit       []AuditEvent  `json:"audit"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

// Appointment is the scheduling record preserved alongside its
// actionable projection.
type Appointment struct {
	ID            string `json:"id"`
	TypeID        string `json:"type_id"`
	StartsAt      string `json:"starts_at" format:"date-time"`
	EndsAt        string `json:"ends_at" format:"date-time"`
	Timezone      string `json:"timezone"`
	Status        Status `json:"status"`
	Notes         string `json:"notes,omitempty"`
	LinkedIssueID string `json:"linked_issue_id,omitempty"`
}

var taskStatuses = []Status{
	StatusOpen, StatusInProgress, StatusWaitingOnClient, StatusWaitingOnStaff,
	StatusNeedsAttorney, StatusSnoozed, StatusDone, StatusDismissed,
	StatusConverted, StatusEscalated,
}

var statusesByKind = map[Kind][]Status{
	KindTask:     taskStatuses,
	KindConflict: taskStatuses,
	KindQuestion: {
		StatusUnassigned, StatusAssignedToClient, StatusAnsweredByClient,
		StatusNeedsClarification, StatusAssignedToAttorney, StatusResolved,
		StatusResolvedWithOverride, StatusWaived, StatusReplaced,
	},
	KindDocRequest: {
		StatusNotRequested, StatusRequested, StatusPartiallyReceived,
		StatusReceivedUnreviewed, StatusReceivedInsufficient,
		StatusReceivedSufficient, StatusWaived, StatusReplaced,
	},
	KindThread: {
		StatusOpen, StatusAwaitingClient, StatusAwaitingAttorney,
		StatusResolved, StatusConvertedToTask, StatusConvertedToDocReq,
		StatusArchived,
	},
	KindAppointment: {
		StatusProposed, StatusAwaitingClient, StatusConfirmed,
		StatusRescheduleRequested, StatusCancelled, StatusCompleted,
	},
}

var taskTransitions = map[Status][]Status{
	StatusOpen:            {StatusInProgress, StatusWaitingOnClient, StatusWaitingOnStaff, StatusNeedsAttorney, StatusSnoozed, StatusDone, StatusDismissed, StatusConverted, StatusEscalated},
	StatusInProgress:      {StatusOpen, StatusWaitingOnClient, StatusWaitingOnStaff, StatusNeedsAttorney, StatusSnoozed, StatusDone, StatusDismissed, StatusConverted, StatusEscalated},
	StatusWaitingOnClient: {StatusInProgress, StatusNeedsAttorney, StatusDone, StatusDismissed},
	StatusWaitingOnStaff:  {StatusInProgress, StatusNeedsAttorney, StatusDone, StatusDismissed},
	StatusNeedsAttorney:   {StatusInProgress, StatusWaitingOnClient, StatusWaitingOnStaff, StatusDone, StatusDismissed, StatusConverted, StatusEscalated},
	StatusSnoozed:         {StatusOpen, StatusInProgress, StatusNeedsAttorney},
}

var transitionsByKind = map[Kind]map[Status][]Status{
	KindTask:     taskTransitions,
	KindConflict: taskTransitions,
	KindQuestion: {
		StatusUnassigned:         {StatusAssignedToClient, StatusAssignedToAttorney, StatusWaived, StatusReplaced},
		StatusAssignedToClient:   {StatusAnsweredByClient, StatusNeedsClarification, StatusWaived, StatusReplaced},
		StatusAnsweredByClient:   {StatusAssignedToAttorney, StatusResolved, StatusNeedsClarification},
		StatusNeedsClarification: {StatusAssignedToClient, StatusAssignedToAttorney, StatusWaived},
		StatusAssignedToAttorney: {StatusResolved, StatusResolvedWithOverride, StatusNeedsClarification, StatusWaived, StatusReplaced},
	},
	KindDocRequest: {
		StatusNotRequested:         {StatusRequested, StatusWaived, StatusReplaced},
		StatusRequested:            {StatusPartiallyReceived, StatusReceivedUnreviewed, StatusWaived, StatusReplaced},
		StatusPartiallyReceived:    {StatusRequested, StatusReceivedUnreviewed, StatusWaived, StatusReplaced},
		StatusReceivedUnreviewed:   {StatusReceivedSufficient, StatusReceivedInsufficient, StatusRequested, StatusWaived},
		StatusReceivedInsufficient: {StatusRequested, StatusReceivedUnreviewed, StatusWaived, StatusReplaced},
	},
	KindThread: {
		StatusOpen:             {StatusAwaitingClient, StatusAwaitingAttorney, StatusResolved, StatusConvertedToTask, StatusConvertedToDocReq, StatusArchived},
		StatusAwaitingClient:   {StatusAwaitingAttorney, StatusResolved, StatusConvertedToTask, StatusConvertedToDocReq, StatusArchived},
		StatusAwaitingAttorney: {StatusAwaitingClient, StatusResolved, StatusConvertedToTask, StatusConvertedToDocReq, StatusArchived},
	},
	KindAppointment: {
		StatusProposed:            {StatusAwaitingClient, StatusCancelled},
		StatusAwaitingClient:      {StatusConfirmed, StatusRescheduleRequested, StatusCancelled},
		StatusRescheduleRequested: {StatusAwaitingClient, StatusConfirmed, StatusCancelled},
		StatusConfirmed:           {StatusCompleted, StatusCancelled, StatusRescheduleRequested},
	},
}

var terminalByKind = map[Kind][]Status{
	KindTask:        {StatusDone, StatusDismissed, StatusConverted, StatusEscalated},
	KindConflict:    {StatusDone, StatusDismissed, StatusConverted, StatusEscalated},
	KindQuestion:    {StatusResolved, StatusResolvedWithOverride, StatusWaived, StatusReplaced},
	KindDocRequest:  {StatusReceivedSufficient, StatusWaived, StatusReplaced},
	KindThread:      {StatusResolved, StatusConvertedToTask, StatusConvertedToDocReq, StatusArchived},
	KindAppointment: {StatusCancelled, StatusCompleted},
}

// NoteRequired lists terminal statuses whose resolution must carry a
// non-empty note. These are irreversible outcomes that must be explained.
var NoteRequired = map[Status]bool{
	StatusDismissed:            true,
	StatusWaived:               true,
	StatusResolvedWithOverride: true,
	StatusArchived:             true,
	StatusCancelled:            true,
}

var defaultReasonByStatus = map[Status]ReasonCode{
	StatusDone:                 ReasonCompleted,
	StatusDismissed:            ReasonNotApplicable,
	StatusConverted:            ReasonConvertedToQuestion,
	StatusEscalated:            ReasonRequiresHearing,
	StatusResolved:             ReasonAnswered,
	StatusResolvedWithOverride: ReasonAttorneyOverride,
	StatusWaived:               ReasonWaivedNotApplicable,
	StatusReplaced:             ReasonReplaced,
	StatusReceivedSufficient:   ReasonAccepted,
	StatusConvertedToTask:      ReasonConvertedToQuestion,
	StatusConvertedToDocReq:    ReasonConvertedToDocReq,
	StatusArchived:             ReasonArchived,
	StatusCancelled:            ReasonNotApplicable,
	StatusCompleted:            ReasonCompleted,
}

// IsStatusForKind reports whether status belongs to the kind's enum.
func IsStatusForKind(kind Kind, status Status) bool {
	for _, s := range statusesByKind[kind] {
		if s == status {
			return true
		}
	}
	return false
}

// StatusesForKind returns the declared status set for a kind.
func StatusesForKind(kind Kind) []Status {
	src := statusesByKind[kind]
	out := make([]Status, len(src))
	copy(out, src)
	return out
}

// IsTransitionAllowed reports whether the kind's graph has an edge
// from->to. Re-entering the current status is always allowed.
func IsTransitionAllowed(kind Kind, from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitionsByKind[kind][from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether status closes an actionable of kind.
func IsTerminalStatus(kind Kind, status Status) bool {
	for _, s := range terminalByKind[kind] {
		if s == status {
			return true
		}
	}
	return false
}

// DefaultStatusForKind returns the entry status of the kind's graph.
func DefaultStatusForKind(kind Kind) Status {
	switch kind {
	case KindQuestion:
		return StatusUnassigned
	case KindDocRequest:
		return StatusNotRequested
	case KindThread:
		return StatusOpen
	case KindAppointment:
		return StatusProposed
	default:
		return StatusOpen
	}
}

// DefaultReason returns the fixed resolution reason code for a terminal
// status, or "" when none is declared.
func DefaultReason(status Status) ReasonCode {
	return defaultReasonByStatus[status]
}

// DeriveResponsible computes who must act next from (kind, status).
// Total and deterministic; fallback applies only to task/conflict when
// no status rule matches. Responsible is never independently settable
// once status is known: every transition re-invokes this.
func DeriveResponsible(kind Kind, status Status, fallback Role) Role {
	switch status {
	case StatusWaitingOnClient, StatusAssignedToClient, StatusRequested, StatusPartiallyReceived, StatusAwaitingClient:
		return RoleClient
	case StatusWaitingOnStaff, StatusReceivedUnreviewed, StatusReceivedInsufficient:
		return RoleStaff
	case StatusNeedsAttorney, StatusAssignedToAttorney, StatusAwaitingAttorney:
		return RoleAttorney
	}
	if (kind == KindTask || kind == KindConflict) && fallback != "" && fallback != RoleSystem {
		return fallback
	}
	switch kind {
	case KindQuestion, KindDocRequest, KindAppointment:
		return RoleClient
	case KindThread:
		return RoleStaff
	}
	return RoleAttorney
}

var attorneyOnlyTargets = map[Status]bool{
	StatusResolvedWithOverride: true,
	StatusWaived:               true,
	StatusDismissed:            true,
	StatusReceivedSufficient:   true,
	StatusArchived:             true,
}

var clientAllowedTargets = map[Status]bool{
	StatusAnsweredByClient:    true,
	StatusPartiallyReceived:   true,
	StatusAwaitingClient:      true,
	StatusRescheduleRequested: true,
}

var staffBlockedTargets = map[Status]bool{
	StatusResolvedWithOverride: true,
	StatusWaived:               true,
}

// CanTransition reports whether the role may target the given status.
// Attorneys may target anything; staff everything except the two
// override statuses; clients only their whitelist.
func CanTransition(role Role, to Status) bool {
	if role != RoleAttorney && attorneyOnlyTargets[to] {
		return false
	}
	switch role {
	case RoleAttorney:
		return true
	case RoleStaff:
		return !staffBlockedTargets[to]
	case RoleClient:
		return clientAllowedTargets[to]
	}
	return false
}
