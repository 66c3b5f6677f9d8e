package db

import "time"

// ===========================
// ROLE / PRINCIPAL
// ===========================

// Role is the principal's position in the four-tier staff hierarchy, plus
// the unauthenticated citizen role.
type Role string

const (
	RoleMainAdmin    Role = "main_admin"
	RoleSuperAdmin   Role = "super_admin"
	RoleStationAdmin Role = "station_admin"
	RoleStationStaff Role = "station_staff"
	RoleCitizen      Role = "citizen"
)

// EscalationLevelForRole maps a role to its position in the 0..3 escalation
// ladder (station_staff=0 .. main_admin=3).
func EscalationLevelForRole(r Role) int {
	switch r {
	case RoleStationStaff:
		return 0
	case RoleStationAdmin:
		return 1
	case RoleSuperAdmin:
		return 2
	case RoleMainAdmin:
		return 3
	default:
		return -1
	}
}

// RoleAtEscalationLevel is the inverse of EscalationLevelForRole, used by
// IncidentService.Escalate to find the audience for an escalated-to level.
func RoleAtEscalationLevel(level int) Role {
	switch level {
	case 0:
		return RoleStationStaff
	case 1:
		return RoleStationAdmin
	case 2:
		return RoleSuperAdmin
	default:
		return RoleMainAdmin
	}
}

// User is the authenticated principal record. Citizens submitting reports
// are not represented by a row here — see AnonymousSentinel in sentinel.go.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	OrganisationID string    `json:"organisationId,omitempty"`
	StationID      string    `json:"stationId,omitempty"`
	FCMToken       string    `json:"fcmToken,omitempty"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Principal is the validated caller identity the core consumes; it is
// derived from User by the JWT layer and is what every service method
// receives — the core never re-derives it from a raw token.
type Principal struct {
	UserID         string
	Role           Role
	OrganisationID string
	StationID      string
}

// ===========================
// ORGANIZATION / STATION
// ===========================

// OrgType is the discriminator matched against Classifier categories.
type OrgType string

const (
	OrgTypeHealth       OrgType = "health"
	OrgTypeInvestigation OrgType = "investigation"
	OrgTypePolice        OrgType = "police"
)

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      OrgType   `json:"type"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Station struct {
	ID             string    `json:"id"`
	OrganisationID string    `json:"organisationId"`
	Name           string    `json:"name"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ===========================
// INCIDENT
// ===========================

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank gives the strict ordering required by spec invariant (d).
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return -1
	}
}

type IncidentStatus string

const (
	StatusReported   IncidentStatus = "reported"
	StatusAssigned   IncidentStatus = "assigned"
	StatusInProgress IncidentStatus = "in_progress"
	StatusResolved   IncidentStatus = "resolved"
	StatusEscalated  IncidentStatus = "escalated"
)

type Category string

const (
	CategoryHealth       Category = "health"
	CategoryInvestigation Category = "investigation"
	CategoryPolice        Category = "police"
)

type Location struct {
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
	Address string  `json:"address"`
}

type Incident struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Type        Category       `json:"type"`
	Priority    Priority       `json:"priority"`
	Status      IncidentStatus `json:"status"`
	Location    Location       `json:"location"`

	StationID      string `json:"stationId,omitempty"`
	OrganisationID string `json:"organisationId,omitempty"`

	ReportedByID  string `json:"reportedById"`
	ReporterEmail string `json:"reporterEmail,omitempty"`
	ReporterPhone string `json:"reporterPhone,omitempty"`

	AssignedTo string     `json:"assignedTo,omitempty"`
	AssignedBy string     `json:"assignedBy,omitempty"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`

	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	Resolution string     `json:"resolution,omitempty"`

	EscalationLevel  int        `json:"escalationLevel"`
	EscalatedBy      string     `json:"escalatedBy,omitempty"`
	EscalatedAt      *time.Time `json:"escalatedAt,omitempty"`
	EscalationReason string     `json:"escalationReason,omitempty"`

	StatusUpdatedBy string    `json:"statusUpdatedBy,omitempty"`
	StatusUpdatedAt time.Time `json:"statusUpdatedAt"`

	UpvoteCount int `json:"upvoteCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clock returns the timestamp EscalationScheduler measures elapsed minutes
// from: the latest of statusUpdatedAt, assignedAt, createdAt.
func (i *Incident) Clock() time.Time {
	clock := i.CreatedAt
	if !i.StatusUpdatedAt.IsZero() && i.StatusUpdatedAt.After(clock) {
		clock = i.StatusUpdatedAt
	}
	if i.AssignedAt != nil && i.AssignedAt.After(clock) {
		clock = *i.AssignedAt
	}
	return clock
}

// CreateCitizenIncidentRequest is the multipart/JSON body for the
// unauthenticated citizen report endpoint.
type CreateCitizenIncidentRequest struct {
	Title            string  `json:"title" binding:"required"`
	Description      string  `json:"description" binding:"required"`
	LocationAddress  string  `json:"location_address" binding:"required"`
	LocationLat      float64 `json:"location_lat,omitempty"`
	LocationLng      float64 `json:"location_lng,omitempty"`
	Priority         string  `json:"priority,omitempty"`
	ReporterName     string  `json:"reporter_name,omitempty"`
	ReporterEmail    string  `json:"reporter_email,omitempty"`
	ReporterPhone    string  `json:"reporter_phone,omitempty"`
}

// CreateStaffIncidentRequest is the authenticated staff-create body.
type CreateStaffIncidentRequest struct {
	Title           string  `json:"title" binding:"required"`
	Description     string  `json:"description" binding:"required"`
	LocationAddress string  `json:"location_address" binding:"required"`
	LocationLat     float64 `json:"location_lat,omitempty"`
	LocationLng     float64 `json:"location_lng,omitempty"`
	Priority        string  `json:"priority,omitempty"`
	StationID       string  `json:"stationId,omitempty"`
	OrganisationID  string  `json:"organisationId,omitempty"`
}

// UpdateIncidentRequest is the enumerated partial-update struct: no ad-hoc
// JSON merges, every field explicit.
type UpdateIncidentRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

type AssignIncidentRequest struct {
	AssignedToID string  `json:"assignedToId" binding:"required"`
	Priority     *string `json:"priority,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	Resolution   string `json:"resolution,omitempty"`
	Notes        string `json:"notes,omitempty"`
	ReopenReason string `json:"reopenReason,omitempty"`

	// ActionsTaken and TimeToResolution are only set via the dedicated
	// /resolve endpoint; they feed the richer resolution email of §4.6.
	ActionsTaken     []string `json:"-"`
	TimeToResolution string   `json:"-"`
}

type EscalateIncidentRequest struct {
	Reason      string `json:"reason" binding:"required"`
	TargetLevel *int   `json:"targetLevel,omitempty"`
}

type FollowUpRequest struct {
	Email                string `json:"email,omitempty"`
	Phone                string `json:"phone,omitempty"`
	NotificationPreference string `json:"notificationPreference,omitempty"`
}

type ResolveIncidentRequest struct {
	ResolutionSummary string   `json:"resolutionSummary" binding:"required"`
	ActionsTaken      []string `json:"actionsTaken,omitempty"`
	TimeToResolution  string   `json:"timeToResolution,omitempty"`
}

type ProgressUpdateRequest struct {
	Status   string `json:"status" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Priority string `json:"priority,omitempty"`
}

// PublicIncidentView is the canonical /api/incidents/public projection
// (Open Question #3 — decided in DESIGN.md): no PII, no internal
// assignment/resolution detail.
type PublicIncidentView struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Category         Category  `json:"category"`
	Priority         Priority  `json:"priority"`
	Status           IncidentStatus `json:"status"`
	StationName      string    `json:"stationName,omitempty"`
	OrganisationName string    `json:"organisationName,omitempty"`
	Location         Location  `json:"location"`
	CreatedAt        time.Time `json:"createdAt"`
	UpvoteCount      int       `json:"upvoteCount"`
}

// ===========================
// INVITATION
// ===========================

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

type Invitation struct {
	ID             string           `json:"id"`
	Token          string           `json:"-"`
	Email          string           `json:"email"`
	Role           Role             `json:"role"`
	OrganisationID string           `json:"organisationId,omitempty"`
	StationID      string           `json:"stationId,omitempty"`
	Status         InvitationStatus `json:"status"`
	ExpiresAt      time.Time        `json:"expiresAt"`
	CreatedBy      string           `json:"createdBy"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// CreateInvitationRequest is the station_admin-and-above invitation body.
type CreateInvitationRequest struct {
	Email          string `json:"email" binding:"required"`
	Role           Role   `json:"role" binding:"required"`
	OrganisationID string `json:"organisationId,omitempty"`
	StationID      string `json:"stationId,omitempty"`
}

// AcceptInvitationRequest carries the invitee's chosen credentials; Token
// identifies the invitation being redeemed.
type AcceptInvitationRequest struct {
	Token    string `json:"token" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ===========================
// NOTIFICATION
// ===========================

type NotificationType string

const (
	NotifIncidentCreated NotificationType = "incident_created"
	NotifAssigned        NotificationType = "assigned"
	NotifSelfAssigned    NotificationType = "self_assigned"
	NotifUpdated         NotificationType = "updated"
	NotifEscalated       NotificationType = "escalated"
	NotifStationChanged  NotificationType = "station_changed"
	NotifOrgChanged      NotificationType = "org_changed"
)

type Notification struct {
	ID                string           `json:"id"`
	UserID            string           `json:"userId"`
	Type              NotificationType `json:"type"`
	Title             string           `json:"title"`
	Message           string           `json:"message"`
	RelatedEntityType string           `json:"relatedEntityType,omitempty"`
	RelatedEntityID   string           `json:"relatedEntityId,omitempty"`
	ActionRequired    bool             `json:"actionRequired"`
	IsRead            bool             `json:"isRead"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// ===========================
// CITIZEN SUBSCRIPTION
// ===========================

type SubscriptionPreferences struct {
	Push  bool `json:"push"`
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

type CitizenSubscription struct {
	ID          string                  `json:"id"`
	IncidentID  string                  `json:"incidentId"`
	PushToken   string                  `json:"pushToken,omitempty"`
	Email       string                  `json:"email,omitempty"`
	Phone       string                  `json:"phone,omitempty"`
	Preferences SubscriptionPreferences `json:"preferences"`
	IsActive    bool                    `json:"isActive"`
	CreatedAt   time.Time               `json:"createdAt"`
}

type SubscribeRequest struct {
	PushToken              string                  `json:"pushToken,omitempty"`
	Email                  string                  `json:"email,omitempty"`
	Phone                  string                  `json:"phone,omitempty"`
	NotificationPreferences SubscriptionPreferences `json:"notificationPreferences"`
}

// ===========================
// ESCALATION RULE (static configuration, loaded at startup)
// ===========================

type EscalationRule struct {
	Priority         Priority
	FromStatus       IncidentStatus
	ThresholdMinutes int
	EscalateToRole   Role
}

// DefaultEscalationRules are the rules shipped per §4.4.
func DefaultEscalationRules() []EscalationRule {
	return []EscalationRule{
		{PriorityCritical, StatusReported, 15, RoleStationAdmin},
		{PriorityHigh, StatusReported, 30, RoleStationAdmin},
		{PriorityCritical, StatusAssigned, 20, RoleSuperAdmin},
		{PriorityHigh, StatusAssigned, 45, RoleSuperAdmin},
		{PriorityMedium, StatusAssigned, 120, RoleStationAdmin},
		{PriorityCritical, StatusInProgress, 60, RoleMainAdmin},
		{PriorityHigh, StatusInProgress, 120, RoleSuperAdmin},
		{PriorityMedium, StatusInProgress, 240, RoleStationAdmin},
	}
}

// ===========================
// AUDIT LOG
// ===========================

// AuditEnvelope is the versioned wrapper for the JSON blob stored in the
// audit_logs.details column.
type AuditEnvelope struct {
	V       int         `json:"v"`
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

type AuditLog struct {
	ID         string        `json:"id"`
	EntityType string        `json:"entityType"`
	EntityID   string        `json:"entityId"`
	ActorID    string        `json:"actorId,omitempty"`
	Action     string        `json:"action"`
	Envelope   AuditEnvelope `json:"envelope"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Upvote is one (actorKey, incidentId) idempotent vote record.
type Upvote struct {
	IncidentID string    `json:"incidentId"`
	ActorKey   string    `json:"actorKey"`
	CreatedAt  time.Time `json:"createdAt"`
}
