package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IncidentFilter narrows ListIncidents; zero values are "no filter".
type IncidentFilter struct {
	Status         IncidentStatus
	Priority       Priority
	Search         string
	StationID      string
	OrganisationID string
	ActiveOnly     bool // status in {reported, assigned, in_progress}
	CreatedAfter   time.Time
	Limit          int
	Offset         int
}

// Store is the relational persistence capability the core consumes. It is
// deliberately narrow and typed — enumerated operations in place of an
// ad-hoc query builder or partial-update merges.
type Store interface {
	CreateIncident(ctx context.Context, i *Incident) error
	GetIncident(ctx context.Context, id string) (*Incident, error)
	UpdateIncident(ctx context.Context, i *Incident) error
	ListIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error)

	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetOrganizationByType(ctx context.Context, t OrgType) (*Organization, error)
	ListActiveStationsByOrgType(ctx context.Context, t OrgType) ([]Station, error)
	GetStation(ctx context.Context, id string) (*Station, error)

	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsersByRoleAndScope(ctx context.Context, role Role, stationID, orgID string) ([]User, error)
	CreateUser(ctx context.Context, u *User) error

	RecordUpvote(ctx context.Context, incidentID, actorKey string) (created bool, err error)
	CountUpvotes(ctx context.Context, incidentID string) (int, error)

	CreateNotification(ctx context.Context, n *Notification) error
	ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]Notification, error)

	CreateSubscription(ctx context.Context, s *CitizenSubscription) error
	ListActiveSubscriptions(ctx context.Context, incidentID string) ([]CitizenSubscription, error)
	DeactivateSubscription(ctx context.Context, id string) error
	FindSubscriptionByPushToken(ctx context.Context, incidentID, pushToken string) (*CitizenSubscription, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitationByID(ctx context.Context, id string) (*Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	UpdateInvitationStatus(ctx context.Context, id string, status InvitationStatus) error
	DeleteInvitation(ctx context.Context, id string) error
	ListInvitations(ctx context.Context, orgID, stationID string) ([]Invitation, error)
	AcceptInvitation(ctx context.Context, token string, u *User) (*User, error)

	InsertAuditLog(ctx context.Context, l *AuditLog) error

	// WithTx runs fn within a transaction, rolling back on error.
	// PostgresStore uses it for incident-create-plus-audit, upvote-plus-
	// count and invitation-accept-plus-user-create. Escalation is not
	// transactional: the incident update and its notifications are
	// separate writes.
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// PostgresStore is the lib/pq-backed Store implementation, following the
// teacher's service-struct-with-*sql.DB field idiom.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// execer is satisfied by both *sql.DB and *sql.Tx, so statements written
// once can run either standalone or inside a WithTx closure.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CreateIncident inserts the incident and its audit log entry in a single
// transaction, per §5's "incident-create-plus-audit" mutation.
func (s *PostgresStore) CreateIncident(ctx context.Context, i *Incident) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	i.CreatedAt, i.UpdatedAt, i.StatusUpdatedAt = now, now, now

	loc, err := json.Marshal(i.Location)
	if err != nil {
		return fmt.Errorf("marshal incident location: %w", err)
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO incidents (
				id, title, description, type, priority, status, location,
				station_id, organisation_id, reported_by_id, reporter_email, reporter_phone,
				escalation_level, status_updated_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`, i.ID, i.Title, i.Description, i.Type, i.Priority, i.Status, loc,
			nullableString(i.StationID), nullableString(i.OrganisationID), i.ReportedByID,
			nullableString(i.ReporterEmail), nullableString(i.ReporterPhone),
			i.EscalationLevel, i.StatusUpdatedAt, i.CreatedAt, i.UpdatedAt); err != nil {
			return fmt.Errorf("insert incident: %w", err)
		}

		return insertAuditLog(ctx, tx, &AuditLog{
			EntityType: "incident",
			EntityID:   i.ID,
			ActorID:    i.ReportedByID,
			Action:     "created",
			Envelope:   AuditEnvelope{V: 1, Kind: "incident_created", Payload: i},
		})
	})
}

func (s *PostgresStore) GetIncident(ctx context.Context, id string) (*Incident, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT
		id, title, description, type, priority, status, location,
		COALESCE(station_id,''), COALESCE(organisation_id,''), reported_by_id,
		COALESCE(reporter_email,''), COALESCE(reporter_phone,''),
		COALESCE(assigned_to,''), COALESCE(assigned_by,''), assigned_at,
		COALESCE(resolved_by,''), resolved_at, COALESCE(resolution,''),
		escalation_level, COALESCE(escalated_by,''), escalated_at, COALESCE(escalation_reason,''),
		COALESCE(status_updated_by,''), status_updated_at, upvote_count, created_at, updated_at
		FROM incidents WHERE id = $1`, id)
	return scanIncident(row)
}

func scanIncident(row *sql.Row) (*Incident, error) {
	var i Incident
	var loc []byte
	err := row.Scan(
		&i.ID, &i.Title, &i.Description, &i.Type, &i.Priority, &i.Status, &loc,
		&i.StationID, &i.OrganisationID, &i.ReportedByID,
		&i.ReporterEmail, &i.ReporterPhone,
		&i.AssignedTo, &i.AssignedBy, &i.AssignedAt,
		&i.ResolvedBy, &i.ResolvedAt, &i.Resolution,
		&i.EscalationLevel, &i.EscalatedBy, &i.EscalatedAt, &i.EscalationReason,
		&i.StatusUpdatedBy, &i.StatusUpdatedAt, &i.UpvoteCount, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	if len(loc) > 0 {
		_ = json.Unmarshal(loc, &i.Location)
	}
	return &i, nil
}

func (s *PostgresStore) UpdateIncident(ctx context.Context, i *Incident) error {
	i.UpdatedAt = time.Now().UTC()
	loc, _ := json.Marshal(i.Location)
	_, err := s.DB.ExecContext(ctx, `
		UPDATE incidents SET
			title=$2, description=$3, type=$4, priority=$5, status=$6, location=$7,
			station_id=$8, organisation_id=$9,
			assigned_to=$10, assigned_by=$11, assigned_at=$12,
			resolved_by=$13, resolved_at=$14, resolution=$15,
			escalation_level=$16, escalated_by=$17, escalated_at=$18, escalation_reason=$19,
			status_updated_by=$20, status_updated_at=$21, upvote_count=$22, updated_at=$23
		WHERE id=$1
	`, i.ID, i.Title, i.Description, i.Type, i.Priority, i.Status, loc,
		nullableString(i.StationID), nullableString(i.OrganisationID),
		nullableString(i.AssignedTo), nullableString(i.AssignedBy), i.AssignedAt,
		nullableString(i.ResolvedBy), i.ResolvedAt, nullableString(i.Resolution),
		i.EscalationLevel, nullableString(i.EscalatedBy), i.EscalatedAt, nullableString(i.EscalationReason),
		nullableString(i.StatusUpdatedBy), i.StatusUpdatedAt, i.UpvoteCount, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error) {
	query := `SELECT
		id, title, description, type, priority, status, location,
		COALESCE(station_id,''), COALESCE(organisation_id,''), reported_by_id,
		COALESCE(reporter_email,''), COALESCE(reporter_phone,''),
		COALESCE(assigned_to,''), COALESCE(assigned_by,''), assigned_at,
		COALESCE(resolved_by,''), resolved_at, COALESCE(resolution,''),
		escalation_level, COALESCE(escalated_by,''), escalated_at, COALESCE(escalation_reason,''),
		COALESCE(status_updated_by,''), status_updated_at, upvote_count, created_at, updated_at
		FROM incidents WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != "" {
		query += " AND status = " + arg(f.Status)
	}
	if f.Priority != "" {
		query += " AND priority = " + arg(f.Priority)
	}
	if f.StationID != "" {
		query += " AND station_id = " + arg(f.StationID)
	}
	if f.OrganisationID != "" {
		query += " AND organisation_id = " + arg(f.OrganisationID)
	}
	if f.Search != "" {
		query += " AND (title ILIKE " + arg("%"+f.Search+"%") + " OR description ILIKE " + arg("%"+f.Search+"%") + ")"
	}
	if f.ActiveOnly {
		query += " AND status IN ('reported','assigned','in_progress')"
	}
	if !f.CreatedAfter.IsZero() {
		query += " AND created_at > " + arg(f.CreatedAfter)
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var i Incident
		var loc []byte
		if err := rows.Scan(
			&i.ID, &i.Title, &i.Description, &i.Type, &i.Priority, &i.Status, &loc,
			&i.StationID, &i.OrganisationID, &i.ReportedByID,
			&i.ReporterEmail, &i.ReporterPhone,
			&i.AssignedTo, &i.AssignedBy, &i.AssignedAt,
			&i.ResolvedBy, &i.ResolvedAt, &i.Resolution,
			&i.EscalationLevel, &i.EscalatedBy, &i.EscalatedAt, &i.EscalationReason,
			&i.StatusUpdatedBy, &i.StatusUpdatedAt, &i.UpvoteCount, &i.CreatedAt, &i.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan incident row: %w", err)
		}
		if len(loc) > 0 {
			_ = json.Unmarshal(loc, &i.Location)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var o Organization
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, type, is_active, created_at, updated_at FROM organizations WHERE id=$1`, id).
		Scan(&o.ID, &o.Name, &o.Type, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) GetOrganizationByType(ctx context.Context, t OrgType) (*Organization, error) {
	var o Organization
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, type, is_active, created_at, updated_at
		FROM organizations WHERE type=$1 AND is_active=true ORDER BY created_at ASC LIMIT 1`, t).
		Scan(&o.ID, &o.Name, &o.Type, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization by type: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) ListActiveStationsByOrgType(ctx context.Context, t OrgType) ([]Station, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT s.id, s.organisation_id, s.name, s.lat, s.lng, s.is_active, s.created_at, s.updated_at
		FROM stations s
		JOIN organizations o ON o.id = s.organisation_id
		WHERE o.type = $1 AND s.is_active = true AND o.is_active = true`, t)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.ID, &st.OrganisationID, &st.Name, &st.Lat, &st.Lng, &st.IsActive, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetStation(ctx context.Context, id string) (*Station, error) {
	var st Station
	err := s.DB.QueryRowContext(ctx, `SELECT id, organisation_id, name, lat, lng, is_active, created_at, updated_at
		FROM stations WHERE id=$1`, id).
		Scan(&st.ID, &st.OrganisationID, &st.Name, &st.Lat, &st.Lng, &st.IsActive, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, email, COALESCE(phone,''), password_hash, role,
		COALESCE(organisation_id,''), COALESCE(station_id,''), COALESCE(fcm_token,''), is_active, created_at, updated_at
		FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role,
			&u.OrganisationID, &u.StationID, &u.FCMToken, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, email, COALESCE(phone,''), password_hash, role,
		COALESCE(organisation_id,''), COALESCE(station_id,''), COALESCE(fcm_token,''), is_active, created_at, updated_at
		FROM users WHERE email=$1`, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role,
			&u.OrganisationID, &u.StationID, &u.FCMToken, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsersByRoleAndScope(ctx context.Context, role Role, stationID, orgID string) ([]User, error) {
	query := `SELECT id, name, email, COALESCE(phone,''), password_hash, role,
		COALESCE(organisation_id,''), COALESCE(station_id,''), COALESCE(fcm_token,''), is_active, created_at, updated_at
		FROM users WHERE role = $1 AND is_active = true`
	args := []interface{}{role}
	if stationID != "" {
		query += fmt.Sprintf(" AND station_id = $%d", len(args)+1)
		args = append(args, stationID)
	}
	if orgID != "" {
		query += fmt.Sprintf(" AND organisation_id = $%d", len(args)+1)
		args = append(args, orgID)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role,
			&u.OrganisationID, &u.StationID, &u.FCMToken, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RecordUpvote inserts the (incidentID, actorKey) pair if it does not
// already exist and bumps incidents.upvote_count exactly once. Idempotent
// per spec §8.
func (s *PostgresStore) RecordUpvote(ctx context.Context, incidentID, actorKey string) (bool, error) {
	created := false
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO upvotes (incident_id, actor_key, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (incident_id, actor_key) DO NOTHING`, incidentID, actorKey)
		if err != nil {
			return fmt.Errorf("insert upvote: %w", err)
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			return nil // already voted, silent no-op
		}
		created = true
		_, err = tx.ExecContext(ctx, `UPDATE incidents SET upvote_count = upvote_count + 1 WHERE id = $1`, incidentID)
		if err != nil {
			return fmt.Errorf("bump upvote count: %w", err)
		}
		return nil
	})
	return created, err
}

func (s *PostgresStore) CountUpvotes(ctx context.Context, incidentID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT upvote_count FROM incidents WHERE id=$1`, incidentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count upvotes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, related_entity_type, related_entity_id, action_required, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message,
		nullableString(n.RelatedEntityType), nullableString(n.RelatedEntityID), n.ActionRequired, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, COALESCE(related_entity_type,''), COALESCE(related_entity_id,''), action_required, is_read, created_at
		FROM notifications WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.RelatedEntityType, &n.RelatedEntityID, &n.ActionRequired, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *CitizenSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.CreatedAt = time.Now().UTC()
	prefs, _ := json.Marshal(sub.Preferences)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO citizen_subscriptions (id, incident_id, push_token, email, phone, preferences, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sub.ID, sub.IncidentID, nullableString(sub.PushToken), nullableString(sub.Email), nullableString(sub.Phone),
		prefs, sub.IsActive, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActiveSubscriptions(ctx context.Context, incidentID string) ([]CitizenSubscription, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, incident_id, COALESCE(push_token,''), COALESCE(email,''), COALESCE(phone,''), preferences, is_active, created_at
		FROM citizen_subscriptions WHERE incident_id=$1 AND is_active=true`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []CitizenSubscription
	for rows.Next() {
		var sub CitizenSubscription
		var prefs []byte
		if err := rows.Scan(&sub.ID, &sub.IncidentID, &sub.PushToken, &sub.Email, &sub.Phone, &prefs, &sub.IsActive, &sub.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(prefs, &sub.Preferences)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeactivateSubscription(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE citizen_subscriptions SET is_active=false WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSubscriptionByPushToken(ctx context.Context, incidentID, pushToken string) (*CitizenSubscription, error) {
	var sub CitizenSubscription
	var prefs []byte
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, incident_id, COALESCE(push_token,''), COALESCE(email,''), COALESCE(phone,''), preferences, is_active, created_at
		FROM citizen_subscriptions WHERE incident_id=$1 AND push_token=$2 LIMIT 1`, incidentID, pushToken).
		Scan(&sub.ID, &sub.IncidentID, &sub.PushToken, &sub.Email, &sub.Phone, &prefs, &sub.IsActive, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	_ = json.Unmarshal(prefs, &sub.Preferences)
	return &sub, nil
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO invitations (id, token, email, role, organisation_id, station_id, status, expires_at, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		inv.ID, inv.Token, inv.Email, inv.Role, nullableString(inv.OrganisationID), nullableString(inv.StationID),
		inv.Status, inv.ExpiresAt, inv.CreatedBy, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvitationByID(ctx context.Context, id string) (*Invitation, error) {
	var inv Invitation
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, token, email, role, COALESCE(organisation_id,''), COALESCE(station_id,''), status, expires_at, created_by, created_at
		FROM invitations WHERE id=$1`, id).
		Scan(&inv.ID, &inv.Token, &inv.Email, &inv.Role, &inv.OrganisationID, &inv.StationID, &inv.Status, &inv.ExpiresAt, &inv.CreatedBy, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation by id: %w", err)
	}
	return &inv, nil
}

func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	var inv Invitation
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, token, email, role, COALESCE(organisation_id,''), COALESCE(station_id,''), status, expires_at, created_by, created_at
		FROM invitations WHERE token=$1`, token).
		Scan(&inv.ID, &inv.Token, &inv.Email, &inv.Role, &inv.OrganisationID, &inv.StationID, &inv.Status, &inv.ExpiresAt, &inv.CreatedBy, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return &inv, nil
}

func (s *PostgresStore) UpdateInvitationStatus(ctx context.Context, id string, status InvitationStatus) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE invitations SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteInvitation(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM invitations WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListInvitations(ctx context.Context, orgID, stationID string) ([]Invitation, error) {
	query := `SELECT id, token, email, role, COALESCE(organisation_id,''), COALESCE(station_id,''), status, expires_at, created_by, created_at
		FROM invitations WHERE 1=1`
	var args []interface{}
	if orgID != "" {
		args = append(args, orgID)
		query += fmt.Sprintf(" AND organisation_id = $%d", len(args))
	}
	if stationID != "" {
		args = append(args, stationID)
		query += fmt.Sprintf(" AND station_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(&inv.ID, &inv.Token, &inv.Email, &inv.Role, &inv.OrganisationID, &inv.StationID, &inv.Status, &inv.ExpiresAt, &inv.CreatedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertAuditLog(ctx context.Context, l *AuditLog) error {
	return insertAuditLog(ctx, s.DB, l)
}

// insertAuditLog is the shared statement CreateIncident runs inside its own
// transaction and InsertAuditLog runs standalone.
func insertAuditLog(ctx context.Context, q execer, l *AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	envelope, err := json.Marshal(l.Envelope)
	if err != nil {
		return fmt.Errorf("marshal audit envelope: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, entity_type, entity_id, actor_id, action, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.EntityType, l.EntityID, nullableString(l.ActorID), l.Action, envelope, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// CreateUser inserts the staff account created when an invitation is
// accepted.
func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	return createUser(ctx, s.DB, u)
}

func createUser(ctx context.Context, q execer, u *User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, password_hash, role, organisation_id, station_id, fcm_token, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		u.ID, u.Name, u.Email, nullableString(u.Phone), u.PasswordHash, u.Role,
		nullableString(u.OrganisationID), nullableString(u.StationID), nullableString(u.FCMToken), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// AcceptInvitation redeems a pending, unexpired invitation by token: it
// creates the user and marks the invitation accepted within a single
// transaction, per §5's "invitation-accept-plus-user-create" mutation.
func (s *PostgresStore) AcceptInvitation(ctx context.Context, token string, u *User) (*User, error) {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var status InvitationStatus
		var expiresAt time.Time
		err := tx.QueryRowContext(ctx, `SELECT status, expires_at FROM invitations WHERE token=$1 FOR UPDATE`, token).
			Scan(&status, &expiresAt)
		if err == sql.ErrNoRows {
			return fmt.Errorf("invitation not found")
		}
		if err != nil {
			return fmt.Errorf("lock invitation: %w", err)
		}
		if status != InvitationPending {
			return fmt.Errorf("invitation is %s, not pending", status)
		}
		if time.Now().After(expiresAt) {
			return fmt.Errorf("invitation has expired")
		}

		if err := createUser(ctx, tx, u); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE invitations SET status=$2 WHERE token=$1`, token, InvitationAccepted); err != nil {
			return fmt.Errorf("mark invitation accepted: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
