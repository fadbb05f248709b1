package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/natpat/caz/agent/contract"
)

type PostgresConfig struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

// Postgres is the production Store.
type Postgres struct {
	db *bun.DB
}

var _ contract.Store = (*Postgres)(nil)

func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// Migrate creates all tables when absent. Safe to run on every start.
func (p *Postgres) Migrate(ctx context.Context) error {
	models := []any{
		(*sessionRow)(nil),
		(*messageRow)(nil),
		(*toolCallRow)(nil),
		(*actionRow)(nil),
		(*contextRow)(nil),
		(*importedTicketRow)(nil),
	}
	for _, model := range models {
		if _, err := p.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("%w: create table: %v", contract.ErrPersistence, err)
		}
	}
	return nil
}

func (p *Postgres) CreateSession(ctx context.Context, s *contract.Session) error {
	now := time.Now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	row := sessionRowFrom(s)
	if _, err := p.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: create session: %v", contract.ErrPersistence, err)
	}

	// Working memory is created together with the session.
	cr := &contextRow{
		SessionID:         s.ID,
		PromisesMade:      []string{},
		ConversationState: map[string]any{},
		UpdatedAt:         now,
	}
	if _, err := p.db.NewInsert().Model(cr).Exec(ctx); err != nil {
		return fmt.Errorf("%w: create session context: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (p *Postgres) Session(ctx context.Context, id string) (*contract.Session, error) {
	row := new(sessionRow)
	err := p.db.NewSelect().Model(row).Where("es.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contract.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %v", contract.ErrPersistence, err)
	}
	return row.toContract(), nil
}

func (p *Postgres) Sessions(ctx context.Context) ([]contract.Session, error) {
	var rows []sessionRow
	if err := p.db.NewSelect().Model(&rows).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", contract.ErrPersistence, err)
	}
	out := make([]contract.Session, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toContract())
	}
	return out, nil
}

func (p *Postgres) UpdateSessionCategory(ctx context.Context, id string, category contract.WorkflowCategory) error {
	res, err := p.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("workflow_category = ?", string(category)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: update session category: %v", contract.ErrPersistence, err)
	}
	return requireAffected(res, id)
}

func (p *Postgres) EscalateSession(ctx context.Context, id string, summary contract.EscalationSummary) error {
	res, err := p.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("is_escalated = ?", true).
		Set("escalation_reason = ?", summary.Reason).
		Set("escalation_summary = ?", &summary).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: escalate session: %v", contract.ErrPersistence, err)
	}
	return requireAffected(res, id)
}

// ClearSessions wipes all session data. Imported tickets survive so a
// dataset does not need re-importing after a demo reset.
func (p *Postgres) ClearSessions(ctx context.Context) error {
	models := []any{
		(*toolCallRow)(nil),
		(*actionRow)(nil),
		(*messageRow)(nil),
		(*contextRow)(nil),
		(*sessionRow)(nil),
	}
	for _, model := range models {
		if _, err := p.db.NewDelete().Model(model).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("%w: clear sessions: %v", contract.ErrPersistence, err)
		}
	}
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, m *contract.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	row := &messageRow{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		AgentName: m.AgentName,
		CreatedAt: m.CreatedAt,
	}
	if _, err := p.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: append message: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (p *Postgres) Messages(ctx context.Context, sessionID string) ([]contract.Message, error) {
	var rows []messageRow
	err := p.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", contract.ErrPersistence, err)
	}
	out := make([]contract.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toContract())
	}
	return out, nil
}

func (p *Postgres) RecordToolCall(ctx context.Context, tc *contract.ToolCall) error {
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now()
	}
	row := &toolCallRow{
		ID:           tc.ID,
		SessionID:    tc.SessionID,
		MessageID:    tc.MessageID,
		ToolName:     tc.ToolName,
		ToolInput:    tc.Input,
		ToolOutput:   tc.Output,
		Success:      tc.Success,
		ErrorMessage: tc.ErrorMessage,
		CreatedAt:    tc.CreatedAt,
	}
	if _, err := p.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: record tool call: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (p *Postgres) ToolCalls(ctx context.Context, sessionID string) ([]contract.ToolCall, error) {
	var rows []toolCallRow
	err := p.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tool calls: %v", contract.ErrPersistence, err)
	}
	out := make([]contract.ToolCall, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toContract())
	}
	return out, nil
}

func (p *Postgres) RecordAction(ctx context.Context, a *contract.Action) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	row := &actionRow{
		ID:          a.ID,
		SessionID:   a.SessionID,
		ActionType:  a.ActionType,
		Details:     a.Details,
		PerformedBy: a.PerformedBy,
		CreatedAt:   a.CreatedAt,
	}
	if _, err := p.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: record action: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (p *Postgres) Actions(ctx context.Context, sessionID string) ([]contract.Action, error) {
	var rows []actionRow
	err := p.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list actions: %v", contract.ErrPersistence, err)
	}
	out := make([]contract.Action, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toContract())
	}
	return out, nil
}

func (p *Postgres) Context(ctx context.Context, sessionID string) (*contract.SessionContext, error) {
	row := new(contextRow)
	err := p.db.NewSelect().Model(row).Where("sc.session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: context for %s", contract.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load context: %v", contract.ErrPersistence, err)
	}
	return row.toContract(), nil
}

// MergeContextState folds state into the existing conversation state,
// read-modify-write. Top-level keys overwrite.
func (p *Postgres) MergeContextState(ctx context.Context, sessionID string, state map[string]any) error {
	current, err := p.Context(ctx, sessionID)
	if err != nil {
		return err
	}
	merged := current.ConversationState
	for k, v := range state {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("%w: encode context state: %v", contract.ErrPersistence, err)
	}
	_, err = p.db.NewUpdate().
		Model((*contextRow)(nil)).
		Set("conversation_state = ?::jsonb", string(raw)).
		Set("updated_at = ?", time.Now()).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: merge context state: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (p *Postgres) AppendPromises(ctx context.Context, sessionID string, promises ...string) error {
	if len(promises) == 0 {
		return nil
	}
	current, err := p.Context(ctx, sessionID)
	if err != nil {
		return err
	}
	updated := append(current.PromisesMade, promises...)
	raw, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("%w: encode promises: %v", contract.ErrPersistence, err)
	}
	_, err = p.db.NewUpdate().
		Model((*contextRow)(nil)).
		Set("promises_made = ?::jsonb", string(raw)).
		Set("updated_at = ?", time.Now()).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: append promises: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (p *Postgres) ImportTicket(ctx context.Context, t *contract.ImportedTicket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.ImportedAt.IsZero() {
		t.ImportedAt = time.Now()
	}
	row := &importedTicketRow{
		ID:                t.ID,
		ConversationID:    t.ConversationID,
		CustomerID:        t.CustomerID,
		OriginalCreatedAt: t.OriginalCreatedAt,
		ConversationType:  t.ConversationType,
		Subject:           t.Subject,
		RawConversation:   t.RawConversation,
		ImportedAt:        t.ImportedAt,
	}
	if _, err := p.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: import ticket: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (p *Postgres) ImportedTicketByConversation(ctx context.Context, conversationID string) (*contract.ImportedTicket, error) {
	row := new(importedTicketRow)
	err := p.db.NewSelect().Model(row).Where("it.conversation_id = ?", conversationID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contract.ErrTicketNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load imported ticket: %v", contract.ErrPersistence, err)
	}
	ticket := row.toContract()
	return &ticket, nil
}

func (p *Postgres) ImportedTickets(ctx context.Context) ([]contract.ImportedTicket, error) {
	var rows []importedTicketRow
	if err := p.db.NewSelect().Model(&rows).Order("imported_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list imported tickets: %v", contract.ErrPersistence, err)
	}
	out := make([]contract.ImportedTicket, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toContract())
	}
	return out, nil
}

func requireAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", contract.ErrPersistence, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", contract.ErrSessionNotFound, id)
	}
	return nil
}
