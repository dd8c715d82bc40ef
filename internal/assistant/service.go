// Package assistant runs the question to answer pipeline against the active
// connection.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/querymind/querymind/internal/connections"
	"github.com/querymind/querymind/internal/history"
	"github.com/querymind/querymind/internal/nl2sql"
	"github.com/querymind/querymind/internal/observability"
	"github.com/querymind/querymind/internal/query"
	"github.com/querymind/querymind/internal/schema"
	"github.com/querymind/querymind/internal/sqlguard"
	"github.com/querymind/querymind/internal/target"
)

var (
	ErrNoActiveConnection = errors.New("no active database connection")
	ErrQuestionRequired   = errors.New("question is required")
)

// Profiles resolves stored connection profiles.
type Profiles interface {
	Get(ctx context.Context, name string) (connections.Profile, error)
}

// Opener opens a target database for a profile.
type Opener func(ctx context.Context, profile connections.Profile, opts target.Options) (*target.DB, error)

// Session is the active connection.
type Session struct {
	Name        string
	DB          *target.DB
	ActivatedAt time.Time
}

type Service struct {
	Profiles   Profiles
	Schema     *schema.Service
	Translator nl2sql.Translator
	Executor   *query.Executor
	// ExportExecutor runs exports, which may allow more rows than
	// interactive queries. Executor is used when nil.
	ExportExecutor *query.Executor
	History        history.Recorder
	Config         Config
	Logger         *slog.Logger
	Clock          func() time.Time
	Open           Opener

	mu     sync.Mutex
	active *lease
}

// lease counts the requests using a session. A replaced session is closed
// once its last request releases it.
type lease struct {
	session Session
	refs    int
	retired bool
}

type Config struct {
	// Provider labels translation metrics when the translator fails before
	// reporting its own provider.
	Provider      string
	SampleRows    int
	TargetOptions target.Options
}

type Translation struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type AskInput struct {
	Question string
	RowLimit int
}

type Answer struct {
	Translation
	Result query.Result
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.Open == nil {
		s.Open = target.Open
	}
	if s.Executor == nil {
		s.Executor = query.NewExecutor(0, 0)
	}
	if s.ExportExecutor == nil {
		s.ExportExecutor = s.Executor
	}
	if s.Config.SampleRows <= 0 {
		s.Config.SampleRows = 3
	}
	if s.Config.Provider == "" {
		s.Config.Provider = "unknown"
	}
}

// Activate opens the named connection and makes it the active one and drops
// cached schema for the name. The previous handle is closed once requests
// still using it finish.
func (s *Service) Activate(ctx context.Context, name string) (Session, error) {
	s.ensureDefaults()
	if s.Profiles == nil {
		return Session{}, errors.New("connection profiles are not configured")
	}
	profile, err := s.Profiles.Get(ctx, name)
	if err != nil {
		return Session{}, err
	}
	db, err := s.Open(ctx, profile, s.Config.TargetOptions)
	if err != nil {
		return Session{}, fmt.Errorf("connect to %q: %w", name, err)
	}

	session := Session{Name: profile.Name, DB: db, ActivatedAt: s.Clock().UTC()}
	s.mu.Lock()
	previous := s.active
	s.active = &lease{session: session}
	closePrevious := previous != nil && retire(previous)
	s.mu.Unlock()

	s.InvalidateSchema(ctx, session.Name)
	if closePrevious {
		s.closeSession(ctx, previous.session)
	}
	observability.SetActiveConnection(true)
	s.Logger.InfoContext(ctx, "connection activated", slog.String("connection", session.Name), slog.String("dialect", db.Dialect.Name))
	return session, nil
}

func (s *Service) Active() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Session{}, ErrNoActiveConnection
	}
	return s.active.session, nil
}

// InvalidateSchema drops cached metadata for a connection name.
func (s *Service) InvalidateSchema(ctx context.Context, name string) {
	if s.Schema == nil {
		return
	}
	if err := s.Schema.Invalidate(ctx, name); err != nil {
		s.logger().WarnContext(ctx, "invalidate schema cache failed", slog.String("connection", name), slog.Any("error", err))
	}
}

// Forget deactivates the session when it belongs to name. It reports
// whether a session was dropped.
func (s *Service) Forget(name string) bool {
	s.mu.Lock()
	if s.active == nil || s.active.session.Name != name {
		s.mu.Unlock()
		return false
	}
	dropped := s.active
	s.active = nil
	closeNow := retire(dropped)
	s.mu.Unlock()

	if closeNow {
		s.closeSession(context.Background(), dropped.session)
	}
	observability.SetActiveConnection(false)
	return true
}

// Close deactivates the current session. Its handle is closed now, or by
// the last request still using it.
func (s *Service) Close() error {
	s.mu.Lock()
	dropped := s.active
	s.active = nil
	closeNow := dropped != nil && retire(dropped)
	s.mu.Unlock()
	if dropped == nil {
		return nil
	}
	observability.SetActiveConnection(false)
	if !closeNow {
		return nil
	}
	return dropped.session.DB.Close()
}

// acquire pins the active session until release is called.
func (s *Service) acquire() (*lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, ErrNoActiveConnection
	}
	s.active.refs++
	return s.active, nil
}

func (s *Service) release(l *lease) {
	if l == nil {
		return
	}
	s.mu.Lock()
	l.refs--
	closeNow := l.retired && l.refs == 0
	s.mu.Unlock()
	if closeNow {
		s.closeSession(context.Background(), l.session)
	}
}

func (l *lease) name() string {
	if l == nil {
		return ""
	}
	return l.session.Name
}

// retire marks l as replaced and reports whether nobody holds it. Callers
// hold s.mu.
func retire(l *lease) bool {
	l.retired = true
	return l.refs == 0
}

func (s *Service) closeSession(ctx context.Context, session Session) {
	if err := session.DB.Close(); err != nil {
		s.logger().WarnContext(ctx, "close connection failed", slog.String("connection", session.Name), slog.Any("error", err))
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// SchemaText renders the active connection's schema for the model.
func (s *Service) SchemaText(ctx context.Context) (string, error) {
	l, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer s.release(l)
	return s.schemaText(ctx, l.session)
}

func (s *Service) schemaText(ctx context.Context, session Session) (string, error) {
	metadata, err := s.metadata(ctx, session, schema.BasicOptions(), true)
	if err != nil {
		return "", err
	}
	return schema.FormatForAI(metadata), nil
}

// Metadata returns full metadata with samples and statistics.
func (s *Service) Metadata(ctx context.Context) (schema.Metadata, error) {
	s.ensureDefaults()
	l, err := s.acquire()
	if err != nil {
		return schema.Metadata{}, err
	}
	defer s.release(l)
	return s.metadata(ctx, l.session, schema.FullOptions(s.Config.SampleRows), true)
}

// RefreshMetadata drops every cached variant and extracts full metadata again.
func (s *Service) RefreshMetadata(ctx context.Context) (schema.Metadata, error) {
	s.ensureDefaults()
	l, err := s.acquire()
	if err != nil {
		return schema.Metadata{}, err
	}
	defer s.release(l)
	if s.Schema == nil {
		return schema.Metadata{}, errors.New("schema service is not configured")
	}
	if err := s.Schema.Invalidate(ctx, l.session.Name); err != nil {
		return schema.Metadata{}, err
	}
	return s.metadata(ctx, l.session, schema.FullOptions(s.Config.SampleRows), false)
}

func (s *Service) metadata(ctx context.Context, session Session, opts schema.Options, useCache bool) (schema.Metadata, error) {
	if s.Schema == nil {
		return schema.Metadata{}, errors.New("schema service is not configured")
	}
	return s.Schema.Metadata(ctx, session.Name, session.DB, opts, useCache)
}

// Translate turns a question into a guarded statement without running it.
func (s *Service) Translate(ctx context.Context, question string) (Translation, error) {
	s.ensureDefaults()
	start := s.Clock()
	translation, l, err := s.translate(ctx, question)
	defer s.release(l)
	s.record(ctx, history.Entry{
		Connection: l.name(),
		Kind:       history.KindTranslate,
		Question:   translation.Question,
		SQL:        translation.SQL,
		Provider:   translation.Provider,
		Model:      translation.Model,
	}, start, 0, err)
	return translation, err
}

// Ask translates the question, then runs the statement.
func (s *Service) Ask(ctx context.Context, in AskInput) (Answer, error) {
	s.ensureDefaults()
	start := s.Clock()
	translation, l, err := s.translate(ctx, in.Question)
	defer s.release(l)
	answer := Answer{Translation: translation}
	if err == nil {
		answer.Result, err = s.Executor.Execute(ctx, l.session.DB, query.Request{SQL: translation.SQL, RowLimit: in.RowLimit})
	}
	s.record(ctx, history.Entry{
		Connection: l.name(),
		Kind:       history.KindAsk,
		Question:   translation.Question,
		SQL:        translation.SQL,
		Provider:   translation.Provider,
		Model:      translation.Model,
	}, start, answer.Result.RowCount, err)
	return answer, err
}

// Run executes a caller-supplied statement after guarding it.
func (s *Service) Run(ctx context.Context, sqlText string, rowLimit int) (query.Result, error) {
	s.ensureDefaults()
	return s.execute(ctx, s.Executor, history.KindSQL, sqlText, rowLimit)
}

// Export runs a statement whose rows are about to be exported.
func (s *Service) Export(ctx context.Context, sqlText string, rowLimit int) (query.Result, error) {
	s.ensureDefaults()
	return s.execute(ctx, s.ExportExecutor, history.KindExport, sqlText, rowLimit)
}

func (s *Service) execute(ctx context.Context, executor *query.Executor, kind history.Kind, sqlText string, rowLimit int) (query.Result, error) {
	start := s.Clock()
	l, err := s.acquire()
	defer s.release(l)
	var result query.Result
	if err == nil {
		result, err = executor.Execute(ctx, l.session.DB, query.Request{SQL: sqlText, RowLimit: rowLimit})
	}
	s.record(ctx, history.Entry{
		Connection: l.name(),
		Kind:       kind,
		SQL:        strings.TrimSpace(sqlText),
	}, start, result.RowCount, err)
	return result, err
}

// translate returns a pinned session whenever one was acquired, even on
// error. Callers release it.
func (s *Service) translate(ctx context.Context, question string) (Translation, *lease, error) {
	question = strings.TrimSpace(question)
	translation := Translation{Question: question}
	if question == "" {
		return translation, nil, ErrQuestionRequired
	}
	if s.Translator == nil {
		return translation, nil, nl2sql.ErrNotConfigured
	}
	l, err := s.acquire()
	if err != nil {
		return translation, nil, err
	}
	session := l.session
	schemaText, err := s.schemaText(ctx, session)
	if err != nil {
		return translation, l, fmt.Errorf("load schema: %w", err)
	}

	start := s.Clock()
	result, err := s.Translator.Translate(ctx, nl2sql.Request{
		Question: question,
		Schema:   schemaText,
		Dialect:  session.DB.Dialect.DisplayName(),
	})
	provider := result.Provider
	if provider == "" {
		provider = s.Config.Provider
	}
	if err != nil {
		observability.ObserveTranslation(provider, "failed", s.Clock().Sub(start))
		return translation, l, err
	}
	observability.ObserveTranslation(provider, "succeeded", s.Clock().Sub(start))

	translation.SQL = result.SQL
	translation.Provider = result.Provider
	translation.Model = result.Model
	stmt, err := sqlguard.Check(result.SQL)
	if err != nil {
		return translation, l, err
	}
	translation.SQL = stmt.SQL
	return translation, l, nil
}

func (s *Service) record(ctx context.Context, entry history.Entry, start time.Time, rows int, err error) {
	if s.History == nil || entry.Connection == "" {
		return
	}
	entry.DurationMs = s.Clock().Sub(start).Milliseconds()
	entry.RowCount = rows
	entry.Status = statusFor(err)
	if err != nil {
		entry.Error = err.Error()
	}
	if _, recErr := s.History.Record(context.WithoutCancel(ctx), entry); recErr != nil {
		s.Logger.WarnContext(ctx, "record history failed", slog.String("kind", string(entry.Kind)), slog.Any("error", recErr))
	}
}

func statusFor(err error) history.Status {
	switch {
	case err == nil:
		return history.StatusSucceeded
	case errors.Is(err, sqlguard.ErrNotReadOnly), errors.Is(err, sqlguard.ErrEmptyStatement):
		return history.StatusRejected
	default:
		return history.StatusFailed
	}
}
