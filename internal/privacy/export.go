// Package privacy implements the data subject rights of the platform:
// exporting a user's own data and handling account deletion requests.
package privacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/psikit/pkg/audit"
	"github.com/dmitrymomot/psikit/pkg/logger"
)

// Collection is a per-user table included in the export bundle.
type Collection string

const (
	CollectionConsents         Collection = "user_consents"
	CollectionCheckIns         Collection = "check_ins"
	CollectionDiaryEntries     Collection = "diary_entries"
	CollectionEmotionalRecords Collection = "emotional_records"
)

const (
	ActionExportData        = "export_data"
	ActionDeleteCompleted   = "delete_account_completed"
	ActionDeleteRejected    = "delete_account_rejected"
	ActionDeleteRequested   = "delete_account_requested"
	auditResourceUser       = "user"
	auditMetadataRequestKey = "request_id"
)

// DataSource reads a user's rows as JSON. Profile returns JSON null when
// the user has no profile; Collection returns a JSON array.
type DataSource interface {
	Profile(ctx context.Context, userID string) (json.RawMessage, error)
	Collection(ctx context.Context, c Collection, userID string) (json.RawMessage, error)
}

// AuditLogger records security relevant actions.
type AuditLogger interface {
	Log(ctx context.Context, action string, opts ...audit.EventOption) error
}

// Bundle is the portable export of one user's data.
type Bundle struct {
	GeneratedAt time.Time       `json:"generated_at"`
	UserID      string          `json:"user_id"`
	Profile     json.RawMessage `json:"profile"`
	Privacy     struct {
		Consents json.RawMessage `json:"consents"`
	} `json:"privacy"`
	Data struct {
		CheckIns         json.RawMessage `json:"check_ins"`
		DiaryEntries     json.RawMessage `json:"diary_entries"`
		EmotionalRecords json.RawMessage `json:"emotional_records"`
	} `json:"data"`
}

// Exporter assembles Bundles.
type Exporter struct {
	source DataSource
	audit  AuditLogger
	now    func() time.Time
	log    *slog.Logger
}

type ExporterOption func(*Exporter)

func WithExportClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) { e.now = now }
}

func WithExportLogger(l *slog.Logger) ExporterOption {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

func NewExporter(source DataSource, auditLog AuditLogger, opts ...ExporterOption) *Exporter {
	e := &Exporter{source: source, audit: auditLog, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export records the export in the audit log, then reads every section
// concurrently. No bundle is produced when the audit write fails.
func (e *Exporter) Export(ctx context.Context, userID string) (*Bundle, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if err := e.audit.Log(ctx, ActionExportData,
		audit.WithUserID(userID),
		audit.WithResource(auditResourceUser, userID),
	); err != nil {
		return nil, errors.Join(ErrAuditFailed, err)
	}

	b := &Bundle{GeneratedAt: e.now().UTC(), UserID: userID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		b.Profile, err = e.source.Profile(gctx, userID)
		return wrapSection("profile", err)
	})
	sections := []struct {
		c   Collection
		dst *json.RawMessage
	}{
		{CollectionConsents, &b.Privacy.Consents},
		{CollectionCheckIns, &b.Data.CheckIns},
		{CollectionDiaryEntries, &b.Data.DiaryEntries},
		{CollectionEmotionalRecords, &b.Data.EmotionalRecords},
	}
	for _, s := range sections {
		g.Go(func() error {
			raw, err := e.source.Collection(gctx, s.c, userID)
			if err != nil {
				return wrapSection(string(s.c), err)
			}
			*s.dst = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.ErrorContext(ctx, "data export failed", logger.UserID(userID), logger.Error(err))
		return nil, errors.Join(ErrExportFailed, err)
	}

	normalize(&b.Profile, "null")
	normalize(&b.Privacy.Consents, "[]")
	normalize(&b.Data.CheckIns, "[]")
	normalize(&b.Data.DiaryEntries, "[]")
	normalize(&b.Data.EmotionalRecords, "[]")
	return b, nil
}

func wrapSection(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("read %s: %w", name, err)
}

func normalize(raw *json.RawMessage, empty string) {
	if len(*raw) == 0 {
		*raw = json.RawMessage(empty)
	}
}
