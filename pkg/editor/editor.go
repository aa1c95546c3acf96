// Package editor gates calculation runs behind a successful save of the
// report being edited.
package editor

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/uyoufu/uzoncalc/pkg/api"
	"github.com/uyoufu/uzoncalc/pkg/logging"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/objectid"
	"github.com/uyoufu/uzoncalc/pkg/signal"
)

// ErrInvalidName is returned by Save when the draft's name is rejected.
var ErrInvalidName = errors.New("invalid report name")

// Report names become Python identifiers on the engine side.
var namePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidName reports whether name is an acceptable report name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// CheckName validates name and raises an error notification when it is
// not acceptable.
func CheckName(name string, n notify.Notifier) bool {
	if ValidName(name) {
		return true
	}
	notify.Or(n).Error(notify.InvalidReportName)
	return false
}

// Draft is the report currently open in the editor.
type Draft struct {
	Name        string
	Code        string
	ReportOid   string
	CategoryOid string
}

// ReportStore persists report source. *api.Client implements it.
type ReportStore interface {
	SaveReport(ctx context.Context, req api.SaveReportRequest) (string, error)
}

// Saver writes drafts to the backend.
type Saver struct {
	API      ReportStore
	Notifier notify.Notifier
	Logger   *zap.Logger
	// ListChanged is notified after every successful save so report lists
	// can refresh.
	ListChanged *signal.Signal
	// SaveAs detaches the draft from the saved report: after saving, the
	// draft gets a fresh client-minted oid so the next save creates a new
	// report.
	SaveAs bool
	// NewID mints oids in SaveAs mode. Defaults to objectid.New.
	NewID func() string
}

// Save validates the draft's name and saves it. On success the draft's
// ReportOid is updated. Transport failures are already reported on the
// notification channel by the client; they are returned for logging only.
func (s *Saver) Save(ctx context.Context, d *Draft) (bool, error) {
	n := notify.Or(s.Notifier)
	if !CheckName(d.Name, n) {
		return false, ErrInvalidName
	}

	req := api.SaveReportRequest{
		ReportName: d.Name,
		Code:       d.Code,
		ReportOid:  d.ReportOid,
	}
	if d.ReportOid == "" {
		req.CategoryOid = d.CategoryOid
	}
	oid, err := s.API.SaveReport(ctx, req)
	if err != nil {
		return false, fmt.Errorf("save report %s: %w", d.Name, err)
	}

	if s.SaveAs {
		newID := s.NewID
		if newID == nil {
			newID = objectid.New
		}
		d.ReportOid = newID()
	} else {
		d.ReportOid = oid
	}
	logging.OrNop(s.Logger).Debug("report saved",
		zap.String("name", d.Name),
		zap.String("saved_oid", oid),
		zap.String("draft_oid", d.ReportOid))

	n.Success(notify.SaveSucceeded)
	s.ListChanged.Notify()
	return true, nil
}

// Runner saves a draft and then signals the execution view to start.
type Runner struct {
	Saver *Saver
	// Executing reports whether a calculation is in flight. May be nil.
	Executing func() bool
	// StartSignal is notified once the draft has been saved.
	StartSignal *signal.Signal
}

// Run saves d and, on success, notifies StartSignal. It does nothing while
// a calculation is executing. Returns whether a start was signalled.
func (r *Runner) Run(ctx context.Context, d *Draft) (bool, error) {
	if r.Executing != nil && r.Executing() {
		return false, nil
	}
	ok, err := r.Saver.Save(ctx, d)
	if err != nil || !ok {
		return false, err
	}
	r.StartSignal.Notify()
	return true, nil
}
