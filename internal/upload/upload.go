// Package upload implements the client-observable lifecycle of a single
// upload attempt: select → transfer → validate → paginate → done/error,
// with a 0–100 display progress scale.
//
// The attempt is single-threaded by design: each remote step is awaited
// before the next begins, and the ordering is fixed — admission completes
// before transport, transport before validation, validation before
// pagination. Nothing is retried automatically; retry is an explicit
// Reset followed by a fresh attempt.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/validate"
)

// State names one phase of an upload attempt.
type State string

const (
	StateIdle       State = "idle"
	StateSelected   State = "selected"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Display-scale checkpoints. Transport owns [10,80]; the gaps before and
// after leave headroom for setup and validation stages.
const (
	progressAuthorized  = 10
	progressTransferTop = 80
	progressTransferred = 85
	progressValidated   = 92
	progressComplete    = 100
)

const defaultCompleteDelay = 500 * time.Millisecond

// File is the locally selected file: metadata plus a rewindable byte
// source.
type File struct {
	Name     string
	Size     int64
	MIMEType string
	Data     io.ReadSeeker
}

// Authorizer is the remote admission check.
type Authorizer interface {
	Authorize(ctx context.Context, identifier string, now time.Time) error
}

// Issuer allocates an upload slot.
type Issuer interface {
	IssueUpload(ctx context.Context) (*blob.Upload, error)
}

// Transport moves the file bytes to the granted upload URL. It reports
// progress at whatever granularity it has; progress may be called rarely
// or never, and a missing event means "no update", not failure.
type Transport interface {
	Transfer(ctx context.Context, upload *blob.Upload, file File, progress func(loaded, total int64)) error
}

// RemoteValidator is the post-store validation call.
type RemoteValidator interface {
	Validate(ctx context.Context, ref string, byteSize int64, mimeType string) error
}

// QuotaChecker is the UI-level quota precondition, checked before any
// network transfer starts. The server re-checks at registration.
type QuotaChecker interface {
	CanCreate(ctx context.Context, identifier string) (bool, error)
}

// Config wires a Machine to its collaborators.
type Config struct {
	Authorizer Authorizer
	Issuer     Issuer
	Transport  Transport
	Validator  RemoteValidator
	Quota      QuotaChecker // optional

	MaxBytes int64

	// OnComplete is notified (after CompleteDelay) once the attempt
	// reaches success, with the storage ref and counted pages.
	OnComplete    func(ref string, pageCount int)
	CompleteDelay time.Duration

	// CountPages defaults to the pdfcpu-backed counter.
	CountPages func(rs io.ReadSeeker) (int, error)

	Now    func() time.Time
	Logger *slog.Logger
}

// Machine drives one upload attempt. Not safe for concurrent use; the
// model is one attempt in flight per client session.
type Machine struct {
	cfg Config

	state     State
	progress  int
	file      File
	reason    string
	err       error
	ref       string
	pageCount int
}

func NewMachine(cfg Config) *Machine {
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = config.MaxFileSize
	}
	if cfg.CompleteDelay == 0 {
		cfg.CompleteDelay = defaultCompleteDelay
	}
	if cfg.CountPages == nil {
		cfg.CountPages = validate.CountPages
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{cfg: cfg, state: StateIdle}
}

func (m *Machine) State() State       { return m.state }
func (m *Machine) Progress() int      { return m.progress }
func (m *Machine) FileName() string   { return m.file.Name }
func (m *Machine) Err() error         { return m.err }
func (m *Machine) Reason() string     { return m.reason }
func (m *Machine) StorageRef() string { return m.ref }
func (m *Machine) PageCount() int     { return m.pageCount }

// Reset returns the machine to idle, discarding the previous attempt.
// This is the only way out of the error and success states.
func (m *Machine) Reset() {
	*m = Machine{cfg: m.cfg, state: StateIdle}
}

// Select runs local pre-validation on a chosen file. A file that fails
// the size or type check transitions directly to error without touching
// the network.
func (m *Machine) Select(file File) error {
	if m.state != StateIdle {
		return fmt.Errorf("cannot select a file while %s", m.state)
	}

	m.file = file
	if file.MIMEType != config.PDFMimeType {
		return m.fail(flipbook.NewUnsupportedType(file.MIMEType))
	}
	if file.Size > m.cfg.MaxBytes {
		return m.fail(flipbook.NewTooLarge(m.cfg.MaxBytes))
	}
	m.state = StateSelected
	return nil
}

// Begin runs the attempt to completion: admission, transfer, validation
// and pagination, strictly in that order. Every failure is caught here
// and converted to the error state; the returned error mirrors what the
// attempt recorded.
func (m *Machine) Begin(ctx context.Context, identifier string) error {
	if m.state != StateSelected {
		return fmt.Errorf("cannot begin an upload while %s", m.state)
	}
	logCtx := m.cfg.Logger.With("fileName", m.file.Name, "identifier", identifier)

	if m.cfg.Quota != nil {
		ok, err := m.cfg.Quota.CanCreate(ctx, identifier)
		if err != nil {
			return m.fail(err)
		}
		if !ok {
			return m.fail(flipbook.ErrQuotaExceeded)
		}
	}

	m.state = StateUploading
	m.progress = 0

	if err := m.cfg.Authorizer.Authorize(ctx, identifier, m.cfg.Now()); err != nil {
		logCtx.Warn("Upload admission denied.", "error", err)
		return m.fail(err)
	}
	m.setProgress(progressAuthorized)

	granted, err := m.cfg.Issuer.IssueUpload(ctx)
	if err != nil {
		return m.fail(err)
	}
	m.ref = granted.Ref

	err = m.cfg.Transport.Transfer(ctx, granted, m.file, func(loaded, total int64) {
		m.setProgress(transferProgress(loaded, total))
	})
	if err != nil {
		var terr *flipbook.TransportError
		if !errors.As(err, &terr) {
			err = &flipbook.TransportError{Err: err}
		}
		logCtx.Error("Upload transfer failed.", "error", err)
		return m.fail(err)
	}
	m.setProgress(progressTransferred)
	m.state = StateProcessing

	if err := m.cfg.Validator.Validate(ctx, m.ref, m.file.Size, m.file.MIMEType); err != nil {
		logCtx.Warn("Upload rejected by validator.", "error", err)
		return m.fail(err)
	}
	m.setProgress(progressValidated)

	pageCount, err := m.paginate()
	if err != nil {
		logCtx.Error("Failed to count pages.", "error", err)
		return m.fail(err)
	}
	m.pageCount = pageCount
	m.setProgress(progressComplete)
	m.state = StateSuccess
	logCtx.Info("Upload attempt complete.", "storageRef", m.ref, "pageCount", pageCount)

	m.notify(ctx)
	return nil
}

// paginate counts pages from the local bytes. Full rasterization happens
// later, in the viewer; the attempt only needs the count.
func (m *Machine) paginate() (int, error) {
	if _, err := m.file.Data.Seek(0, io.SeekStart); err != nil {
		return 0, &flipbook.DecodeError{Err: err}
	}
	count, err := m.cfg.CountPages(m.file.Data)
	if err != nil {
		return 0, &flipbook.DecodeError{Err: err}
	}
	return count, nil
}

// notify delivers the completion callback after a brief display delay so
// the success state is visible before the caller navigates away.
func (m *Machine) notify(ctx context.Context) {
	if m.cfg.OnComplete == nil {
		return
	}
	timer := time.NewTimer(m.cfg.CompleteDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	m.cfg.OnComplete(m.ref, m.pageCount)
}

func (m *Machine) fail(err error) error {
	m.state = StateError
	m.err = err
	m.reason = err.Error()
	return err
}

// setProgress never moves the display backwards; out-of-order transport
// events are treated as no update.
func (m *Machine) setProgress(p int) {
	if p > m.progress {
		m.progress = p
	}
}

// transferProgress maps loaded/total into the [10,80] transport band.
// An unknown total yields no update.
func transferProgress(loaded, total int64) int {
	if total <= 0 {
		return 0
	}
	frac := float64(loaded) / float64(total)
	if frac > 1 {
		frac = 1
	}
	span := float64(progressTransferTop - progressAuthorized)
	return progressAuthorized + int(math.Round(frac*span))
}
