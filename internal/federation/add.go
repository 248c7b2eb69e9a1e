package federation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mrz1836/fedwallet/internal/engine"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// ErrCodeRequired is returned when the invite code is empty. It matches
// errors.ErrValidation.
var ErrCodeRequired = &fwerr.WalletError{
	Code:       fwerr.ErrValidation.Code,
	Message:    "federation code is required",
	Suggestion: "Paste a federation invite code starting with fed1",
	ExitCode:   fwerr.ExitInput,
}

// AddForm collects an invite code and joins the federation it names.
type AddForm struct {
	session Container
	opts    Options
	refetch func(ctx context.Context)

	mu      sync.Mutex
	code    string
	busy    bool
	err     error
	success string
}

// NewAddForm creates a form. refetch, when set, runs after a successful join.
func NewAddForm(c Container, opts Options, refetch func(ctx context.Context)) *AddForm {
	return &AddForm{session: c, opts: opts.withDefaults(), refetch: refetch}
}

// SetCode replaces the input.
func (f *AddForm) SetCode(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code = code
}

// Code returns the current input.
func (f *AddForm) Code() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

// Err returns the error from the last submission, if any.
func (f *AddForm) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Success returns the message from the last successful submission.
func (f *AddForm) Success() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.success
}

// Busy reports whether a submission is outstanding.
func (f *AddForm) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// Validate checks the current input.
func (f *AddForm) Validate() error {
	return validateCode(f.Code())
}

func validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrCodeRequired
	}
	return nil
}

// ApplyDeepLink pre-fills the code from the invite parameter and clears
// the parameter so it is applied once.
func (f *AddForm) ApplyDeepLink(src ParamSource) {
	if src == nil {
		return
	}
	code := strings.TrimSpace(src.Get(InviteParam))
	if code == "" {
		return
	}
	f.SetCode(code)
	src.Clear(InviteParam)
}

// Submit validates the input and joins the federation. On success the
// federation list is refreshed, the refetch hook runs and the input is
// cleared. On failure the input is kept. A second call while one is
// outstanding returns ErrBusy.
func (f *AddForm) Submit(ctx context.Context) (*engine.FederationIdentity, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return nil, fwerr.ErrBusy
	}
	code := strings.TrimSpace(f.code)
	if err := validateCode(code); err != nil {
		f.err = err
		f.success = ""
		f.mu.Unlock()
		return nil, err
	}
	f.busy = true
	f.err = nil
	f.success = ""
	f.mu.Unlock()

	fed, err := f.join(ctx, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.err = err
		return nil, err
	}
	f.code = ""
	f.success = "Joined " + displayName(fed)
	return fed, nil
}

func (f *AddForm) join(ctx context.Context, code string) (*engine.FederationIdentity, error) {
	eng, err := f.session.Engine()
	if err != nil {
		return nil, err
	}

	fed, err := eng.NewFederation(ctx, code)
	if err == nil && fed == nil {
		err = errNoFederation
	}
	f.opts.Metrics.RecordFederationJoin(err)
	if err != nil {
		f.opts.Logger.Error("joining federation: %v", err)
		return nil, fwerr.Wrap(fwerr.Because(fwerr.ErrEngine, err), "joining federation")
	}
	f.opts.Logger.Info("joined federation %s", fed.ID)

	if err := f.session.RefreshFederations(ctx); err != nil {
		f.opts.Logger.Error("refreshing federations after join: %v", err)
	}
	if f.refetch != nil {
		f.refetch(ctx)
	}
	return fed, nil
}

var errNoFederation = errors.New("engine returned no federation")

func displayName(fed *engine.FederationIdentity) string {
	if fed == nil {
		return "federation"
	}
	if fed.Name != "" {
		return fed.Name
	}
	return fed.ID
}
