package unprotect

import (
	"io"
	"log"
	"os"
)

// Service is the platform protection service. It reverses a protect
// operation done for the current principal and returns the cleartext along
// with the description stored in the blob.
//
// Implementations must return a slice they do not reference afterwards.
type Service interface {
	ReverseProtect(in []byte, opts *Options) (out []byte, description string, err error)
}

// Protector is implemented by services that can also produce protected blobs.
type Protector interface {
	Protect(cleartext []byte, description string, opts *Options) ([]byte, error)
}

// Prompt mirrors CRYPTPROTECT_PROMPTSTRUCT.
type Prompt struct {
	Flags  uint32
	Window uintptr
	Prompt string
}

// Options are the optional context parameters handed to the service.
type Options struct {
	Entropy []byte
	Prompt  *Prompt
	Flags   uint32
}

// Flag values are the CRYPTPROTECT_* values.
const (
	// FlagUIForbidden fails the call instead of showing a prompt.
	FlagUIForbidden uint32 = 0x1
	// FlagLocalMachine binds a protected blob to the machine instead of the user.
	FlagLocalMachine uint32 = 0x4
)

type Log interface {
	Printf(format string, v ...interface{})
	Print(s string)
}

type DefaultLog struct {
	log *log.Logger
}

func NewDefaultLog(w io.Writer) *DefaultLog {
	return &DefaultLog{log: log.New(w, "", log.LstdFlags)}
}

func (d *DefaultLog) Printf(format string, v ...interface{}) {
	d.log.Printf(format, v...)
}

func (d *DefaultLog) Print(s string) {
	d.log.Print(s)
}

type Option func(*Unprotector)

// Unprotector turns protected blobs back into cleartext through a Service.
// It holds no per-call state and is safe for concurrent use when its
// service is.
type Unprotector struct {
	service Service

	entropy []byte
	prompt  *Prompt
	flags   uint32

	log Log
}

func New(options ...Option) *Unprotector {
	u := &Unprotector{
		service: Platform(),
	}
	for _, option := range options {
		option(u)
	}
	if u.log == nil {
		u.log = NewDefaultLog(os.Stderr)
	}
	return u
}

// WithService replaces the platform service
func WithService(s Service) Option {
	return func(u *Unprotector) {
		u.service = s
	}
}

// WithEntropy sets the additional entropy the blob was protected with
func WithEntropy(entropy []byte) Option {
	return func(u *Unprotector) {
		u.entropy = append([]byte(nil), entropy...)
	}
}

func WithPrompt(p Prompt) Option {
	return func(u *Unprotector) {
		u.prompt = &p
	}
}

func WithFlags(flags uint32) Option {
	return func(u *Unprotector) {
		u.flags |= flags
	}
}

// UIForbidden never lets the service show a prompt
func UIForbidden() Option {
	return WithFlags(FlagUIForbidden)
}

// SetLog set log
func SetLog(log Log) Option {
	return func(u *Unprotector) {
		u.log = log
	}
}

// Unprotect returns the cleartext of protected. The result is a new slice
// owned by the caller.
func (u *Unprotector) Unprotect(protected []byte) ([]byte, error) {
	cleartext, _, err := u.UnprotectWithDescription(protected)
	return cleartext, err
}

// UnprotectWithDescription is like Unprotect but also returns the description
// stored alongside the data.
func (u *Unprotector) UnprotectWithDescription(protected []byte) ([]byte, string, error) {
	if len(protected) == 0 {
		return nil, "", &UnprotectError{Op: "unprotect", Err: ErrEmptyBlob}
	}
	if u.service == nil {
		return nil, "", &UnprotectError{Op: "unprotect", Err: ErrNoService}
	}

	// the service only ever sees this copy
	in := make([]byte, len(protected))
	copy(in, protected)
	defer zero(in)

	out, description, err := u.service.ReverseProtect(in, u.options())
	if err != nil {
		u.log.Printf("unprotect %d bytes failed: %v", len(protected), err)
		return nil, "", &UnprotectError{Op: "unprotect", Err: err}
	}

	cleartext := make([]byte, len(out))
	copy(cleartext, out)
	return cleartext, description, nil
}

func (u *Unprotector) options() *Options {
	if u.entropy == nil && u.prompt == nil && u.flags == 0 {
		return nil
	}
	opts := &Options{Flags: u.flags}
	if u.entropy != nil {
		opts.Entropy = append([]byte(nil), u.entropy...)
	}
	if u.prompt != nil {
		p := *u.prompt
		opts.Prompt = &p
	}
	return opts
}

// Unprotect unprotects a blob with the platform service and default options.
func Unprotect(protected []byte) ([]byte, error) {
	return New().Unprotect(protected)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
