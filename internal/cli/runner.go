// Package cli implements the todo subcommands over a todo.Store.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/httpapi"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/tui"
	"github.com/Makepad-fr/tada/internal/ui"
	"github.com/Makepad-fr/tada/internal/view"
)

// Options carry everything the subcommands need. Zero fields get defaults.
type Options struct {
	Config  *config.Config
	Printer *ui.Printer
	Logger  *log.Logger
	Creds   *auth.Credentials
	In      io.Reader
	Now     func() time.Time

	// Open returns the adapter for the configured backend.
	Open func(ctx context.Context, cfg *config.Config, logger *log.Logger) (todo.Adapter, error)
	// Interactive runs the TUI.
	Interactive func(ctx context.Context, s *todo.Store, opt tui.Options) error
}

func (o Options) withDefaults() Options {
	if o.Config == nil {
		o.Config = &config.Config{Backend: config.BackendMemory, Theme: config.DefaultTheme}
	}
	if o.Printer == nil {
		o.Printer = ui.NewPrinter(os.Stdout, os.Stderr, o.Config.Theme)
	}
	if o.Logger == nil {
		o.Logger = log.New()
		o.Logger.SetOutput(io.Discard)
	}
	if o.Creds == nil {
		dir, err := auth.DefaultDir()
		if err != nil {
			dir = ".tada"
		}
		o.Creds = auth.NewCredentials(dir)
	}
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Open == nil {
		o.Open = store.Open
	}
	if o.Interactive == nil {
		o.Interactive = tui.Run
	}
	return o
}

type runner struct {
	Options
	p *ui.Printer

	verifier *auth.Verifier
}

// Run dispatches subcommands and returns an exit code (0 ok, 1 error, 2 usage).
func Run(ctx context.Context, args []string, opt Options) int {
	r := &runner{Options: opt.withDefaults()}
	r.p = r.Printer
	defer func() { r.verifier.Close() }()

	if len(args) == 0 {
		PrintHelp(r.p.Err)
		return 2
	}
	cmd, a := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		PrintHelp(r.p.Out)
		return 0
	case "ls", "list":
		return r.doList(ctx, a)
	case "add":
		return r.doAdd(ctx, a)
	case "done", "toggle":
		if len(a) != 1 {
			r.p.Fail("usage: todo done <ref>")
			return 2
		}
		return r.doToggle(ctx, a[0])
	case "edit":
		if len(a) < 2 {
			r.p.Fail("usage: todo edit <ref> <title...>")
			return 2
		}
		return r.doEdit(ctx, a[0], strings.Join(a[1:], " "))
	case "rm":
		if len(a) != 1 {
			r.p.Fail("usage: todo rm <ref>")
			return 2
		}
		return r.doRemove(ctx, a[0])
	case "tui":
		return r.doTUI(ctx)
	case "serve":
		return r.doServe(ctx, a)
	case "login":
		return r.doLogin(a)
	case "logout":
		return r.doLogout()
	case "whoami":
		return r.doWhoAmI()
	case "auth":
		if len(a) == 0 {
			r.p.Fail("usage: todo auth <login|logout|status|whoami>")
			return 2
		}
		switch a[0] {
		case "login":
			return r.doLogin(a[1:])
		case "logout":
			return r.doLogout()
		case "status":
			return r.doStatus()
		case "whoami":
			return r.doWhoAmI()
		}
		r.p.Fail("usage: todo auth <login|logout|status|whoami>")
		return 2
	}

	r.p.Fail("unknown subcommand: " + cmd)
	fmt.Fprintln(r.p.Err)
	PrintHelp(r.p.Err)
	return 2
}

func PrintHelp(w io.Writer) {
	fmt.Fprint(w, `todo - a tiny todo list

Usage:
  todo [-config FILE] [-backend NAME] [-theme NAME] [-group] <subcommand> [args]

Subcommands:
  add [-due DATE] <title...>   Add a todo (title can be multiple words)
  ls [-filter F] [-sort S]     List todos; F is all|completed|uncompleted,
                               S is default|asc|desc (by due date)
  done <ref>                   Toggle completion
  edit <ref> <title...>        Change the title
  rm <ref>                     Remove a todo
  tui                          Interactive list
  serve [-addr ADDR]           Serve the JSON API
  login [token]                Save a session token
  logout                       Forget the saved token
  whoami                       Show who the token belongs to

<ref> is the 1-based index shown by ls, or an id prefix.

Examples:
  todo add -due 2024-01-01 "Buy milk"
  todo ls -filter uncompleted -sort asc
  todo done 2
  todo rm 3
`)
}

// -------------- session ----------------

func (r *runner) loadVerifier() error {
	if r.verifier != nil {
		return nil
	}
	a := r.Config.Auth
	var err error
	switch {
	case a.Secret != "":
		r.verifier, err = auth.NewHS256([]byte(a.Secret), a.Audience, a.Issuer)
	case a.JWKSURL != "":
		r.verifier, err = auth.NewJWKS(a.JWKSURL, a.Audience, a.Issuer)
	}
	return err
}

// actor resolves the acting user. Without a verifier everything is
// ownerless.
func (r *runner) actor() (string, int) {
	if err := r.loadVerifier(); err != nil {
		r.p.Fail("auth: " + err.Error())
		return "", 1
	}
	if r.verifier == nil {
		return "", 0
	}
	ti, err := r.Creds.Get()
	if err != nil {
		r.p.Fail(err.Error())
		return "", 1
	}
	if ti == nil {
		r.p.Fail("no token found. Set TADA_TOKEN or run `todo login`")
		return "", 2
	}
	actor, err := r.verifier.Actor(ti.Token)
	if err != nil {
		r.p.Fail("token: " + err.Error())
		r.p.Hint("Hint: run `todo login` with a fresh token")
		return "", 1
	}
	return actor, 0
}

type session struct {
	store *todo.Store
	actor string
}

// open loads the actor's todos from the configured backend.
func (r *runner) open(ctx context.Context) (*session, int) {
	actor, code := r.actor()
	if code != 0 {
		return nil, code
	}
	a, err := r.Open(ctx, r.Config, r.Logger)
	if err != nil {
		r.p.Fail("open: " + err.Error())
		return nil, 1
	}
	s := todo.New(a, todo.WithLogger(r.Logger), todo.WithRollback(r.Config.Store.Rollback))
	if _, err := s.Load(ctx, view.Query{Owner: actor}); err != nil {
		_ = s.Close(ctx)
		r.p.Fail("load: " + err.Error())
		return nil, 1
	}
	return &session{store: s, actor: actor}, 0
}

func (s *session) close(ctx context.Context) { _ = s.store.Close(ctx) }

// listed is the order ls shows with no flags; indexes refer to it.
func (s *session) listed() []model.Todo {
	return s.store.View(view.Query{Owner: s.actor})
}

var (
	errAmbiguous  = errors.New("ambiguous id prefix")
	errOutOfRange = errors.New("index out of range")
)

// resolve finds ref as a 1-based index into items or as an id prefix.
func resolve(items []model.Todo, ref string) (model.Todo, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(items) {
			return model.Todo{}, fmt.Errorf("%w: have %d, got %d", errOutOfRange, len(items), n)
		}
		return items[n-1], nil
	}
	var found []model.Todo
	for _, it := range items {
		if it.ID == ref {
			return it, nil
		}
		if strings.HasPrefix(it.ID, ref) {
			found = append(found, it)
		}
	}
	switch len(found) {
	case 0:
		return model.Todo{}, fmt.Errorf("%s: %w", ref, todo.ErrNotFound)
	case 1:
		return found[0], nil
	}
	return model.Todo{}, fmt.Errorf("%s matches %d todos: %w", ref, len(found), errAmbiguous)
}

// failed reports err and picks the exit code.
func (r *runner) failed(op string, err error) int {
	switch {
	case errors.Is(err, todo.ErrValidation), errors.Is(err, errAmbiguous):
		r.p.Fail(op + ": " + err.Error())
		return 2
	case errors.Is(err, todo.ErrNotFound):
		r.p.Fail(op + ": " + err.Error())
		r.p.Hint("Hint: run `todo ls` to see valid refs")
		return 1
	case errors.Is(err, todo.ErrUnauthorized):
		r.p.Fail(op + ": " + err.Error())
		return 1
	case errors.Is(err, todo.ErrPersistence):
		r.p.Fail(op + ": not saved: " + err.Error())
		return 1
	}
	if errors.Is(err, errOutOfRange) {
		r.p.Fail(err.Error())
		r.p.Hint("Hint: run `todo ls` to see valid indexes")
		return 2
	}
	r.p.Fail(op + ": " + err.Error())
	return 1
}

// -------------- subcommand impls ----------------

func (r *runner) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(r.p.Err)
	return fs
}

func (r *runner) doAdd(ctx context.Context, args []string) int {
	fs := r.newFlagSet("add")
	dueRaw := fs.String("due", "", "due date (2006-01-02 or 2006-01-02 15:04)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	title := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if title == "" {
		r.p.Fail("usage: todo add [-due DATE] <title...>")
		return 2
	}
	due, err := model.ParseDue(*dueRaw)
	if err != nil {
		r.p.Fail("add: " + err.Error())
		return 2
	}

	s, code := r.open(ctx)
	if code != 0 {
		return code
	}
	defer s.close(ctx)
	t, err := s.store.Add(ctx, title, due, s.actor)
	if err != nil {
		return r.failed("add", err)
	}
	r.p.OK(fmt.Sprintf("added %d. %s", len(s.listed()), t.Title))
	return 0
}

func (r *runner) doToggle(ctx context.Context, ref string) int {
	s, code := r.open(ctx)
	if code != 0 {
		return code
	}
	defer s.close(ctx)
	t, err := resolve(s.listed(), ref)
	if err != nil {
		return r.failed("done", err)
	}
	t, err = s.store.Toggle(ctx, t.ID)
	if err != nil {
		return r.failed("done", err)
	}
	if t.Completed {
		r.p.OK("done: " + t.Title)
	} else {
		r.p.OK("reopened: " + t.Title)
	}
	return 0
}

func (r *runner) doEdit(ctx context.Context, ref, title string) int {
	s, code := r.open(ctx)
	if code != 0 {
		return code
	}
	defer s.close(ctx)
	t, err := resolve(s.listed(), ref)
	if err != nil {
		return r.failed("edit", err)
	}
	t, err = s.store.Edit(ctx, t.ID, title, s.actor)
	if err != nil {
		return r.failed("edit", err)
	}
	r.p.OK("renamed: " + t.Title)
	return 0
}

func (r *runner) doRemove(ctx context.Context, ref string) int {
	s, code := r.open(ctx)
	if code != 0 {
		return code
	}
	defer s.close(ctx)
	t, err := resolve(s.listed(), ref)
	if err != nil {
		return r.failed("rm", err)
	}
	if err := s.store.Delete(ctx, t.ID, s.actor); err != nil {
		return r.failed("rm", err)
	}
	r.p.OK("removed: " + t.Title)
	return 0
}

func (r *runner) doTUI(ctx context.Context) int {
	s, code := r.open(ctx)
	if code != 0 {
		return code
	}
	defer s.close(ctx)
	err := r.Interactive(ctx, s.store, tui.Options{Actor: s.actor, Theme: r.Config.Theme, Now: r.Now})
	if err != nil {
		r.p.Fail("tui: " + err.Error())
		return 1
	}
	return 0
}

func (r *runner) doServe(ctx context.Context, args []string) int {
	fs := r.newFlagSet("serve")
	addr := fs.String("addr", r.Config.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := r.loadVerifier(); err != nil {
		r.p.Fail("auth: " + err.Error())
		return 1
	}
	a, err := r.Open(ctx, r.Config, r.Logger)
	if err != nil {
		r.p.Fail("open: " + err.Error())
		return 1
	}
	if c, ok := a.(todo.Closer); ok {
		defer c.Close(context.Background())
	}

	opt := httpapi.Options{Logger: r.Logger, Rollback: r.Config.Store.Rollback}
	if r.verifier != nil {
		opt.Auth = r.verifier
	}
	r.p.OK("serving on " + *addr)
	if err := httpapi.New(a, opt).Start(ctx, *addr); err != nil {
		r.p.Fail("serve: " + err.Error())
		return 1
	}
	return 0
}
