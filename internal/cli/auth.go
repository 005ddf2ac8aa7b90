package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/Makepad-fr/tada/internal/auth"
)

// ---------------------------------------------------
// Auth subcommands
// ---------------------------------------------------

func (r *runner) doLogin(args []string) int {
	var token string
	switch len(args) {
	case 0:
		fmt.Fprint(r.p.Out, "Paste your token: ")
		line, err := bufio.NewReader(r.In).ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			r.p.Fail("read token: " + err.Error())
			return 1
		}
		token = line
	case 1:
		token = args[0]
	default:
		r.p.Fail("usage: todo login [token]")
		return 2
	}
	token = strings.TrimSpace(token)
	if err := r.loadVerifier(); err != nil {
		r.p.Fail("auth: " + err.Error())
		return 1
	}
	if r.verifier != nil {
		if _, err := r.verifier.Actor(token); err != nil {
			r.p.Fail("token rejected: " + err.Error())
			return 1
		}
	}
	ti, err := r.Creds.Set(token)
	if err != nil {
		r.p.Fail("save token: " + err.Error())
		return 1
	}
	if c, err := auth.Inspect(ti.Token); err == nil && c.Actor != "" {
		r.p.OK("logged in as " + c.Actor)
		return 0
	}
	r.p.OK("logged in")
	return 0
}

func (r *runner) doLogout() int {
	ti, _ := r.Creds.Get()
	if ti != nil && ti.Source == "env" {
		r.p.OK("token is provided by " + auth.EnvToken + " env var (nothing to delete)")
		return 0
	}
	if err := r.Creds.Delete(); err != nil {
		r.p.Fail("logout: " + err.Error())
		return 1
	}
	r.p.OK("logged out")
	return 0
}

func (r *runner) doStatus() int {
	ti, err := r.Creds.Get()
	if err != nil {
		r.p.Fail(err.Error())
		return 1
	}
	if ti == nil {
		r.p.Println(r.p.C(r.p.Theme.Muted, "not logged in"))
		r.p.Println("Run: todo login")
		return 0
	}
	r.p.Printf("source: %s\n", ti.Source)
	if ti.ExpiresAt != nil {
		r.p.Printf("expires: %s\n", ti.ExpiresAt.UTC().Format(time.RFC3339))
	} else {
		r.p.Println("expires: (unknown)")
	}
	r.p.Println("env override: " + auth.EnvToken)
	return 0
}

// whoami verifies the token when a verifier is configured; otherwise it
// decodes a JWT locally without checking the signature.
func (r *runner) doWhoAmI() int {
	ti, err := r.Creds.Get()
	if err != nil {
		r.p.Fail(err.Error())
		return 1
	}
	if ti == nil {
		r.p.Fail("not logged in. Run: todo login")
		return 2
	}
	if err := r.loadVerifier(); err != nil {
		r.p.Fail("auth: " + err.Error())
		return 1
	}
	if r.verifier != nil {
		actor, err := r.verifier.Actor(ti.Token)
		if err != nil {
			r.p.Fail("token: " + err.Error())
			return 1
		}
		r.p.Printf("%s (verified)\n", actor)
		return 0
	}
	c, err := auth.Inspect(ti.Token)
	if err != nil {
		r.p.Println("Opaque token (cannot introspect locally).")
		r.p.Println("source:", ti.Source)
		return 0
	}
	r.p.Printf("%s (unverified)\n", c.Actor)
	if c.Issuer != "" {
		r.p.Println("issuer:", c.Issuer)
	}
	if c.ExpiresAt != nil {
		r.p.Println("expires:", c.ExpiresAt.Format(time.RFC3339))
	}
	r.p.Println("source:", ti.Source)
	return 0
}
