package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/atscheck/internal/app"
	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(c *cli, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"login":        {"sign in with username and password", (*cli).login},
	"google-login": {"sign in with a Google ID token", (*cli).googleLogin},
	"register":     {"create an account", (*cli).register},
	"verify":       {"verify an email address with the emailed code", (*cli).verify},
	"resend":       {"send a new verification code", (*cli).resend},
	"logout":       {"sign out", (*cli).logout},
	"status":       {"show the session, usage and profile", (*cli).status},
	"usage":        {"show uploads used and the plan limit", (*cli).showUsage},
	"analyze":      {"score or review a PDF resume", (*cli).analyze},
	"plans":        {"list the available plans", (*cli).plans},
	"upgrade":      {"start a plan purchase", (*cli).upgrade},
	"return":       {"confirm a payment from the URL the provider sent you back to", (*cli).paymentReturn},
	"profile":      {"show or edit the profile (show, update, resend-verification)", (*cli).profile},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: atscheck <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
}

type cli struct {
	app *app.App
	out io.Writer
	in  io.Reader
}

func (c *cli) run(ctx context.Context, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		usage(c.out)
		return errUsage
	}
	return cmd.run(c, ctx, args)
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// restore loads the persisted session, waiting for the plan refresh
func (c *cli) restore(ctx context.Context) atscheck.Session {
	s, _ := c.app.Coordinator.Sessions().Restore(ctx)
	return s
}

func (c *cli) secret(prompt, env string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	in := c.in
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprint(c.out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (default: $ATSCHECK_PASSWORD or prompt)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *password == "" {
		p, err := c.secret("Password: ", "ATSCHECK_PASSWORD")
		if err != nil {
			return err
		}
		*password = p
	}

	s, err := c.app.Auth.Login(ctx, *username, *password)
	if err != nil && !s.Authenticated() {
		return err
	}
	fmt.Fprintf(c.out, "Signed in as %s (%s)\n", s.Username, s.Plan.Title())
	return err
}

func (c *cli) googleLogin(ctx context.Context, args []string) error {
	fs := c.flags("google-login")
	token := fs.String("token", "", "Google ID token")
	if err := parse(fs, args); err != nil {
		return err
	}
	s, err := c.app.Auth.GoogleLogin(ctx, *token)
	if err != nil && !s.Authenticated() {
		return err
	}
	fmt.Fprintf(c.out, "Signed in as %s (%s)\n", s.Username, s.Plan.Title())
	return err
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := c.flags("register")
	var req atscheck.RegisterRequest
	fs.StringVar(&req.Username, "username", "", "username")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.FirstName, "first-name", "", "first name")
	fs.StringVar(&req.LastName, "last-name", "", "last name")
	fs.StringVar(&req.Password1, "password", "", "password")
	fs.StringVar(&req.Password2, "confirm", "", "password again")
	if err := parse(fs, args); err != nil {
		return err
	}

	msg, err := c.app.Auth.Register(ctx, req)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "Registration successful. Check your email for the verification code."
	}
	fmt.Fprintln(c.out, msg)
	return nil
}

func (c *cli) verify(ctx context.Context, args []string) error {
	fs := c.flags("verify")
	email := fs.String("email", "", "email address")
	code := fs.String("code", "", "verification code")
	if err := parse(fs, args); err != nil {
		return err
	}
	msg, err := c.app.Auth.VerifyEmail(ctx, *email, *code)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "Email verified. You can now log in."
	}
	fmt.Fprintln(c.out, msg)
	return nil
}

func (c *cli) resend(ctx context.Context, args []string) error {
	fs := c.flags("resend")
	email := fs.String("email", "", "email address")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := c.app.Auth.ResendVerification(ctx, *email); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Verification code sent.")
	return nil
}

func (c *cli) logout(ctx context.Context, _ []string) error {
	c.restore(ctx)
	if err := c.app.Coordinator.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Signed out.")
	return nil
}

func (c *cli) status(ctx context.Context, _ []string) error {
	s := c.restore(ctx)

	var (
		info    atscheck.UsageInfo
		profile *atscheck.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = c.app.Coordinator.Usage().Refresh(gctx, s.Credential)
		return err
	})
	if s.Authenticated() {
		g.Go(func() error {
			var err error
			profile, err = c.app.Profile.Get(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !s.Authenticated() {
		fmt.Fprintln(c.out, "Not signed in")
	} else {
		fmt.Fprintf(c.out, "Signed in as %s\n", s.Username)
	}
	// Usage responses win over the plan stored at sign-in
	s = c.app.Coordinator.Sessions().Current()
	printUsage(c.out, s, info)
	if profile != nil {
		printProfile(c.out, profile)
	}
	return nil
}

func (c *cli) showUsage(ctx context.Context, _ []string) error {
	s := c.restore(ctx)
	info, err := c.app.Coordinator.Usage().Refresh(ctx, s.Credential)
	if err != nil {
		return err
	}
	printUsage(c.out, c.app.Coordinator.Sessions().Current(), info)
	return nil
}

func printUsage(w io.Writer, s atscheck.Session, info atscheck.UsageInfo) {
	plan := s.Plan
	if info.Plan != "" {
		plan = info.Plan
	}
	if plan == "" {
		plan = atscheck.PlanBasic
	}
	fmt.Fprintf(w, "Plan: %s\n", plan.Title())
	fmt.Fprintf(w, "Uploads: %d of %d used, %d left\n", info.UploadsUsed, info.Limit, info.Remaining())
}

func printProfile(w io.Writer, p *atscheck.Profile) {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		name = p.Username
	}
	verified := "not verified"
	if p.EmailVerified {
		verified = "verified"
	}
	fmt.Fprintf(w, "Name: %s\n", name)
	fmt.Fprintf(w, "Email: %s (%s)\n", p.Email, verified)
	if p.DateJoined != "" {
		fmt.Fprintf(w, "Joined: %s\n", p.DateJoined)
	}
}

func (c *cli) analyze(ctx context.Context, args []string) error {
	fs := c.flags("analyze")
	jd := fs.String("jd", "", "job description text")
	jdFile := fs.String("jd-file", "", "file holding the job description")
	company := fs.String("company", "", "position or company name, analyzes without a job description")
	action := fs.String("action", "score", "score or review")
	html := fs.Bool("html", false, "print the rendered HTML instead of markdown")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(c.out, "usage: atscheck analyze [flags] resume.pdf")
		return errUsage
	}

	uploads := c.app.Coordinator.Uploads()
	files := make([]atscheck.File, 0, fs.NArg())
	for _, path := range fs.Args() {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, atscheck.File{Name: filepath.Base(path), ContentType: "application/pdf", Content: content})
	}
	if err := uploads.SelectFiles(files...); err != nil {
		return err
	}

	if *company != "" {
		if err := uploads.SetMode(atscheck.ModeWithoutJobDescription); err != nil {
			return err
		}
		uploads.SetCompanyName(*company)
	} else {
		text := *jd
		if *jdFile != "" {
			b, err := os.ReadFile(*jdFile)
			if err != nil {
				return err
			}
			text = string(b)
		}
		uploads.SetJobDescription(text)
	}

	var act atscheck.Action
	switch *action {
	case "score", string(atscheck.ActionScore):
		act = atscheck.ActionScore
	case string(atscheck.ActionReview):
		act = atscheck.ActionReview
	default:
		act = atscheck.Action(*action)
	}

	c.restore(ctx)
	res, err := uploads.Submit(ctx, act)
	switch {
	case errors.Is(err, atscheck.ErrLoginRequired):
		fmt.Fprintln(c.out, atscheck.UserMessage(err))
		fmt.Fprintln(c.out, "Run: atscheck login -u <username>")
		return err
	case errors.Is(err, atscheck.ErrUpgradeRequired):
		fmt.Fprintln(c.out, atscheck.UserMessage(err))
		fmt.Fprintln(c.out, "Run: atscheck plans")
		return err
	case err != nil:
		return err
	}

	if *html {
		fmt.Fprintln(c.out, res.HTML)
	} else {
		fmt.Fprintln(c.out, res.Raw)
	}
	fmt.Fprintln(c.out)
	printUsage(c.out, c.app.Coordinator.Sessions().Current(), res.Usage)
	return nil
}

func (c *cli) plans(ctx context.Context, _ []string) error {
	s := c.restore(ctx)
	for _, offer := range c.app.Coordinator.Catalog() {
		marker := " "
		switch {
		case s.Authenticated() && s.Plan == offer.Plan:
			marker = "*"
		case offer.Popular:
			marker = "+"
		}
		fmt.Fprintf(c.out, "%s %-8s %-14s %d uploads\n", marker, offer.Plan.Title(), offer.Price, offer.Uploads)
		for _, f := range offer.Features {
			fmt.Fprintf(c.out, "    - %s\n", f)
		}
	}
	return nil
}

func (c *cli) upgrade(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: atscheck upgrade <basic|premium|pro>")
		return errUsage
	}
	c.restore(ctx)

	out, err := c.app.Coordinator.Upgrade(ctx, args[0])
	if err != nil {
		return err
	}
	switch out.Kind {
	case atscheck.UpgradeCurrent:
		fmt.Fprintf(c.out, "You are already on the %s plan.\n", out.Plan.Title())
	case atscheck.UpgradeFree:
		fmt.Fprintf(c.out, "The %s plan is free, nothing to pay.\n", out.Plan.Title())
	case atscheck.UpgradeContact:
		fmt.Fprintf(c.out, "Sign in first, or get in touch: %s\n", out.URL)
	case atscheck.UpgradeRedirect:
		fmt.Fprintf(c.out, "Complete the payment at:\n%s\n", out.URL)
		fmt.Fprintln(c.out, "Then run: atscheck return '<the URL you were sent back to>'")
	}
	return nil
}

func (c *cli) paymentReturn(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: atscheck return <url>")
		return errUsage
	}
	u, err := url.Parse(args[0])
	if err != nil {
		return err
	}

	if _, err := c.app.Coordinator.Start(ctx, u); err != nil {
		return err
	}
	plan := c.app.Coordinator.ConfirmedPlan()
	if plan == "" {
		fmt.Fprintln(c.out, "No completed payment to confirm.")
		return nil
	}
	c.app.Coordinator.Close(atscheck.ModalPaymentSuccess)
	fmt.Fprintf(c.out, "Payment confirmed. You are now on the %s plan.\n", plan.Title())
	return nil
}

func (c *cli) profile(ctx context.Context, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	c.restore(ctx)

	switch sub {
	case "show":
		p, err := c.app.Profile.Get(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Username: %s\n", p.Username)
		printProfile(c.out, p)
		fmt.Fprintf(c.out, "Plan: %s\n", p.Plan.Title())
		return nil

	case "update":
		fs := c.flags("profile update")
		email := fs.String("email", "", "new email address")
		first := fs.String("first-name", "", "first name")
		last := fs.String("last-name", "", "last name")
		if err := parse(fs, args); err != nil {
			return err
		}
		var update atscheck.ProfileUpdate
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "email":
				update.Email = email
			case "first-name":
				update.FirstName = first
			case "last-name":
				update.LastName = last
			}
		})
		p, err := c.app.Profile.Update(ctx, update)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Profile updated.")
		printProfile(c.out, p)
		return nil

	case "resend-verification":
		if err := c.app.Profile.ResendVerification(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Verification email sent.")
		return nil

	default:
		fmt.Fprintln(c.out, "usage: atscheck profile [show|update|resend-verification]")
		return errUsage
	}
}
