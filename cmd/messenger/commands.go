package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/abduss/messenger/internal/auth"
	"github.com/abduss/messenger/internal/profile"
	"github.com/abduss/messenger/internal/result"
)

const usage = `usage: messenger <command> [flags]

commands:
  send-code  -phone PHONE         request a verification code
  check-code -code CODE [-phone]  verify the code and sign in
  register   -name NAME -username USERNAME [-phone]
  me         [-refresh]           show the signed-in profile
  update     [-name] [-birthday] [-city] [-about] [-avatar FILE | -remove-avatar]
  watch                           print the cached profile whenever it changes
  status                          show whether a session is stored
  logout                          forget the session and the cached profile
`

var errUsage = errors.New("invalid usage")

type app struct {
	auth    *auth.Service
	profile *profile.Service
	out     io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "send-code":
		return a.sendCode(ctx, rest)
	case "check-code":
		return a.checkCode(ctx, rest)
	case "register":
		return a.register(ctx, rest)
	case "me":
		return a.me(ctx, rest)
	case "update":
		return a.update(ctx, rest)
	case "watch":
		return a.watch(ctx)
	case "status":
		return a.status()
	case "logout":
		return a.logout(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *app) sendCode(ctx context.Context, args []string) error {
	fs := a.flags("send-code")
	phone := fs.String("phone", "", "phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := a.auth.SendAuthCode(ctx, *phone).Unwrap(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "code sent to %s\n", auth.NormalizePhone(*phone))
	return nil
}

func (a *app) checkCode(ctx context.Context, args []string) error {
	fs := a.flags("check-code")
	phone := fs.String("phone", "", "phone number (defaults to the last one used)")
	code := fs.String("code", "", "verification code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.auth.CheckAuthCode(ctx, a.phoneOr(*phone), *code).Unwrap()
	if err != nil {
		return err
	}
	if !res.IsUserExists {
		fmt.Fprintln(a.out, "phone verified, no account yet: run register")
		return nil
	}
	fmt.Fprintf(a.out, "signed in as user %d\n", res.UserID)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := a.flags("register")
	phone := fs.String("phone", "", "phone number (defaults to the last one used)")
	name := fs.String("name", "", "display name")
	username := fs.String("username", "", "username (letters, digits, - and _)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.auth.Register(ctx, a.phoneOr(*phone), *name, *username).Unwrap()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered user %d\n", res.UserID)
	return nil
}

func (a *app) me(ctx context.Context, args []string) error {
	fs := a.flags("me")
	refresh := fs.Bool("refresh", false, "bypass the local cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.profile.GetCurrentUser(ctx, *refresh).Unwrap()
	if err != nil {
		return err
	}
	printUser(a.out, user)
	return nil
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := a.flags("update")
	name := fs.String("name", "", "display name")
	birthday := fs.String("birthday", "", "birthday as yyyy-MM-dd or dd.MM.yyyy, empty clears it")
	city := fs.String("city", "", "city, empty clears it")
	about := fs.String("about", "", "about text, empty clears it")
	avatar := fs.String("avatar", "", "path to a new avatar image")
	removeAvatar := fs.Bool("remove-avatar", false, "remove the current avatar")
	if err := fs.Parse(args); err != nil {
		return err
	}

	current, err := a.profile.GetCurrentUser(ctx, false).Unwrap()
	if err != nil {
		return err
	}

	// Fields not given on the command line keep their current values.
	in := profile.UpdateInput{
		Name:         current.Name,
		Birthday:     current.Birthday,
		City:         current.City,
		About:        current.About,
		RemoveAvatar: *removeAvatar,
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			in.Name = *name
		case "birthday":
			in.Birthday = optional(*birthday)
		case "city":
			in.City = optional(*city)
		case "about":
			in.About = optional(*about)
		}
	})
	if *avatar != "" {
		data, err := os.ReadFile(*avatar)
		if err != nil {
			return fmt.Errorf("read avatar: %w", err)
		}
		in.AvatarFilename = filepath.Base(*avatar)
		in.AvatarBase64 = base64.StdEncoding.EncodeToString(data)
	}

	user, err := a.profile.UpdateUser(ctx, in).Unwrap()
	if err != nil {
		return err
	}
	printUser(a.out, user)
	return nil
}

func (a *app) watch(ctx context.Context) error {
	for u := range a.profile.ObserveCurrentUser(ctx) {
		if u == nil {
			fmt.Fprintln(a.out, "(no cached profile)")
			continue
		}
		printUser(a.out, *u)
	}
	return nil
}

func (a *app) status() error {
	if !a.auth.IsAuthenticated() {
		fmt.Fprintln(a.out, "signed out")
		return nil
	}
	fmt.Fprintf(a.out, "signed in (%s)\n", a.auth.Phone())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	if err := a.profile.ClearCache(ctx); err != nil {
		return fmt.Errorf("clear profile cache: %w", err)
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func (a *app) phoneOr(phone string) string {
	if phone != "" {
		return phone
	}
	return a.auth.Phone()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func printUser(w io.Writer, u profile.User) {
	fmt.Fprintf(w, "id:       %d\n", u.ID)
	fmt.Fprintf(w, "name:     %s\n", u.Name)
	fmt.Fprintf(w, "username: %s\n", u.Username)
	fmt.Fprintf(w, "phone:    %s\n", u.Phone)
	if u.Birthday != nil {
		fmt.Fprintf(w, "birthday: %s", *u.Birthday)
		if sign := u.Zodiac(); sign != profile.ZodiacNone {
			fmt.Fprintf(w, " (%s)", sign)
		}
		fmt.Fprintln(w)
	}
	if u.City != nil {
		fmt.Fprintf(w, "city:     %s\n", *u.City)
	}
	if u.About != nil {
		fmt.Fprintf(w, "about:    %s\n", *u.About)
	}
	if u.Avatar != nil {
		fmt.Fprintf(w, "avatar:   %s\n", *u.Avatar)
	}
}

// exitCode maps a command error to the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	case result.IsAuthError(err):
		return 3
	default:
		return 1
	}
}
