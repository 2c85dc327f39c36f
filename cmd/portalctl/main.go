// portalctl is the admin command line for the portal API. It drives the
// same client SDK the frontend embeds: file-backed token store, session
// resolver and route guards.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"alumnihub.org/internal/client"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		baseURL   = flag.String("url", envOr("PORTAL_URL", "http://localhost:8080"), "Portal API base URL")
		statePath = flag.String("state", os.Getenv("PORTAL_STATE_FILE"), "Session state file")
		timeout   = flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	)
	flag.Parse()

	if *statePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("resolve home dir: %v", err)
		}
		*statePath = filepath.Join(home, ".config", "alumnihub", "session.json")
	}

	store := client.NewFileStore(*statePath)
	c := client.New(*baseURL, store, client.WithTimeout(*timeout))
	resolver := client.NewResolver(c)
	guard := client.NewGuard(resolver)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	app := &app{client: c, resolver: resolver, guard: guard}

	var err error
	switch args[0] {
	case "login":
		err = app.login(ctx)
	case "logout":
		err = app.client.Logout(ctx)
	case "whoami":
		err = app.whoami(ctx)
	case "session":
		err = app.session(ctx)
	case "users":
		err = app.users(ctx, args[1:])
	case "events":
		err = app.events(ctx, args[1:])
	case "reset-request":
		err = app.resetRequest(ctx, args[1:])
	case "reset-confirm":
		err = app.resetConfirm(ctx, args[1:])
	default:
		usage()
	}
	if err != nil {
		if fields, ok := client.FieldsOf(err); ok {
			for name, msg := range fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", name, msg)
			}
		}
		log.Fatalf("%s: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: portalctl [flags] <command>

commands:
  login                        authenticate and store the token pair
  logout                       revoke the session and clear local state
  whoami                       show the caller's profile
  session                      show the resolved session verdict
  users list                   list users (admin)
  users approve <id>           approve a pending user (admin)
  users reject <id>            reject a user (admin)
  users deactivate <id>        soft-delete a user (admin)
  events list                  list visible events
  events approve <id>          approve an event (admin)
  events reject <id>           reject an event (admin)
  events delete <id>           delete an event
  reset-request <email>        request a password reset code
  reset-confirm <email> <otp>  confirm a reset with a new password`)
	os.Exit(2)
}

type app struct {
	client   *client.Client
	resolver *client.Resolver
	guard    *client.Guard
}

func (a *app) login(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	if err := a.client.Login(ctx, strings.TrimSpace(username), string(password)); err != nil {
		return err
	}
	fmt.Println("Logged in.")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	user, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	return printJSON(user)
}

func (a *app) session(ctx context.Context) error {
	verdict, err := a.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	fmt.Println(verdict)
	return nil
}

func (a *app) users(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
	}
	if err := a.requireAdmin(ctx); err != nil {
		return err
	}
	switch args[0] {
	case "list":
		users, err := a.client.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			status := "approved"
			switch {
			case u.RejectedAt != nil:
				status = "rejected"
			case !u.IsApproved:
				status = "pending"
			case !u.IsActive:
				status = "inactive"
			}
			fmt.Printf("%s  %-20s %-10s %s\n", u.ID, u.Username, status, u.Email)
		}
		return nil
	case "approve":
		user, err := a.client.ApproveUser(ctx, arg(args, 1))
		if err != nil {
			return err
		}
		return printJSON(user)
	case "reject":
		user, err := a.client.RejectUser(ctx, arg(args, 1))
		if err != nil {
			return err
		}
		return printJSON(user)
	case "deactivate":
		user, err := a.client.DeactivateUser(ctx, arg(args, 1))
		if err != nil {
			return err
		}
		return printJSON(user)
	default:
		usage()
	}
	return nil
}

func (a *app) events(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
	}
	switch args[0] {
	case "list":
		events, err := a.client.ListEvents(ctx)
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Printf("%s  %-10s %-30s %s\n", e.ID, e.Status, e.Name,
				e.StartsAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	case "approve":
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		event, err := a.client.ApproveEvent(ctx, arg(args, 1))
		if err != nil {
			return err
		}
		return printJSON(event)
	case "reject":
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		event, err := a.client.RejectEvent(ctx, arg(args, 1))
		if err != nil {
			return err
		}
		return printJSON(event)
	case "delete":
		return a.client.DeleteEvent(ctx, arg(args, 1))
	default:
		usage()
	}
	return nil
}

func (a *app) resetRequest(ctx context.Context, args []string) error {
	if err := a.client.RequestPasswordReset(ctx, arg(args, 0)); err != nil {
		return err
	}
	fmt.Println("If an account exists for that email, a reset code has been sent.")
	return nil
}

func (a *app) resetConfirm(ctx context.Context, args []string) error {
	email := arg(args, 0)
	otp := arg(args, 1)
	fmt.Print("New password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	if err := a.client.ConfirmPasswordReset(ctx, email, otp, string(password)); err != nil {
		return err
	}
	fmt.Println("Password has been reset.")
	return nil
}

// requireAdmin runs the admin guard before issuing admin calls, the same
// way a frontend route would.
func (a *app) requireAdmin(ctx context.Context) error {
	decision, err := a.guard.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	if !decision.Allow {
		return fmt.Errorf("admin access required (session is %s)", decision.Verdict)
	}
	return nil
}

func arg(args []string, i int) string {
	if i >= len(args) {
		usage()
	}
	return args[i]
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
