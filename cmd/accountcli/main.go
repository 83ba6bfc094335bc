// accountcli exercises the account service the way the original front end
// did: it mounts the auth-state bridge against the HTTP client, signs in,
// and prints the route-guard decision for each page.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/accountkit/account-backend/internal/authstate"
	"github.com/accountkit/account-backend/internal/client"
	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/notify"
	"github.com/accountkit/account-backend/internal/roles"
)

var routeTable = []struct {
	path     string
	required []roles.Role
}{
	{"/dashboard", roles.UserRoles},
	{"/admin", roles.AdminRoles},
}

func main() {
	email := flag.String("email", "", "account email")
	register := flag.Bool("register", false, "create the account first")
	firstName := flag.String("first-name", "", "first name (with -register)")
	lastName := flag.String("last-name", "", "last name (with -register)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := client.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if *email == "" {
		fmt.Fprintln(os.Stderr, "error: -email is required")
		os.Exit(1)
	}

	password, err := readPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	api := client.New(cfg)
	store := authstate.NewStore()
	bridge := authstate.NewBridge(api, api, store, notify.New(), authstate.WithTimeout(10*time.Second))
	defer bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := bridge.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if *register {
		_, err = api.SignUp(ctx, identity.SignUpParams{
			Email:     *email,
			Password:  password,
			FirstName: *firstName,
			LastName:  *lastName,
		})
	} else {
		_, err = api.SignInWithPassword(ctx, *email, password)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	state := store.State()
	if state.User != nil {
		fmt.Printf("signed in as %s %s <%s> (%s)\n",
			state.User.FirstName, state.User.LastName, state.User.Email, state.User.Role)
	}

	for _, route := range routeTable {
		decision := authstate.Decide(store.State(), route.required)
		fmt.Printf("%-12s %s\n", route.path, decision)
	}

	if err := api.SignOut(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// readPassword takes the password from ACCOUNT_PASSWORD or prompts for it.
func readPassword() (string, error) {
	if p := os.Getenv("ACCOUNT_PASSWORD"); p != "" {
		return p, nil
	}

	fmt.Fprint(os.Stderr, "password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
