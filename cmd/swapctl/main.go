package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nmanikumar5/swappio/internal/api"
	"github.com/nmanikumar5/swappio/internal/auth"
	"github.com/nmanikumar5/swappio/internal/config"
	"github.com/nmanikumar5/swappio/internal/rest"
	"github.com/nmanikumar5/swappio/internal/session"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

type cli struct {
	cfg      *config.Config
	session  *auth.Session
	accounts *api.Accounts
	messages *api.Messages
	listings *api.Listings
	favs     *api.Favorites
	reports  *api.Reports
	appCfg   *api.Config
	jsonOut  bool
}

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := newCLI(sessionName, *jsonFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		c.cmdLogin(ctx, args[1:])
	case "register":
		c.cmdRegister(ctx, args[1:])
	case "logout":
		c.cmdLogout(ctx)
	case "status":
		c.cmdStatus()
	case "me":
		c.cmdMe(ctx)
	case "conversations":
		c.cmdConversations(ctx)
	case "history":
		c.cmdHistory(ctx, args[1:])
	case "send":
		c.cmdSend(ctx, args[1:])
	case "listings":
		c.cmdListings(ctx, args[1:])
	case "favorites":
		c.cmdFavorites(ctx, args[1:])
	case "report":
		c.cmdReport(ctx, args[1:])
	case "config":
		c.cmdConfig(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func newCLI(sessionName string, jsonOut bool) (*cli, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	if err := session.EnsureDir(sessionName); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	store := auth.NewStore(session.CredentialsPath(sessionName))
	s, err := auth.NewSession(store, hc, cfg.APIBaseURL+"/auth/refresh", zap.NewNop())
	if err != nil {
		return nil, err
	}

	rc, err := rest.New(cfg.APIBaseURL, hc, s, zap.NewNop())
	if err != nil {
		return nil, err
	}

	return &cli{
		cfg:      cfg,
		session:  s,
		accounts: api.NewAccounts(rc, s),
		messages: api.NewMessages(rc),
		listings: api.NewListings(rc),
		favs:     api.NewFavorites(rc),
		reports:  api.NewReports(rc),
		appCfg:   api.NewConfig(rc),
		jsonOut:  jsonOut,
	}, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: swapctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <email> [password]     Sign in (password read from stdin if omitted)")
	fmt.Fprintln(os.Stderr, "  register <name> <email>      Create an account")
	fmt.Fprintln(os.Stderr, "  logout                       Sign out and clear stored credentials")
	fmt.Fprintln(os.Stderr, "  status                       Show local session state")
	fmt.Fprintln(os.Stderr, "  me                           Show the signed-in profile")
	fmt.Fprintln(os.Stderr, "  conversations                List conversations")
	fmt.Fprintln(os.Stderr, "  history <user-id> [page]     Show message history with a user")
	fmt.Fprintln(os.Stderr, "  send <user-id> <text...>     Send a message over REST")
	fmt.Fprintln(os.Stderr, "  listings search [query]      Search listings")
	fmt.Fprintln(os.Stderr, "  listings get <id>            Show one listing")
	fmt.Fprintln(os.Stderr, "  listings qr <id>             Print a share QR code for a listing")
	fmt.Fprintln(os.Stderr, "  favorites list|add|remove    Manage favorites")
	fmt.Fprintln(os.Stderr, "  report <listing-id> <reason> Report a listing")
	fmt.Fprintln(os.Stderr, "  config                       Show server-driven app config")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func (c *cli) outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (c *cli) cmdLogin(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: swapctl login <email> [password]")
		os.Exit(1)
	}
	email := args[0]
	var password string
	if len(args) >= 2 {
		password = args[1]
	} else {
		fmt.Fprint(os.Stderr, "password: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			password = scanner.Text()
		}
	}

	user, err := c.accounts.Login(ctx, email, password)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Signed in as %s <%s>\n", user.Name, user.Email)
}

func (c *cli) cmdRegister(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: swapctl register <name> <email> [password]")
		os.Exit(1)
	}
	name, email := args[0], args[1]
	var password string
	if len(args) >= 3 {
		password = args[2]
	} else {
		fmt.Fprint(os.Stderr, "password: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			password = scanner.Text()
		}
	}

	user, err := c.accounts.Register(ctx, name, email, password)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Account created. Signed in as %s <%s>\n", user.Name, user.Email)
}

func (c *cli) cmdLogout(ctx context.Context) {
	if err := c.accounts.Logout(ctx); err != nil {
		fatal(err)
	}
	fmt.Println("Signed out.")
}

func (c *cli) cmdStatus() {
	type statusOut struct {
		Authenticated bool   `json:"authenticated"`
		User          string `json:"user,omitempty"`
		Email         string `json:"email,omitempty"`
		TokenExpires  string `json:"token_expires,omitempty"`
	}
	out := statusOut{Authenticated: c.session.Authenticated()}
	if u := c.session.User(); u != nil {
		out.User = u.Name
		out.Email = u.Email
	}
	if exp, ok := c.session.ExpiresAt(); ok {
		out.TokenExpires = exp.Local().Format(time.RFC3339)
	}

	if c.jsonOut {
		c.outputJSON(out)
		return
	}
	if !out.Authenticated {
		fmt.Println("Not signed in. Run: swapctl login <email>")
		return
	}
	fmt.Printf("Signed in:     %s <%s>\n", out.User, out.Email)
	if out.TokenExpires != "" {
		fmt.Printf("Token expires: %s\n", out.TokenExpires)
	}
}

func (c *cli) cmdMe(ctx context.Context) {
	user, err := c.accounts.Me(ctx)
	if err != nil {
		fatal(err)
	}
	if c.jsonOut {
		c.outputJSON(user)
		return
	}
	fmt.Printf("%s <%s>\n", user.Name, user.Email)
}

func (c *cli) cmdConversations(ctx context.Context) {
	convs, err := c.messages.Conversations(ctx)
	if err != nil {
		fatal(err)
	}
	if c.jsonOut {
		c.outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range convs {
		preview := ""
		if conv.LastMessage != nil {
			preview = conv.LastMessage.Text
		}
		unread := ""
		if conv.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", conv.UnreadCount)
		}
		fmt.Printf("%-26s %s%s\n", conv.User.Name, preview, unread)
	}
}

func (c *cli) cmdHistory(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: swapctl history <user-id> [page]")
		os.Exit(1)
	}
	page := 1
	if len(args) >= 2 {
		p, err := strconv.Atoi(args[1])
		if err != nil || p < 1 {
			fmt.Fprintln(os.Stderr, "page must be a positive number")
			os.Exit(1)
		}
		page = p
	}

	msgs, err := c.messages.History(ctx, args[0], page, 50)
	if err != nil {
		fatal(err)
	}
	if c.jsonOut {
		c.outputJSON(msgs)
		return
	}
	selfID := ""
	if u := c.session.User(); u != nil {
		selfID = u.ID
	}
	for _, m := range msgs {
		who := m.Sender.String()
		if who == selfID {
			who = "you"
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("Jan 02 15:04"), who, m.Text)
	}
}

func (c *cli) cmdSend(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: swapctl send <user-id> <text...>")
		os.Exit(1)
	}
	msg, err := c.messages.Send(ctx, args[0], strings.Join(args[1:], " "), "")
	if err != nil {
		fatal(err)
	}
	if c.jsonOut {
		c.outputJSON(msg)
		return
	}
	fmt.Printf("Sent %s\n", msg.ID)
}

func (c *cli) cmdListings(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: swapctl listings <search|get|qr> ...")
		os.Exit(1)
	}
	switch args[0] {
	case "search":
		query := strings.Join(args[1:], " ")
		listings, err := c.listings.Search(ctx, api.SearchFilter{Query: query, Limit: 25})
		if err != nil {
			fatal(err)
		}
		if c.jsonOut {
			c.outputJSON(listings)
			return
		}
		for _, l := range listings {
			fmt.Printf("%-26s %8.2f %s  %s\n", l.ID, l.Price, l.Currency, l.Title)
		}
	case "get":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: swapctl listings get <id>")
			os.Exit(1)
		}
		l, err := c.listings.Get(ctx, args[1])
		if err != nil {
			fatal(err)
		}
		if c.jsonOut {
			c.outputJSON(l)
			return
		}
		fmt.Printf("%s\n%.2f %s · %s · %s\n\n%s\n", l.Title, l.Price, l.Currency, l.Category, l.Status, l.Description)
	case "qr":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: swapctl listings qr <id>")
			os.Exit(1)
		}
		// Verify the listing exists before printing a share link for it.
		l, err := c.listings.Get(ctx, args[1])
		if err != nil {
			fatal(err)
		}
		link := c.cfg.WebBaseURL + "/listings/" + l.ID.String()
		fmt.Printf("%s\n\n%s\n", l.Title, renderQR(link))
		fmt.Println(link)
	default:
		fmt.Fprintf(os.Stderr, "unknown listings subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func (c *cli) cmdFavorites(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: swapctl favorites <list|add|remove> [id]")
		os.Exit(1)
	}
	switch args[0] {
	case "list":
		listings, err := c.favs.List(ctx)
		if err != nil {
			fatal(err)
		}
		if c.jsonOut {
			c.outputJSON(listings)
			return
		}
		for _, l := range listings {
			fmt.Printf("%-26s %8.2f %s  %s\n", l.ID, l.Price, l.Currency, l.Title)
		}
	case "add", "remove":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "usage: swapctl favorites %s <id>\n", args[0])
			os.Exit(1)
		}
		var err error
		if args[0] == "add" {
			err = c.favs.Add(ctx, args[1])
		} else {
			err = c.favs.Remove(ctx, args[1])
		}
		if err != nil {
			fatal(err)
		}
		fmt.Println("OK")
	default:
		fmt.Fprintf(os.Stderr, "unknown favorites subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func (c *cli) cmdReport(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: swapctl report <listing-id> <reason> [details...]")
		os.Exit(1)
	}
	details := strings.Join(args[2:], " ")
	if err := c.reports.Create(ctx, args[0], args[1], details); err != nil {
		fatal(err)
	}
	fmt.Println("Report submitted.")
}

func (c *cli) cmdConfig(ctx context.Context) {
	appCfg, err := c.appCfg.Get(ctx)
	if err != nil {
		fatal(err)
	}
	if c.jsonOut {
		c.outputJSON(appCfg)
		return
	}
	fmt.Printf("Categories:  %s\n", strings.Join(appCfg.Categories, ", "))
	fmt.Printf("Max images:  %d\n", appCfg.MaxImages)
	for _, p := range appCfg.PaymentPlans {
		fmt.Printf("Plan: %-16s %.2f %s / %d days\n", p.Name, p.Price, p.Currency, p.DurationDays)
	}
}

// renderQR converts a link to a compact ASCII QR code using Unicode
// half-block characters. Two bitmap rows become one terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := false
			if y+1 < rows {
				bot = bitmap[y+1][x]
			}
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top && !bot:
				sb.WriteRune('▀')
			case !top && bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
