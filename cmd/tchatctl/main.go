package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tchatapp/tchat/internal/api"
	"github.com/tchatapp/tchat/internal/bus"
	"github.com/tchatapp/tchat/internal/cache"
	"github.com/tchatapp/tchat/internal/config"
	"github.com/tchatapp/tchat/internal/identity"
	"github.com/tchatapp/tchat/internal/lifecycle"
	"github.com/tchatapp/tchat/internal/profile"
	"github.com/tchatapp/tchat/internal/status"
	"github.com/tchatapp/tchat/internal/store"
	intsync "github.com/tchatapp/tchat/internal/sync"
	"go.uber.org/zap"
)

type env struct {
	base   string
	cfg    *config.Config
	bus    *bus.Bus
	client *api.Client
}

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.tchat/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	cachedFlag := flag.Bool("cached", false, "messages: return cached view, reconcile in background")
	flag.Parse()

	base := profile.DefaultBaseDir()
	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = profile.ConfigPath(base)
	}
	cfg := config.Resolve(cfgPath)
	if cfg.BaseDir != "" {
		base = cfg.BaseDir
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	b := bus.New()
	e := &env{
		base:   base,
		cfg:    cfg,
		bus:    b,
		client: api.New(cfg.ServerURL, profile.StatePath(base), b, zap.NewNop()),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "signup":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: tchatctl signup <username> <email> <password> [unique-id]")
			os.Exit(1)
		}
		uniqueID := ""
		if len(args) >= 5 {
			uniqueID = args[4]
		}
		cmdSignup(ctx, e, args[1], args[2], args[3], uniqueID)
	case "login":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: tchatctl login <username> <password>")
			os.Exit(1)
		}
		cmdLogin(ctx, e, args[1], args[2])
	case "logout":
		cmdLogout(ctx, e)
	case "delete-account":
		cmdDeleteAccount(ctx, e)
	case "forgot-username":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tchatctl forgot-username <email>")
			os.Exit(1)
		}
		e.must(e.client.ForgotUsername(ctx, args[1]))
		fmt.Println("If the email is registered, a reminder was sent.")
	case "forgot-password":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: tchatctl forgot-password <username> <email>")
			os.Exit(1)
		}
		e.must(e.client.ForgotPassword(ctx, args[1], args[2]))
		fmt.Println("If the account matches, a reset email was sent.")
	case "whoami":
		cmdWhoami(e, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tchatctl [--cached] [--json] messages <peer-id>")
			os.Exit(1)
		}
		cmdMessages(ctx, e, args[1], *cachedFlag, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: tchatctl send <peer-id> <text...>")
			os.Exit(1)
		}
		e.must(e.client.SendMessage(ctx, args[1], strings.Join(args[2:], " ")))
		fmt.Println("Sent.")
	case "clear":
		peer := ""
		if len(args) >= 2 {
			peer = args[1]
		}
		cmdClear(e, peer)
	case "stats":
		cmdStats(e, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: tchatctl [--config <path>] [--json] [--cached] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  signup <user> <email> <pass>   Create an account and sign in")
	fmt.Fprintln(os.Stderr, "  login <user> <pass>            Sign in")
	fmt.Fprintln(os.Stderr, "  logout                         Sign out and purge the local cache")
	fmt.Fprintln(os.Stderr, "  delete-account                 Delete the account and purge the local cache")
	fmt.Fprintln(os.Stderr, "  forgot-username <email>        Request a username reminder")
	fmt.Fprintln(os.Stderr, "  forgot-password <user> <email> Request a password reset")
	fmt.Fprintln(os.Stderr, "  whoami                         Show the signed-in identity")
	fmt.Fprintln(os.Stderr, "  messages <peer-id>             Show a conversation (synced with the server)")
	fmt.Fprintln(os.Stderr, "  send <peer-id> <text...>       Send a message")
	fmt.Fprintln(os.Stderr, "  clear [peer-id]                Clear one conversation, or the whole cache")
	fmt.Fprintln(os.Stderr, "  stats                          Show cache counters")
}

// must exits on error. A server auth rejection additionally tears down the
// expired identity's partition first, the same reaction the daemon has to an
// auth.expired event; without it a one-shot command would exit with stale
// data still on disk.
func (e *env) must(err error) {
	if err == nil {
		return
	}
	if purgeOnAuthError(e, err) {
		fmt.Fprintln(os.Stderr, "session expired: local cache purged; run `tchatctl login`")
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// purgeOnAuthError purges the current identity's partition when err is a
// 401/403 from the server. Reports whether a teardown ran.
func purgeOnAuthError(e *env, err error) bool {
	if !api.IsAuthError(err) {
		return false
	}
	lm := lifecycle.New(e.base, e.bus, zap.NewNop())
	if purgeErr := lm.OnSessionExpired(); purgeErr != nil {
		fmt.Fprintf(os.Stderr, "warning: cache teardown after expiry failed: %v\n", purgeErr)
	}
	return true
}

// currentUser returns the signed-in user id or exits.
func currentUser(e *env) string {
	userID := identity.Current(profile.StatePath(e.base))
	if userID == "" {
		fmt.Fprintln(os.Stderr, "error: not signed in; run `tchatctl login` first")
		os.Exit(1)
	}
	return userID
}

// openCache opens and migrates the signed-in identity's message store.
func openCache(e *env, userID string) *cache.Cache {
	e.must(profile.EnsureDir(e.base, userID))
	db, err := store.Open(profile.CacheDBPath(e.base, userID))
	e.must(err)
	_, err = db.Migrate()
	e.must(err)
	return cache.New(db, e.bus, zap.NewNop())
}

func cmdSignup(ctx context.Context, e *env, username, email, password, uniqueID string) {
	resp, err := e.client.Signup(ctx, &api.SignupRequest{
		Username: username,
		Email:    email,
		Password: password,
		UniqueID: uniqueID,
	})
	e.must(err)
	finishLogin(e, resp)
	fmt.Printf("Account created. Signed in as %s (%s)\n", username, resp.ID())
}

func cmdLogin(ctx context.Context, e *env, username, password string) {
	resp, err := e.client.Login(ctx, username, password)
	e.must(err)
	finishLogin(e, resp)
	fmt.Printf("Signed in as %s (%s)\n", username, resp.ID())
}

// finishLogin purges any previous identity's partition before persisting the
// new credentials, so the next read can never see another account's cache.
func finishLogin(e *env, resp *api.AuthResponse) {
	if resp.ID() == "" {
		fmt.Fprintln(os.Stderr, "error: server response had no user id")
		os.Exit(1)
	}
	lm := lifecycle.New(e.base, e.bus, zap.NewNop())
	e.must(lm.OnLogin(resp.ID()))
	e.must(identity.SaveState(profile.StatePath(e.base), &identity.State{
		UserID:   resp.ID(),
		Token:    resp.Token,
		Nickname: resp.Nickname,
	}))
}

func cmdLogout(ctx context.Context, e *env) {
	if err := e.client.Logout(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: server logout failed: %v\n", err)
	}
	lm := lifecycle.New(e.base, e.bus, zap.NewNop())
	e.must(lm.OnLogout())
	fmt.Println("Signed out. Local cache purged.")
}

func cmdDeleteAccount(ctx context.Context, e *env) {
	userID := currentUser(e)
	e.must(e.client.DeleteAccount(ctx, userID))
	lm := lifecycle.New(e.base, e.bus, zap.NewNop())
	e.must(lm.OnAccountDeleted())
	fmt.Println("Account deleted. Local cache purged.")
}

func cmdWhoami(e *env, jsonOut bool) {
	st, err := identity.LoadState(profile.StatePath(e.base))
	e.must(err)
	if st.UserID == "" && st.Token == "" {
		fmt.Println("Not signed in.")
		return
	}
	if jsonOut {
		outputJSON(map[string]any{
			"userId":   identity.Current(profile.StatePath(e.base)),
			"nickname": st.Nickname,
			"expired":  identity.TokenExpired(st.Token),
		})
		return
	}
	fmt.Printf("User:     %s\n", identity.Current(profile.StatePath(e.base)))
	if st.Nickname != "" {
		fmt.Printf("Nickname: %s\n", st.Nickname)
	}
	if identity.TokenExpired(st.Token) {
		fmt.Println("Session:  expired")
	} else {
		fmt.Println("Session:  valid")
	}
}

func cmdMessages(ctx context.Context, e *env, peerID string, cached, jsonOut bool) {
	userID := currentUser(e)
	c := openCache(e, userID)
	defer func() { _ = c.Close() }()

	engine := intsync.NewEngine(c, e.client, status.NewTracker(e.bus), zap.NewNop())

	var msgs []store.Message
	var err error
	if cached {
		msgs, err = engine.GetMessagesCacheFirst(ctx, peerID)
	} else {
		msgs, err = engine.GetMessages(ctx, peerID)
	}
	e.must(err)

	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.SenderID, m.Body)
	}
}

func cmdClear(e *env, peerID string) {
	userID := currentUser(e)
	c := openCache(e, userID)
	defer func() { _ = c.Close() }()

	if peerID == "" {
		e.must(c.ClearAll())
		fmt.Println("Cache cleared.")
		return
	}
	e.must(c.ClearConversation(peerID))
	fmt.Printf("Conversation %s cleared.\n", peerID)
}

func cmdStats(e *env, jsonOut bool) {
	userID := currentUser(e)
	c := openCache(e, userID)
	defer func() { _ = c.Close() }()

	stats, err := c.Stats()
	e.must(err)
	if jsonOut {
		outputJSON(stats)
		return
	}
	fmt.Printf("Messages:      %d\n", stats.TotalMessages)
	fmt.Printf("Conversations: %d\n", stats.Conversations)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
