package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tchatapp/tchat/internal/config"
	"github.com/tchatapp/tchat/internal/daemon"
	"github.com/tchatapp/tchat/internal/identity"
	"github.com/tchatapp/tchat/internal/profile"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.tchat/config.toml)")
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

	userID := identity.Current(profile.StatePath(base))
	if userID == "" {
		fmt.Fprintln(os.Stderr, "error: no signed-in identity; run `tchatctl login` first")
		os.Exit(1)
	}
	if err := profile.ValidateID(userID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			BaseDir:   base,
			ServerURL: cfg.ServerURL,
			UserID:    userID,
		}),
	)

	app.Run()
}
