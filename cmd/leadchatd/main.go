package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/matheus3301/leadchat/internal/config"
	"github.com/matheus3301/leadchat/internal/daemon"
	"github.com/matheus3301/leadchat/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	initFlag := flag.Bool("init", false, "write a default leadchat.toml for the profile and exit")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := profile.EnsureDir(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *initFlag {
		if err := writeDefaultConfig(profileName); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName}),
	)

	app.Run()
}

func writeDefaultConfig(profileName string) error {
	path := profile.ConfigPath(profileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := config.Save(path, config.Defaults()); err != nil {
		return err
	}
	fmt.Printf("wrote %s; set provider.url and provider.token before starting leadchatd\n", path)
	return nil
}
