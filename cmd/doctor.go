package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goicq/internal/botapi"
	"github.com/nextlevelbuilder/goicq/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and API reachability",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("goicq doctor")
	fmt.Printf("  Version:  %s (library %s)\n", Version, botapi.LibraryVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults and env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	fmt.Println()
	fmt.Println("  Bot:")
	fmt.Printf("    %-14s %s\n", "Token:", maskToken(cfg.Bot.Token))
	fmt.Printf("    %-14s %s\n", "API:", cfg.Bot.APIURL)
	fmt.Printf("    %-14s %s\n", "Poll timeout:", cfg.Bot.PollTimeout())
	owner := cfg.Bot.Owner
	if owner == "" {
		owner = "(not configured)"
	}
	fmt.Printf("    %-14s %s\n", "Owner:", owner)

	if cfg.Bot.Token != "" {
		fmt.Println()
		checkSession(cfg)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSession(cfg *config.Config) {
	client, err := newClient(cfg, nil)
	if err != nil {
		fmt.Printf("  API:      CLIENT FAILED (%s)\n", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bot.Timeout()+5*time.Second)
	defer cancel()

	if _, err := client.ValidateSID(ctx); err != nil {
		fmt.Printf("  API:      SESSION INVALID (%s)\n", err)
		return
	}
	fmt.Println("  API:      session OK")
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(not configured)"
	case len(token) <= 8:
		return strings.Repeat("*", len(token))
	default:
		return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
	}
}
