// tcore boots the teaching kernel with the bundled user programs and runs
// init until it exits.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tcore/pkg/apps"
	"tcore/pkg/config"
	"tcore/pkg/kernel"
)

func main() {
	// The first argument names the init program.
	name := kernel.InitProc
	if len(os.Args) > 1 {
		name = os.Args[1]
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	k, err := kernel.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create kernel: %v", err)
	}
	if err := k.InstallAll(apps.All()); err != nil {
		log.Fatalf("Failed to install apps: %v", err)
	}
	if name == "-l" || name == "list" {
		for _, name := range k.Programs() {
			fmt.Println(name)
		}
		return
	}
	k.SetConsole(os.Stdout)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Printf("Interrupted")
		os.Exit(130)
	}()

	log.Printf("Booting %s (policy %s, clock %s)", name, cfg.Policy, cfg.Clock)
	code, err := k.Run(name)
	if err != nil {
		log.Fatalf("Kernel error: %v", err)
	}
	log.Printf("%s exited with code %d", name, code)
	os.Exit(code)
}
