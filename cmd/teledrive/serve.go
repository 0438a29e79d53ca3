// serve.go — команда serve: read-only HTTP API над артефактами каталога.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/quangminh1212/TeleDrive-sub002/internal/api/handlers"
	"github.com/quangminh1212/TeleDrive-sub002/internal/query"
	"github.com/quangminh1212/TeleDrive-sub002/internal/server"
)

func cmdServe(ctx context.Context, cfgPath string, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", 0, "порт HTTP API (0 — из конфигурации)")
	artifact := fs.String("artifact", "", "закрепить конкретный артефакт вместо свежайшего")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	cfg, logs, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}
	defer logs.Close()

	if *port == 0 {
		*port = cfg.APIPort()
	}
	artifactsDir := cfg.Output().Directory

	repo := query.NewRepository(logs.API)
	files := handlers.NewFilesHandler(repo, artifactsDir, logs.API)
	if *artifact != "" {
		files.PinArtifact(*artifact)
	}
	health := handlers.NewHealthHandler(artifactsDir)

	srv := server.New(*port, files, health, logs.API, logs.Main)
	return srv.Run(ctx)
}
