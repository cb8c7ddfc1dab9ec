package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"photowall/internal/models"
	"photowall/internal/viewer"
)

func main() {
	var (
		addr       = flag.String("addr", "ws://localhost:8080/ws", "wall websocket endpoint")
		token      = flag.String("token", "", "access token")
		uploadPath = flag.String("upload", "", "image file to upload before watching")
		caption    = flag.String("caption", "", "caption for the uploaded image")
		deleteName = flag.String("delete", "", "image name to delete before watching")
		interval   = flag.Duration("interval", 5*time.Second, "slideshow interval")
		watch      = flag.Bool("watch", true, "keep watching the wall after any upload/delete")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*addr, *token, *uploadPath, *caption, *deleteName, *interval, *watch, log); err != nil {
		log.Error("viewer failed", "error", err)
		os.Exit(1)
	}
}

func run(addr, token, uploadPath, caption, deleteName string, interval time.Duration, watch bool, log *slog.Logger) error {
	events := viewer.Events{
		OnImage: func(rec models.ImageRecord) {
			fmt.Printf("new image: %s  %q\n", rec.Name, rec.Description)
		},
		OnDeleted: func(name string) {
			fmt.Printf("deleted: %s\n", name)
		},
	}

	client, err := viewer.Dial(addr, events, log)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	level, err := client.Login(token)
	if err != nil {
		return err
	}
	fmt.Printf("logged in, level %d, %d images on the wall\n", level, client.Projection().Len())

	if uploadPath != "" {
		data, err := os.ReadFile(uploadPath)
		if err != nil {
			return err
		}
		name, err := client.Upload(data, mimeTypeFor(uploadPath), caption, token)
		if err != nil {
			return err
		}
		fmt.Printf("uploaded as %s\n", name)
	}

	if deleteName != "" {
		if err := client.Delete(deleteName, token); err != nil {
			return err
		}
	}

	if !watch {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if current, ok := client.Projection().Current(); ok {
				client.Projection().MarkShown(current.Name)
			}
			if next, ok := client.Projection().Advance(); ok {
				fmt.Printf("showing: %s  %q\n", next.Name, next.Description)
			}
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
