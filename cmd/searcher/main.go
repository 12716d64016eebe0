package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/tgsearcher/internal/app"
	"github.com/dmitrijs2005/tgsearcher/internal/config"
	"github.com/dmitrijs2005/tgsearcher/internal/telegram"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	console := telegram.NewConsole(os.Stdout, cfg.AdminChat)
	a, err := app.New(ctx, cfg, console, console)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	go feedConsole(ctx, a, cfg.AdminChat)

	if err := a.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}

// feedConsole turns stdin lines into inbound messages of the admin chat, so
// the service can be driven interactively without a platform connection.
func feedConsole(ctx context.Context, a *app.App, chatID int64) {
	sc := bufio.NewScanner(os.Stdin)
	var id int64
	for sc.Scan() {
		id++
		a.HandleMessage(ctx, &telegram.Message{
			ChatID: chatID,
			ID:     id,
			Text:   sc.Text(),
			Date:   time.Now(),
		})
	}
}
