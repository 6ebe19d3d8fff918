package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/zerocas99/zenload/internal/activity"
	"github.com/zerocas99/zenload/internal/alerts"
	"github.com/zerocas99/zenload/internal/bot"
	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/deliver"
	"github.com/zerocas99/zenload/internal/download"
	"github.com/zerocas99/zenload/internal/middleware"
	"github.com/zerocas99/zenload/internal/platform"
	"github.com/zerocas99/zenload/internal/server"
	"github.com/zerocas99/zenload/internal/util"
)

func main() {
	godotenv.Load()
	config.Load()

	server.PrintBanner()
	util.EnsureTempDirs()
	util.ClearTempDirs()
	util.StartCleanupInterval()
	middleware.StartRateLimitCleanup()

	act, err := activity.Open(config.ActivityDBPath)
	if err != nil {
		log.Fatalf("Failed to open activity store: %v", err)
	}

	var tgAPI *tgbotapi.BotAPI
	var deliverer deliver.Deliverer
	switch config.DeliveryMode {
	case "discord":
		if config.DiscordToken == "" {
			log.Fatal("DISCORD_TOKEN is required for discord delivery")
		}
		session, err := discordgo.New("Bot " + config.DiscordToken)
		if err != nil {
			log.Fatalf("Failed to create discord session: %v", err)
		}
		if err := session.Open(); err != nil {
			log.Fatalf("Failed to open discord session: %v", err)
		}
		defer session.Close()
		deliverer = deliver.NewDiscord(session)
	default:
		if config.TelegramToken == "" {
			log.Fatal("TELEGRAM_TOKEN is required for telegram delivery")
		}
		tgAPI, err = tgbotapi.NewBotAPI(config.TelegramToken)
		if err != nil {
			log.Fatalf("Failed to connect to telegram: %v", err)
		}
		deliverer = deliver.NewTelegram(tgAPI)
	}

	dispatcher := platform.DefaultDispatcher(platform.NewProviders())
	worker := &download.Worker{
		Dispatcher: dispatcher,
		Deliverer:  deliverer,
		Activity:   act,
	}
	scheduler := download.NewScheduler(worker)

	var tgBot *bot.Bot
	if tgAPI != nil {
		tgBot = bot.New(tgAPI, deliverer, scheduler, dispatcher, act)
		tgBot.Start()
	}

	srv := server.New(scheduler, dispatcher, act)
	go func() {
		log.Printf("[Server] Listening on :%s", config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	alerts.Started()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	alerts.Stopping()

	if tgBot != nil {
		tgBot.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	scheduler.Shutdown()
	act.Close()
	log.Println("Stopped.")
}
