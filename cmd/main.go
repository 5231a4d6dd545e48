// Copyright (c) 2024, 0x0BSoD. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
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

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/0x0BSoD/dailyDigest/internal/api"
	"github.com/0x0BSoD/dailyDigest/internal/config"
	"github.com/0x0BSoD/dailyDigest/internal/dispatcher"
	"github.com/0x0BSoD/dailyDigest/internal/mailer"
	"github.com/0x0BSoD/dailyDigest/internal/news"
	"github.com/0x0BSoD/dailyDigest/internal/reporter"
	"github.com/0x0BSoD/dailyDigest/internal/scheduler"
	"github.com/0x0BSoD/dailyDigest/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := sqlx.Connect("postgres", config.Get().DatabaseDSN)
	if err != nil {
		log.Printf("[ERROR] failed to connect to db: %v", err)
		return
	}
	defer db.Close()

	if err := storage.InitSchema(ctx, db); err != nil {
		log.Printf("[ERROR] failed to init schema: %v", err)
		return
	}

	loc, err := time.LoadLocation(config.Get().Timezone)
	if err != nil {
		log.Printf("[ERROR] failed to load timezone %q: %v", config.Get().Timezone, err)
		return
	}

	var (
		subscriberStorage = storage.NewSubscriberStorage(db)
		articleStorage    = storage.NewArticleStorage(db)
		logStorage        = storage.NewDeliveryLogStorage(db)
	)

	var source dispatcher.ArticleSource
	switch config.Get().NewsSource {
	case "rss":
		if config.Get().RSSFeedURL == "" {
			log.Printf("[ERROR] rss_feed_url is required when news_source is \"rss\"")
			return
		}
		source = news.NewRSSSource(
			config.Get().RSSFeedURL,
			config.Get().RSSFeedName,
			config.Get().FetchTimeout,
		)
		log.Printf("[INFO] using RSS article source (%s)", config.Get().RSSFeedURL)
	default:
		source = news.NewAPISource(
			config.Get().NewsAPIBaseURL,
			config.Get().NewsAPIKey,
			config.Get().NewsQuery,
			config.Get().FetchTimeout,
		)
		log.Printf("[INFO] using news API article source")
	}

	var adminReporter *reporter.Reporter
	if config.Get().TelegramBotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(config.Get().TelegramBotToken)
		if err != nil {
			log.Printf("[ERROR] failed to create botAPI: %v", err)
			return
		}
		adminReporter = reporter.New(botAPI, config.Get().TelegramAdminChatID)
	}

	var (
		digestMailer = mailer.New(
			config.Get().SMTPHost,
			config.Get().SMTPPort,
			config.Get().SMTPFrom,
			config.Get().SMTPPassword,
		)
		batch = dispatcher.New(
			subscriberStorage,
			source,
			digestMailer,
			articleStorage,
			logStorage,
			config.Get().SendTimeout,
		)
	)

	job := func(ctx context.Context) error {
		summary, _, err := batch.Run(ctx)
		if errors.Is(err, dispatcher.ErrRunInProgress) {
			log.Printf("[INFO] scheduled trigger dropped, a run is already in progress")
			return nil
		}
		adminReporter.RunReport(summary)
		return err
	}

	daily := scheduler.New(config.Get().SendHour, config.Get().SendMinute, loc, job)
	defer daily.Stop()

	apiServer := api.New(db, subscriberStorage, articleStorage, logStorage, source, batch)

	go func(ctx context.Context) {
		if err := http.ListenAndServe(config.Get().ListenAddr, apiServer.Handler()); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("[ERROR] failed to run http server: %v", err)
				return
			}

			log.Printf("[INFO] http server stopped")
		}
	}(ctx)

	if err := daily.Start(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[ERROR] failed to run scheduler: %v", err)
			return
		}

		log.Printf("[INFO] scheduler stopped")
	}
}
