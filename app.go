package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"tutor-support-bot/internal/bot"
	"tutor-support-bot/internal/config"
	"tutor-support-bot/internal/database"
	"tutor-support-bot/internal/embedding"
	"tutor-support-bot/internal/logger"
	"tutor-support-bot/internal/relay"
	"tutor-support-bot/internal/replies"
	"tutor-support-bot/internal/retrieval"
	"tutor-support-bot/internal/transport"

	"github.com/gin-gonic/gin"
	"gopkg.in/fsnotify.v1"
)

func main() {
	var (
		cnf = &config.Conf{}

		configFile = flag.String("config", "./config/config.yml", "Usage: -config=<config_file>")
		debug      = flag.Bool("debug", false, "Print debug information on stderr")
		importFaq  = flag.String("import-faq", "", "Usage: -import-faq=<faq_json_file>")
	)

	flag.Parse()

	config.GetConfig(*configFile, cnf)
	cnf.RunInDebug = *debug

	logFile := logger.InitLogger(*debug, cnf.LogDir)
	if logFile != nil {
		defer logFile.Close()
	}
	logger.Info("Application starting...")

	if *debug {
		logger.Debug("Config:", cnf)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.MigrateUp(cnf.DSN()); err != nil {
		logger.Crit("Error while apply migrations:", err)
	}

	db, err := database.Connect(cnf.DSN())
	if err != nil {
		logger.Crit("Error while connect to database:", err)
	}
	defer database.Close(db)

	store := database.NewStore(db)

	embedTimeout := time.Duration(cnf.Embedding.TimeoutSeconds) * time.Second
	embedder, err := embedding.NewClient(cnf.Embedding.Addr, cnf.Embedding.Model, embedTimeout)
	if err != nil {
		logger.Crit("Error while init embedding client:", err)
	}
	defer embedder.Close()

	if *importFaq != "" {
		importFaqFile(store, embedder, *importFaq)
		return
	}

	replies.Init(cnf.RepliesFile)

	client := transport.New(cnf.Gateway.Addr, cnf.Gateway.Login, cnf.Gateway.Password)
	rel := relay.New(store, client)
	engine := retrieval.New(store, embedder, embedTimeout)
	b := bot.New(store, engine, rel, client)

	app := gin.Default()
	app.POST("/support-push/receive/", b.Receive)

	logger.Info("Setup hook on gateway...")
	if err := client.SetHook(cnf.Server.Host + "/support-push/receive/"); err != nil {
		logger.Crit("Error while setup hook:", err)
	}

	srv := &http.Server{
		Addr:    cnf.Server.Listen,
		Handler: app,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Listen: %s\n", err)
		}
	}()

	// Следим за изменениями файла текстов.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Crit(err)
	}
	defer watcher.Close()
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				logger.Debug("watcher event:", event)
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					if err := replies.Update(cnf.RepliesFile); err != nil {
						logger.Warning("Не корректный файл текстов бота!", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warning("watcher error:", err)
			}
		}
	}()

	if cnf.RepliesFile != "" {
		if err := watcher.Add(path.Dir(cnf.RepliesFile)); err != nil {
			logger.Warning("Не удалось следить за файлом текстов:", err)
		}
	}

	logger.Info("Application started")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT)

	quit := make(chan int)

	go func() {
		for {
			sig := <-signals
			switch sig {
			// kill -SIGHUP XXXX
			// kill -SIGINT XXXX or Ctrl+c
			case syscall.SIGHUP, syscall.SIGINT:
				logger.Info("Catch OS signal! Exiting...")

				if err := client.DeleteHook(); err != nil {
					logger.Warning("Error while delete hook:", err)
				}

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					log.Fatal("App forced to shutdown:", err)
				}

				logger.Info("Application stopped correctly!")

				quit <- 0
			default:
				logger.Warning("Unknown signal")
			}
		}
	}()

	code := <-quit

	os.Exit(code)
}

type faqRecord struct {
	Category string   `json:"category"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords"`
}

// importFaqFile заливает базу FAQ из json-файла и считает вектор для
// каждой записи. Недоступный эмбеддер не срывает импорт: запись
// попадает в базу без вектора и находится лексическим поиском.
func importFaqFile(store database.Store, embedder embedding.Provider, filePath string) {
	input, err := os.ReadFile(filePath)
	if err != nil {
		logger.Crit("Error while read faq file:", err)
	}

	var records []faqRecord
	if err := json.Unmarshal(input, &records); err != nil {
		logger.Crit("Error while parse faq file:", err)
	}

	logger.Info("Importing", len(records), "faq records...")

	imported, vectorized := 0, 0
	for _, r := range records {
		if r.Question == "" || r.Answer == "" {
			logger.Warning("Skip faq record without question or answer:", r.Category)
			continue
		}

		keywords := strings.Join(r.Keywords, " ")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		vec, err := embedder.Embed(ctx, strings.TrimSpace(r.Question+" "+keywords))
		cancel()
		if err != nil {
			logger.Warning("Embed failed, record is stored without vector:", r.Question, err)
			vec = nil
		} else {
			vectorized++
		}

		entry := &database.FaqEntry{
			Category: r.Category,
			Question: r.Question,
			Answer:   r.Answer,
			Keywords: keywords,
		}
		if err := store.InsertFaq(context.Background(), entry, vec); err != nil {
			logger.Crit("Error while insert faq record:", err)
		}
		imported++
	}

	logger.Info("Faq import done:", imported, "records,", vectorized, "with vectors")
}
