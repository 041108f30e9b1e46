package main

import (
	"bytes"
	"context"
	"economic-news-bot/config"
	"economic-news-bot/internal/alert"
	"economic-news-bot/internal/calendar"
	"economic-news-bot/internal/database"
	"economic-news-bot/internal/subscription"
	"economic-news-bot/internal/telegram"
	"economic-news-bot/internal/types"
	"fmt"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/leonelquinteros/gotext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

type BotMetrics struct {
	CommandsProcessed  prometheus.Counter
	MessagesHandled    prometheus.Counter
	AlertsSent         *prometheus.CounterVec
	AlertsFailed       *prometheus.CounterVec
	LedgerPurged       prometheus.Counter
	CalendarEvents     prometheus.Gauge
	ChannelsCount      prometheus.Gauge
	ChannelNames       *prometheus.CounterVec
	ChannelsSet        map[int64]string
	MessagesPerChannel *prometheus.CounterVec
	Mutex              sync.Mutex
}

var (
	metrics = NewBotMetrics()
)

func init() {
	config.InitConfig()
	setupLogging()
}

func NewBotMetrics() *BotMetrics {
	metrics := &BotMetrics{
		CommandsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economic_news",
			Subsystem: "telegram_bot",
			Name:      "commands_processed",
			Help:      "The total number of processed commands",
		}),
		MessagesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economic_news",
			Subsystem: "telegram_bot",
			Name:      "messages_handled",
			Help:      "The total number of handled messages",
		}),
		AlertsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "economic_news",
				Subsystem: "telegram_bot",
				Name:      "alerts_sent",
				Help:      "The total number of delivered alerts by kind",
			},
			[]string{"kind"},
		),
		AlertsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "economic_news",
				Subsystem: "telegram_bot",
				Name:      "alerts_failed",
				Help:      "The total number of alerts dropped after delivery failed",
			},
			[]string{"kind"},
		),
		LedgerPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economic_news",
			Subsystem: "telegram_bot",
			Name:      "ledger_entries_purged",
			Help:      "The total number of delivery ledger entries removed by cleanup",
		}),
		CalendarEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "economic_news",
			Subsystem: "telegram_bot",
			Name:      "calendar_events_loaded",
			Help:      "The current number of loaded calendar events",
		}),
		ChannelsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "economic_news",
			Subsystem: "telegram_bot",
			Name:      "channels_count",
			Help:      "The current number of unique channels the bot is operating in",
		}),
		ChannelNames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "economic_news",
				Subsystem: "telegram_bot",
				Name:      "channel_names",
				Help:      "Tracks channels the bot has interacted with",
			},
			[]string{"chat_id", "chat_name"},
		),
		MessagesPerChannel: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "economic_news",
				Subsystem: "telegram_bot",
				Name:      "messages_per_channel",
				Help:      "The total number of messages handled per channel",
			},
			[]string{"chat_id", "chat_name"},
		),
		ChannelsSet: make(map[int64]string),
	}

	prometheus.MustRegister(metrics.CommandsProcessed)
	prometheus.MustRegister(metrics.MessagesHandled)
	prometheus.MustRegister(metrics.AlertsSent)
	prometheus.MustRegister(metrics.AlertsFailed)
	prometheus.MustRegister(metrics.LedgerPurged)
	prometheus.MustRegister(metrics.CalendarEvents)
	prometheus.MustRegister(metrics.ChannelsCount)
	prometheus.MustRegister(metrics.ChannelNames)
	prometheus.MustRegister(metrics.MessagesPerChannel)

	return metrics
}

// AlertSent implements alert.Observer.
func (m *BotMetrics) AlertSent(kind types.AlertKind) {
	m.AlertsSent.WithLabelValues(string(kind)).Inc()
}

func (m *BotMetrics) AlertFailed(kind types.AlertKind) {
	m.AlertsFailed.WithLabelValues(string(kind)).Inc()
}

func (m *BotMetrics) CleanupRan(purgedEntries, droppedDays int) {
	m.LedgerPurged.Add(float64(purgedEntries))
}

func main() {
	gotext.Configure("locales", strings.ToLower(config.GetString("lang")), "default")

	db, err := database.Init(config.GetString("database_path"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	LoadMetricsFromDB(db)

	refZone, err := time.LoadLocation(config.GetString("reference_timezone"))
	if err != nil {
		log.Fatalf("Failed to load reference timezone: %v", err)
	}

	calendarDir := config.GetString("calendar_dir")
	store := calendar.NewStore(calendar.NewCSVSource(calendarDir), refZone)
	registry := subscription.NewRegistry(db)
	ledger := alert.NewLedger()

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	}, store, registry, ledger)

	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updater := calendar.NewUpdater(store, calendarDir, config.GetDuration("refresh_interval"))
	updater.OnResult = func(day string, count int, err error) {
		if err == nil {
			metrics.CalendarEvents.Set(float64(store.Count()))
		}
	}
	updater.Start(ctx)

	scheduler := alert.NewScheduler(store, registry, ledger, bot, metrics, alert.Options{
		WarningWindow:    config.GetDuration("warning_window"),
		ReleaseGrace:     config.GetDuration("release_grace"),
		TickInterval:     config.GetDuration("tick_interval"),
		CleanupInterval:  config.GetDuration("cleanup_interval"),
		Retention:        config.GetDuration("retention"),
		DispatchTimeout:  config.GetDuration("dispatch_timeout"),
		DispatchAttempts: config.GetInt("dispatch_attempts"),
		DispatchBackoff:  config.GetDuration("dispatch_backoff"),
	})
	scheduler.Start(ctx)

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		log.Fatalf("Failed to get updates channel: %v", err)
	}

	go handleUpdates(bot, updates)

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			SaveMetricsToDB(db)
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
		SaveMetricsToDB(db)
		log.Println("Metrics saved, shutting down...")
		os.Exit(0)
	}()

	if err := launchMetricsAndHealthServer(config.GetInt("metrics_port")); err != nil {
		log.Fatalf("Failed to start metrics and health server: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting telegram bot...")
}

func handleUpdates(bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		if update.CallbackQuery != nil {
			bot.HandleCallbackQuery(update.CallbackQuery)
			continue
		}

		if update.Message == nil {
			log.Debug("Received non-message or non-command")
			continue
		}

		if update.Message.ReplyToMessage != nil {
			bot.HandleReply(update.Message)
			continue
		}

		if !update.Message.IsCommand() {
			continue
		}

		metrics.MessagesHandled.Inc()

		chatID := update.Message.Chat.ID
		chatName := update.Message.Chat.Title
		if chatName == "" {
			chatName = fmt.Sprintf("%s-%d", "PrivateChat", chatID)
		}

		updateChannelsSet(chatID, chatName)

		metrics.MessagesPerChannel.WithLabelValues(
			fmt.Sprintf("%d", chatID), chatName,
		).Inc()

		handleCommand(bot, update)
	}
}

func handleCommand(bot *telegram.Bot, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	text := bot.HandleUpdate(update)
	if text == "" {
		// The handler already replied (charts, keyboards, chunked listings).
		metrics.CommandsProcessed.Inc()
		return
	}

	err := bot.SendMessage(telegram.Message{
		ChatID:    int(update.Message.Chat.ID),
		Text:      text,
		MessageID: update.Message.MessageID,
	})

	if err != nil {
		log.Errorf("Failed to send message: %v", err)
	} else {
		metrics.CommandsProcessed.Inc()
	}
}

func updateChannelsSet(chatID int64, chatName string) {
	metrics.Mutex.Lock()
	defer metrics.Mutex.Unlock()

	if _, exists := metrics.ChannelsSet[chatID]; !exists {
		metrics.ChannelsSet[chatID] = chatName
		metrics.ChannelsCount.Set(float64(len(metrics.ChannelsSet)))

		metrics.ChannelNames.WithLabelValues(fmt.Sprintf("%d", chatID), chatName).Inc()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), http.DefaultServeMux)
}

func LoadMetricsFromDB(db *database.DB) {
	metrics.Mutex.Lock()
	defer metrics.Mutex.Unlock()

	// Load non-labeled metrics
	commandsProcessed, _ := db.GetMetric("commands_processed")
	messagesHandled, _ := db.GetMetric("messages_handled")
	channelsCount, _ := db.GetMetric("channels_count")
	ledgerPurged, _ := db.GetMetric("ledger_entries_purged")

	metrics.CommandsProcessed.Add(commandsProcessed)
	metrics.MessagesHandled.Add(messagesHandled)
	metrics.ChannelsCount.Set(channelsCount)
	metrics.LedgerPurged.Add(ledgerPurged)

	// Load labeled metrics
	loadLabeledMetrics(db, "channel_names", func(chatIDStr, chatName string, _ float64) {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			log.Printf("Failed to parse chatID %s: %v", chatIDStr, err)
			return
		}
		metrics.ChannelNames.WithLabelValues(chatIDStr, chatName).Add(1)
		metrics.ChannelsSet[chatID] = chatName
	})

	loadLabeledMetrics(db, "messages_per_channel", func(chatID, chatName string, value float64) {
		metrics.MessagesPerChannel.WithLabelValues(chatID, chatName).Add(value)
	})

	loadLabeledMetrics(db, "alerts_sent", func(kind, _ string, value float64) {
		metrics.AlertsSent.WithLabelValues(kind).Add(value)
	})

	loadLabeledMetrics(db, "alerts_failed", func(kind, _ string, value float64) {
		metrics.AlertsFailed.WithLabelValues(kind).Add(value)
	})

	log.Println("Metrics loaded from database.")
}

func loadLabeledMetrics(db *database.DB, metricName string, callback func(labelKey, labelValue string, value float64)) {
	metricsWithLabels, _ := db.GetMetricsWithLabels(metricName)
	for labelKey, labelValues := range metricsWithLabels {
		for labelValue, value := range labelValues {
			callback(labelKey, labelValue, value)
		}
	}
}

func SaveMetricsToDB(db *database.DB) {
	metrics.Mutex.Lock()
	defer metrics.Mutex.Unlock()

	// Save non-labeled metrics
	db.SaveMetric("commands_processed", GetMetricValue(metrics.CommandsProcessed))
	db.SaveMetric("messages_handled", GetMetricValue(metrics.MessagesHandled))
	db.SaveMetric("channels_count", float64(len(metrics.ChannelsSet)))
	db.SaveMetric("ledger_entries_purged", GetMetricValue(metrics.LedgerPurged))

	// Save labeled metrics: channel_names
	for chatID, chatName := range metrics.ChannelsSet {
		db.SaveMetricWithLabels("channel_names", fmt.Sprintf("%d", chatID), chatName, float64(chatID))
	}

	saveCounterVec(db, "messages_per_channel", metrics.MessagesPerChannel, "chat_id", "chat_name")
	saveCounterVec(db, "alerts_sent", metrics.AlertsSent, "kind", "")
	saveCounterVec(db, "alerts_failed", metrics.AlertsFailed, "kind", "")

	log.Println("Metrics saved to database.")
}

// saveCounterVec persists each sample of a counter vector. Single-label
// vectors store the kind under label_key with the label_value fixed, so the
// sqlite upsert key stays unique.
func saveCounterVec(db *database.DB, name string, vec *prometheus.CounterVec, keyLabel, valueLabel string) {
	metricChan := make(chan prometheus.Metric, 16)
	go func() {
		vec.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Printf("Failed to read %s metric: %v", name, err)
			continue
		}
		var labelKey, labelValue string
		for _, label := range metricProto.Label {
			if label.GetName() == keyLabel {
				labelKey = label.GetValue()
			}
			if valueLabel != "" && label.GetName() == valueLabel {
				labelValue = label.GetValue()
			}
		}
		if labelValue == "" {
			labelValue = labelKey
		}
		db.SaveMetricWithLabels(name, labelKey, labelValue, metricProto.Counter.GetValue())
	}
}

func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Printf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
