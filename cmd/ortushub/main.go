package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/config"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/dispatch"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/livesock"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/mqtt"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/router"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/schedule"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/shadow"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/store"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.OpenPostgres(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode)
	if err != nil {
		slog.Error("db open failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	bus, err := mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
	if err != nil {
		slog.Error("mqtt connect failed", "error", err)
		os.Exit(1)
	}

	sockets := livesock.NewRegistry()
	dispatcher := &dispatch.Dispatcher{Bus: bus, Live: sockets}

	engine := schedule.NewEngine(dispatcher)
	if err := engine.Bootstrap(ctx, repo); err != nil {
		slog.Error("schedule bootstrap failed", "error", err)
		os.Exit(1)
	}
	engine.Start()

	snapCache := store.NewSnapshotCache(rdb)
	snapshots := &store.CachedSnapshots{Cache: snapCache, Repo: repo}

	// Inbound live-socket state frames feed the device record so polls stay
	// fresh without waiting for the next bus message.
	onFrame := func(mac string, frame []byte) {
		var f shadow.StateFrame
		if err := json.Unmarshal(frame, &f); err != nil || f.Type != "state" {
			return
		}
		if f.Brightness == nil {
			return
		}
		if err := repo.UpsertDeviceState(ctx, mac, store.DeviceFields{Brightness: f.Brightness}); err != nil {
			slog.Error("live state write failed", "mac", mac, "error", err)
			return
		}
		snapshots.Invalidate(ctx, mac)
	}

	handlers := &telemetry.Handlers{Metrics: repo, Devices: repo}
	handlers.LanUpdated = func(ctx context.Context, mac, ip string, port int) {
		if sockets.Connected(mac) {
			return
		}
		if err := sockets.Connect(ctx, mac, ip, port, onFrame, nil); err != nil {
			slog.Warn("live socket connect failed", "mac", mac, "error", err)
		}
	}
	topics := router.New()
	topics.Register("presence", handlers.Presence)
	topics.Register("status", handlers.Status)
	topics.Register("sensor", handlers.Sensor)

	route := func(_ pahomqtt.Client, msg mqtt.Message) {
		topics.Route(ctx, msg.Topic(), msg.Payload())
	}
	for _, topic := range []string{"+/presence", "+/status", "+/sensor/#"} {
		if err := bus.Subscribe(topic, route); err != nil {
			slog.Error("mqtt subscribe failed", "topic", topic, "error", err)
			os.Exit(1)
		}
	}

	// Only a health endpoint; the HTTP API lives in another service.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()
	slog.Info("ortus-hub started", "port", cfg.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	engine.Stop()
	sockets.CloseAll()
	bus.Close()
	slog.Info("ortus-hub stopped")
}
