package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/chzchzchz/specan/config"
	"github.com/chzchzchz/specan/http"
	"github.com/chzchzchz/specan/remote"
	"github.com/chzchzchz/specan/store"
)

var rootCmd = &cobra.Command{
	Use:   "specan-remote",
	Short: "Sweep two antennas and sync the results with a remote room.",
	Run:   func(cmd *cobra.Command, args []string) { serve() },
}

var (
	flags      *config.Flags
	baseURL    string
	roomID     string
	interval   time.Duration
	timeout    time.Duration
	httpAddr   string
	storeDir   string
	mqttBroker string
	mqttTopic  string
)

func init() {
	fs := rootCmd.Flags()
	flags = config.AddFlags(fs)
	fs.StringVarP(&baseURL, "base-url", "b", "http://localhost:8000", "Parameter/result server")
	fs.StringVarP(&roomID, "room-id", "r", "test", "Room to join")
	fs.DurationVar(&interval, "interval", remote.DefaultInterval, "Poll and measurement cadence")
	fs.DurationVar(&timeout, "timeout", 0, "Per request timeout, 0 for none")
	fs.StringVar(&httpAddr, "http", "", "Serve the latest sweep and metrics on this address")
	fs.StringVar(&storeDir, "store", "", "Directory for the latest sweep")
	fs.StringVar(&mqttBroker, "mqtt-broker", "", "Mirror sweep summaries to this MQTT broker")
	fs.StringVar(&mqttTopic, "mqtt-topic", "specan", "MQTT topic prefix")
}

func loadConfig() *config.Config {
	cfg, err := flags.Config()
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("base-url", func() { cfg.Remote.BaseURL = baseURL })
	set("room-id", func() { cfg.Remote.Room = roomID })
	set("interval", func() { cfg.Remote.Interval = interval })
	set("timeout", func() { cfg.Remote.Timeout = timeout })
	set("http", func() { cfg.HTTP.Addr = httpAddr })
	set("store", func() { cfg.Store.Dir = storeDir })
	set("mqtt-broker", func() { cfg.MQTT.Broker = mqttBroker })
	set("mqtt-topic", func() { cfg.MQTT.Topic = mqttTopic })
	return cfg
}

func serve() {
	cfg := loadConfig()
	if err := config.SetupLogging(cfg.Logging.Level, os.Stderr); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	an, rx, err := cfg.OpenAnalyzer(ctx)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer rx.Close()
	an.LogInfo()

	client, err := remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Room:    cfg.Remote.Room,
		Timeout: cfg.Remote.Timeout,
	})
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer client.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := remote.NewMetrics(reg, an.StreamErrors)

	ss, err := store.NewSweepStore(cfg.Store.Dir)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	if cfg.HTTP.Addr != "" {
		go func() {
			log.Printf("[INFO] serving http on %s", cfg.HTTP.Addr)
			if err := http.ServeHttp(http.NewHandler(ss, reg), cfg.HTTP.Addr); err != nil {
				log.Printf("[ERROR] http: %v", err)
			}
		}()
	}

	var mirror *remote.Mirror
	if cfg.MQTT.Broker != "" {
		if mirror, err = remote.NewMirror(cfg.MQTT, cfg.Remote.Room); err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
		defer mirror.Close()
	}

	svc := remote.NewService(client, an, remote.ServiceConfig{
		Interval: cfg.Remote.Interval,
		Store:    ss,
		Mirror:   mirror,
		Metrics:  metrics,
	})
	log.Printf("[INFO] syncing room %q with %s", cfg.Remote.Room, cfg.Remote.BaseURL)
	svc.Run(ctx)
	log.Printf("[INFO] stopped after %d sweeps", svc.Sweeps())
}

func main() {
	rootCmd.Execute()
}
