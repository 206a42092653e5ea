package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/specan/analyzer"
	"github.com/chzchzchz/specan/config"
	"github.com/chzchzchz/specan/http"
	"github.com/chzchzchz/specan/radio"
	"github.com/chzchzchz/specan/render"
	"github.com/chzchzchz/specan/store"
)

var rootCmd = &cobra.Command{
	Use:   "specan",
	Short: "A spectrum analyzer for SDR receivers.",
}

var (
	flags     *config.Flags
	outPath   string
	iqOutPath string
	interval  time.Duration
	httpAddr  string
	storeDir  string
)

func init() {
	flags = config.AddFlags(rootCmd.PersistentFlags())

	captureCmd := &cobra.Command{
		Use:   "capture [flags]",
		Short: "Capture one block and render its spectrogram",
		Run:   func(cmd *cobra.Command, args []string) { capture() },
	}
	captureCmd.Flags().StringVarP(&outPath, "output", "o", "spectrogram.png", "PNG output path")
	captureCmd.Flags().StringVar(&iqOutPath, "iq-out", "", "Also write the raw block as u8 IQ")
	rootCmd.AddCommand(captureCmd)

	watchCmd := &cobra.Command{
		Use:   "watch [flags]",
		Short: "Measure periodically and serve the latest sweep",
		Run:   func(cmd *cobra.Command, args []string) { watch(cmd) },
	}
	watchCmd.Flags().DurationVar(&interval, "interval", time.Second, "Time between measurements")
	watchCmd.Flags().StringVar(&httpAddr, "http", "localhost:8080", "Status server address")
	watchCmd.Flags().StringVar(&storeDir, "store", "", "Directory for the latest sweep")
	rootCmd.AddCommand(watchCmd)
}

func open(ctx context.Context) (*config.Config, *analyzer.Analyzer, radio.Receiver) {
	cfg, err := flags.Config()
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	if err := config.SetupLogging(cfg.Logging.Level, os.Stderr); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	an, rx, err := cfg.OpenAnalyzer(ctx)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	an.LogInfo()
	return cfg, an, rx
}

func options(an *analyzer.Analyzer) render.Options {
	return render.Options{VMin: an.VMin(), VMax: an.VMax(), Annotate: true}
}

func capture() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, an, rx := open(ctx)
	defer rx.Close()

	block, s, err := an.Capture(ctx)
	if err != nil {
		log.Fatalf("[ERROR] capture: %v", err)
	}
	if iqOutPath != "" {
		if err := writeIQ(iqOutPath, block); err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer f.Close()
	trace := render.Trace{Spectrogram: s, Label: "Antenna " + s.Antenna, Color: render.Green}
	if err := render.Sweep(f, s, []render.Trace{trace}, options(an)); err != nil {
		log.Fatalf("[ERROR] render: %v", err)
	}
	log.Printf("[INFO] wrote %s (%d rows of %d bins)", outPath, len(s.Rows), s.FFTSize)
}

func writeIQ(path string, block analyzer.SampleBlock) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := radio.NewIQWriter(bw).Write64(block); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func watch(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, an, rx := open(ctx)
	defer rx.Close()

	if !cmd.Flags().Changed("store") {
		storeDir = cfg.Store.Dir
	}
	ss, err := store.NewSweepStore(storeDir)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	go func() {
		log.Printf("[INFO] serving http on %s", httpAddr)
		if err := http.ServeHttp(http.NewHandler(ss, nil), httpAddr); err != nil {
			log.Fatalf("[ERROR] http: %v", err)
		}
	}()

	for ctx.Err() == nil {
		if err := measure(ctx, an, ss); err != nil && ctx.Err() == nil {
			log.Printf("[WARN] error measuring: %v", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}
}

func measure(ctx context.Context, an *analyzer.Analyzer, ss *store.SweepStore) error {
	s, err := an.Measure(ctx)
	if err != nil {
		return err
	}
	trace := render.Trace{Spectrogram: s, Label: "Antenna " + s.Antenna, Color: render.Green}
	png, err := render.SweepPNG(s, []render.Trace{trace}, options(an))
	if err != nil {
		return err
	}
	return ss.Put(store.NewSweepRecord("", an, s), png)
}

func main() {
	rootCmd.Execute()
}
