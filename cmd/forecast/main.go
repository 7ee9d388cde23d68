// One-shot pipeline runner: load, train, forecast, print, exit. Useful for
// experiments without standing up the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"stockcast/logging"
	"stockcast/pipeline"
)

func main() {
	url := flag.String("url", "", "CSV feed URL (required)")
	file := flag.String("file", "", "local CSV file instead of a URL")
	epochs := flag.Int("epochs", 12, "training epochs")
	windowSize := flag.Int("window", 60, "lookback window size")
	horizon := flag.Int("horizon", 5, "forecast days")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *url == "" && *file == "" {
		fmt.Fprintln(os.Stderr, "either -url or -file is required")
		flag.Usage()
		os.Exit(2)
	}

	log := logging.New(*logLevel, "")
	defer log.Sync()

	session := pipeline.NewSession(pipeline.Config{
		DataURL:    *url,
		WindowSize: *windowSize,
		Horizon:    *horizon,
		TestSplit:  0.2,
		Epochs:     *epochs,
	}, nil, log)
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var err error
	if *file != "" {
		var raw []byte
		if raw, err = os.ReadFile(*file); err == nil {
			err = session.LoadDataFromBytes(raw)
		}
	} else {
		err = session.LoadData(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "load: %v\n", err)
		os.Exit(1)
	}

	if err := session.PrepareData(); err != nil {
		fmt.Fprintf(os.Stderr, "prepare: %v\n", err)
		os.Exit(1)
	}

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			if ev.Type == "epoch" {
				fmt.Printf("epoch %d/%d  loss=%.6f  val_loss=%.6f\n",
					ev.Epoch+1, ev.TotalEpochs, ev.Loss, ev.ValLoss)
			}
		}
	}()

	summary, err := session.Train(ctx, *epochs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("trained %d epochs in %.1fs (final loss %.6f)\n",
		summary.Epochs, summary.Elapsed, summary.FinalLoss)

	if metrics, ok := session.Metrics(); ok {
		fmt.Printf("test: mse=%.6f rmse=%.6f\n", metrics.MSE, metrics.RMSE)
	}

	days, err := session.Forecast()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forecast: %v\n", err)
		os.Exit(1)
	}

	insights := session.Insights()
	fmt.Printf("\nlast price %.2f (%s), trend %s\n",
		insights.Basic.LastPrice, insights.Basic.LastDate, insights.Trends.CurrentTrend)
	for _, d := range days {
		fmt.Printf("  day +%d: %.2f (%+.2f, return %+.4f%%)\n",
			d.DayOffset, d.ProjectedPrice, d.PriceDelta, d.PredictedReturn*100)
	}
}
