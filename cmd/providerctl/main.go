// providerctl is the operator's one-shot tool against the provider stack:
// it builds the same failover manager as the pipeline and runs a single
// command against it.
//
//	providerctl status
//	providerctl quote RELIANCE TCS
//	providerctl info RELIANCE
//	providerctl history -days 30 RELIANCE
//	providerctl search "bank"
//	providerctl -provider shoonya quote RELIANCE
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"trading-data-pipeline/internal/types"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: providerctl [-provider NAME] <status|quote|info|history|search|reset-health> [args]")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	pin := flag.String("provider", "", "pin all requests to this provider")
	days := flag.Int("days", 30, "history window in days (history command)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
	}

	must(initializeSystem())
	ctx := context.Background()

	cfg, err := loadConfig(ctx)
	must(err)

	mgr := initializeManager(ctx, cfg)
	if *pin != "" {
		if !mgr.SetPreferredProvider(*pin) {
			log.Fatalf("provider %q is not registered", *pin)
		}
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "status":
		printJSON(mgr.Status())

	case "quote":
		if len(args) == 0 {
			log.Fatal("quote needs at least one symbol")
		}
		quotes, err := mgr.RealTimeData(ctx, args, cfg.Exchange)
		must(err)
		printJSON(quotes)

	case "info":
		if len(args) != 1 {
			log.Fatal("info needs exactly one symbol")
		}
		info, err := mgr.StockInfo(ctx, args[0], cfg.Exchange)
		must(err)
		if info == nil {
			log.Fatalf("no provider knows %s", args[0])
		}
		printJSON(info)

	case "history":
		if len(args) != 1 {
			log.Fatal("history needs exactly one symbol")
		}
		to := time.Now()
		from := to.AddDate(0, 0, -*days)
		res, err := mgr.HistoricalData(ctx, args[0], from, to, types.IntervalDay, cfg.Exchange)
		must(err)
		if res == nil {
			log.Fatalf("no data for %s", args[0])
		}
		printJSON(res)

	case "search":
		if len(args) != 1 {
			log.Fatal("search needs exactly one query")
		}
		hits, err := mgr.SearchStocks(ctx, args[0])
		must(err)
		printJSON(hits)

	case "reset-health":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		mgr.ResetHealth(name)
		printJSON(mgr.Status())

	default:
		usage()
	}
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	must(err)
	fmt.Println(string(b))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
