package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"grocermap/internal"
	"grocermap/internal/app"
	"grocermap/internal/config"
	"grocermap/internal/pipeline"
	"grocermap/internal/server"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "tables:dump" {
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "tables.yaml", "output yaml path")
		_ = fs.Parse(os.Args[2:])
		tables, err := config.LoadTables(cfg.TablesPath)
		must(err)
		must(tables.Save(*out))
		fmt.Printf("tables written to %s\n", *out)
		return
	}

	a, err := app.New(cfg)
	must(err)
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "catalog:load":
		must(a.Engine.LoadCatalog(ctx))
		idx, err := a.Engine.Index()
		must(err)
		fmt.Printf("catalog loaded items=%d categories=%d sources=%d\n", idx.Len(), len(idx.Categories()), len(idx.Sources()))
	case "catalog:reload":
		idx, err := a.Engine.Reload(ctx)
		must(err)
		fmt.Printf("catalog reloaded items=%d snapshot=%s\n", idx.Len(), cfg.SnapshotPath)
	case "catalog:stats":
		must(a.Engine.LoadCatalog(ctx))
		idx, err := a.Engine.Index()
		must(err)
		printJSON(idx.Stats())
	case "catalog:search":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		q := fs.String("q", "", "search text (at least 2 characters)")
		limit := fs.Int("limit", 10, "max results")
		_ = fs.Parse(os.Args[2:])
		if len([]rune(strings.TrimSpace(*q))) < 2 {
			must(fmt.Errorf("--q must be at least 2 characters"))
		}
		must(a.Engine.LoadCatalog(ctx))
		idx, err := a.Engine.Index()
		must(err)
		results := idx.Search(strings.TrimSpace(*q), *limit)
		for _, item := range results {
			fmt.Printf("%-12s %-40s %-20s %s/%s\n", item.Code, item.Name, item.Category, item.SourceFile, item.SheetName)
		}
		fmt.Printf("found=%d\n", len(results))
	case "catalog:lookup":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		code := fs.String("code", "", "item code")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*code) == "" {
			must(fmt.Errorf("--code is required"))
		}
		must(a.Engine.LoadCatalog(ctx))
		idx, err := a.Engine.Index()
		must(err)
		item, ok := idx.LookupByCode(*code)
		if !ok {
			must(fmt.Errorf("item not found: %s", *code))
		}
		printJSON(item)
	case "order:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "order file path or raw order text")
		inType := fs.String("type", "", "text|html|eml|pdf|xlsx (default: from file extension)")
		export := fs.Bool("export", true, "write the export file")
		asJSON := fs.Bool("json", false, "print the processed order as JSON")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		must(a.Engine.LoadCatalog(ctx))

		orders := a.Orders
		if !*export {
			orders = pipeline.NewOrderService(pipeline.NewLineParser(a.Tables.NoisePhrases), a.Engine, nil).WithRecorder(a.DB)
		}
		order, err := processInput(ctx, orders, *input, *inType)
		must(err)
		if *asJSON {
			printJSON(order)
			return
		}
		printOrder(order)
	case "orders:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(os.Args[2:])
		runs, err := a.DB.ListOrders(*limit)
		must(err)
		for _, r := range runs {
			export := "-"
			if r.ExportFilename != nil {
				export = *r.ExportFilename
			}
			fmt.Printf("%s %s total=%d mapped=%d unmapped=%d export=%s\n", r.CreatedAt, r.TraceID, r.TotalItems, r.MappedCount, r.UnmappedCount, export)
		}
	case "orders:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		trace := fs.String("trace", "", "order trace id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*trace) == "" {
			must(fmt.Errorf("--trace is required"))
		}
		lines, err := a.DB.OrderLines(*trace)
		must(err)
		printJSON(lines)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		fetcher, err := a.Fetcher(*provider)
		must(err)
		res, err := fetcher.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d new=%d\n", *provider, res.Fetched, res.Stored, res.New)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "gmail|imap (default: all)")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		must(a.Engine.LoadCatalog(ctx))
		if strings.TrimSpace(*messageID) != "" {
			if *provider == "" {
				must(fmt.Errorf("--provider is required with --messageId"))
			}
			res, err := a.Orders.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			if res.Skipped {
				fmt.Printf("mail id=%d skipped score=%.2f reason=%s\n", res.MailID, res.Detect.Score, res.Detect.Reason)
				return
			}
			fmt.Printf("mail id=%d processed trace=%s mapped=%d unmapped=%d\n", res.MailID, res.Order.TraceID, res.Order.MappedCount, res.Order.UnmappedCount)
			return
		}
		handled, produced, err := a.Orders.ProcessPending(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending mails=%d orders=%d\n", handled, produced)
	case "mail:listen":
		must(a.Engine.LoadCatalog(ctx))
		l, err := a.Listener()
		must(err)
		must(l.Run(ctx))
	case "serve":
		serve(ctx, a)
	default:
		usage()
		os.Exit(1)
	}
}

func processInput(ctx context.Context, orders *pipeline.OrderService, input, inType string) (internal.ProcessedOrder, error) {
	blob, err := os.ReadFile(input)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return internal.ProcessedOrder{}, err
		}
		if inType != "" && inType != string(internal.InputText) {
			return internal.ProcessedOrder{}, fmt.Errorf("input file not found: %s", input)
		}
		return orders.Process(ctx, input)
	}
	kind := internal.InputKind(inType)
	if inType == "" {
		kind, err = pipeline.KindFromFilename(filepath.Base(input))
		if err != nil {
			return internal.ProcessedOrder{}, err
		}
	}
	return orders.ProcessFile(ctx, kind, blob)
}

func serve(ctx context.Context, a *app.App) {
	cfg := a.Config
	// a broken catalog must not keep the API down; /catalog/reload can fix it later
	if err := a.Engine.LoadCatalog(ctx); err != nil {
		log.Printf("serve: catalog load failed err=%v", err)
	} else if err := a.Engine.Prepare(ctx); err != nil {
		log.Printf("serve: catalog preparation failed err=%v", err)
	}

	router := server.NewRouter(server.NewHandler(a.Orders, cfg.MaxUploadBytes), cfg.AllowedOrigins)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("serve: listening addr=%s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("serve: shutdown signal received")
	case err := <-errCh:
		log.Printf("serve: server error err=%v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("serve: shutdown error err=%v", err)
	}
	log.Printf("serve: stopped")
}

func printOrder(order internal.ProcessedOrder) {
	fmt.Printf("trace=%s total=%d mapped=%d unmapped=%d took_ms=%.1f\n",
		order.TraceID, order.TotalItems, order.MappedCount, order.UnmappedCount, order.ProcessingTimeMs)
	for _, item := range order.MappedItems {
		fmt.Printf("  [%-6s] %-10s %-35s qty=%-6g score=%.3f  <- %s\n",
			item.Confidence, *item.Code, *item.Name, item.Quantity, *item.SimilarityScore, item.OriginalText)
	}
	for _, text := range order.UnmappedItems {
		fmt.Printf("  [unmatched] %s\n", text)
	}
	if order.ExportFilename != nil {
		fmt.Printf("export=%s\n", *order.ExportFilename)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: grocermap <command>")
	fmt.Println("commands:")
	fmt.Println("  catalog:load")
	fmt.Println("  catalog:reload")
	fmt.Println("  catalog:stats")
	fmt.Println("  catalog:search --q=apple [--limit=10]")
	fmt.Println("  catalog:lookup --code=A1")
	fmt.Println("  order:process --input=order.txt|\"2 lbs apples\" [--type=text|html|eml|pdf|xlsx] [--export=true] [--json]")
	fmt.Println("  orders:list [--limit=20]")
	fmt.Println("  orders:show --trace=<trace id>")
	fmt.Println("  mail:fetch [--provider=gmail|imap] [--label=INBOX] [--max=50]")
	fmt.Println("  mail:process [--provider=gmail|imap] [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  tables:dump [--out=tables.yaml]")
	fmt.Println("  serve")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
