package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"image"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"smartqr/internal/config"
	"smartqr/internal/handlers/inventory"
	"smartqr/internal/handlers/invoice"
	"smartqr/internal/scan"
	"smartqr/internal/server"
	"smartqr/internal/shell"
	"smartqr/internal/store"
	"smartqr/internal/websocket"
)

//go:embed static
var staticFS embed.FS

const usage = `usage: smartqr [serve|shell|hash-token] [flags]

  serve        run the local web shell (default)
  shell        run the terminal shell
  hash-token   print the bcrypt hash of a token for token_hash
`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	if cmd == "hash-token" {
		if len(args) != 1 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		h, err := server.HashToken(args[0])
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(h)
		return
	}

	fset := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fset.String("config", "smartqr.yaml", "YAML config file")
	workDir := fset.String("workdir", "", "Working directory for data.db, qrcodes/ and exports/")
	dbPath := fset.String("db", "", "SQLite database path")
	addr := fset.String("addr", "", "HTTP listen address")
	fset.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal("config: ", err)
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := cfg.Finalize(); err != nil {
		log.Fatal("config: ", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("DB init failed: ", err)
	}
	defer st.Close()
	app := server.NewApp(cfg, st)

	switch cmd {
	case "serve":
		serve(app)
	case "shell":
		if err := runShell(app); err != nil {
			log.Fatal(err)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func serve(app *server.App) {
	srv := &http.Server{Addr: app.Config.Addr, Handler: newRouter(app)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Printf("SmartQR server starting on http://%s (data in %s)", app.Config.Addr, app.Config.WorkDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func runShell(app *server.App) error {
	src, err := scan.NewDirSource(app.Config.FramesDir, 200*time.Millisecond)
	if err != nil {
		return err
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	log.Printf("shell: reading camera frames from %s", app.Config.FramesDir)
	sh := &shell.Shell{
		Store:    app.Store,
		Labels:   app.Labels,
		Exporter: app.Exporter,
		Invoices: app.Invoices,
		Scanner: &scan.Reader{
			Source:  src,
			Preview: func(image.Image) { fmt.Fprint(os.Stdout, ".") },
		},
		ScanTimeout: app.Config.ScanTimeout,
		Interrupt:   sig,
		Operator:    app.Config.Operator,
		In:          os.Stdin,
		Out:         os.Stdout,
	}
	return sh.Run(context.Background())
}

func newRouter(app *server.App) http.Handler {
	invH := &inventory.Handler{
		Store:    app.Store,
		Hub:      app.Hub,
		Labels:   app.Labels,
		Exporter: app.Exporter,
		Adjust:   app.Adjust,
	}
	billH := &invoice.Handler{
		Service:  app.Invoices,
		Drafts:   app.Drafts,
		Hub:      app.Hub,
		Operator: app.Config.Operator,
		MaxQty:   app.Config.MaxQty,
	}

	mux := http.NewServeMux()

	// Static files
	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/index.html" {
			http.NotFound(w, r)
			return
		}
		http.ServeFileFS(w, r, static, "index.html")
	})

	// File serving
	mux.HandleFunc("/files/exports/", func(w http.ResponseWriter, r *http.Request) {
		invH.DownloadExport(w, r, strings.TrimPrefix(r.URL.Path, "/files/exports/"))
	})

	// WebSocket
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleWebSocket(app.Hub, w, r)
	})
	mux.HandleFunc("/ws/scan", func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleScan(w, r, app.Config.ScanTimeout)
	})

	// API routes - using a simple router
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		// Labels
		case path == "labels" && r.Method == "POST":
			invH.GenerateLabel(w, r)
		case parts[0] == "labels" && len(parts) == 2 && r.Method == "GET":
			invH.LabelImage(w, r, parts[1])

		// Scan and adjust
		case path == "scan/decode" && r.Method == "POST":
			invH.DecodeFrame(w, r)
		case path == "adjust/resolve" && r.Method == "POST":
			invH.ResolveAdjust(w, r)
		case path == "adjust/commit" && r.Method == "POST":
			invH.CommitAdjust(w, r)

		// Inventory
		case path == "inventory" && r.Method == "GET":
			invH.ListInventory(w, r)
		case path == "inventory" && r.Method == "DELETE":
			invH.ClearInventory(w, r)
		case path == "inventory/export" && r.Method == "POST":
			invH.ExportInventory(w, r)
		case path == "requests" && r.Method == "GET":
			invH.ListRequests(w, r)

		// Invoices
		case path == "invoices/quick" && r.Method == "POST":
			billH.QuickInvoice(w, r)
		case path == "invoices/drafts" && r.Method == "POST":
			billH.OpenDraft(w, r)
		case parts[0] == "invoices" && len(parts) == 3 && parts[1] == "drafts" && r.Method == "GET":
			billH.GetDraft(w, r, parts[2])
		case parts[0] == "invoices" && len(parts) == 3 && parts[1] == "drafts" && r.Method == "DELETE":
			billH.DiscardDraft(w, r, parts[2])
		case parts[0] == "invoices" && len(parts) == 4 && parts[1] == "drafts" && parts[3] == "lines" && r.Method == "POST":
			billH.AddLine(w, r, parts[2])
		case parts[0] == "invoices" && len(parts) == 4 && parts[1] == "drafts" && parts[3] == "lines" && r.Method == "DELETE":
			billH.RemoveLines(w, r, parts[2])
		case parts[0] == "invoices" && len(parts) == 4 && parts[1] == "drafts" && parts[3] == "generate" && r.Method == "POST":
			billH.GenerateInvoice(w, r, parts[2])

		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not found"}`)
		}
	})

	var h http.Handler = mux
	h = server.GzipMiddleware(h)
	h = server.RequireToken(app.Config.TokenHash)(h)
	h = server.SecurityHeaders(h)
	return server.LoggingMiddleware(h)
}
