package server

import (
	"smartqr/internal/config"
	"smartqr/internal/export"
	"smartqr/internal/invoice"
	"smartqr/internal/label"
	"smartqr/internal/stock"
	"smartqr/internal/store"
	"smartqr/internal/websocket"
)

// App holds shared dependencies for the application.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Hub      *websocket.Hub
	Labels   *label.Encoder
	Exporter *export.Exporter
	Invoices *invoice.Service
	Drafts   *invoice.Drafts
	Adjust   *stock.Flow
}

// NewApp wires the flows around an open store.
func NewApp(cfg *config.Config, st *store.Store) *App {
	exp := &export.Exporter{Dir: cfg.ExportDir()}
	hub := websocket.NewHub()
	return &App{
		Config:   cfg,
		Store:    st,
		Hub:      hub,
		Labels:   &label.Encoder{Store: st, Dir: cfg.LabelDir(), Size: cfg.LabelSize, MaxQty: cfg.MaxQty},
		Exporter: exp,
		Invoices: &invoice.Service{Store: st, Writer: exp},
		Drafts:   invoice.NewDrafts(),
		Adjust: &stock.Flow{
			Store: st,
			OnState: func(s stock.State) {
				hub.BroadcastChange("adjust", "state", s.String())
			},
		},
	}
}
