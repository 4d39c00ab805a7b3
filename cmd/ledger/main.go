package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/interledger4go/virtual-ledger-plugin/internal/balance"
	"github.com/interledger4go/virtual-ledger-plugin/internal/condition"
	"github.com/interledger4go/virtual-ledger-plugin/internal/config"
	"github.com/interledger4go/virtual-ledger-plugin/internal/connection"
	"github.com/interledger4go/virtual-ledger-plugin/internal/events"
	ekafka "github.com/interledger4go/virtual-ledger-plugin/internal/events/kafka"
	"github.com/interledger4go/virtual-ledger-plugin/internal/ledger"
	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
	"github.com/interledger4go/virtual-ledger-plugin/internal/store"
	"github.com/interledger4go/virtual-ledger-plugin/internal/transferlog"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var kv store.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		kv = store.NewPostgresStore(db)
	} else {
		kv = store.NewMemoryStore()
	}

	bal := balance.New(kv, cfg.Min, cfg.Max)
	tlog := transferlog.New(kv)

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = ekafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	conn := connection.NewWSConn(cfg.Host, cfg.Room)

	info := ledger.Info{
		Precision:      10,
		Scale:          2,
		CurrencyCode:   "USD",
		CurrencySymbol: "$",
	}

	ledgerService := ledger.New(conn, bal, tlog, condition.Sha256Preimage{}, publisher, info, nil)

	ctx := context.Background()
	if err := ledgerService.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	http.HandleFunc("/transfers", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			entries, err := ledgerService.ListTransfers(r.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(entries)

		case http.MethodPost:
			var req struct {
				Account            string `json:"account"`
				Amount             string `json:"amount"`
				ExecutionCondition string `json:"executionCondition,omitempty"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			amount, err := decimal.NewFromString(req.Amount)
			if err != nil {
				http.Error(w, "invalid amount", http.StatusBadRequest)
				return
			}

			tr := models.Transfer{
				ID:                 uuid.New().String(),
				Amount:             amount,
				Account:            req.Account,
				ExecutionCondition: req.ExecutionCondition,
			}

			if err := ledgerService.Send(r.Context(), tr); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"status":"sent","id":"` + tr.ID + `"}`))

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	http.HandleFunc("/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		bal, err := ledgerService.GetBalance(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Balance string `json:"balance"`
		}{Balance: bal})
	})

	srv := &http.Server{
		Addr:         ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	log.Println("Starting ledger plugin on :8080")
	log.Fatal(srv.ListenAndServe())
}
