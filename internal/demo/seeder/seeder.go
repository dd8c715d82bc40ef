// Package seeder builds a sample shop database and registers it with a
// QueryMind API so questions can be tried without an existing database.
package seeder

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var schemaStatements = []string{
	`DROP TABLE IF EXISTS order_items`,
	`DROP TABLE IF EXISTS orders`,
	`DROP TABLE IF EXISTS products`,
	`DROP TABLE IF EXISTS customers`,
	`CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		country TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		price REAL NOT NULL
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		status TEXT NOT NULL,
		total REAL NOT NULL,
		ordered_at TEXT NOT NULL
	)`,
	`CREATE TABLE order_items (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		unit_price REAL NOT NULL
	)`,
	`CREATE INDEX idx_orders_customer_id ON orders (customer_id)`,
	`CREATE INDEX idx_order_items_order_id ON order_items (order_id)`,
}

type Summary struct {
	DatabasePath string `json:"database_path"`
	Customers    int    `json:"customers"`
	Products     int    `json:"products"`
	Orders       int    `json:"orders"`
	OrderItems   int    `json:"order_items"`
}

type Service struct {
	cfg  Config
	log  *slog.Logger
	http *http.Client
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &Service{cfg: cfg, log: logger, http: client}, nil
}

// Build recreates the demo tables in the SQLite file at DatabasePath.
func (s *Service) Build(ctx context.Context) (Summary, error) {
	path, err := filepath.Abs(s.cfg.DatabasePath)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Summary{}, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Summary{}, fmt.Errorf("open demo database: %w", err)
	}
	defer func() { _ = db.Close() }()

	gen := NewGenerator(s.cfg.Seed)
	customers := gen.Customers(s.cfg.Customers)
	products := gen.Products(s.cfg.Products)
	orders := gen.Orders(s.cfg.Orders, customers, products)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin demo load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Summary{}, fmt.Errorf("create demo schema: %w", err)
		}
	}
	for _, c := range customers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO customers (id, name, email, country, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Email, c.Country, c.CreatedAt.Format(timestampLayout)); err != nil {
			return Summary{}, fmt.Errorf("insert customer %d: %w", c.ID, err)
		}
	}
	for _, p := range products {
		if _, err := tx.ExecContext(ctx, `INSERT INTO products (id, name, category, price) VALUES (?, ?, ?, ?)`,
			p.ID, p.Name, p.Category, p.Price); err != nil {
			return Summary{}, fmt.Errorf("insert product %d: %w", p.ID, err)
		}
	}
	summary := Summary{DatabasePath: path, Customers: len(customers), Products: len(products), Orders: len(orders)}
	for _, o := range orders {
		if _, err := tx.ExecContext(ctx, `INSERT INTO orders (id, customer_id, status, total, ordered_at) VALUES (?, ?, ?, ?, ?)`,
			o.ID, o.CustomerID, o.Status, o.Total, o.OrderedAt.Format(timestampLayout)); err != nil {
			return Summary{}, fmt.Errorf("insert order %d: %w", o.ID, err)
		}
		for _, item := range o.Items {
			if _, err := tx.ExecContext(ctx, `INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`,
				o.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
				return Summary{}, fmt.Errorf("insert item of order %d: %w", o.ID, err)
			}
			summary.OrderItems++
		}
	}
	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit demo load: %w", err)
	}

	s.log.InfoContext(ctx, "built demo database",
		slog.String("path", path),
		slog.Int("customers", summary.Customers),
		slog.Int("products", summary.Products),
		slog.Int("orders", summary.Orders),
		slog.Int("order_items", summary.OrderItems),
	)
	return summary, nil
}

type connectionRequest struct {
	Name        string `json:"name"`
	Driver      string `json:"driver"`
	Database    string `json:"database"`
	Description string `json:"description"`
}

// Register saves the demo database as a connection on the API and activates
// it when configured to.
func (s *Service) Register(ctx context.Context, databasePath string) error {
	req := connectionRequest{
		Name:        s.cfg.ConnectionName,
		Driver:      "sqlite",
		Database:    databasePath,
		Description: "QueryMind demo shop",
	}
	status, body, err := s.doJSON(ctx, http.MethodPost, "/v1/connections", req)
	if err != nil {
		return fmt.Errorf("register demo connection: %w", err)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("register demo connection failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}
	s.log.InfoContext(ctx, "registered demo connection", slog.String("connection", s.cfg.ConnectionName))

	if !s.cfg.Activate {
		return nil
	}
	status, body, err = s.doJSON(ctx, http.MethodPost, "/v1/connections/"+url.PathEscape(s.cfg.ConnectionName)+"/activate", nil)
	if err != nil {
		return fmt.Errorf("activate demo connection: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("activate demo connection failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}
	s.log.InfoContext(ctx, "activated demo connection", slog.String("connection", s.cfg.ConnectionName))
	return nil
}

// Run builds the database and, when Register is set, registers it.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	summary, err := s.Build(ctx)
	if err != nil {
		return Summary{}, err
	}
	if s.cfg.Register {
		if err := s.Register(ctx, summary.DatabasePath); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (s *Service) doJSON(ctx context.Context, method, path string, requestBody any) (int, []byte, error) {
	var payload io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
