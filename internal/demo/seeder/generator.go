package seeder

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

type Customer struct {
	ID        int
	Name      string
	Email     string
	Country   string
	CreatedAt time.Time
}

type Product struct {
	ID       int
	Name     string
	Category string
	Price    float64
}

type OrderItem struct {
	ProductID int
	Quantity  int
	UnitPrice float64
}

type Order struct {
	ID         int
	CustomerID int
	Status     string
	Total      float64
	OrderedAt  time.Time
	Items      []OrderItem
}

var (
	firstNames = []string{"Ada", "Grace", "Linus", "Margaret", "Ken", "Barbara", "Dennis", "Frances", "Alan", "Radia", "Edsger", "Hedy"}
	lastNames  = []string{"Lovelace", "Hopper", "Torvalds", "Hamilton", "Thompson", "Liskov", "Ritchie", "Allen", "Turing", "Perlman", "Dijkstra", "Lamarr"}
	countries  = []string{"US", "DE", "GB", "IN", "JP", "BR", "FR", "CA"}
	categories = map[string][]string{
		"books":       {"Field Guide", "Cookbook", "Novel", "Atlas"},
		"electronics": {"Headphones", "Keyboard", "Monitor", "Charger"},
		"garden":      {"Trowel", "Planter", "Hose", "Seed Kit"},
		"kitchen":     {"Kettle", "Knife Set", "Skillet", "Grinder"},
	}
	categoryOrder = []string{"books", "electronics", "garden", "kitchen"}
	adjectives    = []string{"Classic", "Compact", "Deluxe", "Everyday", "Pro", "Travel"}
)

// Generator produces a deterministic shop dataset for a seed.
type Generator struct {
	rnd  *rand.Rand
	base time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:  rand.New(rand.NewSource(seed)),
		base: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Generator) Customers(n int) []Customer {
	out := make([]Customer, 0, n)
	for i := 1; i <= n; i++ {
		first := pickOne(g.rnd, firstNames)
		last := pickOne(g.rnd, lastNames)
		out = append(out, Customer{
			ID:        i,
			Name:      first + " " + last,
			Email:     fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), i),
			Country:   pickOne(g.rnd, countries),
			CreatedAt: g.base.Add(time.Duration(g.rnd.Intn(180*24)) * time.Hour),
		})
	}
	return out
}

func (g *Generator) Products(n int) []Product {
	out := make([]Product, 0, n)
	for i := 1; i <= n; i++ {
		category := categoryOrder[(i-1)%len(categoryOrder)]
		out = append(out, Product{
			ID:       i,
			Name:     pickOne(g.rnd, adjectives) + " " + pickOne(g.rnd, categories[category]),
			Category: category,
			Price:    round2(3 + g.rnd.Float64()*197),
		})
	}
	return out
}

// Orders builds n orders over the given customers and products. Each order
// references existing ids and its total is the sum of its items.
func (g *Generator) Orders(n int, customers []Customer, products []Product) []Order {
	out := make([]Order, 0, n)
	if len(customers) == 0 || len(products) == 0 {
		return out
	}
	for i := 1; i <= n; i++ {
		customer := customers[g.rnd.Intn(len(customers))]
		itemCount := 1 + g.rnd.Intn(4)
		items := make([]OrderItem, 0, itemCount)
		total := 0.0
		for j := 0; j < itemCount; j++ {
			product := products[g.rnd.Intn(len(products))]
			quantity := 1 + g.rnd.Intn(3)
			items = append(items, OrderItem{ProductID: product.ID, Quantity: quantity, UnitPrice: product.Price})
			total += float64(quantity) * product.Price
		}
		out = append(out, Order{
			ID:         i,
			CustomerID: customer.ID,
			Status:     g.pickStatus(),
			Total:      round2(total),
			OrderedAt:  customer.CreatedAt.Add(time.Duration(1+g.rnd.Intn(200*24)) * time.Hour),
			Items:      items,
		})
	}
	return out
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 70:
		return "delivered"
	case p < 85:
		return "shipped"
	case p < 95:
		return "pending"
	default:
		return "cancelled"
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
