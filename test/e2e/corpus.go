// Package e2e provides end-to-end tests that drive a full ruiji stack over HTTP.
package e2e

import (
	"strings"

	"github.com/hyperjump/ruiji/internal/models"
)

// Product is one catalogue entry of the e2e corpus.
type Product struct {
	ID          string
	Title       string
	Description string
	Categories  string
	Price       string
}

// QueryTestCase is a prompt and the product that must rank first for it.
type QueryTestCase struct {
	Prompt     string
	ExpectedID string
}

// Corpus holds products and prompt test cases.
type Corpus struct {
	Products  []Product
	TestCases []QueryTestCase
}

// BuildCorpus returns a small catalogue where every prompt names words that only its
// expected product carries.
func BuildCorpus() *Corpus {
	return &Corpus{Products: products, TestCases: queryCases}
}

// Items converts the catalogue into ingest items. Price goes into metadata as text, the
// way catalogue exports usually carry it.
func (c *Corpus) Items() []models.ItemInput {
	items := make([]models.ItemInput, 0, len(c.Products))
	for _, p := range c.Products {
		items = append(items, models.ItemInput{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Categories:  p.Categories,
			Metadata:    models.Record{"price": models.String(p.Price)},
		})
	}
	return items
}

// Product returns the product with id.
func (c *Corpus) Product(id string) (Product, bool) {
	for _, p := range c.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Text is the product's searchable text in lower case.
func (p Product) Text() string {
	return strings.ToLower(p.Title + " " + p.Description + " " + p.Categories)
}

var products = []Product{
	{"lamp-brass", "Brass Desk Lamp", "Adjustable brass arm with warm LED bulb", "lighting, office", "1,299"},
	{"lamp-floor", "Arc Floor Lamp", "Tall arched lamp with linen shade", "lighting, living room", "4,499"},
	{"rug-wool", "Hand Tufted Wool Rug", "Soft geometric rug for bedrooms", "home decor, textiles", "6,999"},
	{"mug-ceramic", "Speckled Ceramic Mug", "Stoneware coffee mug, microwave safe", "kitchen, drinkware", "349"},
	{"kettle-gooseneck", "Gooseneck Electric Kettle", "Precise pour kettle for pour-over coffee", "kitchen, appliances", "2,799"},
	{"teapot-cast", "Cast Iron Teapot", "Japanese tetsubin with enamel interior", "kitchen, tea", "1,850"},
	{"shoes-trail", "Trail Running Shoes", "Grippy outsole for muddy mountain trails", "footwear, sports", "5,499"},
	{"shoes-oxford", "Leather Oxford Shoes", "Polished calfskin formal shoes", "footwear, formal", "7,250"},
	{"yoga-mat", "Cork Yoga Mat", "Non slip natural cork surface", "fitness, yoga", "2,199"},
	{"dumbbell-set", "Adjustable Dumbbell Set", "Quick dial weights from two to twenty kilograms", "fitness, strength", "9,999"},
	{"backpack-hiking", "Hiking Backpack", "Forty litre pack with rain cover", "outdoors, bags", "3,899"},
	{"tent-dome", "Two Person Dome Tent", "Waterproof tent for weekend camping", "outdoors, camping", "8,450"},
	{"headphones-nc", "Noise Cancelling Headphones", "Over ear wireless headphones with long battery", "electronics, audio", "12,999"},
	{"speaker-bt", "Portable Bluetooth Speaker", "Waterproof speaker with deep bass", "electronics, audio", "2,499"},
	{"keyboard-mech", "Mechanical Keyboard", "Tactile switches and walnut wrist rest", "electronics, office", "6,299"},
	{"monitor-4k", "Ultrawide Monitor", "Curved screen for spreadsheets and gaming", "electronics, displays", "32,000"},
	{"novel-mystery", "Mystery Novel Paperback", "Detective story set in foggy Edinburgh", "books, fiction", "399"},
	{"cookbook-veg", "Vegetarian Cookbook", "Seasonal recipes for weeknight dinners", "books, cooking", "899"},
	{"puzzle-jigsaw", "Thousand Piece Jigsaw Puzzle", "Alpine village illustration", "toys, games", "749"},
	{"lego-castle", "Building Brick Castle Set", "Medieval castle with knights and drawbridge", "toys, building", "4,999"},
	{"plant-monstera", "Potted Monstera Plant", "Large leaf houseplant in terracotta pot", "garden, plants", "1,199"},
	{"hose-garden", "Expandable Garden Hose", "Lightweight hose with spray nozzle", "garden, tools", "1,099"},
	{"perfume-citrus", "Citrus Eau de Parfum", "Bergamot and neroli fragrance", "beauty, fragrance", "3,450"},
	{"serum-vitc", "Vitamin C Face Serum", "Brightening serum with hyaluronic acid", "beauty, skincare", "899"},
	{"watch-diver", "Automatic Diver Watch", "Stainless steel watch rated to two hundred metres", "accessories, watches", "18,500"},
	{"wallet-slim", "Slim Leather Wallet", "Minimalist card holder with RFID blocking", "accessories, leather", "1,299"},
	{"stroller-baby", "Lightweight Baby Stroller", "Foldable stroller with sun canopy", "baby, travel", "11,999"},
	{"bed-dog", "Orthopedic Dog Bed", "Memory foam bed for senior dogs", "pets, dogs", "2,999"},
	{"litter-cat", "Self Cleaning Cat Litter Box", "Automatic litter box with odour filter", "pets, cats", "14,999"},
	{"drill-cordless", "Cordless Power Drill", "Brushless drill with two batteries", "tools, hardware", "5,799"},
}

var queryCases = []QueryTestCase{
	{"brass desk lamp", "lamp-brass"},
	{"arc floor lamp linen", "lamp-floor"},
	{"wool rug", "rug-wool"},
	{"ceramic coffee mug", "mug-ceramic"},
	{"gooseneck kettle", "kettle-gooseneck"},
	{"cast iron teapot", "teapot-cast"},
	{"trail running shoes", "shoes-trail"},
	{"leather oxford", "shoes-oxford"},
	{"cork yoga mat", "yoga-mat"},
	{"adjustable dumbbells weights", "dumbbell-set"},
	{"hiking backpack", "backpack-hiking"},
	{"camping tent", "tent-dome"},
	{"noise cancelling headphones", "headphones-nc"},
	{"bluetooth speaker", "speaker-bt"},
	{"mechanical keyboard", "keyboard-mech"},
	{"ultrawide monitor", "monitor-4k"},
	{"mystery novel", "novel-mystery"},
	{"vegetarian cookbook recipes", "cookbook-veg"},
	{"jigsaw puzzle", "puzzle-jigsaw"},
	{"brick castle set", "lego-castle"},
	{"monstera houseplant", "plant-monstera"},
	{"garden hose", "hose-garden"},
	{"citrus parfum", "perfume-citrus"},
	{"vitamin c serum", "serum-vitc"},
	{"diver watch", "watch-diver"},
	{"slim wallet", "wallet-slim"},
	{"baby stroller", "stroller-baby"},
	{"dog bed", "bed-dog"},
	{"cat litter box", "litter-cat"},
	{"cordless drill", "drill-cordless"},
}
