package generic

import (
	"errors"
	"fmt"
	"time"
)

// Selectors are the CSS selectors used on listing and product pages.
type Selectors struct {
	// Item matches one product card on a listing page. Every other listing
	// selector is evaluated relative to it.
	Item      string `mapstructure:"item"`
	Code      string `mapstructure:"code"`
	CodeAttr  string `mapstructure:"code_attr"`
	Name      string `mapstructure:"name"`
	Link      string `mapstructure:"link"`
	Price     string `mapstructure:"price"`
	PriceAttr string `mapstructure:"price_attr"`
	// InStock matches inside an item only when the item can be bought.
	InStock  string `mapstructure:"in_stock"`
	NextPage string `mapstructure:"next_page"`

	// Specs, when set, must match on a product page or the page is
	// rejected with a hard failure.
	Specs string `mapstructure:"specs"`
}

// Config describes one source. Sources are declared in the config file
// under "sources".
type Config struct {
	ID      int64    `mapstructure:"id"`
	Name    string   `mapstructure:"name"`
	Domains []string `mapstructure:"domains"`
	// Listings maps a raw category name to its listing page URLs.
	Listings  map[string][]string `mapstructure:"listings"`
	Selectors Selectors           `mapstructure:"selectors"`
	Headers   map[string]string   `mapstructure:"headers"`
	MaxPages  int                 `mapstructure:"max_pages"`
	PageDelay time.Duration       `mapstructure:"page_delay"`
	// AddProducts marks listing records as authoritative, allowing them to
	// be registered directly when they carry a part number.
	AddProducts bool `mapstructure:"add_products"`
}

func (c Config) validate() error {
	if c.ID <= 0 {
		return errors.New("source id must be positive")
	}
	if c.Name == "" {
		return errors.New("source name is required")
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("source %s: at least one domain is required", c.Name)
	}
	sel := c.Selectors
	if len(c.Listings) > 0 && (sel.Item == "" || sel.Link == "" || (sel.Code == "" && sel.CodeAttr == "")) {
		return fmt.Errorf("source %s: listings need item, link and code selectors", c.Name)
	}
	return nil
}
