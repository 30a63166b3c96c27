package dev

import "github.com/sw33tLie/stockfinder/pkg/sources"

const SeedDomain = "devshop.test"

// Seeded returns an adapter preloaded with a small GPU/CPU catalogue that
// exercises every reconciliation path: direct registration, queueing,
// confirmation and a hard extraction failure.
func Seeded() *Adapter {
	a := New(sources.Source{ID: 900, Name: "devshop"}, SeedDomain)

	base := "https://" + SeedDomain + "/p/"
	a.SetListing("GPU",
		sources.Record{Code: "G-4070", Name: "GeForce RTX 4070 12GB", URL: base + "g-4070", Category: "GPU", PartNumber: "RTX4070-12G", Manufacturer: "NVIDIA", Price: 599.9, Stock: true, AddProduct: true},
		sources.Record{Code: "G-7800", Name: "Radeon RX 7800 XT", URL: base + "g-7800", Category: "Tarjetas Gráficas", Price: 529, Stock: false},
		sources.Record{Code: "G-BAD", Name: "", URL: base + "g-bad", Category: "GPU", Price: 10},
	)
	a.SetListing("CPU",
		sources.Record{Code: "C-7800X3D", Name: "Ryzen 7 7800X3D", URL: base + "c-7800x3d", Category: "Procesadores", Price: 389, Stock: true},
	)

	a.SetProduct(base+"g-7800", sources.Record{Code: "G-7800", Name: "Radeon RX 7800 XT 16GB", Category: "GPU", PartNumber: "RX-78XT16G", Manufacturer: "AMD", Price: 529, Stock: false})
	a.SetFailure(base+"c-7800x3d", sources.ReasonSpecsNotFound)
	return a
}
