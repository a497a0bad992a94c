package model

// Commodity names what a bus carries. It is informational except for
// CommodityInertia, which marks an aggregation bus for inertia edges.
type Commodity string

const (
	CommodityElectricity Commodity = "electricity"
	CommodityFuel        Commodity = "fuel"
	CommodityInertia     Commodity = "inertia"
)

// Bus is a commodity aggregation point. A balanced bus enforces
// Σinflow(t) = Σoutflow(t) at every step; an unbalanced bus only collects edges.
type Bus struct {
	Label     string
	Commodity Commodity
	Balanced  bool
}

// BusOption customises a Bus created by NewBus.
type BusOption func(*Bus)

// WithCommodity sets the commodity carried by the bus.
func WithCommodity(c Commodity) BusOption {
	return func(b *Bus) { b.Commodity = c }
}

// Unbalanced disables the balance constraint on the bus.
func Unbalanced() BusOption {
	return func(b *Bus) { b.Balanced = false }
}

// NewBus returns a balanced electricity bus unless options say otherwise.
func NewBus(label string, opts ...BusOption) Bus {
	b := Bus{Label: label, Commodity: CommodityElectricity, Balanced: true}
	for _, o := range opts {
		o(&b)
	}
	return b
}

// NewInertiaBus returns the unbalanced bus inertia edges point into.
func NewInertiaBus(label string) Bus {
	return Bus{Label: label, Commodity: CommodityInertia, Balanced: false}
}

func (b Bus) entityLabel() string { return b.Label }
