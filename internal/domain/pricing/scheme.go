package pricing

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

var ErrInvalidScheme = errors.New("invalid pricing scheme")

// Tier prices one finite size of a dimension (MB for memory/disk, percent for cpu).
type Tier struct {
	Size  int   `toml:"size"`
	Price int64 `toml:"price"`
}

// Dimension is a finite tier table plus a flat rate for the unlimited option.
type Dimension struct {
	Tiers     []Tier `toml:"tiers"`
	Unlimited int64  `toml:"unlimited"`
}

func (d Dimension) price(size int) (int64, bool) {
	if size == 0 {
		return d.Unlimited, true
	}
	for _, t := range d.Tiers {
		if t.Size == size {
			return t.Price, true
		}
	}
	return 0, false
}

// Sizes lists the finite tier sizes in ascending order.
func (d Dimension) Sizes() []int {
	sizes := make([]int, len(d.Tiers))
	for i, t := range d.Tiers {
		sizes[i] = t.Size
	}
	return sizes
}

func (d Dimension) validate(name string) error {
	if d.Unlimited < 0 {
		return fmt.Errorf("%w: %s unlimited price is negative", ErrInvalidScheme, name)
	}
	if len(d.Tiers) == 0 {
		return fmt.Errorf("%w: %s has no tiers", ErrInvalidScheme, name)
	}
	for i, t := range d.Tiers {
		if t.Size <= 0 {
			return fmt.Errorf("%w: %s tier %d has non-positive size", ErrInvalidScheme, name, i)
		}
		if t.Price < 0 {
			return fmt.Errorf("%w: %s tier %d has negative price", ErrInvalidScheme, name, i)
		}
		if i == 0 {
			continue
		}
		prev := d.Tiers[i-1]
		if t.Size <= prev.Size {
			return fmt.Errorf("%w: %s tiers must be sorted by strictly increasing size", ErrInvalidScheme, name)
		}
		if t.Price < prev.Price {
			return fmt.Errorf("%w: %s tier %d is cheaper than a smaller tier", ErrInvalidScheme, name, t.Size)
		}
	}
	return nil
}

// Scheme is the full price table. Prices are in currency minor units.
type Scheme struct {
	FixedFee int64     `toml:"fixed_fee"`
	Memory   Dimension `toml:"memory"`
	Disk     Dimension `toml:"disk"`
	CPU      Dimension `toml:"cpu"`
}

func (s Scheme) Validate() error {
	if s.FixedFee < 0 {
		return fmt.Errorf("%w: fixed fee is negative", ErrInvalidScheme)
	}
	if err := s.Memory.validate("memory"); err != nil {
		return err
	}
	if err := s.Disk.validate("disk"); err != nil {
		return err
	}
	return s.CPU.validate("cpu")
}

// DefaultScheme is the stock price table, in rupiah.
func DefaultScheme() Scheme {
	perGB := func(rate int64) []Tier {
		tiers := make([]Tier, 0, 5)
		for gb := 1; gb <= 5; gb++ {
			tiers = append(tiers, Tier{Size: gb * 1024, Price: int64(gb) * rate})
		}
		return tiers
	}

	return Scheme{
		FixedFee: 2000,
		Memory:   Dimension{Tiers: perGB(6000), Unlimited: 4000},
		Disk:     Dimension{Tiers: perGB(6000), Unlimited: 3000},
		CPU: Dimension{
			Tiers: []Tier{
				{Size: 60, Price: 4000},
				{Size: 70, Price: 5000},
				{Size: 80, Price: 6000},
				{Size: 90, Price: 7000},
				{Size: 100, Price: 8000},
				{Size: 150, Price: 9000},
				{Size: 250, Price: 11000},
			},
			Unlimited: 35000,
		},
	}
}

// LoadScheme reads a TOML price table. An empty path yields DefaultScheme.
func LoadScheme(path string) (Scheme, error) {
	if path == "" {
		return DefaultScheme(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Scheme{}, fmt.Errorf("failed to read pricing file: %w", err)
	}
	return ParseScheme(string(data))
}

// ParseScheme decodes and validates a TOML price table.
func ParseScheme(doc string) (Scheme, error) {
	var s Scheme
	md, err := toml.Decode(doc, &s)
	if err != nil {
		return Scheme{}, fmt.Errorf("failed to decode pricing scheme: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Scheme{}, fmt.Errorf("%w: unknown key %s", ErrInvalidScheme, undecoded[0])
	}
	if err := s.Validate(); err != nil {
		return Scheme{}, err
	}
	return s, nil
}
