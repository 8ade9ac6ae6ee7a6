package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var ErrAdapterNotFound = errors.New("config: adapter not found")

// Catalog lists the adapters this host can connect to.
type Catalog struct {
	Adapters []AdapterConfig `toml:"adapters"`
}

type AdapterConfig struct {
	ID              string         `toml:"id"`
	Name            string         `toml:"name"`
	Vendor          string         `toml:"vendor"`
	Driver          string         `toml:"driver"`
	TimeStampWeight float64        `toml:"time_stamp_weight"`
	Devices         []DeviceConfig `toml:"devices"`
}

type DeviceConfig struct {
	ID          int    `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Connection  string `toml:"connection"`
}

// LoadCatalog reads a catalog file. An empty path yields the built-in catalog.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	var cat Catalog
	if err := loadToml(path, &cat); err != nil {
		return Catalog{}, err
	}
	for i := range cat.Adapters {
		if cat.Adapters[i].TimeStampWeight == 0 {
			cat.Adapters[i].TimeStampWeight = 1
		}
	}
	if err := ValidateCatalog(cat); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() Catalog {
	var cat Catalog
	if err := toml.Unmarshal([]byte(catalogTemplate), &cat); err != nil {
		panic(fmt.Sprintf("config: built-in catalog: %v", err))
	}
	return cat
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateCatalog(cat Catalog) error {
	if len(cat.Adapters) == 0 {
		return fmt.Errorf("catalog lists no adapters")
	}
	seen := make(map[string]bool, len(cat.Adapters))
	for i, a := range cat.Adapters {
		if err := ValidateAdapter(a); err != nil {
			return fmt.Errorf("adapter[%d] invalid: %w", i, err)
		}
		key := strings.ToLower(a.ID)
		if seen[key] {
			return fmt.Errorf("adapter[%d] invalid: duplicate id %q", i, a.ID)
		}
		seen[key] = true
	}
	return nil
}

func ValidateAdapter(a AdapterConfig) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(a.Driver) == "" {
		return fmt.Errorf("driver is required")
	}
	if a.TimeStampWeight < 0 {
		return fmt.Errorf("time_stamp_weight must not be negative")
	}
	if len(a.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	ids := make(map[int]bool, len(a.Devices))
	for _, d := range a.Devices {
		if ids[d.ID] {
			return fmt.Errorf("duplicate device id %d", d.ID)
		}
		ids[d.ID] = true
	}
	return nil
}

// Lookup finds an adapter by id (case-insensitive) and one of its devices.
func (c Catalog) Lookup(adapterID string, deviceID int) (AdapterConfig, DeviceConfig, error) {
	for _, a := range c.Adapters {
		if !strings.EqualFold(a.ID, strings.TrimSpace(adapterID)) {
			continue
		}
		for _, d := range a.Devices {
			if d.ID == deviceID {
				return a, d, nil
			}
		}
		return AdapterConfig{}, DeviceConfig{}, fmt.Errorf("%w: %s has no device %d", ErrAdapterNotFound, a.ID, deviceID)
	}
	return AdapterConfig{}, DeviceConfig{}, fmt.Errorf("%w: %s", ErrAdapterNotFound, adapterID)
}

func (a AdapterConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s", a.ID, a.Name)
	if a.Vendor != "" {
		fmt.Fprintf(&b, " (%s)", a.Vendor)
	}
	fmt.Fprintf(&b, " driver=%s", a.Driver)
	for _, d := range a.Devices {
		fmt.Fprintf(&b, "\n  %d: %s", d.ID, d.Name)
		if d.Description != "" {
			fmt.Fprintf(&b, " - %s", d.Description)
		}
		if d.Connection != "" {
			fmt.Fprintf(&b, " [%s]", d.Connection)
		}
	}
	return b.String()
}
