package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"aeroport/internal/filter"
	"aeroport/internal/model"
)

// Duration is a time.Duration that decodes from Go duration strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// Settings is the decoded settings file.
type Settings struct {
	FileURLCache       FileURLCache                   `yaml:"file_url_cache"`
	HTTP               HTTPSettings                   `yaml:"http"`
	Browser            BrowserSettings                `yaml:"browser"`
	Flights            FlightSettings                 `yaml:"flights"`
	Destinations       map[string]DestinationSettings `yaml:"destinations"`
	DefaultDestination string                         `yaml:"default_destination"`
	Airlines           map[string]AirlineSettings     `yaml:"airlines"`
}

// FileURLCache configures the downloaded file cache and its storage backend.
type FileURLCache struct {
	Backend         string            `yaml:"backend"`
	Bucket          string            `yaml:"bucket"`
	Options         map[string]string `yaml:"options"`
	Expires         Duration          `yaml:"expires"`
	DownloadTimeout Duration          `yaml:"download_timeout"`
	IOWorkers       int               `yaml:"io_workers"`
}

type HTTPSettings struct {
	Timeout   Duration `yaml:"timeout"`
	Rate      float64  `yaml:"rate"`
	Burst     int      `yaml:"burst"`
	UserAgent string   `yaml:"user_agent"`
}

type BrowserSettings struct {
	Command     string          `yaml:"command"`
	Timeout     Duration        `yaml:"timeout"`
	MaxBrowsers int64           `yaml:"max_browsers"`
	Proxies     []ProxySettings `yaml:"proxies"`
}

type ProxySettings struct {
	Address string `yaml:"address"`
	Type    string `yaml:"type"`
}

type FlightSettings struct {
	CheckpointEvery int `yaml:"checkpoint_every"`
}

// DestinationSettings names a backend and its settings. Destinations are
// enabled unless set otherwise.
type DestinationSettings struct {
	Backend  string            `yaml:"backend"`
	Enabled  *bool             `yaml:"enabled"`
	Settings map[string]string `yaml:"settings"`
}

func (d DestinationSettings) IsEnabled() bool { return d.Enabled == nil || *d.Enabled }

type AirlineSettings struct {
	Enabled      bool                       `yaml:"enabled"`
	Destinations []string                   `yaml:"destinations"`
	Origins      map[string]OriginSettings  `yaml:"origins"`
	Schedule     map[string][]ScheduleEntry `yaml:"schedule"`
}

type OriginSettings struct {
	Enabled  *bool             `yaml:"enabled"`
	Settings map[string]string `yaml:"settings"`
	Feeds    []FeedSettings    `yaml:"feeds"`
	Filters  []model.Filter    `yaml:"filters"`
}

func (o OriginSettings) IsEnabled() bool { return o.Enabled == nil || *o.Enabled }

// Int returns an integer origin setting, or def when unset.
func (o OriginSettings) Int(key string, def int) (int, error) {
	v, ok := o.Settings[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("origin setting %s: %w", key, err)
	}
	return n, nil
}

// FeedSettings is one YML export of a feed origin.
type FeedSettings struct {
	URL      string            `yaml:"url"`
	ShopName string            `yaml:"shop_name"`
	Kwargs   map[string]string `yaml:"kwargs"`
}

type ScheduleEntry struct {
	Crontab     string `yaml:"crontab"`
	Destination string `yaml:"destination"`
}

// LoadSettings reads, defaults and validates a settings file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes settings YAML. Unknown keys are rejected.
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetDefaults fills zero values.
func (s *Settings) SetDefaults() {
	c := &s.FileURLCache
	if c.Backend == "" {
		c.Backend = "fs"
	}
	if c.Bucket == "" {
		c.Bucket = "aeroport"
	}
	if c.Backend == "fs" && c.Options["root"] == "" {
		if c.Options == nil {
			c.Options = make(map[string]string)
		}
		c.Options["root"] = "./data/cache"
	}
	if c.Expires.Duration == 0 {
		c.Expires.Duration = 12 * time.Hour
	}
	if c.DownloadTimeout.Duration == 0 {
		c.DownloadTimeout.Duration = 30 * time.Minute
	}
	if c.IOWorkers <= 0 {
		c.IOWorkers = 4
	}
	if s.HTTP.Timeout.Duration == 0 {
		s.HTTP.Timeout.Duration = 15 * time.Second
	}
	if s.HTTP.Burst <= 0 {
		s.HTTP.Burst = 1
	}
	if s.Browser.Timeout.Duration == 0 {
		s.Browser.Timeout.Duration = 60 * time.Second
	}
	if s.Browser.MaxBrowsers <= 0 {
		s.Browser.MaxBrowsers = 5
	}
	if s.Flights.CheckpointEvery <= 0 {
		s.Flights.CheckpointEvery = 10
	}
	if s.Destinations == nil {
		s.Destinations = make(map[string]DestinationSettings)
	}
	if _, ok := s.Destinations["console"]; !ok {
		s.Destinations["console"] = DestinationSettings{Backend: "console"}
	}
	if s.DefaultDestination == "" {
		s.DefaultDestination = "console"
	}
}

// Validate checks references between sections and that every filter and
// crontab parses. All problems are reported together.
func (s *Settings) Validate() error {
	var errs []error
	for name, d := range s.Destinations {
		if d.Backend == "" {
			errs = append(errs, fmt.Errorf("destination %q: backend is required", name))
		}
	}
	if _, ok := s.Destinations[s.DefaultDestination]; !ok {
		errs = append(errs, fmt.Errorf("default_destination %q is not defined", s.DefaultDestination))
	}
	for _, p := range s.Browser.Proxies {
		if p.Address == "" {
			errs = append(errs, errors.New("browser proxy: address is required"))
		}
	}

	for _, airline := range sortedKeys(s.Airlines) {
		a := s.Airlines[airline]
		for _, d := range a.Destinations {
			if _, ok := s.Destinations[d]; !ok {
				errs = append(errs, fmt.Errorf("airline %q: destination %q is not defined", airline, d))
			}
		}
		for _, origin := range sortedKeys(a.Origins) {
			if _, err := filter.Compile(a.Origins[origin].Filters); err != nil {
				errs = append(errs, fmt.Errorf("airline %q origin %q: %w", airline, origin, err))
			}
			for i, f := range a.Origins[origin].Feeds {
				if f.URL == "" || f.ShopName == "" {
					errs = append(errs, fmt.Errorf("airline %q origin %q feed %d: url and shop_name are required", airline, origin, i))
				}
			}
		}
		for _, origin := range sortedKeys(a.Schedule) {
			for _, e := range a.Schedule[origin] {
				if _, err := cron.ParseStandard(e.Crontab); err != nil {
					errs = append(errs, fmt.Errorf("airline %q schedule %q: crontab %q: %w", airline, origin, e.Crontab, err))
				}
				if e.Destination != "" {
					if _, ok := s.Destinations[e.Destination]; !ok {
						errs = append(errs, fmt.Errorf("airline %q schedule %q: destination %q is not defined", airline, origin, e.Destination))
					}
				}
			}
		}
	}
	return errors.Join(errs...)
}

// DestinationFor picks the destination of a run: the explicit name if
// given, else the airline's first destination, else fallback when it is
// defined, else the default destination.
func (s *Settings) DestinationFor(airline, explicit, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if a, ok := s.Airlines[airline]; ok && len(a.Destinations) > 0 {
		return a.Destinations[0]
	}
	if _, ok := s.Destinations[fallback]; ok && fallback != "" {
		return fallback
	}
	return s.DefaultDestination
}

// DestinationNames returns the defined destination names in order.
func (s *Settings) DestinationNames() []string { return sortedKeys(s.Destinations) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
