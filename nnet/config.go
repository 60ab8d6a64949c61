package nnet

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Training configuration settings
type Config struct {
	Eta          float64
	MinEta       float64
	Beta1        float64
	Beta2        float64
	Shuffle      bool
	TrainBatch   int
	TestBatch    int
	MaxEpoch     int
	MaxSamples   int
	LogEvery     int
	StopAfter    int
	RestoreBest  bool
	ReduceAfter  int
	ReduceFactor float64
	RandSeed     int64
	Threads      int
	DebugLevel   int
	Layers       []LayerConfig
}

// Load network definition from json file
func LoadConfig(file string) (c Config, err error) {
	var f *os.File
	if f, err = os.Open(file); err != nil {
		return
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err = dec.Decode(&c); err != nil {
		return c, fmt.Errorf("error decoding config %s: %w", file, err)
	}
	return
}

// Append layers to the config struct
func (c Config) AddLayers(layers ...ConfigLayer) Config {
	for _, l := range layers {
		c.Layers = append(c.Layers, l.Marshal())
	}
	return c
}

// Save config to JSON file
func (c Config) Save(file string) error {
	tmpFile := file + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(c); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpFile, file)
}

// Fields returns the names of the scalar settings, excluding the layer definitions.
func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	fld := make([]string, st.NumField()-1)
	for i := range fld {
		fld[i] = st.Field(i).Name
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	s := reflect.ValueOf(c)
	return s.FieldByName(key).Interface()
}

func (c Config) configString() string {
	fields := c.Fields()
	str := []string{"== Config =="}
	for _, key := range fields {
		str = append(str, fmt.Sprintf("%-14s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}

func (c Config) String() string {
	s := c.configString()
	if c.Layers != nil {
		str := []string{"\n== Network =="}
		for i, layer := range c.Layers {
			str = append(str, fmt.Sprintf("%2d: %s", i, layer))
		}
		s += strings.Join(str, "\n")
	}
	return s
}

// SetString parses val according to the type of the named field.
func (c Config) SetString(key, val string) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if !f.IsValid() {
		return c, fmt.Errorf("invalid config field %q", key)
	}
	var err error
	switch f.Type().Kind() {
	case reflect.Int, reflect.Int64:
		var x int64
		if x, err = strconv.ParseInt(val, 10, 64); err == nil {
			f.SetInt(x)
		}
	case reflect.Float64:
		var x float64
		if x, err = strconv.ParseFloat(val, 64); err == nil {
			f.SetFloat(x)
		}
	case reflect.Bool:
		var x bool
		if x, err = strconv.ParseBool(val); err == nil {
			f.SetBool(x)
		}
	case reflect.String:
		f.SetString(val)
	default:
		return c, fmt.Errorf("invalid type for SetString: %v", f.Type().Kind())
	}
	return c, err
}

func (c Config) SetBool(key string, val bool) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if !f.IsValid() {
		return c, fmt.Errorf("invalid config field %q", key)
	}
	if f.Type().Kind() == reflect.Bool {
		f.SetBool(val)
		return c, nil
	}
	return c, fmt.Errorf("invalid type for SetBool: %v", f.Type().Kind())
}

// Apply a list of settings of the form Name=value.
func (c Config) SetValues(settings []string) (Config, error) {
	var err error
	for _, s := range settings {
		key, val, ok := strings.Cut(s, "=")
		if !ok {
			return c, fmt.Errorf("invalid setting %q: expecting Name=value", s)
		}
		if c, err = c.SetString(strings.TrimSpace(key), strings.TrimSpace(val)); err != nil {
			return c, err
		}
	}
	return c, nil
}
