package scheduler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Scheduling heuristics configuration.  The zero value is the deterministic
// production configuration.
type Config struct {
	// Seed for the randomized tie breakers.  Zero means unseeded (only
	// meaningful when no perturbation is enabled).
	Seed int64 `yaml:"seed"`

	// Randomize global code motion's block choice among equally legal
	// candidates.
	PerturbGCM bool `yaml:"perturb_gcm"`

	// Randomize local code motion's pick among ready instructions.
	PerturbLCM bool `yaml:"perturb_lcm"`
}

// A named configuration, e.g., "stress-gcm".
type Profile struct {
	Name   string `yaml:"name"`
	Config `yaml:",inline"`
}

// Usage error for an invalid or conflicting configuration.  Unlike
// compilation errors, config errors are reported to the caller immediately
// and never trigger a tier fallback.
type ConfigError struct {
	Profile string // empty for unnamed configs
	Message string
}

func (err *ConfigError) Error() string {
	if err.Profile == "" {
		return "invalid scheduler config: " + err.Message
	}
	return fmt.Sprintf("invalid scheduler config (%s): %s", err.Profile, err.Message)
}

func DefaultConfig() Config {
	return Config{}
}

// Returns a copy of the config that perturbs both passes with the given seed.
func StressConfig(seed int64) Config {
	return Config{
		Seed:       seed,
		PerturbGCM: true,
		PerturbLCM: true,
	}
}

func (config Config) IsPerturbed() bool {
	return config.PerturbGCM || config.PerturbLCM
}

func (config Config) Validate() error {
	if config.Seed < 0 {
		return &ConfigError{
			Message: fmt.Sprintf("negative seed (%d)", config.Seed),
		}
	}

	if config.Seed != 0 && !config.IsPerturbed() {
		return &ConfigError{
			Message: fmt.Sprintf(
				"conflicting toggles: seed (%d) is set but neither perturb_gcm "+
					"nor perturb_lcm is enabled",
				config.Seed),
		}
	}

	return nil
}

func (config Config) GCMTieBreaker() TieBreaker {
	if !config.PerturbGCM {
		return Deterministic()
	}
	return NewSeededTieBreaker(config.Seed, gcmStream)
}

func (config Config) LCMTieBreaker() TieBreaker {
	if !config.PerturbLCM {
		return Deterministic()
	}
	return NewSeededTieBreaker(config.Seed, lcmStream)
}

func (config Config) String() string {
	return fmt.Sprintf(
		"seed=%d perturb_gcm=%v perturb_lcm=%v",
		config.Seed,
		config.PerturbGCM,
		config.PerturbLCM)
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Parses a yaml document of the form
//
//	profiles:
//	  - name: stress
//	    seed: 1
//	    perturb_gcm: true
//	    perturb_lcm: true
//
// Unknown keys, duplicate names and invalid configs are usage errors.
func LoadProfiles(reader io.Reader) ([]Profile, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	file := profileFile{}
	err := decoder.Decode(&file)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Message: err.Error()}
	}

	names := map[string]struct{}{}
	for _, profile := range file.Profiles {
		if profile.Name == "" {
			return nil, &ConfigError{Message: "unnamed profile"}
		}

		_, ok := names[profile.Name]
		if ok {
			return nil, &ConfigError{
				Profile: profile.Name,
				Message: "duplicate profile name",
			}
		}
		names[profile.Name] = struct{}{}

		err := profile.Validate()
		if err != nil {
			configErr := err.(*ConfigError)
			configErr.Profile = profile.Name
			return nil, configErr
		}
	}

	return file.Profiles, nil
}

func ParseProfiles(content []byte) ([]Profile, error) {
	return LoadProfiles(bytes.NewReader(content))
}

func FindProfile(profiles []Profile, name string) (Config, error) {
	for _, profile := range profiles {
		if profile.Name == name {
			return profile.Config, nil
		}
	}
	return Config{}, &ConfigError{Profile: name, Message: "unknown profile"}
}
