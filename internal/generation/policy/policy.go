package policy

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyFS embed.FS

// Thresholds drives the outline accept/reject decision.
type Thresholds struct {
	SafetyFloor       float64 `yaml:"safety_floor"`
	SafetySevereFloor float64 `yaml:"safety_severe_floor"`
	SpecificityFloor  float64 `yaml:"specificity_floor"`
	MinAge            int     `yaml:"min_age"`
	MaxAge            int     `yaml:"max_age"`
}

type Lessons struct {
	MaxRetries     int `yaml:"max_retries"`
	MaxConcurrency int `yaml:"max_concurrency"`
}

// Imports is the module allow/block list applied to generated component source.
type Imports struct {
	Allowed         []string `yaml:"allowed"`
	AllowedPrefixes []string `yaml:"allowed_prefixes"`
	Blocked         []string `yaml:"blocked"`
	BlockedPrefixes []string `yaml:"blocked_prefixes"`
}

type Policy struct {
	Name       string     `yaml:"policy"`
	Version    int        `yaml:"version"`
	Thresholds Thresholds `yaml:"thresholds"`
	Lessons    Lessons    `yaml:"lessons"`
	Imports    Imports    `yaml:"imports"`
}

// Default returns the embedded policy. It panics if the embedded document is
// invalid, which is a build defect.
func Default() Policy {
	p, err := parse(mustEmbedded())
	if err != nil {
		panic(fmt.Sprintf("policy: embedded policy.yaml invalid: %v", err))
	}
	return p
}

// Load reads a policy document from path, or the embedded default when path
// is empty.
func Load(path string) (Policy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return parse(data)
}

func mustEmbedded() []byte {
	data, err := policyFS.ReadFile("policy.yaml")
	if err != nil {
		panic(err)
	}
	return data
}

func parse(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, err
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if strings.TrimSpace(p.Name) != "lesson_generation" {
		return fmt.Errorf("unexpected policy: %q", p.Name)
	}
	t := p.Thresholds
	for name, v := range map[string]float64{
		"safety_floor":        t.SafetyFloor,
		"safety_severe_floor": t.SafetySevereFloor,
		"specificity_floor":   t.SpecificityFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s out of range [0,1]: %v", name, v)
		}
	}
	if t.SafetySevereFloor > t.SafetyFloor {
		return errors.New("safety_severe_floor must not exceed safety_floor")
	}
	if t.MinAge < 0 || t.MinAge > t.MaxAge {
		return fmt.Errorf("invalid age bounds [%d,%d]", t.MinAge, t.MaxAge)
	}
	if p.Lessons.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	if len(p.Imports.Allowed) == 0 && len(p.Imports.AllowedPrefixes) == 0 {
		return errors.New("import allow-list is empty")
	}
	return nil
}
