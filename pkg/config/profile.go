package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

// SupportedSchemaVersions constrains the schema_version of profiles.
const SupportedSchemaVersions = "^1.0.0"

const profileSchemaURL = "https://helm-bridge.schemas.local/profile.schema.json"

//go:embed profile.schema.json
var profileSchema string

var ErrUnsupportedSchemaVersion = errors.New("unsupported profile schema version")

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(profileSchemaURL, strings.NewReader(profileSchema)); err != nil {
			compileErr = fmt.Errorf("profile schema load failed: %w", err)
			return
		}
		compiled, compileErr = c.Compile(profileSchemaURL)
	})
	return compiled, compileErr
}

// Profile describes one deployment: which chain it serves, which program it
// upgrades and whom it trusts.
type Profile struct {
	SchemaVersion     string               `json:"schema_version"`
	Chain             uint16               `json:"chain"`
	ProgramID         string               `json:"program_id"`
	CoreBridgeProgram string               `json:"core_bridge_program"`
	GovernanceChain   *uint16              `json:"governance_chain,omitempty"`
	GovernanceEmitter string               `json:"governance_emitter,omitempty"`
	GuardianSets      []GuardianSetProfile `json:"guardian_sets"`
}

type GuardianSetProfile struct {
	Index uint32   `json:"index"`
	Keys  []string `json:"keys"`
}

// Deployment is a Profile resolved to typed values.
type Deployment struct {
	Chain             contracts.ChainID
	ProgramID         contracts.Address
	CoreBridgeProgram contracts.Address
	GovernanceChain   contracts.ChainID
	GovernanceEmitter contracts.Address
	GuardianSets      []*vaa.GuardianSet
}

// LoadProfile reads a YAML (.yaml, .yml) or TOML (.toml) profile, validates
// it against the profile schema and checks its schema version.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var generic map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &generic)
	case ".toml":
		_, err = toml.Decode(string(data), &generic)
	default:
		return nil, fmt.Errorf("load profile %q: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}

	return decodeProfile(generic)
}

func decodeProfile(generic map[string]any) (*Profile, error) {
	// Round-trip through JSON so YAML and TOML values reach the validator
	// in the shape it expects.
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}

	s, err := schema()
	if err != nil {
		return nil, err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("profile schema validation failed: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	if err := checkSchemaVersion(p.SchemaVersion); err != nil {
		return nil, err
	}
	return &p, nil
}

func checkSchemaVersion(v string) error {
	c, err := semver.NewConstraint(SupportedSchemaVersions)
	if err != nil {
		return err
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrUnsupportedSchemaVersion, v, err)
	}
	if !c.Check(ver) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedSchemaVersion, ver, SupportedSchemaVersions)
	}
	return nil
}

// Resolve converts the profile into typed values. Governance defaults to the
// canonical governance chain and emitter.
func (p *Profile) Resolve() (*Deployment, error) {
	d := &Deployment{
		Chain:             contracts.ChainID(p.Chain),
		GovernanceChain:   contracts.GovernanceChain,
		GovernanceEmitter: contracts.GovernanceEmitter,
	}

	var err error
	if d.ProgramID, err = contracts.ParseAddress(p.ProgramID); err != nil {
		return nil, fmt.Errorf("program_id: %w", err)
	}
	if d.CoreBridgeProgram, err = contracts.ParseAddress(p.CoreBridgeProgram); err != nil {
		return nil, fmt.Errorf("core_bridge_program: %w", err)
	}
	if p.GovernanceChain != nil {
		d.GovernanceChain = contracts.ChainID(*p.GovernanceChain)
	}
	if p.GovernanceEmitter != "" {
		if d.GovernanceEmitter, err = contracts.ParseAddress(p.GovernanceEmitter); err != nil {
			return nil, fmt.Errorf("governance_emitter: %w", err)
		}
	}

	for _, gs := range p.GuardianSets {
		set := &vaa.GuardianSet{Index: gs.Index}
		for i, k := range gs.Keys {
			if !common.IsHexAddress(k) {
				return nil, fmt.Errorf("guardian set %d key %d: invalid guardian address %q", gs.Index, i, k)
			}
			set.Keys = append(set.Keys, common.HexToAddress(k))
		}
		d.GuardianSets = append(d.GuardianSets, set)
	}
	return d, nil
}
