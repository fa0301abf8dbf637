// Package profile stores build configurations as YAML files.
//
// A profile looks like:
//
//	script: main.py
//	env: py311
//	mode: onedir
//	name: MyApp
//	console: false
//	clean: true
//	icon: assets/app.ico
//	paths:
//	  - src
//	data:
//	  - source: assets
//	    dest: assets
//	hidden_imports:
//	  - pkg_resources.py2_warn
//
// Relative paths are resolved against the directory of the profile file.
package profile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/a2y-d5l/pyfreeze/command"
)

// DataEntry is one additional-data pair.
type DataEntry struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// Profile is the serialised form of a build configuration.
type Profile struct {
	Script string `yaml:"script"`
	// Python is an interpreter path; it takes precedence over Env.
	Python string `yaml:"python,omitempty"`
	// Env names a conda environment whose interpreter is used.
	Env           string      `yaml:"env,omitempty"`
	Mode          string      `yaml:"mode,omitempty"`
	Name          string      `yaml:"name,omitempty"`
	Console       *bool       `yaml:"console,omitempty"`
	Clean         *bool       `yaml:"clean,omitempty"`
	Icon          string      `yaml:"icon,omitempty"`
	Paths         []string    `yaml:"paths,omitempty"`
	Data          []DataEntry `yaml:"data,omitempty"`
	HiddenImports []string    `yaml:"hidden_imports,omitempty"`
}

// Parse decodes a profile. Relative paths are left untouched.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if len(bytes.TrimSpace(data)) == 0 {
		return &p, nil
	}
	if err := yaml.NewDecoder(bytes.NewReader(data), yaml.DisallowUnknownField()).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if _, err := command.ParseMode(p.Mode); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a profile file and resolves its relative paths.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	p.resolve(filepath.Dir(abs))
	return p, nil
}

// Save writes the profile to path.
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func (p *Profile) resolve(base string) {
	abs := func(s string) string {
		if s == "" || filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(base, s)
	}
	p.Script = abs(p.Script)
	p.Icon = abs(p.Icon)
	// A bare interpreter name is looked up on PATH, not next to the profile.
	if strings.ContainsAny(p.Python, `/\`) {
		p.Python = abs(p.Python)
	}
	for i := range p.Paths {
		p.Paths[i] = abs(p.Paths[i])
	}
	for i := range p.Data {
		p.Data[i].Source = abs(p.Data[i].Source)
	}
}

// Configuration converts the profile into a build configuration using
// interpreter as the interpreter path. Unset booleans default to a hidden
// console and a clean build.
func (p *Profile) Configuration(interpreter string) (command.BuildConfiguration, error) {
	mode, err := command.ParseMode(p.Mode)
	if err != nil {
		return command.BuildConfiguration{}, err
	}

	cfg := command.BuildConfiguration{
		InterpreterPath:  interpreter,
		ScriptPath:       p.Script,
		Mode:             mode,
		OutputName:       p.Name,
		ShowConsole:      p.Console != nil && *p.Console,
		CleanBeforeBuild: p.Clean == nil || *p.Clean,
		IconPath:         p.Icon,
		ExtraSearchPaths: strings.Join(p.Paths, string(os.PathListSeparator)),
	}
	for _, hi := range p.HiddenImports {
		if hi = strings.TrimSpace(hi); hi != "" {
			cfg.HiddenImports = append(cfg.HiddenImports, hi)
		}
	}
	for _, d := range p.Data {
		cfg.AdditionalData = append(cfg.AdditionalData, command.DataEntry{Source: d.Source, Destination: d.Dest})
	}
	return cfg, nil
}

// FromConfiguration builds a profile that reproduces cfg.
func FromConfiguration(cfg command.BuildConfiguration) *Profile {
	console := cfg.ShowConsole
	clean := cfg.CleanBeforeBuild
	p := &Profile{
		Script:        cfg.ScriptPath,
		Python:        cfg.InterpreterPath,
		Mode:          cfg.Mode.String(),
		Name:          cfg.OutputName,
		Console:       &console,
		Clean:         &clean,
		Icon:          cfg.IconPath,
		HiddenImports: cfg.HiddenImports,
	}
	if cfg.ExtraSearchPaths != "" {
		p.Paths = filepath.SplitList(cfg.ExtraSearchPaths)
	}
	for _, d := range cfg.AdditionalData {
		p.Data = append(p.Data, DataEntry{Source: d.Source, Dest: d.Destination})
	}
	return p
}
