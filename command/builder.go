package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// PackagingModule is the Python module invoked with -m.
	PackagingModule = "PyInstaller"

	// outputDirName is the directory created next to the script that holds
	// every build artifact.
	outputDirName = "output"
)

// ExistsFunc reports whether a path exists on disk.
type ExistsFunc func(path string) bool

// Builder turns BuildConfigurations into CommandLines.
// The zero value is not usable; use NewBuilder or the package-level Build.
type Builder struct {
	exists ExistsFunc
}

// Option configures a Builder.
type Option func(*Builder)

// WithExistsFunc replaces the interpreter existence check.
// Front ends that keep a virtual file system use this; tests use it to avoid
// touching the disk.
func WithExistsFunc(fn ExistsFunc) Option {
	return func(b *Builder) {
		b.exists = fn
	}
}

// NewBuilder returns a Builder that checks the real file system unless
// overridden.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{exists: fileExists}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var defaultBuilder = NewBuilder()

// Build validates cfg and produces its command line using the real file
// system for the interpreter check.
func Build(cfg BuildConfiguration) (*CommandLine, error) {
	return defaultBuilder.Build(cfg)
}

// Preview returns the escaped command for cfg, or "<error: reason>" when cfg
// is not buildable. It never fails, which makes it safe to call on every
// keystroke.
func Preview(cfg BuildConfiguration) string {
	return defaultBuilder.Preview(cfg)
}

// Preview is the Builder form of the package-level Preview.
func (b *Builder) Preview(cfg BuildConfiguration) string {
	cl, err := b.Build(cfg)
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return cl.String()
}

// Build validates cfg and produces its command line.
//
// Validation order (first failure wins):
//  1. interpreter missing or not on disk → ErrInvalidInterpreter
//  2. empty script path → ErrNoScript
//  3. additional-data entry with an empty side → ErrIncompleteData
//
// Argument order is fixed because downstream tooling may depend on it:
//
//	<python> -m PyInstaller <script>
//	--distpath <dist> --workpath <build> --specpath <output>
//	-F|-D [--name N] [--noconsole] [--clean] [--icon I] [--paths P]
//	[--add-data src<sep>dst]... [--hidden-import M]...
func (b *Builder) Build(cfg BuildConfiguration) (*CommandLine, error) {
	if err := b.validate(cfg); err != nil {
		return nil, err
	}

	outputDir := filepath.Join(filepath.Dir(cfg.ScriptPath), outputDirName)
	distDir := filepath.Join(outputDir, "dist")
	workDir := filepath.Join(outputDir, "build")

	args := []string{"-m", PackagingModule, cfg.ScriptPath}
	args = append(args,
		"--distpath", distDir,
		"--workpath", workDir,
		"--specpath", outputDir,
	)

	args = append(args, cfg.Mode.Flag())

	if cfg.OutputName != "" {
		args = append(args, "--name", cfg.OutputName)
	}
	if !cfg.ShowConsole {
		args = append(args, "--noconsole")
	}
	if cfg.CleanBeforeBuild {
		args = append(args, "--clean")
	}
	if cfg.IconPath != "" {
		args = append(args, "--icon", cfg.IconPath)
	}
	if cfg.ExtraSearchPaths != "" {
		args = append(args, "--paths", cfg.ExtraSearchPaths)
	}
	for _, d := range cfg.AdditionalData {
		args = append(args, "--add-data", d.Source+string(os.PathListSeparator)+d.Destination)
	}
	for _, imp := range cfg.HiddenImports {
		imp = strings.TrimSpace(imp)
		if imp == "" {
			continue
		}
		args = append(args, "--hidden-import", imp)
	}

	return &CommandLine{
		Executable: cfg.InterpreterPath,
		Args:       args,
		DistDir:    distDir,
	}, nil
}

func (b *Builder) validate(cfg BuildConfiguration) error {
	if cfg.InterpreterPath == "" {
		return &ValidationError{Err: ErrInvalidInterpreter, Field: "interpreterPath", Reason: "no interpreter selected"}
	}
	if !b.exists(cfg.InterpreterPath) {
		return &ValidationError{
			Err:    ErrInvalidInterpreter,
			Field:  "interpreterPath",
			Reason: fmt.Sprintf("%s does not exist", cfg.InterpreterPath),
		}
	}
	if cfg.ScriptPath == "" {
		return &ValidationError{Err: ErrNoScript, Field: "scriptPath"}
	}
	for i, d := range cfg.AdditionalData {
		if d.Source == "" || d.Destination == "" {
			return &ValidationError{
				Err:    ErrIncompleteData,
				Field:  "additionalData",
				Reason: fmt.Sprintf("entry %d", i+1),
			}
		}
	}
	return nil
}

// ParseHiddenImports splits a comma-separated module list, trimming
// whitespace and dropping empty entries.
func ParseHiddenImports(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseDataEntry parses "source<sep>destination" where <sep> is the host
// path-list separator. The split happens at the last separator so Windows
// drive letters in the source survive.
func ParseDataEntry(s string) (DataEntry, error) {
	idx := strings.LastIndex(s, string(os.PathListSeparator))
	if idx <= 0 || idx == len(s)-1 {
		return DataEntry{}, fmt.Errorf("%w: %q (want source%cdest)", ErrIncompleteData, s, os.PathListSeparator)
	}
	return DataEntry{Source: s[:idx], Destination: s[idx+1:]}, nil
}

// DefaultOutputName derives an artifact name from the script file name.
func DefaultOutputName(scriptPath string) string {
	base := filepath.Base(scriptPath)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
