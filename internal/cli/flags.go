// Package cli holds flag helpers shared by imgdash commands.
package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

func AddHelpVersionFlags(fs *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVar(&flags.Help, "help", false, helpDesc)
	fs.BoolVar(&flags.Help, "h", false, helpDesc)
	fs.BoolVar(&flags.Version, "version", false, versionDesc)
	fs.BoolVar(&flags.Version, "v", false, versionDesc)
	return flags
}

// Source names the layer a resolved setting came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// Layer supplies raw flag-syntax values for flags the command line left unset.
type Layer struct {
	Source Source
	Lookup func(name string) (string, bool, error)
}

// EnvLayer maps a flag name such as "max-watches" to PREFIX_MAX_WATCHES.
// A nil getenv reads the process environment. Blank values count as unset.
func EnvLayer(prefix string, getenv func(string) string) Layer {
	if getenv == nil {
		getenv = os.Getenv
	}
	return Layer{
		Source: SourceEnv,
		Lookup: func(name string) (string, bool, error) {
			value := strings.TrimSpace(getenv(EnvName(prefix, name)))
			return value, value != "", nil
		},
	}
}

func EnvName(prefix, name string) string {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// ApplyLayers resolves each named flag of an already parsed set. Flags given
// on the command line win; otherwise layers are consulted in order and the
// first hit is applied through fs.Set so it is validated by the flag's own
// parser. The returned map records where every name was resolved from.
func ApplyLayers(fs *flag.FlagSet, names []string, layers ...Layer) (map[string]Source, error) {
	sources := make(map[string]Source, len(names))
	if fs == nil {
		return sources, nil
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	for _, name := range names {
		if fs.Lookup(name) == nil {
			return sources, fmt.Errorf("unknown flag %q", name)
		}
		if set[name] {
			sources[name] = SourceFlag
			continue
		}
		sources[name] = SourceDefault
		for _, layer := range layers {
			if layer.Lookup == nil {
				continue
			}
			value, ok, err := layer.Lookup(name)
			if err != nil {
				return sources, fmt.Errorf("%s %s: %w", layer.Source, name, err)
			}
			if !ok {
				continue
			}
			if err := fs.Set(name, value); err != nil {
				return sources, fmt.Errorf("invalid %s value for %s: %w", layer.Source, name, err)
			}
			sources[name] = layer.Source
			break
		}
	}
	return sources, nil
}
