package extractor

import (
	"encoding/json"
	"fmt"
	"os"
)

// SitePlacement is the per-site override of where chapter images land and
// how pages are named.
type SitePlacement struct {
	// Directory is the chapter folder pattern relative to the destination
	Directory []string `json:"directory"`
	// Filename is the page filename pattern
	Filename string `json:"filename"`
}

// DefaultSiteTable maps extractor site keys to their placement. It is a
// package variable so embedders can swap it out at build time.
var DefaultSiteTable = map[string]SitePlacement{
	"mangadex": {
		Directory: []string{"{manga} Ch.{chapter}"},
		Filename:  "{page:>03}.{extension}",
	},
	"dynastyscans": {
		Directory: []string{"{manga} Ch.{chapter}"},
		Filename:  "{page:>03}.{extension}",
	},
}

// ConfigOptions parameterize the generated extractor configuration.
type ConfigOptions struct {
	PreferredLanguage string
	Username          string
	Password          string
	SiteTable         map[string]SitePlacement
}

// buildConfig produces the extractor configuration document: per-site
// placement templates plus a postprocessor that packs each finished chapter
// folder into an uncompressed CBZ and removes the folder.
func buildConfig(opts ConfigOptions) map[string]interface{} {
	table := opts.SiteTable
	if table == nil {
		table = DefaultSiteTable
	}

	postprocessors := []map[string]interface{}{
		{
			"name":        "zip",
			"compression": "store",
			"extension":   "cbz",
			"keep-files":  false,
			"mode":        "safe",
		},
	}

	extractorCfg := map[string]interface{}{
		"directory":      []string{"{category}", "{title}"},
		"filename":       "{page:>03}.{extension}",
		"postprocessors": postprocessors,
	}

	for site, placement := range table {
		siteCfg := map[string]interface{}{
			"directory": placement.Directory,
			"filename":  placement.Filename,
		}
		if opts.PreferredLanguage != "" {
			siteCfg["lang"] = opts.PreferredLanguage
		}
		if opts.Username != "" {
			siteCfg["username"] = opts.Username
		}
		if opts.Password != "" {
			siteCfg["password"] = opts.Password
		}
		extractorCfg[site] = siteCfg
	}

	return map[string]interface{}{
		"extractor": extractorCfg,
	}
}

// WriteConfigFile renders the configuration deterministically to path.
func WriteConfigFile(path string, opts ConfigOptions) error {
	data, err := json.MarshalIndent(buildConfig(opts), "", "  ")
	if err != nil {
		return fmt.Errorf("encode extractor config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write extractor config: %w", err)
	}
	return nil
}
