package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/shodobot-go/internal/domain/router"
)

// LoadKeywords reads a versioned router keyword file. An empty path yields
// the built-in defaults. Lists omitted from the file keep their defaults.
func LoadKeywords(path string) (router.Keywords, error) {
	kw := router.DefaultKeywords()
	if path == "" {
		return kw, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return kw, fmt.Errorf("failed to read keywords: %w", err)
	}
	return ParseKeywords(data)
}

// ParseKeywords decodes a keyword document on top of the defaults.
func ParseKeywords(data []byte) (router.Keywords, error) {
	kw := router.DefaultKeywords()

	var file router.Keywords
	if err := yaml.Unmarshal(data, &file); err != nil {
		return kw, fmt.Errorf("failed to parse keywords: %w", err)
	}
	if file.Version < 1 {
		return kw, fmt.Errorf("keywords file must declare version >= 1")
	}

	kw.Version = file.Version
	if file.Workspace != nil {
		kw.Workspace = file.Workspace
	}
	if file.Documents != nil {
		kw.Documents = file.Documents
	}
	if file.Generic != nil {
		kw.Generic = file.Generic
	}
	if file.Business != nil {
		kw.Business = file.Business
	}
	return kw, nil
}
