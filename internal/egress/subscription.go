package egress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	egresserrors "github.com/Meesho/BharatMLStack/proxy-pool/internal/errors"
)

// Clash-style subscription providers ship informational banner entries next
// to real proxies; entries matching these fragments are skipped.
var bannerKeywords = []string{
	"剩余流量",
	"套餐到期",
	"流量重置",
	"永久网址",
	"请收藏",
	"当前网址",
}

var supportedTypes = map[string]bool{
	"trojan": true,
	"vmess":  true,
	"ss":     true,
}

type providerFile struct {
	Proxies []providerEntry `yaml:"proxies"`
}

type providerEntry struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	UUID     string `yaml:"uuid"`
	Cipher   string `yaml:"cipher"`
}

// ParseProvider extracts usable endpoints from one provider document,
// prefixing entry names with the provider namespace. Malformed or
// unsupported entries are logged and skipped, never fatal.
func ParseProvider(data []byte, namespace string) ([]Endpoint, error) {
	var doc providerFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing provider %s: %w", namespace, err)
	}

	out := make([]Endpoint, 0, len(doc.Proxies))
	for _, entry := range doc.Proxies {
		if isBannerEntry(entry.Name) {
			continue
		}
		ep, err := endpointFromEntry(entry, namespace)
		if err != nil {
			log.Warn().Err(err).Str("provider", namespace).Str("name", entry.Name).
				Msg("skipping endpoint")
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

func endpointFromEntry(entry providerEntry, namespace string) (Endpoint, error) {
	if !supportedTypes[entry.Type] {
		return Endpoint{}, fmt.Errorf("%w: %s", egresserrors.ErrUnsupportedProxy, entry.Type)
	}
	ep := Endpoint{
		Name:   namespace + "_" + entry.Name,
		Type:   entry.Type,
		Server: entry.Server,
		Port:   entry.Port,
	}
	switch entry.Type {
	case "trojan":
		ep.Password = entry.Password
	case "vmess":
		ep.UUID = entry.UUID
	case "ss":
		ep.Cipher = entry.Cipher
		ep.Password = entry.Password
	}
	return ep, nil
}

// LoadProviders merges the endpoints of every provider file matching the
// glob, namespacing each file's entries by the file's base name.
func LoadProviders(glob string) ([]Endpoint, error) {
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", egresserrors.ErrNoProviderFiles, glob)
	}

	var merged []Endpoint
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("reading provider file failed")
			continue
		}
		namespace := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		eps, err := ParseProvider(data, namespace)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("parsing provider file failed")
			continue
		}
		log.Info().Str("provider", namespace).Int("endpoints", len(eps)).Msg("loaded provider file")
		merged = append(merged, eps...)
	}
	return merged, nil
}

func isBannerEntry(name string) bool {
	for _, kw := range bannerKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
