package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"image-registry/orm"

	"github.com/rs/zerolog/log"
)

// Reserved label names that mark an image as featured content.
const (
	LabelHeroBanner = "hero-banner"
	LabelSeasonal   = "seasonal"
)

// UsageReport describes everything known to reference an image. It is
// derived at query time and never stored.
type UsageReport struct {
	Exists bool   `json:"exists"`
	Hash   string `json:"hash"`

	UsedInEntities []string `json:"usedInEntities"`
	UsedInLabels   []string `json:"usedInLabels"`

	UsedInHeroBanner bool `json:"usedInHeroBanner"`
	UsedInSeasonal   bool `json:"usedInSeasonal"`

	// UsedInDocuments holds best-effort matches from the secondary,
	// document-based channels.
	UsedInDocuments []string `json:"usedInDocuments,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// InUse reports whether any channel still references the image.
func (r *UsageReport) InUse() bool {
	return len(r.UsedInEntities) > 0 ||
		len(r.UsedInLabels) > 0 ||
		len(r.UsedInDocuments) > 0
}

// UsageOracle is a secondary source consulted to determine whether an image
// is still referenced. Oracles are best-effort safety nets, never a source
// of truth: a failing oracle degrades to a warning.
type UsageOracle interface {
	Scan(ctx context.Context, image *orm.Image) ([]string, error)
}

// CheckImageUsage reports whether the stored image is referenced by
// structured records or by the registered document oracles. Pure read, safe
// to call repeatedly.
func (s *Service) CheckImageUsage(
	ctx context.Context,
	hash string,
) (*UsageReport, error) {
	report := &UsageReport{Hash: hash}

	image, err := s.db.GetImage(ctx, hash)
	if err != nil {
		var notFound *orm.NotFoundError
		if errors.As(err, &notFound) {
			return report, nil
		}

		return nil, err
	}
	report.Exists = true

	entities, err := s.db.EntityRefs(ctx, hash)
	if err != nil {
		return nil, err
	}
	report.UsedInEntities = entities

	for _, label := range image.Labels {
		report.UsedInLabels = append(report.UsedInLabels, label.Name)

		switch label.Name {
		case LabelHeroBanner:
			report.UsedInHeroBanner = true
			report.Warnings = append(report.Warnings,
				"image is part of the hero-banner slot")
		case LabelSeasonal:
			report.UsedInSeasonal = true
			report.Warnings = append(report.Warnings,
				"image is part of the seasonal slot")
		}
	}

	for _, oracle := range s.opts.Oracles {
		hits, err := oracle.Scan(ctx, image)
		if err != nil {
			// Best-effort channel: never fails the overall check.
			log.Warn().
				Err(err).
				Str("hash", hash).
				Msg("secondary usage scan failed")
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("secondary usage scan failed: %v", err))

			continue
		}
		report.UsedInDocuments = append(report.UsedInDocuments, hits...)
	}

	return report, nil
}

// FeaturedDocument scans a read-only JSON document describing
// featured-content slots that may embed image paths. The document is
// accessed opportunistically: a missing file means no usage, a malformed one
// surfaces as a scan error (and hence a warning upstream).
type FeaturedDocument struct {
	Path string
}

func (d *FeaturedDocument) Scan(
	_ context.Context,
	image *orm.Image,
) ([]string, error) {
	if d.Path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read featured-content document: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse featured-content document: %w", err)
	}

	known := make(map[string]bool, len(image.Variants))
	for _, variant := range image.Variants {
		known[normalizePath(variant.Src)] = true
	}

	var hits []string
	walkStrings(doc, "", func(slot, value string) {
		if known[normalizePath(value)] {
			hits = append(hits, fmt.Sprintf(
				"referenced by featured-content slot %q", slot,
			))
		}
	})

	return hits, nil
}

// normalizePath strips a leading slash and the shared public prefix so
// document paths and variant srcs compare equal.
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, "public/")

	return p
}

// walkStrings visits every string value in a decoded JSON tree, reporting
// the slot path it was found under.
func walkStrings(node any, slot string, visit func(slot, value string)) {
	switch value := node.(type) {
	case string:
		visit(slot, value)
	case []any:
		for _, item := range value {
			walkStrings(item, slot, visit)
		}
	case map[string]any:
		for key, item := range value {
			childSlot := key
			if slot != "" {
				childSlot = slot + "." + key
			}
			walkStrings(item, childSlot, visit)
		}
	}
}
