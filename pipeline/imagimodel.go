package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"imagine-rag-backend/content"
	"imagine-rag-backend/models"
)

const (
	unitTypeLayer = "layer"
	unitTypeZone  = "zone"
)

// ShapeImagimodel turns every layer and then every zone of a model into a unit.
// Layers and zones share one running unit index.
func ShapeImagimodel(h Hierarchy, model content.Imagimodel) []ContentUnit {
	units := make([]ContentUnit, 0, len(model.Layers)+len(model.Zones))
	concepts := SlugSet(model.Concepts)

	for _, layer := range model.Layers {
		name := strings.TrimSpace(layer.Name)
		var p payload
		p.addImage(content.Image{URL: layer.ImageURL, Alt: name})
		p.addText(layer.Description)
		if p.empty() {
			continue
		}
		// A layer is an image even when its URL is missing
		p.hasImage = true

		breadcrumb := h.Breadcrumb(model.Title, name)
		idx := len(units)
		units = append(units, ContentUnit{
			Breadcrumb:   breadcrumb,
			SourceType:   models.SourceImagimodelLayer,
			Kind:         models.UnitBlock,
			Type:         unitTypeLayer,
			Index:        idx,
			Text:         renderUnit(breadcrumb, models.UnitBlock, idx, unitTypeLayer, p),
			HasImage:     true,
			Concepts:     concepts,
			MnemonicTags: SlugSet([]string{name}),
		})
	}

	for _, zone := range model.Zones {
		name := strings.TrimSpace(zone.Name)
		var p payload
		if name != "" {
			p.texts = append(p.texts, "Zone: "+name)
		}
		p.addText(zone.Description)
		if p.empty() {
			continue
		}
		p.texts = append(p.texts, zonePosition(zone))

		breadcrumb := h.Breadcrumb(model.Title, name)
		idx := len(units)
		units = append(units, ContentUnit{
			Breadcrumb:   breadcrumb,
			SourceType:   models.SourceImagimodelZone,
			Kind:         models.UnitBlock,
			Type:         unitTypeZone,
			Index:        idx,
			Text:         renderUnit(breadcrumb, models.UnitBlock, idx, unitTypeZone, p),
			Concepts:     concepts,
			MnemonicTags: []string{},
		})
	}

	return units
}

func zonePosition(z content.Zone) string {
	return fmt.Sprintf("Focus: x=%s, y=%s, zoom=%s",
		strconv.FormatFloat(z.X, 'f', -1, 64),
		strconv.FormatFloat(z.Y, 'f', -1, 64),
		strconv.FormatFloat(z.Zoom, 'f', -1, 64))
}
