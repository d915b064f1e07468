package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"closetapi/models"
)

// GCPVisionProvider classifies garments from Cloud Vision label detection and
// derives the palette from the dominant-colors annotation. It is the only
// non-LLM network provider in the chain.
type GCPVisionProvider struct {
	once   sync.Once
	client *vision.ImageAnnotatorClient
	initEr error
}

func NewGCPVisionProvider() *GCPVisionProvider {
	return &GCPVisionProvider{}
}

func (p *GCPVisionProvider) Name() string { return "gcp-vision" }

func (p *GCPVisionProvider) Available() bool {
	return os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" ||
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON") != ""
}

func (p *GCPVisionProvider) init(ctx context.Context) error {
	p.once.Do(func() {
		p.client, p.initEr = vision.NewImageAnnotatorClient(context.WithoutCancel(ctx))
	})
	return p.initEr
}

var gcpCategoryKeywords = map[string][]string{
	"formalwear": {"suit", "tuxedo", "gown", "formal wear"},
	"sportswear": {"sportswear", "jersey", "activewear", "tracksuit", "swimwear"},
	"underwear":  {"undergarment", "lingerie", "bra", "briefs"},
	"outerwear":  {"jacket", "coat", "blazer", "parka", "overcoat"},
	"shoes":      {"shoe", "sneaker", "boot", "sandal", "footwear", "heel"},
	"bottom":     {"jeans", "trousers", "pants", "shorts", "skirt", "leggings"},
	"accessory":  {"hat", "cap", "scarf", "bag", "belt", "glasses", "watch", "jewellery", "jewelry", "necktie"},
	"top":        {"shirt", "t-shirt", "blouse", "sweater", "hoodie", "polo", "tank top", "sweatshirt", "cardigan", "dress"},
}

// match order matters: specific categories before the catch-all top keywords
var gcpCategoryOrder = []string{"formalwear", "sportswear", "underwear", "outerwear", "shoes", "bottom", "accessory", "top"}

func (p *GCPVisionProvider) Analyze(ctx context.Context, imageBytes []byte, mimeHint string) (*models.ClothingAttributes, error) {
	if err := p.init(ctx); err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrClient, err)
	}

	batch, err := p.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: imageBytes},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 20},
				{Type: visionpb.Feature_IMAGE_PROPERTIES},
			},
		}},
	})
	if err != nil {
		return nil, p.classifyError(err)
	}
	if len(batch.GetResponses()) == 0 || batch.GetResponses()[0] == nil {
		return nil, NewProviderError(p.Name(), ProviderErrUnparseable, fmt.Errorf("empty batch response"))
	}
	resp := batch.GetResponses()[0]
	if respErr := resp.GetError(); respErr != nil {
		return nil, NewProviderError(p.Name(), ProviderErrServer, fmt.Errorf("annotate error: %s", respErr.GetMessage()))
	}

	attrs, err := p.attributesFromLabels(resp.GetLabelAnnotations())
	if err != nil {
		return nil, NewProviderError(p.Name(), ProviderErrUnparseable, err)
	}
	attrs.Colors = p.colorsFromProperties(resp.GetImagePropertiesAnnotation())
	return attrs, nil
}

func (p *GCPVisionProvider) attributesFromLabels(labels []*visionpb.EntityAnnotation) (*models.ClothingAttributes, error) {
	attrs := &models.ClothingAttributes{Style: "casual"}
	for _, label := range labels {
		desc := strings.ToLower(label.GetDescription())
		attrs.DetectedFeatures = append(attrs.DetectedFeatures, desc)

		if attrs.Category == "" {
			for _, category := range gcpCategoryOrder {
				for _, keyword := range gcpCategoryKeywords[category] {
					if strings.Contains(desc, keyword) {
						attrs.Category = category
						attrs.SubCategory = desc
						attrs.Confidence = float64(label.GetScore())
						break
					}
				}
				if attrs.Category != "" {
					break
				}
			}
		}

		switch {
		case strings.Contains(desc, "formal"):
			attrs.Style = "formal"
		case strings.Contains(desc, "sport") || strings.Contains(desc, "active"):
			attrs.Style = "sport"
		case strings.Contains(desc, "vintage"):
			attrs.Style = "vintage"
		}
	}
	if attrs.Category == "" {
		return nil, fmt.Errorf("no clothing label among %d annotations", len(labels))
	}
	switch attrs.Category {
	case "outerwear":
		attrs.Seasons = []string{"autumn", "winter"}
	case "sportswear":
		attrs.Seasons = []string{"spring", "summer"}
	}
	return attrs, nil
}

func (p *GCPVisionProvider) colorsFromProperties(props *visionpb.ImageProperties) []string {
	if props == nil || props.GetDominantColors() == nil {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	for _, info := range props.GetDominantColors().GetColors() {
		c := info.GetColor()
		if c == nil {
			continue
		}
		name := classifyColor(uint8(c.GetRed()), uint8(c.GetGreen()), uint8(c.GetBlue()))
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		if len(names) == 3 {
			break
		}
	}
	return names
}

func (p *GCPVisionProvider) classifyError(err error) *ProviderError {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return NewProviderError(p.Name(), ProviderErrTimeout, err)
	case codes.Internal, codes.Unavailable, codes.ResourceExhausted:
		return NewProviderError(p.Name(), ProviderErrServer, err)
	default:
		return NewProviderError(p.Name(), ProviderErrClient, err)
	}
}
